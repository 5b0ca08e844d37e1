package app

import (
	"gorm.io/gorm"

	"github.com/upliftcs/upliftcs-backend/internal/data/repos"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

type Repos struct {
	Customer      repos.CustomerRepo
	Activity      repos.ActivityRepo
	Action        repos.ActionRepo
	Playbook      repos.PlaybookRepo
	Execution     repos.ExecutionRepo
	StepExecution repos.StepExecutionRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Customer:      repos.NewCustomerRepo(db, log),
		Activity:      repos.NewActivityRepo(db, log),
		Action:        repos.NewActionRepo(db, log),
		Playbook:      repos.NewPlaybookRepo(db, log),
		Execution:     repos.NewExecutionRepo(db, log),
		StepExecution: repos.NewStepExecutionRepo(db, log),
	}
}
