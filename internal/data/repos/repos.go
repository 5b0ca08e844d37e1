package repos

import (
	"gorm.io/gorm"

	"github.com/upliftcs/upliftcs-backend/internal/data/repos/customers"
	"github.com/upliftcs/upliftcs-backend/internal/data/repos/playbooks"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

type CustomerRepo = customers.CustomerRepo
type ActivityRepo = customers.ActivityRepo
type ActionRepo = customers.ActionRepo

type PlaybookRepo = playbooks.PlaybookRepo
type ExecutionRepo = playbooks.ExecutionRepo
type StepExecutionRepo = playbooks.StepExecutionRepo

type CustomerFilter = customers.CustomerFilter
type CustomerSummary = customers.CustomerSummary
type PlaybookFilter = playbooks.PlaybookFilter
type ExecutionFilter = playbooks.ExecutionFilter
type ExecutionStats = playbooks.ExecutionStats

func NewCustomerRepo(db *gorm.DB, log *logger.Logger) CustomerRepo {
	return customers.NewCustomerRepo(db, log)
}
func NewActivityRepo(db *gorm.DB, log *logger.Logger) ActivityRepo {
	return customers.NewActivityRepo(db, log)
}
func NewActionRepo(db *gorm.DB, log *logger.Logger) ActionRepo {
	return customers.NewActionRepo(db, log)
}
func NewPlaybookRepo(db *gorm.DB, log *logger.Logger) PlaybookRepo {
	return playbooks.NewPlaybookRepo(db, log)
}
func NewExecutionRepo(db *gorm.DB, log *logger.Logger) ExecutionRepo {
	return playbooks.NewExecutionRepo(db, log)
}
func NewStepExecutionRepo(db *gorm.DB, log *logger.Logger) StepExecutionRepo {
	return playbooks.NewStepExecutionRepo(db, log)
}
