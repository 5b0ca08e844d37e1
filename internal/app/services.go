package app

import (
	"gorm.io/gorm"

	"github.com/upliftcs/upliftcs-backend/internal/modules/health"
	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/engine"
	"github.com/upliftcs/upliftcs-backend/internal/observability"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
	"github.com/upliftcs/upliftcs-backend/internal/services"
)

type Services struct {
	Engine    *engine.Engine
	Sweeper   *engine.Sweeper
	Customers services.CustomerService
	Playbooks services.PlaybookService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repoSet Repos, clients Clients, metrics *observability.Metrics) Services {
	log.Info("Wiring services...")

	model := cfg.OpenAI.Model
	eng := engine.NewEngine(engine.Deps{
		DB:         db,
		Log:        log,
		Customers:  repoSet.Customer,
		Playbooks:  repoSet.Playbook,
		Executions: repoSet.Execution,
		StepRuns:   repoSet.StepExecution,
		Actions:    repoSet.Action,
		Generator:  clients.generator(),
		Locker:     clients.Locker,
		Events:     clients.Events,
		Metrics:    metrics,
	}, engine.Config{
		GeneratorTimeout: cfg.GeneratorTimeout.Std(),
		Model:            model,
		Lease:            cfg.ExecutionLease.Std(),
		BatchSize:        cfg.SweepBatchSize,
		Concurrency:      cfg.SweepConcurrency,
	})

	var gen health.Generator
	if g := clients.generator(); g != nil {
		gen = g
	}
	insights := health.NewInsightsGenerator(log, gen, health.InsightsConfig{
		Model:   model,
		Timeout: cfg.GeneratorTimeout.Std(),
		OnFallback: func(reason string) {
			metrics.GeneratorFallback("insights")
		},
	})

	return Services{
		Engine:    eng,
		Sweeper:   engine.NewSweeper(eng, log),
		Customers: services.NewCustomerService(db, log, repoSet.Customer, repoSet.Activity, repoSet.Action, insights),
		Playbooks: services.NewPlaybookService(db, log, repoSet.Customer, repoSet.Playbook, repoSet.Execution, eng, services.PlaybookServiceConfig{
			EvaluateConcurrency: cfg.SweepConcurrency,
		}),
	}
}
