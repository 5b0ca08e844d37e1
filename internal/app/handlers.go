package app

import (
	"github.com/gin-gonic/gin"

	"github.com/upliftcs/upliftcs-backend/internal/http"
	httpH "github.com/upliftcs/upliftcs-backend/internal/http/handlers"
	"github.com/upliftcs/upliftcs-backend/internal/observability"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

type Handlers struct {
	Health    *httpH.HealthHandler
	Customer  *httpH.CustomerHandler
	Playbook  *httpH.PlaybookHandler
	Execution *httpH.ExecutionHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:    httpH.NewHealthHandler(),
		Customer:  httpH.NewCustomerHandler(services.Customers),
		Playbook:  httpH.NewPlaybookHandler(services.Playbooks),
		Execution: httpH.NewExecutionHandler(services.Playbooks),
	}
}

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return http.NewRouter(http.RouterConfig{
		Log:              log,
		Metrics:          metrics,
		ServiceName:      serviceName,
		AllowedOrigins:   cfg.CORSOrigins,
		RequestTimeout:   cfg.RequestTimeout.Std(),
		HealthHandler:    handlers.Health,
		CustomerHandler:  handlers.Customer,
		PlaybookHandler:  handlers.Playbook,
		ExecutionHandler: handlers.Execution,
	})
}
