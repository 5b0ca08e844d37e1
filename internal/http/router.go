package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/upliftcs/upliftcs-backend/internal/http/handlers"
	httpMW "github.com/upliftcs/upliftcs-backend/internal/http/middleware"
	"github.com/upliftcs/upliftcs-backend/internal/observability"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	ServiceName    string
	AllowedOrigins []string
	RequestTimeout time.Duration

	HealthHandler    *httpH.HealthHandler
	CustomerHandler  *httpH.CustomerHandler
	PlaybookHandler  *httpH.PlaybookHandler
	ExecutionHandler *httpH.ExecutionHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.AttachRequestContext(cfg.RequestTimeout))
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.CORS(cfg.AllowedOrigins))
	if cfg.Metrics != nil {
		r.Use(httpMW.Metrics(cfg.Metrics))
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Customers
		if cfg.CustomerHandler != nil {
			api.GET("/customers", cfg.CustomerHandler.ListCustomers)
			api.POST("/customers", cfg.CustomerHandler.CreateCustomer)
			api.GET("/customers/:id", cfg.CustomerHandler.GetCustomer)
			api.POST("/customers/:id/health", cfg.CustomerHandler.RecalculateHealth)
			api.POST("/customers/:id/activities", cfg.CustomerHandler.RecordActivity)
			api.GET("/customers/:id/actions", cfg.CustomerHandler.ListActions)
			api.POST("/customers/:id/actions", cfg.CustomerHandler.CreateAction)
			api.PUT("/actions/:id", cfg.CustomerHandler.UpdateAction)
			api.GET("/dashboard/summary", cfg.CustomerHandler.DashboardSummary)
		}

		// Playbooks
		if cfg.PlaybookHandler != nil {
			api.GET("/playbooks", cfg.PlaybookHandler.ListPlaybooks)
			api.POST("/playbooks", cfg.PlaybookHandler.CreatePlaybook)
			api.GET("/playbooks/performance", cfg.PlaybookHandler.Performance)
			api.POST("/playbooks/evaluate-triggers", cfg.PlaybookHandler.EvaluateTriggers)
			api.POST("/playbooks/execute-pending", cfg.PlaybookHandler.ExecutePending)
			api.POST("/playbooks/initialize-defaults", cfg.PlaybookHandler.InitializeDefaults)
			api.GET("/playbooks/:id", cfg.PlaybookHandler.GetPlaybook)
			api.PUT("/playbooks/:id", cfg.PlaybookHandler.UpdatePlaybook)
			api.POST("/playbooks/:id/trigger", cfg.PlaybookHandler.Trigger)
		}

		// Executions
		if cfg.ExecutionHandler != nil {
			api.GET("/executions", cfg.ExecutionHandler.ListExecutions)
			api.GET("/executions/:id", cfg.ExecutionHandler.GetExecution)
			api.POST("/executions/:id/pause", cfg.ExecutionHandler.Pause)
			api.POST("/executions/:id/resume", cfg.ExecutionHandler.Resume)
		}
	}

	return r
}
