package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/docforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/docforge-backend/internal/http/middleware"
	"github.com/yungbote/docforge-backend/internal/observability"
	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	HealthHandler     *httpH.HealthHandler
	GenerationHandler *httpH.GenerationHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	tenant := r.Group("/v1/tenants/:tenant")
	{
		if cfg.GenerationHandler != nil {
			tenant.POST("/generations", cfg.GenerationHandler.Submit)
			tenant.GET("/generations/:id", cfg.GenerationHandler.Get)
			tenant.POST("/generations/:id/cancel", cfg.GenerationHandler.Cancel)
			tenant.POST("/generation-batches", cfg.GenerationHandler.SubmitBatch)
			tenant.GET("/generation-batches/:id", cfg.GenerationHandler.GetBatch)
			tenant.GET("/documents/:id", cfg.GenerationHandler.Download)
		}
	}

	return r
}
