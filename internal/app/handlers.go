package app

import (
	"context"

	"gorm.io/gorm"

	httpH "github.com/yungbote/docforge-backend/internal/http/handlers"
	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

type Handlers struct {
	Health     *httpH.HealthHandler
	Generation *httpH.GenerationHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:     httpH.NewHealthHandler(pingDB(db)),
		Generation: httpH.NewGenerationHandler(services.Generation),
	}
}

func pingDB(db *gorm.DB) httpH.Pinger {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
