package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/docforge-backend/internal/data/repos"
	"github.com/yungbote/docforge-backend/internal/data/repos/catalog"
	"github.com/yungbote/docforge-backend/internal/domain"
	"github.com/yungbote/docforge-backend/internal/jobs/executor"
	"github.com/yungbote/docforge-backend/internal/jobs/partitions"
	"github.com/yungbote/docforge-backend/internal/jobs/poller"
	"github.com/yungbote/docforge-backend/internal/modules/generation"
	"github.com/yungbote/docforge-backend/internal/modules/pdf"
	"github.com/yungbote/docforge-backend/internal/modules/render"
	"github.com/yungbote/docforge-backend/internal/notify"
	"github.com/yungbote/docforge-backend/internal/platform/logger"
	"github.com/yungbote/docforge-backend/internal/services"
)

type Services struct {
	Generation services.GenerationService

	Generator *generation.Generator
	Executor  *executor.Executor
	Pool      *poller.Pool
	Poller    *poller.Poller

	// Nil unless the database supports declarative partitioning and
	// maintenance is enabled.
	Partitions *partitions.Maintainer
	Scheduler  *partitions.Scheduler
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r repos.Repos, n notify.JobNotifier) (Services, error) {
	log.Info("Wiring services...")

	source := catalog.Source{Repo: r.Catalog}
	fonts := pdf.NewFontCache(cfg.Generation.FontDir, log)
	generator := generation.NewGenerator(log, source, source, render.NewEngine(nil), pdf.NewWriter(fonts), generation.Config{
		MaxDocumentSizeBytes: cfg.Generation.MaxDocumentSizeBytes,
		OptimizePDF:          cfg.Generation.OptimizePDF,
	})
	exec := executor.New(log, r, generator, n, executor.Config{Retention: cfg.Retention()})

	pool := poller.NewPool(cfg.Poller.MaxConcurrentJobs)
	p := poller.New(log, r, exec, pool, n, poller.Config{
		Interval:          cfg.Poller.Interval,
		MaxConcurrentJobs: cfg.Poller.MaxConcurrentJobs,
		InstanceID:        cfg.Poller.InstanceID,
	})

	out := Services{
		Generation: services.NewGenerationService(db, log, r, n, services.GenerationConfig{
			MaxItemsPerRequest: cfg.Generation.MaxItemsPerRequest,
		}),
		Generator: generator,
		Executor:  exec,
		Pool:      pool,
		Poller:    p,
	}

	if cfg.Partitions.Enabled && db.Dialector.Name() == "postgres" {
		out.Partitions = newMaintainer(db, log, cfg)
		sched, err := partitions.NewScheduler(log, out.Partitions, cfg.Partitions.Schedule)
		if err != nil {
			pool.Close()
			return Services{}, fmt.Errorf("partition scheduler: %w", err)
		}
		out.Scheduler = sched
	}
	return out, nil
}

func newMaintainer(db *gorm.DB, log *logger.Logger, cfg Config) *partitions.Maintainer {
	return partitions.NewMaintainer(log, partitions.NewPostgresCatalog(db), domain.PartitionedTables(), cfg.PartitionPlan())
}
