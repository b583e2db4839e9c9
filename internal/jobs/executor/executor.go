package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/docforge-backend/internal/data/repos"
	gen "github.com/yungbote/docforge-backend/internal/domain/generation"
	"github.com/yungbote/docforge-backend/internal/modules/generation"
	"github.com/yungbote/docforge-backend/internal/notify"
	"github.com/yungbote/docforge-backend/internal/observability"
	"github.com/yungbote/docforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/docforge-backend/internal/pkg/pointers"
	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

// ErrSuperseded means another actor (usually a cancellation) moved the
// request out of IN_PROGRESS while this executor was working on it.
var ErrSuperseded = errors.New("generation request superseded")

type Generator interface {
	Generate(ctx context.Context, req *gen.Request, item *gen.Item) (*generation.Artifact, error)
}

type Config struct {
	Retention time.Duration
}

type Executor struct {
	log      *logger.Logger
	requests repos.RequestRepo
	items    repos.ItemRepo
	batches  repos.BatchRepo
	gen      Generator
	notify   notify.JobNotifier
	cfg      Config
}

func New(baseLog *logger.Logger, r repos.Repos, g Generator, n notify.JobNotifier, cfg Config) *Executor {
	if n == nil {
		n = notify.Nop()
	}
	return &Executor{
		log:      baseLog.With("component", "GenerationExecutor"),
		requests: r.Requests,
		items:    r.Items,
		batches:  r.Batches,
		gen:      g,
		notify:   n,
		cfg:      cfg,
	}
}

// Execute drives a claimed request to a terminal state. Items are rendered
// one at a time in position order; a failing item is recorded and the next
// one proceeds. A panic anywhere below fails the whole request.
func (e *Executor) Execute(ctx context.Context, req *gen.Request) (err error) {
	ctx, span := observability.StartSpan(ctx, "generation.execute",
		attribute.String("request.id", req.ID.String()),
		attribute.String("tenant.id", req.TenantID),
	)
	defer func() { observability.EndSpan(span, err) }()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Generation executor panic", "request_id", req.ID, "panic", r)
			err = fmt.Errorf("panic: %v", r)
			e.fail(ctx, req, err.Error())
		}
	}()

	log := e.log.With("request_id", req.ID, "tenant_id", req.TenantID)
	dbc := dbctx.New(ctx)
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.fail(context.WithoutCancel(ctx), req, "execution interrupted: "+ctxErr.Error())
			return ctxErr
		}
		item, err := e.items.ClaimNextPending(dbc, req.ID)
		if err != nil {
			e.fail(ctx, req, "claim item: "+err.Error())
			return err
		}
		if item == nil {
			break
		}
		if err := e.runItem(ctx, log, req, item); err != nil {
			return err
		}
	}

	ok, err := e.requests.Complete(dbc, req.ID, e.cfg.Retention)
	if err != nil {
		e.fail(ctx, req, "complete request: "+err.Error())
		return err
	}
	if !ok {
		log.Info("Request left IN_PROGRESS before completion")
		return ErrSuperseded
	}
	req.Status = gen.RequestCompleted
	observability.Current().IncRequestFinished(gen.RequestCompleted)
	e.refreshBatch(ctx, req)
	e.notify.Notify(notify.NewEvent(notify.EventCompleted, req))
	log.Info("Generation request completed")
	return nil
}

func (e *Executor) runItem(ctx context.Context, log *logger.Logger, req *gen.Request, item *gen.Item) error {
	dbc := dbctx.New(ctx)
	start := time.Now()
	art, genErr := e.gen.Generate(ctx, req, item)
	metrics := observability.Current()

	var (
		ok  bool
		err error
		ev  notify.Event
	)
	if genErr != nil {
		stage := "infrastructure"
		var re *generation.RenderError
		if errors.As(genErr, &re) {
			stage = re.Stage
			log.Info("Item failed", "item_id", item.ID, "stage", re.Stage, "error", re.Err)
		} else {
			log.Error("Item failed on infrastructure error", "item_id", item.ID, "error", genErr)
		}
		metrics.ObserveItem(gen.ItemFailed, stage, time.Since(start), 0)
		ok, err = e.requests.RecordItemFailure(dbc, req.ID, item.ID, genErr.Error())
		ev = notify.NewEvent(notify.EventItemFailed, req)
		ev.Message = genErr.Error()
	} else {
		metrics.ObserveItem(gen.ItemCompleted, "", time.Since(start), art.Document.SizeBytes)
		ok, err = e.requests.RecordItemSuccess(dbc, req.ID, item.ID, art.Document)
		ev = notify.NewEvent(notify.EventItemCompleted, req)
		ev.DocumentID = &art.Document.ID
	}
	if err != nil {
		e.fail(ctx, req, "record item: "+err.Error())
		return err
	}
	if !ok {
		log.Info("Request superseded while rendering", "item_id", item.ID)
		return ErrSuperseded
	}
	ev.ItemID = &item.ID
	e.notify.Notify(ev)
	return nil
}

// fail marks the request FAILED. A request already terminal is left alone.
func (e *Executor) fail(ctx context.Context, req *gen.Request, message string) {
	ok, err := e.requests.MarkFailed(dbctx.New(ctx), req.ID, message)
	if err != nil {
		e.log.Error("MarkFailed failed", "request_id", req.ID, "error", err)
		return
	}
	if !ok {
		return
	}
	req.Status = gen.RequestFailed
	req.ErrorMessage = pointers.String(message)
	observability.Current().IncRequestFinished(gen.RequestFailed)
	e.refreshBatch(ctx, req)
	ev := notify.NewEvent(notify.EventFailed, req)
	ev.Message = message
	e.notify.Notify(ev)
}

func (e *Executor) refreshBatch(ctx context.Context, req *gen.Request) {
	if req.BatchID == nil {
		return
	}
	if _, err := e.batches.Refresh(dbctx.New(ctx), *req.BatchID); err != nil {
		e.log.Warn("Batch refresh failed", "batch_id", *req.BatchID, "request_id", req.ID, "error", err)
	}
}
