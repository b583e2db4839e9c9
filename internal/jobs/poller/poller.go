package poller

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/docforge-backend/internal/data/repos"
	gen "github.com/yungbote/docforge-backend/internal/domain/generation"
	"github.com/yungbote/docforge-backend/internal/notify"
	"github.com/yungbote/docforge-backend/internal/observability"
	"github.com/yungbote/docforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

// Runner executes one claimed request to completion.
type Runner interface {
	Execute(ctx context.Context, req *gen.Request) error
}

type Config struct {
	Interval          time.Duration
	MaxConcurrentJobs int
	InstanceID        string
}

// DefaultInstanceID is the hostname plus a random suffix, so two processes
// on one host never share an id.
func DefaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "docforge"
	}
	return host + "-" + uuid.NewString()[:8]
}

// Poller claims PENDING requests and hands them to a bounded pool. It never
// holds more than MaxConcurrentJobs requests at once; the database decides
// which instance wins each claim.
type Poller struct {
	log      *logger.Logger
	requests repos.RequestRepo
	batches  repos.BatchRepo
	runner   Runner
	pool     Dispatcher
	notify   notify.JobNotifier
	cfg      Config

	sem      *semaphore.Weighted
	inFlight atomic.Int64
	jobs     sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(baseLog *logger.Logger, r repos.Repos, runner Runner, pool Dispatcher, n notify.JobNotifier, cfg Config) *Poller {
	if cfg.MaxConcurrentJobs < 1 {
		cfg.MaxConcurrentJobs = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = DefaultInstanceID()
	}
	if n == nil {
		n = notify.Nop()
	}
	return &Poller{
		log:      baseLog.With("component", "GenerationPoller", "instance_id", cfg.InstanceID),
		requests: r.Requests,
		batches:  r.Batches,
		runner:   runner,
		pool:     pool,
		notify:   n,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
	}
}

func (p *Poller) InstanceID() string { return p.cfg.InstanceID }

// InFlight is the number of requests currently owned by this instance.
func (p *Poller) InFlight() int { return int(p.inFlight.Load()) }

// Start runs the polling loop until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	p.log.Info("Starting generation poller", "interval", p.cfg.Interval, "max_concurrent_jobs", p.cfg.MaxConcurrentJobs)
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				p.log.Info("Generation poller stopped")
				return
			case <-ticker.C:
				p.drain(loopCtx)
			}
		}
	}()
}

// Stop ends the loop and waits for every in-flight request to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	p.jobs.Wait()
}

// drain claims until capacity or pending work runs out.
func (p *Poller) drain(ctx context.Context) {
	for ctx.Err() == nil {
		claimed, err := p.Poll(ctx)
		if err != nil {
			p.log.Warn("Poll failed", "error", err)
			return
		}
		if !claimed {
			return
		}
	}
}

// Poll makes one claim attempt. It reports whether a request was claimed;
// a claimed request that could not be dispatched is failed and reported
// alongside the dispatch error.
func (p *Poller) Poll(ctx context.Context) (bool, error) {
	metrics := observability.Current()
	if !p.sem.TryAcquire(1) {
		metrics.IncClaim(observability.ClaimNoSlot)
		return false, nil
	}

	claimCtx, span := observability.StartSpan(ctx, "generation.claim", attribute.String("instance.id", p.cfg.InstanceID))
	req, err := p.requests.ClaimNextPending(dbctx.New(claimCtx), p.cfg.InstanceID)
	observability.EndSpan(span, err)
	if err != nil {
		p.sem.Release(1)
		metrics.IncClaim(observability.ClaimError)
		return false, fmt.Errorf("claim request: %w", err)
	}
	if req == nil {
		p.sem.Release(1)
		metrics.IncClaim(observability.ClaimEmpty)
		return false, nil
	}
	metrics.IncClaim(observability.ClaimClaimed)

	p.log.Info("Claimed generation request", "request_id", req.ID, "tenant_id", req.TenantID, "items", req.TotalCount)
	p.notify.Notify(notify.NewEvent(notify.EventClaimed, req))

	metrics.SetJobsInFlight(p.inFlight.Add(1))
	p.jobs.Add(1)
	jobCtx := context.WithoutCancel(ctx)
	if err := p.pool.Dispatch(func() {
		defer p.finish()
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("Generation job panic", "request_id", req.ID, "panic", r)
				p.failDispatch(jobCtx, req, fmt.Errorf("panic: %v", r))
			}
		}()
		if err := p.runner.Execute(jobCtx, req); err != nil {
			p.log.Info("Generation request ended early", "request_id", req.ID, "error", err)
		}
	}); err != nil {
		metrics.IncClaim(observability.ClaimRejected)
		p.finish()
		p.failDispatch(jobCtx, req, err)
		return true, fmt.Errorf("dispatch request %s: %w", req.ID, err)
	}
	return true, nil
}

func (p *Poller) finish() {
	observability.Current().SetJobsInFlight(p.inFlight.Add(-1))
	p.sem.Release(1)
	p.jobs.Done()
}

func (p *Poller) failDispatch(ctx context.Context, req *gen.Request, cause error) {
	message := "dispatch failed: " + cause.Error()
	dbc := dbctx.New(ctx)
	ok, err := p.requests.MarkFailed(dbc, req.ID, message)
	if err != nil {
		p.log.Error("MarkFailed after dispatch failure failed", "request_id", req.ID, "error", err)
		return
	}
	if !ok {
		return
	}
	if req.BatchID != nil {
		if _, err := p.batches.Refresh(dbc, *req.BatchID); err != nil {
			p.log.Warn("Batch refresh failed", "batch_id", *req.BatchID, "error", err)
		}
	}
	req.Status = gen.RequestFailed
	observability.Current().IncRequestFinished(gen.RequestFailed)
	ev := notify.NewEvent(notify.EventFailed, req)
	ev.Message = message
	p.notify.Notify(ev)
}
