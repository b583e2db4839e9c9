package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/docforge-backend/internal/data/repos"
	"github.com/yungbote/docforge-backend/internal/data/repos/catalog"
	"github.com/yungbote/docforge-backend/internal/data/repos/testutil"
	gen "github.com/yungbote/docforge-backend/internal/domain/generation"
	"github.com/yungbote/docforge-backend/internal/domain/templates"
	"github.com/yungbote/docforge-backend/internal/jobs/executor"
	"github.com/yungbote/docforge-backend/internal/modules/generation"
	"github.com/yungbote/docforge-backend/internal/pkg/dbctx"
)

type blockingRunner struct {
	mu      sync.Mutex
	started []*gen.Request
	release chan struct{}
}

func (r *blockingRunner) Execute(_ context.Context, req *gen.Request) error {
	r.mu.Lock()
	r.started = append(r.started, req)
	r.mu.Unlock()
	<-r.release
	return nil
}

type closedPool struct{}

func (closedPool) Dispatch(func()) error { return ErrPoolClosed }

type fixture struct {
	repos   repos.Repos
	seed    func(n int) []*gen.Request
	catalog catalog.Source
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.DB(t)
	ctx := context.Background()
	testutil.SeedTenant(t, ctx, db, "acme")
	tmpl := testutil.SeedTemplate(t, ctx, db, "acme", "Letter")
	variant := testutil.SeedVariant(t, ctx, db, tmpl, nil, true)
	version := testutil.SeedVersion(t, ctx, db, variant, 1, templates.VersionPublished, testutil.SimpleGraph)
	r := repos.New(db, testutil.Logger(t))
	return fixture{
		repos:   r,
		catalog: catalog.Source{Repo: r.Catalog},
		seed: func(n int) []*gen.Request {
			out := make([]*gen.Request, 0, n)
			for i := 0; i < n; i++ {
				req, _ := testutil.SeedRequest(t, ctx, db, "acme", version, tmpl.ID, testutil.Now().Add(time.Duration(i-n)*time.Second), `{"name":"Ada"}`)
				out = append(out, req)
			}
			return out
		},
	}
}

func status(t *testing.T, f fixture, req *gen.Request) gen.RequestStatus {
	t.Helper()
	got, err := f.repos.Requests.GetByID(dbctx.New(context.Background()), "acme", req.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %+v err=%v", got, err)
	}
	return got.Status
}

func TestPollRespectsConcurrencyCeiling(t *testing.T) {
	f := newFixture(t)
	reqs := f.seed(3)
	runner := &blockingRunner{release: make(chan struct{})}
	pool := NewPool(2)
	p := New(testutil.Logger(t), f.repos, runner, pool, nil, Config{MaxConcurrentJobs: 2, InstanceID: "a"})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		claimed, err := p.Poll(ctx)
		if err != nil || !claimed {
			t.Fatalf("poll %d: claimed=%v err=%v", i, claimed, err)
		}
	}
	if claimed, err := p.Poll(ctx); err != nil || claimed {
		t.Fatalf("poll at capacity must not claim: claimed=%v err=%v", claimed, err)
	}
	if p.InFlight() != 2 {
		t.Fatalf("in flight: %d", p.InFlight())
	}
	if got := status(t, f, reqs[2]); got != gen.RequestPending {
		t.Fatalf("third request must stay pending, got %s", got)
	}

	close(runner.release)
	p.Stop()
	pool.Close()
	if p.InFlight() != 0 {
		t.Fatalf("in flight after stop: %d", p.InFlight())
	}

	// capacity is released once jobs finish
	pool2 := NewPool(1)
	p2 := New(testutil.Logger(t), f.repos, &blockingRunner{release: runner.release}, pool2, nil, Config{MaxConcurrentJobs: 1, InstanceID: "b"})
	if claimed, err := p2.Poll(ctx); err != nil || !claimed {
		t.Fatalf("second poller: claimed=%v err=%v", claimed, err)
	}
	p2.Stop()
	pool2.Close()
}

func TestPollWithNothingPending(t *testing.T) {
	f := newFixture(t)
	p := New(testutil.Logger(t), f.repos, &blockingRunner{}, NewPool(1), nil, Config{InstanceID: "a"})
	claimed, err := p.Poll(context.Background())
	if err != nil || claimed {
		t.Fatalf("claimed=%v err=%v", claimed, err)
	}
	if p.InFlight() != 0 {
		t.Fatalf("capacity leaked: %d", p.InFlight())
	}
}

func TestDispatchFailureMarksRequestFailed(t *testing.T) {
	f := newFixture(t)
	reqs := f.seed(1)
	p := New(testutil.Logger(t), f.repos, &blockingRunner{}, closedPool{}, nil, Config{InstanceID: "a"})

	claimed, err := p.Poll(context.Background())
	if !claimed || !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("claimed=%v err=%v", claimed, err)
	}
	got, err := f.repos.Requests.GetByID(dbctx.New(context.Background()), "acme", reqs[0].ID)
	if err != nil || got.Status != gen.RequestFailed || got.ErrorMessage == nil || got.FailedCount != 1 {
		t.Fatalf("request after dispatch failure: %+v err=%v", got, err)
	}
	if p.InFlight() != 0 {
		t.Fatalf("capacity leaked: %d", p.InFlight())
	}
}

type panicRunner struct{}

func (panicRunner) Execute(context.Context, *gen.Request) error { panic("boom") }

func TestRunnerPanicFailsRequest(t *testing.T) {
	f := newFixture(t)
	reqs := f.seed(1)
	pool := NewPool(1)
	p := New(testutil.Logger(t), f.repos, panicRunner{}, pool, nil, Config{InstanceID: "a"})

	if claimed, err := p.Poll(context.Background()); err != nil || !claimed {
		t.Fatalf("claimed=%v err=%v", claimed, err)
	}
	p.Stop()
	pool.Close()
	if got := status(t, f, reqs[0]); got != gen.RequestFailed {
		t.Fatalf("status after panic: %s", got)
	}
}

func TestStartProcessesPendingRequests(t *testing.T) {
	f := newFixture(t)
	reqs := f.seed(3)
	g := generation.NewGenerator(testutil.Logger(t), f.catalog, f.catalog, nil, nil, generation.Config{})
	exec := executor.New(testutil.Logger(t), f.repos, g, nil, executor.Config{Retention: time.Hour})
	pool := NewPool(2)
	p := New(testutil.Logger(t), f.repos, exec, pool, nil, Config{Interval: 10 * time.Millisecond, MaxConcurrentJobs: 2, InstanceID: "a"})

	p.Start(context.Background())
	deadline := time.Now().Add(10 * time.Second)
	for {
		done := 0
		for _, r := range reqs {
			if status(t, f, r) == gen.RequestCompleted {
				done++
			}
		}
		if done == len(reqs) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d requests completed", done, len(reqs))
		}
		time.Sleep(20 * time.Millisecond)
	}
	p.Stop()
	pool.Close()
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2)
	release := make(chan struct{})
	var running, peak atomic.Int64
	task := func() {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
	}

	for i := 0; i < 2; i++ {
		if err := pool.Dispatch(task); err != nil {
			t.Fatalf("Dispatch %d: %v", i, err)
		}
	}
	third := make(chan error, 1)
	go func() { third <- pool.Dispatch(task) }()
	select {
	case err := <-third:
		t.Fatalf("third Dispatch must wait for a free worker, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-third; err != nil {
		t.Fatalf("third Dispatch: %v", err)
	}
	pool.Close()
	if peak.Load() > 2 {
		t.Fatalf("peak concurrency %d exceeds 2", peak.Load())
	}
	if running.Load() != 0 {
		t.Fatalf("Close returned with %d tasks running", running.Load())
	}
}

func TestPoolRejectsAfterClose(t *testing.T) {
	pool := NewPool(1)
	ran := make(chan struct{})
	if err := pool.Dispatch(func() { close(ran) }); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	<-ran
	pool.Close()
	if err := pool.Dispatch(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
	pool.Close()
}
