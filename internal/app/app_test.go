package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yungbote/docforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/docforge-backend/internal/domain"
	"github.com/yungbote/docforge-backend/internal/domain/templates"
	"github.com/yungbote/docforge-backend/internal/jobs/partitions"
)

func TestAssembleOnSQLite(t *testing.T) {
	cfg := defaultConfig()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Poller.InstanceID = "test-instance"

	a, err := assemble(testutil.Logger(t), cfg, testutil.DB(t))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	t.Cleanup(a.Close)

	if a.Services.Partitions != nil || a.Services.Scheduler != nil {
		t.Fatalf("partition maintenance must stay off without Postgres")
	}
	if a.Services.Poller.InstanceID() != "test-instance" {
		t.Fatalf("instance id %q", a.Services.Poller.InstanceID())
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		a.Server.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: %d %s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := defaultConfig()
	cfg.HTTP.Addr = "127.0.0.1:0"

	a, err := assemble(testutil.Logger(t), cfg, testutil.DB(t))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestPrepareSchemaCreatesCurrentPartitions(t *testing.T) {
	pg := testutil.Postgres(t)
	cfg := defaultConfig()
	cfg.Partitions.Enabled = false

	if err := prepareSchema(context.Background(), testutil.Logger(t), cfg, pg); err != nil {
		t.Fatalf("prepareSchema: %v", err)
	}

	cat := partitions.NewPostgresCatalog(pg)
	current := partitions.Monthly("", time.Now()).From
	for _, table := range domain.PartitionedTables() {
		names, err := cat.ListPartitions(context.Background(), table)
		if err != nil {
			t.Fatalf("ListPartitions(%s): %v", table, err)
		}
		want := partitions.Monthly(table, current).Name
		found := false
		for _, n := range names {
			found = found || n == want
		}
		if !found {
			t.Fatalf("%s missing from %v", want, names)
		}
	}

	tx := testutil.Tx(t, pg)
	ctx := context.Background()
	testutil.SeedTenant(t, ctx, tx, "acme")
	tmpl := testutil.SeedTemplate(t, ctx, tx, "acme", "Letter")
	variant := testutil.SeedVariant(t, ctx, tx, tmpl, nil, true)
	version := testutil.SeedVersion(t, ctx, tx, variant, 1, templates.VersionPublished, testutil.SimpleGraph)
	testutil.SeedRequest(t, ctx, tx, "acme", version, tmpl.ID, testutil.Now(), `{"name":"Ada"}`)
}
