package partitions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/docforge-backend/internal/observability"
	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

// Report lists what one maintenance run changed.
type Report struct {
	Skipped bool
	Created []string
	Dropped []string
}

// Maintainer keeps every partitioned table's monthly partitions in the
// retention window. Runs within one process are serialised; concurrent runs
// in other processes are tolerated by the catalog's IF [NOT] EXISTS DDL.
type Maintainer struct {
	log     *logger.Logger
	catalog Catalog
	tables  []string
	cfg     PlanConfig
	now     func() time.Time
	running sync.Mutex
}

func NewMaintainer(baseLog *logger.Logger, catalog Catalog, tables []string, cfg PlanConfig) *Maintainer {
	return &Maintainer{
		log:     baseLog.With("component", "PartitionMaintainer"),
		catalog: catalog,
		tables:  tables,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Run reconciles every table. A table that fails does not stop the others;
// the joined error reports all failures. When another run is in progress in
// this process the call returns immediately with Skipped set.
func (m *Maintainer) Run(ctx context.Context) (rep Report, err error) {
	if !m.running.TryLock() {
		m.log.Info("Partition maintenance already running, skipping")
		return Report{Skipped: true}, nil
	}
	defer m.running.Unlock()

	ctx, span := observability.StartSpan(ctx, "partitions.maintain")
	defer func() { observability.EndSpan(span, err) }()

	now := m.now()
	var errs []error
	for _, table := range m.tables {
		created, dropped, tErr := m.reconcile(ctx, table, now, true)
		rep.Created = append(rep.Created, created...)
		rep.Dropped = append(rep.Dropped, dropped...)
		if tErr != nil {
			m.log.Error("Partition maintenance failed", "table", table, "error", tErr)
			errs = append(errs, tErr)
		}
	}
	m.log.Info("Partition maintenance finished", "created", len(rep.Created), "dropped", len(rep.Dropped))
	return rep, errors.Join(errs...)
}

// Ensure creates the partitions of [this month, this month+lookahead) that
// are missing and drops nothing. It runs at startup, before any row can be
// written, whether or not scheduled maintenance is enabled. Unlike Run it
// waits for an in-progress run and stops at the first failing table.
func (m *Maintainer) Ensure(ctx context.Context) (rep Report, err error) {
	m.running.Lock()
	defer m.running.Unlock()

	now := m.now()
	for _, table := range m.tables {
		created, _, tErr := m.reconcile(ctx, table, now, false)
		rep.Created = append(rep.Created, created...)
		if tErr != nil {
			return rep, fmt.Errorf("ensure partitions of %s: %w", table, tErr)
		}
	}
	if len(rep.Created) > 0 {
		m.log.Info("Created missing partitions", "created", len(rep.Created))
	}
	return rep, nil
}

func (m *Maintainer) reconcile(ctx context.Context, table string, now time.Time, prune bool) (created, dropped []string, err error) {
	existing, err := m.catalog.ListPartitions(ctx, table)
	if err != nil {
		return nil, nil, err
	}
	toCreate, toDrop := Plan(table, now, existing, m.cfg)
	if !prune {
		toDrop = nil
	}
	metrics := observability.Current()
	for _, p := range toCreate {
		err := m.catalog.CreatePartition(ctx, p)
		metrics.IncPartitionOp(table, "create", err)
		if err != nil {
			return created, dropped, err
		}
		m.log.Info("Created partition", "table", table, "partition", p.Name)
		created = append(created, p.Name)
	}
	for _, p := range toDrop {
		err := m.catalog.DropPartition(ctx, p)
		metrics.IncPartitionOp(table, "drop", err)
		if err != nil {
			return created, dropped, err
		}
		m.log.Info("Dropped expired partition", "table", table, "partition", p.Name)
		dropped = append(dropped, p.Name)
	}
	return created, dropped, nil
}
