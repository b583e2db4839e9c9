package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	gen "github.com/yungbote/docforge-backend/internal/domain/generation"
	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

type MetricsConfig struct {
	Enabled        bool
	Addr           string
	ScrapeInterval time.Duration
}

// Metrics is the process-wide registry. Every method is safe on a nil
// receiver, so callers record unconditionally and disabled metrics cost a
// nil check.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	claims        *CounterVec
	jobsInFlight  *Gauge
	requestsDone  *CounterVec
	items         *CounterVec
	itemLatency   *HistogramVec
	documentBytes *HistogramVec
	partitionOps  *CounterVec

	queueDepth *GaugeVec
	pgStats    *GaugeVec
	redisUp    *Gauge
	redisPing  *Gauge

	scrapeInterval time.Duration
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Current() *Metrics {
	return instance
}

// Init builds the registry once. It returns nil when metrics are disabled.
func Init(log *logger.Logger, cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics(cfg.ScrapeInterval)
		if log != nil {
			log.Info("Observability metrics enabled", "addr", cfg.Addr)
		}
	})
	return instance
}

func newMetrics(scrape time.Duration) *Metrics {
	if scrape <= 0 {
		scrape = 10 * time.Second
	}
	return &Metrics{
		apiRequests: NewCounterVec("docforge_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"docforge_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight:  NewGauge("docforge_api_inflight_requests", "In-flight API requests."),
		claims:       NewCounterVec("docforge_poller_claims_total", "Poll attempts by outcome.", []string{"outcome"}),
		jobsInFlight: NewGauge("docforge_poller_jobs_inflight", "Generation requests currently executing on this instance."),
		requestsDone: NewCounterVec("docforge_generation_requests_finished_total", "Generation requests reaching a terminal status.", []string{"status"}),
		items:        NewCounterVec("docforge_generation_items_total", "Generated items by status and failing stage.", []string{"status", "stage"}),
		itemLatency: NewHistogramVec(
			"docforge_generation_item_duration_seconds",
			"Time to render one item, by status.",
			[]string{"status"},
			[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		),
		documentBytes: NewHistogramVec(
			"docforge_document_size_bytes",
			"Size of produced documents.",
			[]string{},
			[]float64{16 << 10, 64 << 10, 256 << 10, 1 << 20, 4 << 20, 16 << 20, 64 << 20},
		),
		partitionOps: NewCounterVec("docforge_partition_operations_total", "Partition maintenance operations by table/action/status.", []string{"table", "action", "status"}),
		queueDepth:   NewGaugeVec("docforge_generation_queue_depth", "Generation requests by status.", []string{"status"}),
		pgStats:      NewGaugeVec("docforge_postgres_stats", "Postgres connection stats.", []string{"metric"}),
		redisUp:      NewGauge("docforge_redis_up", "Redis connectivity (1=up, 0=down)."),
		redisPing:    NewGauge("docforge_redis_ping_seconds", "Redis ping latency in seconds."),

		scrapeInterval: scrape,
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.claims, m.jobsInFlight, m.requestsDone, m.items, m.itemLatency, m.documentBytes,
		m.partitionOps, m.queueDepth, m.pgStats, m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// Claim outcomes recorded by the poller.
const (
	ClaimClaimed  = "claimed"
	ClaimEmpty    = "empty"
	ClaimNoSlot   = "no_capacity"
	ClaimError    = "error"
	ClaimRejected = "dispatch_failed"
)

func (m *Metrics) IncClaim(outcome string) {
	if m == nil {
		return
	}
	m.claims.Inc(outcome)
}

func (m *Metrics) SetJobsInFlight(n int64) {
	if m == nil {
		return
	}
	m.jobsInFlight.Set(float64(n))
}

func (m *Metrics) IncRequestFinished(status gen.RequestStatus) {
	if m == nil {
		return
	}
	m.requestsDone.Inc(string(status))
}

// ObserveItem records one item outcome. stage is empty on success.
func (m *Metrics) ObserveItem(status gen.ItemStatus, stage string, dur time.Duration, sizeBytes int64) {
	if m == nil {
		return
	}
	if stage == "" {
		stage = "none"
	}
	m.items.Inc(string(status), stage)
	m.itemLatency.Observe(dur.Seconds(), string(status))
	if status == gen.ItemCompleted {
		m.documentBytes.Observe(float64(sizeBytes))
	}
}

func (m *Metrics) IncPartitionOp(table, action string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.partitionOps.Inc(table, action, status)
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(m.scrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(m.scrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// StartQueueCollector samples generation_requests by status. Only the open
// statuses are interesting for alerting, but terminal ones are cheap to
// report alongside.
func (m *Metrics) StartQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(m.scrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.collectQueueDepth(ctx, log, db)
			}
		}
	}()
}

func (m *Metrics) collectQueueDepth(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	for _, s := range []gen.RequestStatus{gen.RequestPending, gen.RequestInProgress, gen.RequestCompleted, gen.RequestFailed, gen.RequestCancelled} {
		m.queueDepth.Set(0, string(s))
	}
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).
		Model(&gen.Request{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		if log != nil {
			log.Warn("metrics: queue depth query failed", "error", err)
		}
		return
	}
	for _, row := range rows {
		status := strings.TrimSpace(row.Status)
		if status == "" {
			status = "unknown"
		}
		m.queueDepth.Set(float64(row.Count), status)
	}
}
