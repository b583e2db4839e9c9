package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/docforge-backend/internal/data/db"
	"github.com/yungbote/docforge-backend/internal/jobs/partitions"
	"github.com/yungbote/docforge-backend/internal/jobs/poller"
	"github.com/yungbote/docforge-backend/internal/notify"
	"github.com/yungbote/docforge-backend/internal/observability"
	"github.com/yungbote/docforge-backend/internal/platform/envutil"
)

type PollerConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Interval          time.Duration `yaml:"interval"`
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs"`
	InstanceID        string        `yaml:"instance_id"`
}

type PartitionConfig struct {
	Enabled         bool   `yaml:"enabled"`
	RetentionMonths int    `yaml:"retention_months"`
	LookaheadMonths int    `yaml:"lookahead_months"`
	Schedule        string `yaml:"schedule"`
}

type GenerationConfig struct {
	MaxDocumentSizeBytes int64  `yaml:"max_document_size_bytes"`
	RetentionDays        int    `yaml:"retention_days"`
	OptimizePDF          bool   `yaml:"optimize_pdf"`
	FontDir              string `yaml:"font_dir"`
	MaxItemsPerRequest   int    `yaml:"max_items_per_request"`
}

type HTTPConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
	Environment string  `yaml:"environment"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type Config struct {
	LogMode    string             `yaml:"log_mode"`
	Postgres   db.PostgresConfig  `yaml:"postgres"`
	Redis      notify.RedisConfig `yaml:"redis"`
	HTTP       HTTPConfig         `yaml:"http"`
	Poller     PollerConfig       `yaml:"poller"`
	Partitions PartitionConfig    `yaml:"partitions"`
	Generation GenerationConfig   `yaml:"generation"`
	Otel       OtelConfig         `yaml:"otel"`
	Metrics    MetricsConfig      `yaml:"metrics"`
}

func defaultConfig() Config {
	return Config{
		LogMode: "development",
		Redis:   notify.RedisConfig{Channel: notify.DefaultChannel},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Poller: PollerConfig{
			Enabled:           true,
			Interval:          2 * time.Second,
			MaxConcurrentJobs: 4,
		},
		Partitions: PartitionConfig{
			Enabled:         true,
			RetentionMonths: 3,
			LookaheadMonths: 3,
			Schedule:        partitions.DefaultSchedule,
		},
		Generation: GenerationConfig{
			MaxDocumentSizeBytes: 50 << 20,
			RetentionDays:        7,
			MaxItemsPerRequest:   500,
		},
		Otel: OtelConfig{SampleRatio: 1},
	}
}

// LoadConfig starts from defaults, applies CONFIG_FILE when set, then the
// environment, and validates the result.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()
	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if cfg.Poller.InstanceID == "" {
		cfg.Poller.InstanceID = poller.DefaultInstanceID()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s does not exist", path)
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.LogMode = envutil.String("LOG_MODE", c.LogMode)

	pg := &c.Postgres
	pg.DSN = envutil.String("POSTGRES_DSN", pg.DSN)
	pg.Host = envutil.String("POSTGRES_HOST", pg.Host)
	pg.Port = envutil.String("POSTGRES_PORT", pg.Port)
	pg.User = envutil.String("POSTGRES_USER", pg.User)
	pg.Password = envutil.String("POSTGRES_PASSWORD", pg.Password)
	pg.Name = envutil.String("POSTGRES_NAME", pg.Name)
	pg.SSLMode = envutil.String("POSTGRES_SSLMODE", pg.SSLMode)
	pg.MaxOpenConns = envutil.Int("POSTGRES_MAX_OPEN_CONNS", pg.MaxOpenConns)
	pg.MaxIdleConns = envutil.Int("POSTGRES_MAX_IDLE_CONNS", pg.MaxIdleConns)

	c.Redis.Addr = envutil.String("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Channel = envutil.String("REDIS_CHANNEL", c.Redis.Channel)

	c.HTTP.Addr = envutil.String("HTTP_ADDR", c.HTTP.Addr)
	if origins, ok := envutil.Lookup("HTTP_CORS_ORIGINS"); ok {
		c.HTTP.CORSOrigins = splitList(origins)
	}

	c.Poller.Enabled = envutil.Bool("POLLER_ENABLED", c.Poller.Enabled)
	c.Poller.Interval = envutil.Duration("POLLER_INTERVAL", c.Poller.Interval)
	c.Poller.MaxConcurrentJobs = envutil.Int("POLLER_MAX_CONCURRENT_JOBS", c.Poller.MaxConcurrentJobs)
	c.Poller.InstanceID = envutil.String("POLLER_INSTANCE_ID", c.Poller.InstanceID)

	c.Partitions.Enabled = envutil.Bool("PARTITIONS_ENABLED", c.Partitions.Enabled)
	c.Partitions.RetentionMonths = envutil.Int("PARTITIONS_RETENTION_MONTHS", c.Partitions.RetentionMonths)
	c.Partitions.LookaheadMonths = envutil.Int("PARTITIONS_LOOKAHEAD_MONTHS", c.Partitions.LookaheadMonths)
	c.Partitions.Schedule = envutil.String("PARTITIONS_SCHEDULE", c.Partitions.Schedule)

	c.Generation.MaxDocumentSizeBytes = envutil.Int64("GENERATION_MAX_DOCUMENT_SIZE_BYTES", c.Generation.MaxDocumentSizeBytes)
	c.Generation.RetentionDays = envutil.Int("GENERATION_RETENTION_DAYS", c.Generation.RetentionDays)
	c.Generation.OptimizePDF = envutil.Bool("GENERATION_OPTIMIZE_PDF", c.Generation.OptimizePDF)
	c.Generation.FontDir = envutil.String("FONT_DIR", c.Generation.FontDir)
	c.Generation.MaxItemsPerRequest = envutil.Int("GENERATION_MAX_ITEMS_PER_REQUEST", c.Generation.MaxItemsPerRequest)

	c.Otel.Enabled = envutil.Bool("OTEL_ENABLED", c.Otel.Enabled)
	c.Otel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", c.Otel.Endpoint)
	c.Otel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", c.Otel.Insecure)
	c.Otel.Environment = envutil.String("OTEL_ENVIRONMENT", c.Otel.Environment)
	if raw, ok := envutil.Lookup("OTEL_SAMPLER_RATIO"); ok {
		var ratio float64
		if _, err := fmt.Sscanf(raw, "%g", &ratio); err == nil {
			c.Otel.SampleRatio = ratio
		}
	}

	c.Metrics.Enabled = envutil.Bool("METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Addr = envutil.String("METRICS_ADDR", c.Metrics.Addr)
}

// Validate rejects settings the subsystem cannot run with.
func (c Config) Validate() error {
	var problems []string
	if c.Poller.Interval <= 0 {
		problems = append(problems, "poller interval must be positive")
	}
	if c.Poller.MaxConcurrentJobs < 1 {
		problems = append(problems, "poller max concurrent jobs must be at least 1")
	}
	if c.Partitions.RetentionMonths < 1 {
		problems = append(problems, "partition retention must be at least 1 month")
	}
	if c.Partitions.LookaheadMonths < 1 {
		problems = append(problems, "partition lookahead must be at least 1 month")
	}
	if err := partitions.ValidateSchedule(c.Partitions.Schedule); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Generation.MaxDocumentSizeBytes < 0 {
		problems = append(problems, "max document size must not be negative")
	}
	if c.Generation.RetentionDays < 0 {
		problems = append(problems, "generation retention must not be negative")
	}
	if c.Otel.SampleRatio < 0 || c.Otel.SampleRatio > 1 {
		problems = append(problems, "otel sample ratio must be within [0, 1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) Retention() time.Duration {
	return time.Duration(c.Generation.RetentionDays) * 24 * time.Hour
}

func (c Config) PartitionPlan() partitions.PlanConfig {
	return partitions.PlanConfig{
		RetentionMonths: c.Partitions.RetentionMonths,
		LookaheadMonths: c.Partitions.LookaheadMonths,
	}
}

func (c Config) OtelSettings(version string) observability.OtelConfig {
	return observability.OtelConfig{
		Enabled:     c.Otel.Enabled,
		ServiceName: "docforge",
		Environment: c.Otel.Environment,
		Version:     version,
		Endpoint:    c.Otel.Endpoint,
		Insecure:    c.Otel.Insecure,
		Headers:     observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")),
		SampleRatio: c.Otel.SampleRatio,
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
