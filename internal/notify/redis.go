package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

const DefaultChannel = "generation-events"

type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

type redisNotifier struct {
	log     *logger.Logger
	rdb     *redis.Client
	channel string
	timeout time.Duration
}

// New returns a Redis-backed notifier, or a no-op one when no address is
// configured.
func New(log *logger.Logger, cfg RedisConfig) (JobNotifier, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		log.Info("REDIS_ADDR not set, job events disabled")
		return Nop(), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisNotifier(log, rdb, cfg.Channel), nil
}

func newRedisNotifier(log *logger.Logger, rdb *redis.Client, channel string) *redisNotifier {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &redisNotifier{
		log:     log.With("service", "RedisJobNotifier"),
		rdb:     rdb,
		channel: channel,
		timeout: 2 * time.Second,
	}
}

func (n *redisNotifier) Notify(ev Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		n.log.Warn("encode job event failed", "type", ev.Type, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	if err := n.rdb.Publish(ctx, n.channel, raw).Err(); err != nil {
		n.log.Warn("publish job event failed", "type", ev.Type, "request_id", ev.RequestID, "error", err)
	}
}

func (n *redisNotifier) Close() error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Close()
}

// Subscribe forwards events published on cfg.Channel to onEvent until ctx
// is done.
func Subscribe(ctx context.Context, log *logger.Logger, cfg RedisConfig, onEvent func(Event)) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("missing REDIS_ADDR")
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, DialTimeout: 5 * time.Second})
	defer rdb.Close()

	sub := rdb.Subscribe(ctx, channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok || m == nil {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				log.Warn("bad job event payload", "error", err)
				continue
			}
			onEvent(ev)
		}
	}
}
