package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

// QueueSignal shares queue control state between processes: a pause flag
// and a wake-up channel published on every enqueue. The durable queue
// itself lives in Postgres; Redis only carries signals.
type QueueSignal interface {
	NotifyEnqueued(ctx context.Context, queue string) error
	StartWakeForwarder(ctx context.Context, queue string, onWake func()) error
	SetPaused(ctx context.Context, queue string, paused bool) error
	IsPaused(ctx context.Context, queue string) (bool, error)
	// Client exposes the underlying connection for health probes.
	Client() goredis.UniversalClient
	Close() error
}

type queueSignal struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

func NewQueueSignal(log *logger.Logger, addr, prefix string) (QueueSignal, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "enroll"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &queueSignal{
		log:    log.With("service", "RedisQueueSignal"),
		rdb:    rdb,
		prefix: prefix,
	}, nil
}

func (s *queueSignal) pausedKey(queue string) string { return s.prefix + ":queue:" + queue + ":paused" }
func (s *queueSignal) wakeChannel(queue string) string { return s.prefix + ":queue:" + queue + ":wake" }

func (s *queueSignal) NotifyEnqueued(ctx context.Context, queue string) error {
	return s.rdb.Publish(ctx, s.wakeChannel(queue), time.Now().UTC().Format(time.RFC3339Nano)).Err()
}

func (s *queueSignal) StartWakeForwarder(ctx context.Context, queue string, onWake func()) error {
	if onWake == nil {
		return fmt.Errorf("onWake callback required")
	}
	sub := s.rdb.Subscribe(ctx, s.wakeChannel(queue))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				onWake()
			}
		}
	}()
	return nil
}

func (s *queueSignal) SetPaused(ctx context.Context, queue string, paused bool) error {
	if paused {
		return s.rdb.Set(ctx, s.pausedKey(queue), "1", 0).Err()
	}
	return s.rdb.Del(ctx, s.pausedKey(queue)).Err()
}

func (s *queueSignal) IsPaused(ctx context.Context, queue string) (bool, error) {
	v, err := s.rdb.Get(ctx, s.pausedKey(queue)).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

func (s *queueSignal) Client() goredis.UniversalClient { return s.rdb }

func (s *queueSignal) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
