package queuectl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redisclient "github.com/yungbote/enrollment-backend/internal/clients/redis"
	"github.com/yungbote/enrollment-backend/internal/data/db"
	"github.com/yungbote/enrollment-backend/internal/data/repos"
	"github.com/yungbote/enrollment-backend/internal/observability"
	"github.com/yungbote/enrollment-backend/internal/platform/envutil"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
	"github.com/yungbote/enrollment-backend/internal/services"
)

// Settings are resolved from flags first, then ENROLL_* environment variables.
type Settings struct {
	PostgresDSN string
	RedisAddr   string
	RedisPrefix string
	AdminSecret string
	JSON        bool
}

// Env is what the queue commands operate on.
type Env struct {
	Queue  services.WebhookQueue
	Health *observability.QueueHealthCollector
	// Shared reports whether pause state reaches other processes.
	Shared bool
	Close  func() error
}

type Opener func(ctx context.Context, s Settings) (*Env, error)

// OpenEnv connects to the same Postgres and Redis the servers use.
func OpenEnv(ctx context.Context, s Settings) (*Env, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "production"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	dsn := strings.TrimSpace(s.PostgresDSN)
	if dsn == "" {
		dsn = db.PostgresDSN()
	}
	pg, err := db.NewPostgresService(log, dsn)
	if err != nil {
		return nil, err
	}

	var signal redisclient.QueueSignal
	if strings.TrimSpace(s.RedisAddr) != "" {
		signal, err = redisclient.NewQueueSignal(log, s.RedisAddr, s.RedisPrefix)
		if err != nil {
			_ = pg.Close()
			return nil, err
		}
	}

	queue := services.NewWebhookQueue(pg.DB(), log, repos.NewWebhookJobRepo(pg.DB(), log), signal, nil, services.WebhookQueueConfig{})
	if signal != nil {
		// Prime the local flag so IsPaused reflects the shared state.
		_ = queue.IsPaused(ctx)
	}
	return &Env{
		Queue:  queue,
		Health: observability.NewQueueHealthCollector(log, queue, observability.HealthThresholdsFromEnv(), nil),
		Shared: signal != nil,
		Close: func() error {
			var errs []error
			if signal != nil {
				errs = append(errs, signal.Close())
			}
			errs = append(errs, pg.Close())
			log.Sync()
			return errors.Join(errs...)
		},
	}, nil
}
