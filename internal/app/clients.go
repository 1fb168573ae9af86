package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/enrollment-backend/internal/clients/payments"
	redisclient "github.com/yungbote/enrollment-backend/internal/clients/redis"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
	"github.com/yungbote/enrollment-backend/internal/services"
)

type Clients struct {
	// QueueSignal is nil when REDIS_ADDR is unset; the queue then runs
	// single-process with a local pause flag.
	QueueSignal redisclient.QueueSignal
	// Preferences is nil in mock payment mode.
	Preferences payments.PreferenceClient
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis
	var signal redisclient.QueueSignal
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		s, err := redisclient.NewQueueSignal(log, cfg.RedisAddr, cfg.RedisPrefix)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis queue signal: %w", err)
		}
		signal = s
	} else {
		log.Warn("REDIS_ADDR not set; queue pause and wake signals are process-local")
	}

	// Payment provider
	var prefs payments.PreferenceClient
	if cfg.PaymentMode == services.PaymentModeMidtrans {
		prefs = payments.NewMidtransClient(log, cfg.MidtransServerKey, cfg.MidtransProduction())
	}

	return Clients{QueueSignal: signal, Preferences: prefs}, nil
}

func (c Clients) Close() error {
	if c.QueueSignal != nil {
		return c.QueueSignal.Close()
	}
	return nil
}
