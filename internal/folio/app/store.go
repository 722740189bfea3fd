package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/aussiebroadwan/folio/internal/folio/store"
	"github.com/aussiebroadwan/folio/internal/folio/store/drivers/postgres"
	"github.com/aussiebroadwan/folio/internal/folio/store/drivers/sqlite"
)

// connectDelay is the first backoff step between connection attempts.
var connectDelay = 500 * time.Millisecond

// OpenStore connects to the configured database, retrying while it comes
// up, and applies migrations.
func OpenStore(ctx context.Context, cfg Config, logger *slog.Logger) (store.Store, error) {
	attempts := cfg.DBConnectAttempts
	if attempts == 0 {
		attempts = 1
	}

	var st store.Store
	err := retry.Do(
		func() error {
			s, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			st = s
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(connectDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("database connection attempt failed",
				slog.String("driver", cfg.DatabaseDriver),
				slog.Uint64("attempt", uint64(n+1)),
				slog.Any("error", err),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := st.ApplyMigrations(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}

	logger.Info("database migrations applied successfully", slog.String("driver", cfg.DatabaseDriver))
	return st, nil
}

func connect(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		s, err := postgres.NewStore(ctx, cfg.DatabaseDSN, postgres.Options{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := sqlite.NewStore(cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
