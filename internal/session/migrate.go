package session

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/metrics"
)

// Migrator mirrors live hot-tier sessions into the cold tier on a fixed
// interval so TTL eviction never loses a transcript.
type Migrator struct {
	store    *Store
	interval time.Duration
	logger   *zap.Logger
}

// NewMigrator creates a migration loop.
func NewMigrator(store *Store, interval time.Duration, logger *zap.Logger) *Migrator {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{store: store, interval: interval, logger: logger}
}

// Start runs the migration loop until ctx is cancelled.
func (m *Migrator) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.MigrateOnce(ctx); err != nil {
					m.logger.Warn("Session migration pass failed", zap.Error(err))
				}
			}
		}
	}()
}

// MigrateOnce copies every live hot session into the cold tier. Failures
// on individual sessions are logged and skipped.
func (m *Migrator) MigrateOnce(ctx context.Context) (int, error) {
	if m.store.cold == nil {
		return 0, nil
	}

	ids, err := m.store.scanHotIDs(ctx)
	if err != nil {
		return 0, err
	}

	migrated := 0
	for _, id := range ids {
		data, err := m.store.rdb.Get(ctx, sessionKey(id)).Bytes()
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			m.logger.Warn("Skipping corrupt session during migration", zap.String("session_id", id))
			continue
		}
		if err := m.store.cold.SaveSession(ctx, &s); err != nil {
			m.logger.Warn("Failed to archive session", zap.String("session_id", id), zap.Error(err))
			continue
		}
		migrated++
	}

	if migrated > 0 {
		metrics.SessionsMigrated.Add(float64(migrated))
		m.logger.Debug("Session migration pass completed", zap.Int("migrated", migrated))
	}
	return migrated, nil
}
