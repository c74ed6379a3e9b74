package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/circuitbreaker"
	"github.com/saga-labs/lexrag/internal/metrics"
)

const keyPrefix = "session:"

func sessionKey(id string) string { return keyPrefix + id }

// ColdStore is the durable tier behind the Redis cache.
type ColdStore interface {
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]*Session, error)
}

// Store is the two-tier session store. Reads hit the hot tier first and
// extend its TTL; misses fall through to the cold tier and rehydrate.
type Store struct {
	rdb    *circuitbreaker.RedisWrapper
	cold   ColdStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewStore creates a session store. cold may be nil (hot tier only).
func NewStore(rdb *circuitbreaker.RedisWrapper, cold ColdStore, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{rdb: rdb, cold: cold, ttl: ttl, logger: logger}
}

// GetOrCreate returns the session with the given ID, rehydrating from the
// cold tier if needed, or creates a new one. An empty ID means a fresh
// session with a generated UUID.
func (st *Store) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		s := NewSession(uuid.New().String())
		if err := st.writeHot(ctx, s); err != nil {
			return nil, err
		}
		metrics.SessionsCreated.Inc()
		st.logger.Info("Created new session", zap.String("session_id", s.ID))
		return s, nil
	}

	s, err := st.Get(ctx, id)
	if err == nil {
		return s, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	s = NewSession(id)
	if err := st.writeHot(ctx, s); err != nil {
		return nil, err
	}
	metrics.SessionsCreated.Inc()
	st.logger.Info("Created new session", zap.String("session_id", id))
	return s, nil
}

// Get returns a session from either tier, or ErrNotFound.
func (st *Store) Get(ctx context.Context, id string) (*Session, error) {
	data, err := st.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == nil {
		var s Session
		if uerr := json.Unmarshal(data, &s); uerr == nil {
			// Every read pushes the TTL back to full.
			if eerr := st.rdb.Expire(ctx, sessionKey(id), st.ttl).Err(); eerr != nil {
				st.logger.Warn("Failed to extend session TTL", zap.String("session_id", id), zap.Error(eerr))
			}
			metrics.SessionHotHits.Inc()
			return &s, nil
		}
		st.logger.Warn("Discarding corrupt hot session", zap.String("session_id", id))
	} else if err != redis.Nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}

	if st.cold == nil {
		return nil, ErrNotFound
	}
	s, err := st.cold.GetSession(ctx, id)
	if err == ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read archived session %s: %w", id, err)
	}

	if werr := st.writeHot(ctx, s); werr != nil {
		st.logger.Warn("Failed to rehydrate session", zap.String("session_id", id), zap.Error(werr))
	}
	metrics.SessionColdHits.Inc()
	return s, nil
}

// AppendMessage adds a message to the session, creating it if necessary,
// and rewrites the hot tier.
func (st *Store) AppendMessage(ctx context.Context, id, role, content string, metadata map[string]interface{}) (*Session, error) {
	s, err := st.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Append(role, content, metadata)
	if err := st.writeHot(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ListAll returns the union of hot and cold sessions, deduplicated by ID
// (hot copy wins) and sorted by last activity, newest first.
func (st *Store) ListAll(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}

	byID := make(map[string]*Session)
	if st.cold != nil {
		cold, err := st.cold.ListSessions(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("list archived sessions: %w", err)
		}
		for _, s := range cold {
			byID[s.ID] = s
		}
	}

	hotIDs, err := st.scanHotIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range hotIDs {
		data, err := st.rdb.Get(ctx, sessionKey(id)).Bytes()
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		byID[s.ID] = &s
	}

	out := make([]*Session, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata.LastActivity.After(out[j].Metadata.LastActivity)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (st *Store) writeHot(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := st.rdb.SetEx(ctx, sessionKey(s.ID), data, st.ttl).Err(); err != nil {
		return fmt.Errorf("write session %s: %w", s.ID, err)
	}
	return nil
}

func (st *Store) scanHotIDs(ctx context.Context) ([]string, error) {
	var ids []string
	var cursor uint64
	for {
		keys, next, err := st.rdb.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan sessions: %w", err)
		}
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, keyPrefix))
		}
		if next == 0 {
			return ids, nil
		}
		cursor = next
	}
}
