package session

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/circuitbreaker"
)

// memoryCold is an in-memory ColdStore.
type memoryCold struct {
	sessions map[string]*Session
	saves    int
}

func newMemoryCold() *memoryCold {
	return &memoryCold{sessions: make(map[string]*Session)}
}

func (m *memoryCold) SaveSession(_ context.Context, s *Session) error {
	cp := *s
	m.sessions[s.ID] = &cp
	m.saves++
	return nil
}

func (m *memoryCold) GetSession(_ context.Context, id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memoryCold) ListSessions(_ context.Context, limit int) ([]*Session, error) {
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata.CreatedAt.After(out[j].Metadata.CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestStore(t *testing.T, cold ColdStore) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := circuitbreaker.NewRedisWrapper(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", zap.NewNop())
	return NewStore(rdb, cold, 2*time.Minute, zap.NewNop()), mr
}

func TestGetOrCreateGeneratesID(t *testing.T) {
	st, _ := newTestStore(t, nil)

	s, err := st.GetOrCreate(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Empty(t, s.Messages)
	assert.False(t, s.Metadata.CreatedAt.IsZero())
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	st, _ := newTestStore(t, nil)
	ctx := context.Background()

	s1, err := st.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, "s1", RoleUser, "hello", nil)
	require.NoError(t, err)

	s2, err := st.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, s1.ID, s2.ID)
	require.Len(t, s2.Messages, 1)
	assert.Equal(t, "hello", s2.Messages[0].Content)
}

func TestAppendMessagePreservesOrder(t *testing.T) {
	st, _ := newTestStore(t, nil)
	ctx := context.Background()

	_, err := st.AppendMessage(ctx, "s1", RoleUser, "A", nil)
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, "s1", RoleAssistant, "A-reply", map[string]interface{}{"sources": []string{"/docs/a.pdf"}})
	require.NoError(t, err)
	s, err := st.AppendMessage(ctx, "s1", RoleUser, "B", nil)
	require.NoError(t, err)

	require.Len(t, s.Messages, 3)
	assert.Equal(t, []string{"A", "A-reply", "B"}, []string{s.Messages[0].Content, s.Messages[1].Content, s.Messages[2].Content})
	assert.Equal(t, RoleAssistant, s.Messages[1].Role)
	assert.Equal(t, 3, s.Metadata.MessageCount)
	assert.False(t, s.Messages[0].Timestamp.IsZero())
}

func TestReadExtendsTTL(t *testing.T) {
	st, mr := newTestStore(t, nil)
	ctx := context.Background()

	_, err := st.GetOrCreate(ctx, "s1")
	require.NoError(t, err)

	mr.SetTTL("session:s1", 5*time.Second)
	_, err = st.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Greater(t, mr.TTL("session:s1"), time.Minute)
}

func TestGetUnknownSession(t *testing.T) {
	st, _ := newTestStore(t, nil)

	_, err := st.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestColdTierRehydration(t *testing.T) {
	cold := newMemoryCold()
	st, mr := newTestStore(t, cold)
	ctx := context.Background()

	s := NewSession("archived")
	s.Append(RoleUser, "old message", nil)
	require.NoError(t, cold.SaveSession(ctx, s))

	got, err := st.Get(ctx, "archived")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "old message", got.Messages[0].Content)

	// Rehydrated into the hot tier.
	assert.True(t, mr.Exists("session:archived"))
}

func TestMigrateOnceArchivesHotSessions(t *testing.T) {
	cold := newMemoryCold()
	st, _ := newTestStore(t, cold)
	ctx := context.Background()

	_, err := st.AppendMessage(ctx, "s1", RoleUser, "A", nil)
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, "s2", RoleUser, "B", nil)
	require.NoError(t, err)

	m := NewMigrator(st, time.Minute, zap.NewNop())
	migrated, err := m.MigrateOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, migrated)

	archived, err := cold.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, archived.Messages, 1)
}

func TestSessionSurvivesHotEviction(t *testing.T) {
	cold := newMemoryCold()
	st, mr := newTestStore(t, cold)
	ctx := context.Background()

	_, err := st.AppendMessage(ctx, "s1", RoleUser, "A", nil)
	require.NoError(t, err)

	m := NewMigrator(st, time.Minute, zap.NewNop())
	_, err = m.MigrateOnce(ctx)
	require.NoError(t, err)

	// TTL eviction wipes the hot tier; the session stays addressable.
	mr.Del("session:s1")
	got, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "A", got.Messages[0].Content)
}

func TestListAllUnionsTiersNewestFirst(t *testing.T) {
	cold := newMemoryCold()
	st, _ := newTestStore(t, cold)
	ctx := context.Background()

	archived := NewSession("old")
	archived.Metadata.LastActivity = time.Now().Add(-time.Hour)
	require.NoError(t, cold.SaveSession(ctx, archived))

	_, err := st.AppendMessage(ctx, "live", RoleUser, "A", nil)
	require.NoError(t, err)

	sessions, err := st.ListAll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "live", sessions[0].ID)
	assert.Equal(t, "old", sessions[1].ID)
}

func TestListAllHotCopyWins(t *testing.T) {
	cold := newMemoryCold()
	st, _ := newTestStore(t, cold)
	ctx := context.Background()

	_, err := st.AppendMessage(ctx, "s1", RoleUser, "A", nil)
	require.NoError(t, err)

	m := NewMigrator(st, time.Minute, zap.NewNop())
	_, err = m.MigrateOnce(ctx)
	require.NoError(t, err)

	// Hot copy advances past the archived one.
	_, err = st.AppendMessage(ctx, "s1", RoleUser, "B", nil)
	require.NoError(t, err)

	sessions, err := st.ListAll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Len(t, sessions[0].Messages, 2)
}
