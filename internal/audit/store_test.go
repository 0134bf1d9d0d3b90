package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/rampart/internal/clock"
)

func openMem(t *testing.T, clk clock.Clock) *Store {
	t.Helper()
	s, err := Open(Options{Path: ":memory:", Retention: 24 * time.Hour, Clock: clk})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_WriteQuery(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s := openMem(t, clk)

	require.NoError(t, s.Write(ctx, Event{User: "alice", Action: "login", Resource: "/auth/login", Status: 200}))
	clk.Advance(time.Minute)
	require.NoError(t, s.Write(ctx, Event{
		User: "alice", Action: "create", Resource: "/sites", Status: 201,
		Details: map[string]any{"name": "Shop"},
	}))
	clk.Advance(time.Minute)
	require.NoError(t, s.Write(ctx, Event{User: "bob", Action: "delete", Resource: "/rules/7", Status: 403}))

	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "bob", all[0].User, "newest first")
	assert.Equal(t, clk.Now().UnixMilli(), all[0].Timestamp.UnixMilli())
	assert.Equal(t, "Shop", all[1].Details["name"])

	byUser, err := s.Query(ctx, Query{User: "alice", Action: "create"})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "/sites", byUser[0].Resource)

	recent, err := s.Query(ctx, Query{Since: clk.Now().Add(-90 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := s.Query(ctx, Query{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_Prune(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMockClock(time.Now())
	s := openMem(t, clk)

	require.NoError(t, s.Write(ctx, Event{User: "alice", Action: "create", Resource: "/sites"}))
	clk.Advance(25 * time.Hour)
	require.NoError(t, s.Write(ctx, Event{User: "alice", Action: "update", Resource: "/sites/1"}))

	n, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStore_FilePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "audit.db")

	s, err := Open(Options{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, Event{User: "alice", Action: "login", Resource: "/auth/login"}))
	require.NoError(t, s.Close())

	s, err = Open(Options{Path: path})
	require.NoError(t, err)
	defer s.Close()
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
