package statedb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *StateDB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate())
}

func TestUpsertAndListSessions(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.UpsertSession("agent-1", "/work", "claude", true))
	require.NoError(t, db.UpsertSession("shell-1", "/home", "", false))

	// Upsert refreshes rather than duplicating
	require.NoError(t, db.UpsertSession("agent-1", "/work2", "claude", true))

	sessions, err := db.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	byKey := map[string]SessionRow{}
	for _, s := range sessions {
		byKey[s.Key] = s
	}
	assert.Equal(t, "/work2", byKey["agent-1"].Cwd)
	assert.True(t, byKey["agent-1"].Agent)
	assert.False(t, byKey["shell-1"].Agent)
	assert.Equal(t, "idle", byKey["agent-1"].LastStatus)
}

func TestRecordTransition(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.UpsertSession("s1", "/w", "", true))

	base := time.Now()
	require.NoError(t, db.RecordTransition("s1", "working", base))
	require.NoError(t, db.RecordTransition("s1", "idle", base.Add(2*time.Second)))

	trs, err := db.RecentTransitions("s1", 10)
	require.NoError(t, err)
	require.Len(t, trs, 2)
	assert.Equal(t, "idle", trs[0].Status) // newest first
	assert.Equal(t, "working", trs[1].Status)

	sessions, err := db.ListSessions()
	require.NoError(t, err)
	assert.Equal(t, "idle", sessions[0].LastStatus)
}

func TestRecentTransitionsLimit(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.UpsertSession("s1", "/w", "", true))

	base := time.Now()
	for i := 0; i < 20; i++ {
		require.NoError(t, db.RecordTransition("s1", "working", base.Add(time.Duration(i)*time.Second)))
	}

	trs, err := db.RecentTransitions("s1", 5)
	require.NoError(t, err)
	assert.Len(t, trs, 5)
}

func TestDeleteSessionCascades(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.UpsertSession("s1", "/w", "", true))
	require.NoError(t, db.RecordTransition("s1", "working", time.Now()))

	require.NoError(t, db.DeleteSession("s1"))

	sessions, err := db.ListSessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)

	trs, err := db.RecentTransitions("s1", 10)
	require.NoError(t, err)
	assert.Empty(t, trs)
}
