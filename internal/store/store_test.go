package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/soyeahso/crewdesk/internal/hooks"
	"github.com/soyeahso/crewdesk/internal/logging"
	"github.com/soyeahso/crewdesk/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- DB/Migration tests ---

func TestMigrations_Applied(t *testing.T) {
	db := testDB(t)

	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, v)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.migrate())

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"tool_state", "call_log"} {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "crewdesk.db")
	db, err := Open(path, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, NewToolStateStore(db).SaveScripting(true))
	require.NoError(t, db.Close())

	db, err = Open(path, logging.Nop())
	require.NoError(t, err)
	defer db.Close()
	states, err := NewToolStateStore(db).Load()
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.True(t, states[0].Enabled)
}

// --- Tool state tests ---

func TestToolState_SaveUpserts(t *testing.T) {
	s := NewToolStateStore(testDB(t))

	require.NoError(t, s.Save(
		ToolState{Source: tools.Native(), Name: "bash", Enabled: true},
		ToolState{Source: tools.ContextServer("gh"), Name: "issues", Enabled: true},
	))
	require.NoError(t, s.Save(ToolState{Source: tools.Native(), Name: "bash", Enabled: false}))

	states, err := s.Load()
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, tools.ContextServer("gh"), states[0].Source)
	assert.Equal(t, "bash", states[1].Name)
	assert.False(t, states[1].Enabled)
	assert.False(t, states[1].UpdatedAt.IsZero())

	require.NoError(t, s.Reset())
	states, err = s.Load()
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestToolState_TrackAndRestore(t *testing.T) {
	db := testDB(t)
	s := NewToolStateStore(db)

	ws := tools.NewWorkingSet()
	ws.Register(tools.Descriptor{ToolName: "a", From: tools.Native()}, tools.Descriptor{ToolName: "b", From: tools.Native()})
	ws.Register(tools.Descriptor{ToolName: "d", From: tools.ContextServer("X")})
	s.Track(ws)

	ws.Disable(tools.Native(), []string{"a"})
	ws.DisableSource(tools.ContextServer("X"))
	ws.EnableScripting()

	// A fresh process: restore before tools register, then register.
	fresh := tools.NewWorkingSet()
	require.NoError(t, s.Restore(fresh))
	fresh.Register(tools.Descriptor{ToolName: "a", From: tools.Native()}, tools.Descriptor{ToolName: "b", From: tools.Native()})
	fresh.Register(tools.Descriptor{ToolName: "d", From: tools.ContextServer("X")})

	assert.False(t, fresh.IsEnabled(tools.Native(), "a"))
	assert.True(t, fresh.IsEnabled(tools.Native(), "b"), "tools without a saved flag start enabled")
	assert.False(t, fresh.IsEnabled(tools.ContextServer("X"), "d"))
	assert.True(t, fresh.IsScriptingEnabled())
}

func TestToolState_RegistrationIsNotPersisted(t *testing.T) {
	s := NewToolStateStore(testDB(t))
	ws := tools.NewWorkingSet()
	s.Track(ws)
	ws.Register(tools.Descriptor{ToolName: "a", From: tools.Native()})

	states, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, states)
}

// --- Call log tests ---

func TestCallLog_RecordAndRecent(t *testing.T) {
	l := NewCallLog(testDB(t))
	project := uint64(7)

	_, err := l.Record(CallRecord{CallID: "c1", Event: hooks.EventCallIncoming, CallerID: 1, CallerLogin: "nathan", ProjectID: &project})
	require.NoError(t, err)
	rec, err := l.Record(CallRecord{CallID: "c1", Event: hooks.EventCallDeclined, CallerID: 1, CallerLogin: "nathan"})
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)

	recent, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, hooks.EventCallDeclined, recent[0].Event)
	assert.Nil(t, recent[0].ProjectID)
	require.NotNil(t, recent[1].ProjectID)
	assert.Equal(t, uint64(7), *recent[1].ProjectID)

	recent, err = l.Recent(1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestCallLog_Subscribe(t *testing.T) {
	l := NewCallLog(testDB(t))
	hm := hooks.NewManager(logging.Nop())
	l.Subscribe(hm)

	ctx := context.Background()
	hm.Emit(ctx, hooks.EventCallIncoming, map[string]any{
		"id": "c9", "callerId": uint64(4), "callerLogin": "max", "projectId": uint64(3),
	})
	hm.Emit(ctx, hooks.EventCallJoinFailed, map[string]any{
		"id": "c9", "callerId": uint64(4), "callerLogin": "max", "error": "room is gone",
	})
	hm.Emit(ctx, hooks.EventGatewayStart, map[string]any{"id": "ignored"})

	recent, err := l.Recent(0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "room is gone", recent[0].Detail)
	assert.Equal(t, "max", recent[1].CallerLogin)
	assert.Equal(t, uint64(4), recent[1].CallerID)
	require.NotNil(t, recent[1].ProjectID)
	assert.Equal(t, uint64(3), *recent[1].ProjectID)
}
