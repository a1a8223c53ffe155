package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/energizer-project/loginhelper/internal/events"
)

func openTestDatabase(t *testing.T) *Database {
	t.Helper()
	database, err := NewDatabase(filepath.Join(t.TempDir(), "nested", "helper.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func newTestStore(t *testing.T) *CredentialStore {
	store := NewCredentialStore(openTestDatabase(t))
	store.cost = bcrypt.MinCost
	return store
}

func TestNewDatabaseIsReopenable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "helper.db")

	first, err := NewDatabase(path)
	require.NoError(t, err)
	store := NewCredentialStore(first)
	store.cost = bcrypt.MinCost
	require.NoError(t, store.AddUser(context.Background(), "mihawk", "hunter2"))
	require.NoError(t, first.Close())

	second, err := NewDatabase(path)
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, path, second.Path())

	ok, err := NewCredentialStore(second).Validate(context.Background(), "mihawk", "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCredentialStoreValidate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddUser(ctx, "mihawk", "hunter2"))

	ok, err := store.Validate(ctx, "mihawk", "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Validate(ctx, "mihawk", "Hunter2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Validate(ctx, "nobody", "hunter2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialStoreAddUserErrors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddUser(ctx, "mihawk", "hunter2"))
	assert.ErrorIs(t, store.AddUser(ctx, "mihawk", "other"), ErrUserExists)
	assert.Error(t, store.AddUser(ctx, "  ", "pw"))
}

func TestCredentialStoreSetPasswordAndRemove(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddUser(ctx, "mihawk", "hunter2"))
	require.NoError(t, store.SetPassword(ctx, "mihawk", "swordfish"))

	ok, _ := store.Validate(ctx, "mihawk", "hunter2")
	assert.False(t, ok)
	ok, _ = store.Validate(ctx, "mihawk", "swordfish")
	assert.True(t, ok)

	assert.ErrorIs(t, store.SetPassword(ctx, "nobody", "x"), ErrUserNotFound)

	require.NoError(t, store.RemoveUser(ctx, "mihawk"))
	assert.ErrorIs(t, store.RemoveUser(ctx, "mihawk"), ErrUserNotFound)

	ok, err := store.Validate(ctx, "mihawk", "swordfish")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialStoreUsersRecordsLastLogin(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddUser(ctx, "alice", "a"))
	require.NoError(t, store.AddUser(ctx, "bob", "b"))

	ok, err := store.Validate(ctx, "bob", "b")
	require.NoError(t, err)
	require.True(t, ok)

	users, err := store.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.True(t, users[0].LastLogin.IsZero())
	assert.Equal(t, "bob", users[1].Username)
	assert.False(t, users[1].LastLogin.IsZero())
	assert.WithinDuration(t, time.Now(), users[1].CreatedAt, time.Minute)
}

func TestAuditLogRecordsBusEvents(t *testing.T) {
	audit := NewAuditLog(openTestDatabase(t))
	bus := events.NewEventBus()
	audit.Attach(bus)

	ctx := context.Background()
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventLoginAccepted,
		Payload: events.LoginPayload{Username: "mihawk"},
	}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventClientCommand,
		Payload: events.ClientCommandPayload{Username: "mihawk", Command: "!hello", Annoy: false},
	}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type: events.EventSessionEnded,
		Payload: events.SessionEndedPayload{
			Username: "mihawk",
			Reason:   events.EndReasonBye,
			Duration: 1500 * time.Millisecond,
			Sent:     20,
			Received: 9,
		},
	}))
	bus.Stop()

	entries, err := audit.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, string(events.EventSessionEnded), entries[0].Type)
	assert.Equal(t, "mihawk", entries[0].Username)
	assert.Equal(t, "reason=bye duration=1.5s sent=20 received=9", entries[0].Detail)

	assert.Equal(t, string(events.EventClientCommand), entries[1].Type)
	assert.Equal(t, "command=!hello annoy=false", entries[1].Detail)
	assert.NotZero(t, entries[1].PID)
	assert.WithinDuration(t, time.Now(), entries[1].Time, time.Minute)
}

func TestDescribe(t *testing.T) {
	username, detail := describe(events.ConfigDeniedPayload{CVar: "scr_allowsnap"})
	assert.Empty(t, username)
	assert.Equal(t, "cvar=scr_allowsnap", detail)

	_, detail = describe(events.RevalidatedPayload{Username: "u", CVar: "c", Cycle: 4})
	assert.Equal(t, "cvar=c cycle=4", detail)

	_, detail = describe(nil)
	assert.Empty(t, detail)
}
