package core

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gwi.com/myblog/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "core.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// useSteppingClock makes every store timestamp one second after the last.
func useSteppingClock(db *store.SQLiteStore) {
	var mu sync.Mutex
	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	db.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	})
}

func mustUser(t *testing.T, db *store.SQLiteStore, username string) *store.User {
	t.Helper()
	u := &store.User{Username: username, Email: username + "@example.com", PasswordHash: "hash"}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}
