package testsupport

import (
	"context"
	"testing"

	"lectern/internal/config"
	"lectern/internal/eventstore"
	"lectern/internal/session"
)

// MustOpenStore opens an eventstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *eventstore.Store {
	t.Helper()

	store, err := eventstore.Open(cfg)
	if err != nil {
		t.Fatalf("eventstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSession creates a session record for tests using the provided store.
func NewSession(t testing.TB, store *eventstore.Store, sourceURL string) *session.Session {
	t.Helper()

	sess, err := store.NewSession(context.Background(), sourceURL, "")
	if err != nil {
		t.Fatalf("store.NewSession: %v", err)
	}
	return sess
}
