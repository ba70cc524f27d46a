package storage

import (
	"path/filepath"
	"testing"
)

func TestNewStoreMemory(t *testing.T) {
	store, err := NewStore("memory", "")
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	if store == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestNewStorePostgresRequiresDSN(t *testing.T) {
	if _, err := NewStore("postgres", ""); err == nil {
		t.Fatal("expected missing dsn error")
	}
	store, err := NewStore("postgres", "postgres://localhost/tonebar?sslmode=disable")
	if err != nil {
		t.Fatalf("new postgres store: %v", err)
	}
	if _, ok := store.(*PostgresStore); !ok {
		t.Fatalf("unexpected store type: %T", store)
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("unknown", "")
	if err == nil {
		t.Fatal("expected unsupported store error")
	}
}

func TestNewStoreDefaultKind(t *testing.T) {
	store, err := NewStore(DefaultStoreKind(), filepath.Join(t.TempDir(), "tonebar.db"))
	if err != nil {
		t.Fatalf("default store kind %q: %v", DefaultStoreKind(), err)
	}
	_ = CloseIfSupported(store)
}
