package storage

import (
	"context"
	"os"
	"testing"
)

// Runs only against a live database, e.g.
// TONEBAR_TEST_POSTGRES_DSN=postgres://localhost/tonebar_test?sslmode=disable
func TestPostgresStoreRunRoundTrip(t *testing.T) {
	dsn := os.Getenv("TONEBAR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TONEBAR_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store := NewPostgresStore(dsn)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_, _ = store.DeleteRun(ctx, "pg-run")
		_ = store.Close()
	})

	if err := store.SaveRun(ctx, sampleRun("pg-run", "2026-03-01T10:00:00Z")); err != nil {
		t.Fatalf("save run: %v", err)
	}
	loaded, ok, err := store.GetRun(ctx, "pg-run")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if loaded.Result.Generations != 12 {
		t.Fatalf("unexpected run: %+v", loaded.Result)
	}
}

func TestSQLStoreRequiresInit(t *testing.T) {
	store := NewPostgresStore("postgres://unused")
	if _, _, err := store.GetRun(context.Background(), "x"); err == nil {
		t.Fatal("expected error before init")
	}
}
