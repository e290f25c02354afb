package test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/wiesioai/wiesio/internal/profile"
	"github.com/wiesioai/wiesio/store"
	"github.com/wiesioai/wiesio/store/db"
)

// NewTestingStore opens a migrated store backed by a fresh database.
// SQLite gets its own temp file per test; PostgreSQL is used when
// DRIVER=postgres and POSTGRES_TEST_DSN are set.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	return newTestingStore(ctx, t, "dev")
}

// NewDemoTestingStore opens a store in demo mode so the catalog is seeded.
func NewDemoTestingStore(ctx context.Context, t *testing.T) *store.Store {
	return newTestingStore(ctx, t, "demo")
}

func newTestingStore(ctx context.Context, t *testing.T, mode string) *store.Store {
	t.Helper()
	profile := getTestingProfile(t, mode)
	dbDriver, err := db.NewDBDriver(profile)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}

	s := store.New(dbDriver, profile)
	t.Cleanup(func() {
		s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	return s
}

func getTestingProfile(t *testing.T, mode string) *profile.Profile {
	t.Helper()
	driver := getDriverFromEnv()
	dir := t.TempDir()

	p := &profile.Profile{
		Mode:    mode,
		Data:    dir,
		Driver:  driver,
		Version: "test",
	}
	switch driver {
	case "postgres":
		dsn := os.Getenv("POSTGRES_TEST_DSN")
		if dsn == "" {
			t.Skip("POSTGRES_TEST_DSN is not set")
		}
		p.DSN = dsn
	default:
		p.DSN = filepath.Join(dir, fmt.Sprintf("wiesio_%s.db", mode))
	}
	return p
}

func getDriverFromEnv() string {
	driver := os.Getenv("DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	return driver
}
