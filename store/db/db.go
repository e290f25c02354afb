package db

import (
	"github.com/pkg/errors"

	"github.com/wiesioai/wiesio/internal/profile"
	"github.com/wiesioai/wiesio/store"
	"github.com/wiesioai/wiesio/store/db/postgres"
	"github.com/wiesioai/wiesio/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
// SQLite is the default; PostgreSQL is available for shared deployments.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver: %q (supported: sqlite, postgres)", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
