package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
)

// Migration System Overview:
//
// The catalog schema lives in store/migration/{driver}/LATEST.sql and is applied in a single
// transaction the first time the database is opened. Conversation tables are not part of the
// schema file; they are created one by one through CreateConversation.
//
// In demo mode an empty catalog is seeded with a handful of conversations.

//go:embed migration
var migrationFS embed.FS

const (
	// LatestSchemaFileName is the name of the latest schema file.
	LatestSchemaFileName = "LATEST.sql"

	// Mode constants for profile mode.
	modeDemo = "demo"
)

// demoConversations mirrors the fixtures shipped with the demo database.
var demoConversations = []Conversation{
	{Name: "Alice", CoverImage: []byte{1, 2, 3}},
	{Name: "Bob", CoverImage: []byte{4, 5, 6}},
	{Name: "Charlie", CoverImage: []byte{7, 8, 9}},
	{Name: "Diana", CoverImage: []byte{10, 11, 12}},
}

// Migrate initializes the catalog schema if needed and seeds demo data in demo mode.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.preMigrate(ctx); err != nil {
		return errors.Wrap(err, "failed to pre-migrate")
	}

	if s.profile != nil && s.profile.Mode == modeDemo {
		if err := s.seed(ctx); err != nil {
			return errors.Wrap(err, "failed to seed")
		}
	}
	return nil
}

// preMigrate checks if the database is initialized and applies the latest schema if not.
func (s *Store) preMigrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}
	if initialized {
		return nil
	}

	filePath := s.getMigrationBasePath() + LatestSchemaFileName
	bytes, err := migrationFS.ReadFile(filePath)
	if err != nil {
		return errors.Errorf("failed to read latest schema file: %s", err)
	}

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	slog.Info("initializing new database with latest schema", slog.String("file", filePath))
	if err := s.execute(ctx, tx, string(bytes)); err != nil {
		return errors.Errorf("failed to execute SQL file %s, err %s", filePath, err)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	slog.Info("database initialized successfully", slog.String("driver", string(s.driver.Dialect())))
	return nil
}

func (s *Store) getMigrationBasePath() string {
	return fmt.Sprintf("migration/%s/", s.driver.Dialect())
}

// seed creates the demo conversations when the catalog is empty.
// Each one goes through CreateConversation so its table is created with it.
func (s *Store) seed(ctx context.Context) error {
	existing, err := s.driver.ListConversations(ctx, &FindConversation{Limit: 1})
	if err != nil {
		return errors.Wrap(err, "failed to list conversations")
	}
	if len(existing) > 0 {
		return nil
	}

	for _, demo := range demoConversations {
		create := demo
		if _, err := s.CreateConversation(ctx, &create); err != nil {
			return errors.Wrapf(err, "failed to seed conversation %s", demo.Name)
		}
	}
	slog.Info("seeded demo conversations", slog.Int("count", len(demoConversations)))
	return nil
}

// execute executes a SQL statement within a transaction context.
func (s *Store) execute(ctx context.Context, tx *sql.Tx, stmt string) error {
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "failed to execute statement")
	}
	return nil
}
