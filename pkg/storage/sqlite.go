package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/energyadvisor/pkg/log"
	_ "modernc.org/sqlite"
)

// SQLite keeps the ledger in a local SQLite database.
type SQLite struct {
	path string

	*sqlStore
}

func configuredSQLite() *SQLite {
	path := lflag.String("sqlite-path", "energyadvisor.db", "Path of the SQLite database for the sqlite storage provider")

	s := &SQLite{}

	lflag.Do(func() {
		s.path = *path
	})

	return s
}

// NewSQLite opens the database at path and creates the ledger table.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	s := &SQLite{path: path}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks if the provider is properly configured.
func (s *SQLite) Validate() error {
	if s.path == "" {
		return errors.New("sqlite-path is required")
	}
	return nil
}

// Init opens the database and runs migrations.
func (s *SQLite) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite (%s): %w", s.path, err)
	}
	// a single connection serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return fmt.Errorf("failed to set WAL mode: %w", err)
	}

	st := &sqlStore{db: db, table: ledgerTable, bind: questionBind}
	if err := st.migrate(ctx); err != nil {
		db.Close()
		return err
	}
	s.sqlStore = st
	log.Ctx(ctx).InfoContext(ctx, "sqlite store opened", slog.String("path", s.path))
	return nil
}
