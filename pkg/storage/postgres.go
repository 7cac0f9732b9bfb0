package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/lib/pq"
	"github.com/raterudder/energyadvisor/pkg/log"
)

// Postgres keeps the ledger in a Postgres table.
type Postgres struct {
	url    string
	schema string

	*sqlStore
}

func configuredPostgres() *Postgres {
	url := lflag.String("postgres-url", "", "Connection URL for the postgres storage provider")
	schema := lflag.String("postgres-schema", "", "Schema holding the ledger table (default search_path)")

	p := &Postgres{}

	lflag.Do(func() {
		p.url = *url
		p.schema = *schema
	})

	return p
}

// newPostgresWithDB wraps an already opened database.
func newPostgresWithDB(db *sql.DB, schema string) *Postgres {
	return &Postgres{
		schema:   schema,
		sqlStore: &sqlStore{db: db, table: postgresTable(schema), bind: dollarBind},
	}
}

func postgresTable(schema string) string {
	if schema == "" {
		return pq.QuoteIdentifier(ledgerTable)
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(ledgerTable)
}

// Validate checks if the provider is properly configured.
func (p *Postgres) Validate() error {
	if p.url == "" {
		return errors.New("postgres-url is required")
	}
	return nil
}

// Init connects to the database and creates the ledger table.
func (p *Postgres) Init(ctx context.Context) error {
	db, err := sql.Open("postgres", p.url)
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	st := newPostgresWithDB(db, p.schema).sqlStore
	if err := st.migrate(ctx); err != nil {
		db.Close()
		return err
	}
	p.sqlStore = st
	log.Ctx(ctx).InfoContext(ctx, "postgres store opened", slog.String("table", st.table))
	return nil
}
