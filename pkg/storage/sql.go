package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/raterudder/energyadvisor/pkg/types"
)

const ledgerTable = "accepted_recommendations"

// sqlStore is the database/sql backed ledger shared by the SQLite and
// Postgres providers. Each entry is a row holding its position and its JSON.
type sqlStore struct {
	db    *sql.DB
	table string
	// bind returns the placeholder for the n-th (1-based) argument
	bind func(n int) string
}

func questionBind(int) string { return "?" }

func dollarBind(n int) string { return "$" + strconv.Itoa(n) }

func (s *sqlStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		position INTEGER NOT NULL,
		id       TEXT PRIMARY KEY,
		json     TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

func (s *sqlStore) Load(ctx context.Context) ([]types.AcceptedRecommendation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT json FROM `+s.table+` ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var recs []types.AcceptedRecommendation
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		rec, err := decodeEntry([]byte(raw))
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger rows: %w", err)
	}
	return recs, nil
}

// Save replaces every row in one transaction.
func (s *sqlStore) Save(ctx context.Context, recs []types.AcceptedRecommendation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+s.table); err != nil {
		return fmt.Errorf("failed to clear ledger: %w", err)
	}

	insert := fmt.Sprintf(
		`INSERT INTO %s (position, id, json) VALUES (%s, %s, %s)`,
		s.table, s.bind(1), s.bind(2), s.bind(3),
	)
	for i, rec := range recs {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", rec.ID, err)
		}
		if _, err := tx.ExecContext(ctx, insert, i, rec.ID, string(b)); err != nil {
			return fmt.Errorf("failed to insert %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger: %w", err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s != nil && s.db != nil {
		return s.db.Close()
	}
	return nil
}
