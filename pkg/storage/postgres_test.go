package storage

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T, schema string) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	p := newPostgresWithDB(db, schema)
	t.Cleanup(func() { _ = p.Close() })
	return p, mock
}

func TestPostgresTable(t *testing.T) {
	assert.Equal(t, `"accepted_recommendations"`, postgresTable(""))
	assert.Equal(t, `"energy"."accepted_recommendations"`, postgresTable("energy"))
}

func TestPostgres(t *testing.T) {
	ctx := context.Background()
	recs := sampleLedger()

	t.Run("load", func(t *testing.T) {
		p, mock := newMockPostgres(t, "")
		rows := sqlmock.NewRows([]string{"json"})
		for _, rec := range recs {
			b, err := json.Marshal(rec)
			require.NoError(t, err)
			rows.AddRow(string(b))
		}
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT json FROM "accepted_recommendations" ORDER BY position`)).
			WillReturnRows(rows)

		got, err := p.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, recs, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("load corrupt", func(t *testing.T) {
		p, mock := newMockPostgres(t, "")
		mock.ExpectQuery("SELECT json FROM").
			WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow("{bad"))

		_, err := p.Load(ctx)
		assert.ErrorIs(t, err, ErrCorrupt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("save", func(t *testing.T) {
		p, mock := newMockPostgres(t, "energy")
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "energy"."accepted_recommendations"`)).
			WillReturnResult(sqlmock.NewResult(0, 3))
		insert := regexp.QuoteMeta(`INSERT INTO "energy"."accepted_recommendations" (position, id, json) VALUES ($1, $2, $3)`)
		for i, rec := range recs {
			mock.ExpectExec(insert).
				WithArgs(int64(i), rec.ID, sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectCommit()

		require.NoError(t, p.Save(ctx, recs))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("save rolls back on failure", func(t *testing.T) {
		p, mock := newMockPostgres(t, "")
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO").
			WithArgs(int64(0), "rec_1", sqlmock.AnyArg()).
			WillReturnError(errors.New("duplicate key"))
		mock.ExpectRollback()

		err := p.Save(ctx, recs)
		assert.ErrorContains(t, err, "duplicate key")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("migrate", func(t *testing.T) {
		p, mock := newMockPostgres(t, "")
		mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "accepted_recommendations"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, p.migrate(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("validate", func(t *testing.T) {
		assert.Error(t, (&Postgres{}).Validate())
		assert.NoError(t, (&Postgres{url: "postgres://localhost/energy"}).Validate())
	})
}
