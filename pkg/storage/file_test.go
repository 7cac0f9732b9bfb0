package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		f := NewFile(filepath.Join(t.TempDir(), "ledger.json"))
		require.NoError(t, f.Validate())
		testStoreRoundTrip(t, f)
	})

	t.Run("empty list is an array", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ledger.json")
		f := NewFile(path)
		require.NoError(t, f.Save(ctx, nil))

		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(b))
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ledger.json")
		require.NoError(t, os.WriteFile(path, nil, 0o600))

		recs, err := NewFile(path).Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("corrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ledger.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"id": "rec_1",`), 0o600))

		_, err := NewFile(path).Load(ctx)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("wrong shape", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ledger.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"id": "rec_1"}`), 0o600))

		_, err := NewFile(path).Load(ctx)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("no temp files left", func(t *testing.T) {
		dir := t.TempDir()
		f := NewFile(filepath.Join(dir, "ledger.json"))
		require.NoError(t, f.Save(ctx, sampleLedger()))
		require.NoError(t, f.Save(ctx, sampleLedger()[:1]))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "ledger.json", entries[0].Name())
	})

	t.Run("missing directory", func(t *testing.T) {
		f := NewFile(filepath.Join(t.TempDir(), "nope", "ledger.json"))
		assert.Error(t, f.Save(ctx, sampleLedger()))
	})

	t.Run("validate", func(t *testing.T) {
		assert.Error(t, NewFile("").Validate())
	})
}
