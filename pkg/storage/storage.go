package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/energyadvisor/pkg/types"
)

// ErrCorrupt is returned by Load when the stored ledger cannot be decoded.
var ErrCorrupt = errors.New("stored ledger is corrupt")

// Store persists the accepted recommendation ledger as a whole. Load returns
// the entries in the order they were saved; Save replaces everything stored.
type Store interface {
	Load(ctx context.Context) ([]types.AcceptedRecommendation, error)
	Save(ctx context.Context, recs []types.AcceptedRecommendation) error

	// Lifecycle
	Close() error
}

// Configured sets up the Store provider based on flags.
func Configured() Store {
	provider := lflag.String("storage-provider", "file", "Storage provider to use (available: file, memory, firestore, sqlite, postgres)")

	var p struct{ Store }

	file := configuredFile()
	fs := configuredFirestore()
	lite := configuredSQLite()
	pg := configuredPostgres()

	lflag.Do(func() {
		ctx := context.Background()
		switch *provider {
		case "file":
			if err := file.Validate(); err != nil {
				panic(fmt.Sprintf("file storage validation failed: %v", err))
			}
			p.Store = file
		case "memory":
			p.Store = NewMemory()
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			if err := fs.Init(ctx); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
			p.Store = fs
		case "sqlite":
			if err := lite.Validate(); err != nil {
				panic(fmt.Sprintf("sqlite validation failed: %v", err))
			}
			if err := lite.Init(ctx); err != nil {
				panic(fmt.Sprintf("sqlite init failed: %v", err))
			}
			p.Store = lite
		case "postgres":
			if err := pg.Validate(); err != nil {
				panic(fmt.Sprintf("postgres validation failed: %v", err))
			}
			if err := pg.Init(ctx); err != nil {
				panic(fmt.Sprintf("postgres init failed: %v", err))
			}
			p.Store = pg
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}

// decodeEntry unmarshals one stored entry, mapping failures to ErrCorrupt.
func decodeEntry(raw []byte) (types.AcceptedRecommendation, error) {
	var rec types.AcceptedRecommendation
	if err := json.Unmarshal(raw, &rec); err != nil {
		return types.AcceptedRecommendation{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return rec, nil
}
