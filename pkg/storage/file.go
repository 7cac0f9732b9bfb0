package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/energyadvisor/pkg/types"
)

// File keeps the ledger as a JSON array in a single file.
type File struct {
	path string

	mu sync.Mutex
}

func configuredFile() *File {
	path := lflag.String("ledger-file", "accepted_recommendations.json", "Path of the ledger file for the file storage provider")

	f := &File{}

	lflag.Do(func() {
		f.path = *path
	})

	return f
}

// NewFile returns a File store at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Validate checks if the provider is properly configured.
func (f *File) Validate() error {
	if f.path == "" {
		return errors.New("ledger-file is required")
	}
	return nil
}

// Load reads the ledger. A missing file is an empty ledger.
func (f *File) Load(ctx context.Context) ([]types.AcceptedRecommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}
	if len(b) == 0 {
		return nil, nil
	}

	var recs []types.AcceptedRecommendation
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	return recs, nil
}

// Save writes the ledger to a temporary file and renames it over the old one.
func (f *File) Save(ctx context.Context, recs []types.AcceptedRecommendation) error {
	if recs == nil {
		recs = []types.AcceptedRecommendation{}
	}
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}
	return nil
}

// Close is a no-op.
func (f *File) Close() error {
	return nil
}
