package storage

import (
	"context"
	"sync"

	"github.com/raterudder/energyadvisor/pkg/types"
)

// Memory keeps the ledger in process. It is lost on restart.
type Memory struct {
	mu   sync.Mutex
	recs []types.AcceptedRecommendation
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(ctx context.Context) ([]types.AcceptedRecommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.recs) == 0 {
		return nil, nil
	}
	out := make([]types.AcceptedRecommendation, len(m.recs))
	copy(out, m.recs)
	return out, nil
}

func (m *Memory) Save(ctx context.Context, recs []types.AcceptedRecommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = make([]types.AcceptedRecommendation, len(recs))
	copy(m.recs, recs)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
