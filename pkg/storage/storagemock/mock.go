package storagemock

import (
	"context"

	"github.com/raterudder/energyadvisor/pkg/storage"
	"github.com/raterudder/energyadvisor/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

var _ storage.Store = (*MockStore)(nil)

func (m *MockStore) Load(ctx context.Context) ([]types.AcceptedRecommendation, error) {
	args := m.Called(ctx)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		recs, _ := args.Get(0).([]types.AcceptedRecommendation)
		return recs, args.Error(1)
	}
	return nil, nil
}

func (m *MockStore) Save(ctx context.Context, recs []types.AcceptedRecommendation) error {
	args := m.Called(ctx, recs)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	if len(args) > 0 {
		return args.Error(0)
	}
	return nil
}
