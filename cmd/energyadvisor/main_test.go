package main

import (
	"context"
	"errors"
	"testing"

	"github.com/raterudder/energyadvisor/pkg/storage/storagemock"
	"github.com/stretchr/testify/assert"
)

type runFunc func(ctx context.Context) error

func (f runFunc) Run(ctx context.Context) error { return f(ctx) }

func TestRunClosesStorage(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		store := &storagemock.MockStore{}
		store.On("Close").Return(nil).Once()

		err := run(runFunc(func(ctx context.Context) error {
			return errors.New("listen tcp :8080: address already in use")
		}), store)
		assert.Error(t, err)
		store.AssertExpectations(t)
	})

	t.Run("clean exit", func(t *testing.T) {
		store := &storagemock.MockStore{}
		store.On("Close").Return(assert.AnError).Once()

		err := run(runFunc(func(ctx context.Context) error {
			return nil
		}), store)
		assert.NoError(t, err)
		store.AssertExpectations(t)
	})
}
