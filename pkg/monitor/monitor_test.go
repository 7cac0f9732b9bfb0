package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raterudder/energyadvisor/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type countingRefresher struct {
	n atomic.Int32
}

func (c *countingRefresher) Refetch() { c.n.Add(1) }

func TestCheck(t *testing.T) {
	checked := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"online", nil, StatusOnline},
		{"http error", &api.HTTPError{StatusCode: 503, StatusText: "Service Unavailable", Message: "HTTP 503: Service Unavailable"}, StatusError},
		{"network error", &api.NetworkError{Err: errors.New("connection refused")}, StatusOffline},
		{"timeout", context.DeadlineExceeded, StatusOffline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(pingFunc(func(ctx context.Context) error {
				_, ok := ctx.Deadline()
				assert.True(t, ok)
				return tt.err
			}))
			m.now = func() time.Time { return checked }
			assert.Equal(t, StatusChecking, m.Status().Status)
			assert.Nil(t, m.Status().LastChecked)

			got := m.Check(context.Background())
			assert.Equal(t, tt.want, got.Status)
			require.NotNil(t, got.LastChecked)
			assert.Equal(t, checked, *got.LastChecked)
			if tt.err != nil {
				assert.Equal(t, tt.err.Error(), got.Error)
			} else {
				assert.Empty(t, got.Error)
			}
			assert.Equal(t, got, m.Status())
		})
	}
}

func TestCheckAgainstAPI(t *testing.T) {
	t.Run("slow server is offline", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer ts.Close()

		m := New(api.NewClient(ts.URL, ts.Client()))
		m.checkTimeout = 20 * time.Millisecond
		assert.Equal(t, StatusOffline, m.Check(context.Background()).Status)
	})

	t.Run("non-2xx is error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer ts.Close()

		m := New(api.NewClient(ts.URL, ts.Client()))
		s := m.Check(context.Background())
		assert.Equal(t, StatusError, s.Status)
		assert.Equal(t, "HTTP 502: Bad Gateway", s.Error)
	})

	t.Run("closed server is offline", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		c := api.NewClient(ts.URL, ts.Client())
		ts.Close()

		assert.Equal(t, StatusOffline, New(c).Check(context.Background()).Status)
	})
}

func TestValidate(t *testing.T) {
	m := New(nil)
	assert.NoError(t, m.Validate())

	m.refreshSchedule = ""
	assert.NoError(t, m.Validate())

	m.checkSchedule = "every now and then"
	assert.Error(t, m.Validate())

	m = New(nil)
	m.refreshSchedule = "* * *"
	assert.Error(t, m.Validate())

	m = New(nil)
	m.checkTimeout = 0
	assert.Error(t, m.Validate())
}

func TestStart(t *testing.T) {
	var pings atomic.Int32
	m := New(pingFunc(func(ctx context.Context) error {
		pings.Add(1)
		return nil
	}))
	m.checkSchedule = "@every 1s"
	m.refreshSchedule = "@every 1s"

	r := &countingRefresher{}
	require.NoError(t, m.Start(context.Background(), r))
	defer m.Stop()

	// the first check does not wait for the schedule
	assert.Eventually(t, func() bool {
		return m.Status().Status == StatusOnline
	}, 500*time.Millisecond, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return pings.Load() >= 2 && r.n.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestStartBadSchedule(t *testing.T) {
	m := New(pingFunc(func(ctx context.Context) error { return nil }))
	m.checkSchedule = "nope"
	assert.Error(t, m.Start(context.Background(), nil))
	m.Stop()
}
