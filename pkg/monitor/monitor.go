package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/energyadvisor/pkg/api"
	"github.com/raterudder/energyadvisor/pkg/log"
	"github.com/robfig/cron/v3"
)

// Status is the reachability of the upstream energy API.
type Status string

const (
	StatusChecking Status = "checking"
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusError    Status = "error"
)

// UpstreamStatus is the result of the latest check.
type UpstreamStatus struct {
	Status      Status     `json:"status"`
	LastChecked *time.Time `json:"lastChecked,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Pinger makes a single request to see whether the API is answering.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Refresher starts a new fetch cycle.
type Refresher interface {
	Refetch()
}

// Monitor periodically checks the upstream API and refreshes the polled
// current status.
type Monitor struct {
	pinger          Pinger
	checkSchedule   string
	checkTimeout    time.Duration
	refreshSchedule string
	now             func() time.Time

	cron *cron.Cron
	wg   sync.WaitGroup

	mu     sync.RWMutex
	status UpstreamStatus
}

// New returns a Monitor with the default schedules.
func New(p Pinger) *Monitor {
	return &Monitor{
		pinger:          p,
		checkSchedule:   "@every 30s",
		checkTimeout:    8 * time.Second,
		refreshSchedule: "@every 5m",
		now:             time.Now,
		status:          UpstreamStatus{Status: StatusChecking},
	}
}

// Configured sets up the Monitor from flags.
func Configured(p Pinger) *Monitor {
	m := New(p)
	checkSchedule := lflag.String("monitor-check-schedule", m.checkSchedule, "Cron schedule for the upstream API status check")
	checkTimeout := lflag.Duration("monitor-check-timeout", m.checkTimeout, "Timeout for a single upstream status check")
	refreshSchedule := lflag.String("monitor-refresh-schedule", m.refreshSchedule, "Cron schedule for refreshing the current status (empty disables)")

	lflag.Do(func() {
		m.checkSchedule = *checkSchedule
		m.checkTimeout = *checkTimeout
		m.refreshSchedule = *refreshSchedule
		if err := m.Validate(); err != nil {
			panic(fmt.Sprintf("monitor validation failed: %v", err))
		}
	})

	return m
}

// Validate ensures the schedules parse.
func (m *Monitor) Validate() error {
	if _, err := cron.ParseStandard(m.checkSchedule); err != nil {
		return fmt.Errorf("invalid monitor-check-schedule %q: %w", m.checkSchedule, err)
	}
	if m.refreshSchedule != "" {
		if _, err := cron.ParseStandard(m.refreshSchedule); err != nil {
			return fmt.Errorf("invalid monitor-refresh-schedule %q: %w", m.refreshSchedule, err)
		}
	}
	if m.checkTimeout <= 0 {
		return errors.New("monitor-check-timeout must be positive")
	}
	return nil
}

// Status returns the result of the latest check.
func (m *Monitor) Status() UpstreamStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Check pings the API once and records the outcome.
func (m *Monitor) Check(ctx context.Context) UpstreamStatus {
	m.mu.Lock()
	wasOnline := m.status.Status == StatusOnline
	m.status.Status = StatusChecking
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()
	err := m.pinger.Ping(ctx)

	next := StatusOnline
	var herr *api.HTTPError
	switch {
	case err == nil:
	case errors.As(err, &herr):
		next = StatusError
	default:
		next = StatusOffline
	}
	checked := m.now().UTC()

	m.mu.Lock()
	m.status = UpstreamStatus{Status: next, LastChecked: &checked}
	if err != nil {
		m.status.Error = err.Error()
	}
	s := m.status
	m.mu.Unlock()

	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "upstream api check failed", slog.String("status", string(next)), slog.Any("error", err))
	} else if !wasOnline {
		log.Ctx(ctx).InfoContext(ctx, "upstream api online")
	}
	return s
}

// Start runs a check immediately and schedules the periodic jobs. r may be
// nil to skip refreshing.
func (m *Monitor) Start(ctx context.Context, r Refresher) error {
	c := cron.New(
		cron.WithLogger(cronLogger{ctx: ctx}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{ctx: ctx})),
	)
	if _, err := c.AddFunc(m.checkSchedule, func() { m.Check(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule status check: %w", err)
	}
	if r != nil && m.refreshSchedule != "" {
		if _, err := c.AddFunc(m.refreshSchedule, func() {
			log.Ctx(ctx).DebugContext(ctx, "refreshing current status")
			r.Refetch()
		}); err != nil {
			return fmt.Errorf("failed to schedule refresh: %w", err)
		}
	}
	m.cron = c

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.Check(ctx)
	}()
	c.Start()
	log.Ctx(ctx).InfoContext(
		ctx,
		"monitor started",
		slog.String("checkSchedule", m.checkSchedule),
		slog.String("refreshSchedule", m.refreshSchedule),
	)
	return nil
}

// Stop stops scheduling and waits for running jobs.
func (m *Monitor) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
	m.wg.Wait()
}

// cronLogger sends cron's own logging to slog.
type cronLogger struct {
	ctx context.Context
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Ctx(l.ctx).DebugContext(l.ctx, "cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Ctx(l.ctx).ErrorContext(l.ctx, "cron: "+msg, append(keysAndValues, slog.Any("error", err))...)
}
