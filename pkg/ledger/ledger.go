package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raterudder/energyadvisor/pkg/log"
	"github.com/raterudder/energyadvisor/pkg/storage"
	"github.com/raterudder/energyadvisor/pkg/types"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("recommendation not found")
	ErrInvalidStatus     = errors.New("invalid recommendation status")
	ErrInvalidTransition = errors.New("invalid status transition")
)

const defaultTrackTimeout = 10 * time.Second

// Store persists the full list of accepted recommendations.
type Store interface {
	Load(ctx context.Context) ([]types.AcceptedRecommendation, error)
	Save(ctx context.Context, recs []types.AcceptedRecommendation) error
}

// Tracker mirrors ledger changes to a remote service. Calls are advisory: a
// failure is logged and the local ledger stays as is.
type Tracker interface {
	TrackAccepted(ctx context.Context, rec types.AcceptedRecommendation) error
	TrackStatus(ctx context.Context, id string, status types.RecommendationStatus) error
	TrackDeleted(ctx context.Context, id string) error
}

// Ledger holds the accepted recommendations. The in-memory list is
// authoritative; every mutation is written to the store afterwards.
type Ledger struct {
	store        Store
	tracker      Tracker
	trackTimeout time.Duration
	now          func() time.Time
	newID        func() string

	mu   sync.RWMutex
	recs []types.AcceptedRecommendation

	wg sync.WaitGroup
}

// New loads the ledger from store. Corrupt stored data is discarded and the
// ledger starts empty. tracker may be nil.
func New(ctx context.Context, store Store, tracker Tracker) (*Ledger, error) {
	l := &Ledger{
		store:        store,
		tracker:      tracker,
		trackTimeout: defaultTrackTimeout,
		now:          time.Now,
		newID: func() string {
			return "rec_" + uuid.NewString()
		},
	}

	recs, err := store.Load(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrCorrupt) {
			return nil, fmt.Errorf("failed to load ledger: %w", err)
		}
		log.Ctx(ctx).WarnContext(ctx, "discarding corrupt ledger", slog.Any("error", err))
		if err := store.Save(ctx, nil); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to clear corrupt ledger", slog.Any("error", err))
		}
		recs = nil
	}
	l.recs = recs
	log.Ctx(ctx).DebugContext(ctx, "loaded ledger", slog.Int("count", len(recs)))
	return l, nil
}

// Close waits for outstanding tracking calls.
func (l *Ledger) Close() {
	l.wg.Wait()
}

// Accept records rec as a new pending entry and returns it.
func (l *Ledger) Accept(ctx context.Context, rec types.Recommendation, goal types.OptimizationGoal, period types.Period) types.AcceptedRecommendation {
	entry := types.AcceptedRecommendation{
		ID:               l.newID(),
		Type:             rec.Type,
		Action:           rec.Action,
		FinancialImpact:  rec.FinancialImpact,
		ProfitInUSD:      rec.ProfitInUSD,
		AcceptedAt:       l.now().UTC(),
		Status:           types.StatusPending,
		OptimizationGoal: string(goal),
		Period:           string(period),
	}

	l.mu.Lock()
	l.recs = append(l.recs, entry)
	l.saveLocked(ctx)
	l.mu.Unlock()

	log.Ctx(ctx).InfoContext(
		ctx,
		"accepted recommendation",
		slog.String("id", entry.ID),
		slog.String("type", entry.Type),
		slog.Float64("profit", entry.ProfitInUSD),
	)
	l.track(ctx, "accept", func(ctx context.Context) error {
		return l.tracker.TrackAccepted(ctx, entry)
	})
	return entry
}

// UpdateStatus moves the entry id to status. Moving backwards is rejected.
// The first move into completed stamps CompletedAt.
func (l *Ledger) UpdateStatus(ctx context.Context, id string, status types.RecommendationStatus) (types.AcceptedRecommendation, error) {
	if !status.Valid() {
		return types.AcceptedRecommendation{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	l.mu.Lock()
	i := l.indexLocked(id)
	if i < 0 {
		l.mu.Unlock()
		return types.AcceptedRecommendation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	entry := l.recs[i]
	if !entry.Status.CanTransitionTo(status) {
		l.mu.Unlock()
		return types.AcceptedRecommendation{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, entry.Status, status)
	}
	entry.Status = status
	if status == types.StatusCompleted && entry.CompletedAt == nil {
		now := l.now().UTC()
		entry.CompletedAt = &now
	}
	l.recs[i] = entry
	l.saveLocked(ctx)
	l.mu.Unlock()

	log.Ctx(ctx).InfoContext(ctx, "updated recommendation status", slog.String("id", id), slog.String("status", string(status)))
	l.track(ctx, "status", func(ctx context.Context) error {
		return l.tracker.TrackStatus(ctx, id, status)
	})
	return entry, nil
}

// Delete removes the entry id.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	i := l.indexLocked(id)
	if i < 0 {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	recs := make([]types.AcceptedRecommendation, 0, len(l.recs)-1)
	recs = append(recs, l.recs[:i]...)
	recs = append(recs, l.recs[i+1:]...)
	l.recs = recs
	l.saveLocked(ctx)
	l.mu.Unlock()

	log.Ctx(ctx).InfoContext(ctx, "deleted recommendation", slog.String("id", id))
	l.track(ctx, "delete", func(ctx context.Context) error {
		return l.tracker.TrackDeleted(ctx, id)
	})
	return nil
}

// List returns every entry in acceptance order.
func (l *Ledger) List() []types.AcceptedRecommendation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.copyLocked()
}

// Get returns the entry id.
func (l *Ledger) Get(id string) (types.AcceptedRecommendation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i := l.indexLocked(id)
	if i < 0 {
		return types.AcceptedRecommendation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return l.recs[i], nil
}

// ByStatus returns the entries with the given status.
func (l *Ledger) ByStatus(status types.RecommendationStatus) []types.AcceptedRecommendation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []types.AcceptedRecommendation{}
	for _, r := range l.recs {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

// TotalAcceptedProfit sums the profit of every entry.
func (l *Ledger) TotalAcceptedProfit() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sumProfit(l.recs, false)
}

// TotalCompletedProfit sums the profit of completed entries.
func (l *Ledger) TotalCompletedProfit() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sumProfit(l.recs, true)
}

// ProfitByPeriod sums completed profit per period. Periods without completed
// entries are absent.
func (l *Ledger) ProfitByPeriod() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return completedProfitBy(l.recs, byPeriod)
}

// ProfitByGoal sums completed profit per optimization goal.
func (l *Ledger) ProfitByGoal() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return completedProfitBy(l.recs, byGoal)
}

// Summary returns all aggregates computed from the same state.
func (l *Ledger) Summary() types.LedgerSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[types.RecommendationStatus]int, len(types.AllStatuses))
	for _, s := range types.AllStatuses {
		counts[s] = 0
	}
	for _, r := range l.recs {
		counts[r.Status]++
	}
	return types.LedgerSummary{
		TotalAcceptedProfit:  sumProfit(l.recs, false),
		TotalCompletedProfit: sumProfit(l.recs, true),
		Counts:               counts,
		ProfitByPeriod:       completedProfitBy(l.recs, byPeriod),
		ProfitByGoal:         completedProfitBy(l.recs, byGoal),
	}
}

func byPeriod(r types.AcceptedRecommendation) string { return r.Period }

func byGoal(r types.AcceptedRecommendation) string { return r.OptimizationGoal }

func sumProfit(recs []types.AcceptedRecommendation, completedOnly bool) float64 {
	sum := decimal.Zero
	for _, r := range recs {
		if completedOnly && r.Status != types.StatusCompleted {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(r.ProfitInUSD))
	}
	return sum.InexactFloat64()
}

func completedProfitBy(recs []types.AcceptedRecommendation, key func(types.AcceptedRecommendation) string) map[string]float64 {
	sums := map[string]decimal.Decimal{}
	for _, r := range recs {
		if r.Status != types.StatusCompleted {
			continue
		}
		k := key(r)
		sums[k] = sums[k].Add(decimal.NewFromFloat(r.ProfitInUSD))
	}
	out := make(map[string]float64, len(sums))
	for k, v := range sums {
		out[k] = v.InexactFloat64()
	}
	return out
}

// FilterUnaccepted drops recommendations whose action text matches an entry
// already in the ledger.
func (l *Ledger) FilterUnaccepted(recs []types.Recommendation) []types.Recommendation {
	l.mu.RLock()
	accepted := make(map[string]struct{}, len(l.recs))
	for _, r := range l.recs {
		accepted[r.Action] = struct{}{}
	}
	l.mu.RUnlock()

	out := make([]types.Recommendation, 0, len(recs))
	for _, r := range recs {
		if _, ok := accepted[r.Action]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (l *Ledger) indexLocked(id string) int {
	for i, r := range l.recs {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) copyLocked() []types.AcceptedRecommendation {
	out := make([]types.AcceptedRecommendation, len(l.recs))
	copy(out, l.recs)
	return out
}

// saveLocked writes the list to the store. A failure is logged and the
// in-memory state is kept. l.mu must be held.
func (l *Ledger) saveLocked(ctx context.Context) {
	if err := l.store.Save(ctx, l.copyLocked()); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to save ledger", slog.Int("count", len(l.recs)), slog.Any("error", err))
	}
}

// track runs fn in the background on a context detached from the caller so
// that the request finishing does not abort it.
func (l *Ledger) track(ctx context.Context, op string, fn func(context.Context) error) {
	if l.tracker == nil {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.trackTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "remote tracking failed, keeping local state", slog.String("op", op), slog.Any("error", err))
		}
	}()
}
