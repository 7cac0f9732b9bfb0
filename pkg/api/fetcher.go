package api

import (
	"context"
	"sync"
)

// FetchResult is the observable state of a Fetcher. Data keeps the last
// successful payload while a new cycle is loading.
type FetchResult[T any] struct {
	Data       *T     `json:"data"`
	Loading    bool   `json:"loading"`
	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retryCount"`

	// Err is the underlying error for errors.As checks.
	Err error `json:"-"`
}

// Fetcher keeps the latest result for one endpoint. Every parameter change or
// Refetch starts a new cycle with a new generation; the previous cycle is
// cancelled and anything it produces afterwards is dropped, so the result
// always reflects the most recently requested parameters.
type Fetcher[T any] struct {
	client   *Client
	endpoint Endpoint
	onUpdate func(FetchResult[T])

	mu         sync.Mutex
	params     Params
	paramsKey  string
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	result     FetchResult[T]
	closed     bool

	// snapshots waiting for onUpdate, drained in order by whichever caller
	// finds the queue idle so onUpdate may call back into the Fetcher
	notifyMu   sync.Mutex
	pending    []pendingUpdate[T]
	delivering bool

	wg sync.WaitGroup
}

type pendingUpdate[T any] struct {
	gen  uint64
	snap FetchResult[T]
}

// NewFetcher creates a Fetcher and starts the first cycle. onUpdate, if not
// nil, receives a snapshot after every state change of the latest cycle.
// Calls to onUpdate never overlap and may call Refetch or SetParams.
func NewFetcher[T any](client *Client, endpoint Endpoint, params Params, onUpdate func(FetchResult[T])) *Fetcher[T] {
	f := &Fetcher[T]{
		client:    client,
		endpoint:  endpoint,
		onUpdate:  onUpdate,
		params:    params,
		paramsKey: params.Encode(),
	}
	f.mu.Lock()
	c := f.startLocked()
	f.mu.Unlock()
	f.launch(c)
	return f
}

// Result returns a snapshot of the current state.
func (f *Fetcher[T]) Result() FetchResult[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

// Params returns the parameters of the latest cycle.
func (f *Fetcher[T]) Params() Params {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params
}

// SetParams starts a new cycle if params differ from the current ones.
func (f *Fetcher[T]) SetParams(params Params) {
	key := params.Encode()
	f.mu.Lock()
	if f.closed || key == f.paramsKey {
		f.mu.Unlock()
		return
	}
	f.params = params
	f.paramsKey = key
	c := f.startLocked()
	f.mu.Unlock()
	f.launch(c)
}

// Refetch forces a new cycle with the current parameters.
func (f *Fetcher[T]) Refetch() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	c := f.startLocked()
	f.mu.Unlock()
	f.launch(c)
}

// Wait blocks until the latest cycle has finished or ctx is done.
func (f *Fetcher[T]) Wait(ctx context.Context) (FetchResult[T], error) {
	for {
		f.mu.Lock()
		done := f.done
		gen := f.generation
		f.mu.Unlock()

		select {
		case <-done:
			f.mu.Lock()
			if f.closed || f.generation == gen {
				r := f.result
				f.mu.Unlock()
				return r, nil
			}
			// superseded while we waited, wait for the newer cycle
			f.mu.Unlock()
		case <-ctx.Done():
			return f.Result(), ctx.Err()
		}
	}
}

// Close cancels the running cycle and stops all further updates. It waits for
// the cycle goroutines to exit.
func (f *Fetcher[T]) Close() {
	f.mu.Lock()
	f.closed = true
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Unlock()
	f.wg.Wait()
}

// cycle is a prepared fetch that has not been started yet.
type cycle[T any] struct {
	ctx    context.Context
	gen    uint64
	params Params
	done   chan struct{}
	snap   FetchResult[T]
}

// startLocked prepares a new cycle and makes it the latest. f.mu must be held.
// The caller must pass the cycle to launch after releasing the lock.
func (f *Fetcher[T]) startLocked() cycle[T] {
	if f.cancel != nil {
		f.cancel()
	}
	f.generation++
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})

	f.result.Loading = true
	f.result.RetryCount = 0
	f.result.Error = ""
	f.result.Err = nil

	f.wg.Add(1)
	return cycle[T]{
		ctx:    ctx,
		gen:    f.generation,
		params: f.params,
		done:   f.done,
		snap:   f.result,
	}
}

// launch publishes the loading state before running the request so that
// observers never see the outcome ahead of it.
func (f *Fetcher[T]) launch(c cycle[T]) {
	f.notify(c.gen, c.snap)
	go f.run(c.ctx, c.gen, c.params, c.done)
}

func (f *Fetcher[T]) run(ctx context.Context, gen uint64, params Params, done chan struct{}) {
	defer f.wg.Done()
	defer close(done)

	var data T
	_, err := f.client.get(ctx, f.endpoint, params, &data, func(retry int) {
		// retries keep loading as is and only bump the counter
		f.update(gen, func(r *FetchResult[T]) {
			r.RetryCount = retry
		})
	})
	if ctx.Err() != nil {
		return
	}
	f.update(gen, func(r *FetchResult[T]) {
		r.Loading = false
		if err != nil {
			r.Error = err.Error()
			r.Err = err
			return
		}
		r.Data = &data
	})
}

// update applies fn if gen is still the latest generation.
func (f *Fetcher[T]) update(gen uint64, fn func(*FetchResult[T])) {
	f.mu.Lock()
	if f.closed || gen != f.generation {
		f.mu.Unlock()
		return
	}
	fn(&f.result)
	snap := f.result
	f.mu.Unlock()
	f.notify(gen, snap)
}

func (f *Fetcher[T]) notify(gen uint64, snap FetchResult[T]) {
	if f.onUpdate == nil {
		return
	}
	f.notifyMu.Lock()
	f.pending = append(f.pending, pendingUpdate[T]{gen: gen, snap: snap})
	if f.delivering {
		// the active deliverer, possibly our own caller, picks it up
		f.notifyMu.Unlock()
		return
	}
	f.delivering = true
	for len(f.pending) > 0 {
		next := f.pending[0]
		f.pending = f.pending[1:]
		f.notifyMu.Unlock()

		f.mu.Lock()
		stale := f.closed || next.gen != f.generation
		f.mu.Unlock()
		if !stale {
			f.onUpdate(next.snap)
		}

		f.notifyMu.Lock()
	}
	f.delivering = false
	f.notifyMu.Unlock()
}
