// Package orchestrator issues analytics queries in response to filter
// changes and keeps the displayed batch consistent when changes outpace
// responses. Rapid filter edits are debounced into one query; every dispatch
// is tagged with a monotonically increasing token, and a response is applied
// only if its token is still the latest issued one. Stale responses are
// dropped silently. The station-live side channel follows the same protocol
// with its own token counter.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"atmos-server/internal/modules/analytics/aggregate"
	"atmos-server/internal/modules/analytics/types"
)

// DefaultDebounce collapses bursts of filter edits into a single query.
const DefaultDebounce = 130 * time.Millisecond

const (
	minQueryLimit     = 100
	maxQueryLimit     = 20000
	defaultQueryLimit = 5000
)

// NoticeNoSourceSelected is shown when the filter state names no source
// file; it is a precondition, not a query failure.
const NoticeNoSourceSelected = "select at least one source file"

// NoticeEmptyResult is shown when the query succeeded with zero rows.
const NoticeEmptyResult = "query returned no rows"

// Runner executes queries against the analytics backend.
type Runner interface {
	RunQuery(ctx context.Context, req types.QueryRequest) (*types.QueryResponse, error)
	StationLive(ctx context.Context, stationCodes []string) (*types.StationLiveSnapshot, error)
}

// Snapshot is the displayed state: the last accepted batch with its derived
// projections. It is replaced wholesale on every accepted response, never
// patched.
type Snapshot struct {
	Request     types.QueryRequest
	Rows        []types.MeasurementRow
	RowCount    int
	Truncated   bool
	Projections aggregate.Projections
	Err         string
	Notice      string
}

// LiveState is the last accepted station-live snapshot.
type LiveState struct {
	Snapshot *types.StationLiveSnapshot
	Err      string
}

type Orchestrator struct {
	runner   Runner
	opts     aggregate.Options
	debounce time.Duration
	logger   *slog.Logger

	queryToken atomic.Uint64
	liveToken  atomic.Uint64

	mu      sync.Mutex
	current Snapshot
	live    LiveState
	// lastReq is the most recently submitted filter state; it runs ahead of
	// current.Request while an edit is still debouncing or in flight.
	lastReq types.QueryRequest

	updates chan types.QueryRequest
	applied chan struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

type Option func(*Orchestrator)

// WithDebounce overrides the debounce interval (tests use a short one).
func WithDebounce(d time.Duration) Option {
	return func(o *Orchestrator) { o.debounce = d }
}

// WithAggregateOptions sets the projection parameters used for every
// accepted batch.
func WithAggregateOptions(opts aggregate.Options) Option {
	return func(o *Orchestrator) { o.opts = opts }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New starts the orchestrator's event loop. Callers must Close it.
func New(runner Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:   runner,
		opts:     aggregate.DefaultOptions(),
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		updates:  make(chan types.QueryRequest, 16),
		applied:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	go o.loop()
	return o
}

// Close stops the event loop. In-flight responses arriving afterwards are
// discarded by the token gate as usual.
func (o *Orchestrator) Close() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	<-o.done
}

// SetFilters records a filter change. The query is dispatched once the
// debounce interval has elapsed without further changes.
func (o *Orchestrator) SetFilters(req types.QueryRequest) {
	o.mu.Lock()
	o.lastReq = req
	o.mu.Unlock()
	select {
	case o.updates <- req:
	case <-o.stopCh:
	}
}

// Refresh re-dispatches the last submitted filter state through the same
// debounce and token path, even when that state has not been applied yet.
func (o *Orchestrator) Refresh() {
	o.mu.Lock()
	req := o.lastReq
	o.mu.Unlock()
	o.SetFilters(req)
}

// Snapshot returns a copy of the displayed state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Live returns a copy of the station-live state.
func (o *Orchestrator) Live() LiveState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.live
}

// Applied exposes a notification channel that receives after every accepted
// response (query or live). Used by callers that poll for consistency.
func (o *Orchestrator) Applied() <-chan struct{} {
	return o.applied
}

func (o *Orchestrator) loop() {
	defer close(o.done)

	timer := time.NewTimer(o.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	var pending types.QueryRequest
	armed := false

	for {
		select {
		case req := <-o.updates:
			pending = req
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(o.debounce)
			armed = true

		case <-timer.C:
			armed = false
			o.dispatch(pending)

		case <-o.stopCh:
			if armed {
				timer.Stop()
			}
			return
		}
	}
}

// dispatch normalizes the filter state, allocates the next token and issues
// the query asynchronously. The loop is never blocked by the round trip.
func (o *Orchestrator) dispatch(req types.QueryRequest) {
	req = Normalize(req)

	if len(req.SourceFileIDs) == 0 {
		token := o.queryToken.Add(1)
		o.applyQuery(token, Snapshot{Request: req, Notice: NoticeNoSourceSelected})
		return
	}

	token := o.queryToken.Add(1)
	go func() {
		resp, err := o.runner.RunQuery(context.Background(), req)

		snap := Snapshot{Request: req}
		if err != nil {
			// A failed request still goes through the token gate; when it is
			// the latest the batch is cleared and the error text stored,
			// never left stale.
			snap.Err = err.Error()
		} else {
			snap.Rows = resp.Rows
			snap.RowCount = resp.RowCount
			snap.Truncated = resp.Truncated
			snap.Projections = aggregate.Build(resp.Rows, o.opts)
			if resp.RowCount == 0 {
				snap.Notice = NoticeEmptyResult
			}
		}
		o.applyQuery(token, snap)
	}()
}

// applyQuery is the compare-and-apply gate: the snapshot replaces the
// displayed state only if token is still the newest issued one. The compare
// runs under the state lock so a goroutine cannot pass the check and then
// lose the race to a newer response before writing.
func (o *Orchestrator) applyQuery(token uint64, snap Snapshot) bool {
	o.mu.Lock()
	if token != o.queryToken.Load() {
		o.mu.Unlock()
		o.logger.Debug("stale query response discarded", "token", token)
		return false
	}
	o.current = snap
	o.mu.Unlock()
	o.notify()
	return true
}

// RefreshLive fetches the station-live snapshot. The live channel has its
// own token space, so live refreshes and queries never invalidate each
// other.
func (o *Orchestrator) RefreshLive(stationCodes []string) {
	token := o.liveToken.Add(1)
	go func() {
		snap, err := o.runner.StationLive(context.Background(), stationCodes)

		state := LiveState{}
		if err != nil {
			state.Err = err.Error()
		} else {
			state.Snapshot = snap
		}
		o.applyLive(token, state)
	}()
}

func (o *Orchestrator) applyLive(token uint64, state LiveState) bool {
	o.mu.Lock()
	if token != o.liveToken.Load() {
		o.mu.Unlock()
		o.logger.Debug("stale live response discarded", "token", token)
		return false
	}
	o.live = state
	o.mu.Unlock()
	o.notify()
	return true
}

func (o *Orchestrator) notify() {
	select {
	case o.applied <- struct{}{}:
	default:
	}
}

// Normalize applies the pre-dispatch rules: an inverted date range is
// swapped and the row limit clamped to the server's accepted window.
func Normalize(req types.QueryRequest) types.QueryRequest {
	if req.DateFrom != "" && req.DateTo != "" && req.DateFrom > req.DateTo {
		req.DateFrom, req.DateTo = req.DateTo, req.DateFrom
	}
	if req.Limit <= 0 {
		req.Limit = defaultQueryLimit
	}
	if req.Limit < minQueryLimit {
		req.Limit = minQueryLimit
	}
	if req.Limit > maxQueryLimit {
		req.Limit = maxQueryLimit
	}
	return req
}
