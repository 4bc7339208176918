package tts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackzampolin/talespin/internal/providers"
)

// ErrQueueClosed is returned for requests pending or submitted after Close.
var ErrQueueClosed = errors.New("tts queue closed")

const (
	DefaultQuota      = 10
	DefaultWindow     = time.Minute
	DefaultQueueDelay = 115 * time.Second
)

// Synthesizer performs a single speech synthesis call.
// providers.TTSProvider satisfies it.
type Synthesizer interface {
	Generate(ctx context.Context, req *providers.TTSRequest) (*providers.TTSResult, error)
}

// Clock abstracts time for the drain loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Request is one chunk of text to synthesize.
type Request struct {
	Text         string
	Voice        string
	Instructions string
}

// Future resolves once the request has been synthesized or failed.
type Future struct {
	done   chan struct{}
	result *providers.TTSResult
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(res *providers.TTSResult, err error) {
	f.result = res
	f.err = err
	close(f.done)
}

// Done is closed when the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the request resolves or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (*providers.TTSResult, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type pendingRequest struct {
	ctx    context.Context
	req    Request
	future *Future
}

// Queue enforces a per-window request quota in front of a Synthesizer.
// Requests that fit the quota while nothing is waiting are admitted
// immediately. Everything else waits in FIFO order for a single drain loop,
// which sleeps the queue delay whenever the window is full. Admitted
// requests reach the synthesizer through one dispatcher in admission order.
type Queue struct {
	mu sync.Mutex

	synth   Synthesizer
	limiter *providers.WindowLimiter
	clock   Clock
	logger  *slog.Logger

	quota      int
	window     time.Duration
	queueDelay time.Duration

	pending  []*pendingRequest
	ready    []*pendingRequest
	wake     chan struct{}
	draining bool
	closed   bool
	stop     chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithQuota sets the maximum requests per window.
func WithQuota(n int) Option {
	return func(q *Queue) { q.quota = n }
}

// WithWindow sets the trailing window length.
func WithWindow(d time.Duration) Option {
	return func(q *Queue) { q.window = d }
}

// WithQueueDelay sets how long the drain loop sleeps when the window is full.
func WithQueueDelay(d time.Duration) Option {
	return func(q *Queue) { q.queueDelay = d }
}

// WithClock injects a clock, for tests.
func WithClock(c Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// NewQueue creates a queue in front of synth.
func NewQueue(synth Synthesizer, opts ...Option) *Queue {
	q := &Queue{
		synth:      synth,
		clock:      realClock{},
		logger:     slog.Default(),
		quota:      DefaultQuota,
		window:     DefaultWindow,
		queueDelay: DefaultQueueDelay,
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.quota <= 0 {
		q.quota = DefaultQuota
	}
	if q.window <= 0 {
		q.window = DefaultWindow
	}
	if q.queueDelay <= 0 {
		q.queueDelay = DefaultQueueDelay
	}
	q.limiter = providers.NewWindowLimiter(q.quota, q.window, q.clock.Now)
	go q.dispatchLoop()
	return q
}

// CanMakeRequest reports whether a request would fit the current window.
func (q *Queue) CanMakeRequest() bool {
	return q.limiter.Available()
}

// Submit schedules req and returns a Future for its result.
func (q *Queue) Submit(ctx context.Context, req Request) *Future {
	f := newFuture()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		f.resolve(nil, ErrQueueClosed)
		return f
	}

	if len(q.pending) == 0 && q.limiter.TryAcquire() {
		q.admitLocked(&pendingRequest{ctx: ctx, req: req, future: f})
		q.mu.Unlock()
		q.logger.Debug("tts request dispatched immediately",
			"in_window", q.limiter.Status().InWindow,
			"quota", q.quota)
		return f
	}

	q.pending = append(q.pending, &pendingRequest{ctx: ctx, req: req, future: f})
	queued := len(q.pending)
	if !q.draining {
		q.draining = true
		go q.drain()
	}
	q.mu.Unlock()

	q.logger.Info("tts quota reached, request queued", "quota", q.quota, "queue_size", queued)
	return f
}

// drain dispatches queued requests one at a time until the queue is empty.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if q.closed || len(q.pending) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}

		next := q.pending[0]
		if err := next.ctx.Err(); err != nil {
			q.pending = q.pending[1:]
			q.mu.Unlock()
			next.future.resolve(nil, err)
			continue
		}

		if !q.limiter.TryAcquire() {
			q.mu.Unlock()
			q.logger.Info("tts quota exhausted, waiting", "delay", q.queueDelay)
			select {
			case <-q.clock.After(q.queueDelay):
			case <-q.stop:
			}
			continue
		}

		q.pending = q.pending[1:]
		q.admitLocked(next)
		q.mu.Unlock()
	}
}

// admitLocked hands a request that holds a quota slot to the dispatcher.
// q.mu must be held so admission order matches ready order.
func (q *Queue) admitLocked(p *pendingRequest) {
	q.ready = append(q.ready, p)
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop calls the synthesizer for admitted requests one at a time.
// After Close it finishes the requests already admitted, then exits.
func (q *Queue) dispatchLoop() {
	for {
		q.mu.Lock()
		if len(q.ready) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-q.wake:
			case <-q.stop:
			}
			continue
		}
		next := q.ready[0]
		q.ready = q.ready[1:]
		q.mu.Unlock()

		if err := next.ctx.Err(); err != nil {
			next.future.resolve(nil, err)
			continue
		}
		q.dispatch(next.ctx, next.req, next.future)
	}
}

func (q *Queue) dispatch(ctx context.Context, req Request, f *Future) {
	res, err := q.synth.Generate(ctx, &providers.TTSRequest{
		Text:         req.Text,
		Voice:        req.Voice,
		Instructions: req.Instructions,
	})
	if err != nil {
		if rle, ok := providers.IsRateLimitError(err); ok {
			q.limiter.Record429(rle.RetryAfter)
		}
		q.logger.Warn("tts request failed", "error", err)
	}
	f.resolve(res, err)
}

// Status describes the queue at a point in time.
type Status struct {
	RequestsInWindow int           `json:"requests_in_window"`
	Quota            int           `json:"quota"`
	Window           time.Duration `json:"window"`
	QueueSize        int           `json:"queue_size"`
	Processing       bool          `json:"processing"`
	TimeUntilSlot    time.Duration `json:"time_until_slot"`
}

// Status returns the current queue state.
func (q *Queue) Status() Status {
	ls := q.limiter.Status()
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{
		RequestsInWindow: ls.InWindow,
		Quota:            q.quota,
		Window:           q.window,
		QueueSize:        len(q.pending),
		Processing:       q.draining,
		TimeUntilSlot:    ls.TimeUntilSlot,
	}
}

// Close stops the drain loop and fails every pending request.
// Requests already admitted run to completion.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.stop)
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, p := range pending {
		p.future.resolve(nil, ErrQueueClosed)
	}
}
