package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/talespin/internal/providers"
)

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []clockWaiter
}

type clockWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.waiters = append(c.waiters, clockWaiter{deadline: c.now.Add(d), ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.deadline.After(c.now) {
			w.ch <- c.now
			continue
		}
		kept = append(kept, w)
	}
	c.waiters = kept
}

func (c *fakeClock) waitForWaiters(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.waiters)
		c.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d clock waiters", n)
}

type recordingSynth struct {
	mu    sync.Mutex
	texts []string
	fail  map[string]error
}

func (s *recordingSynth) Generate(ctx context.Context, req *providers.TTSRequest) (*providers.TTSResult, error) {
	s.mu.Lock()
	s.texts = append(s.texts, req.Text)
	err := s.fail[req.Text]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &providers.TTSResult{Audio: []byte(req.Text), Format: "pcm", SampleRate: providers.PCMSampleRate}, nil
}

func (s *recordingSynth) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFuture(t *testing.T, f *Future) (*providers.TTSResult, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := f.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		t.Fatal("future did not resolve in time")
	}
	return res, err
}

func isDone(f *Future) bool {
	select {
	case <-f.Done():
		return true
	default:
		return false
	}
}

func TestQueue_QuotaThenDelay(t *testing.T) {
	clock := newFakeClock()
	synth := &recordingSynth{}
	q := NewQueue(synth, WithClock(clock), WithLogger(quietLogger()))
	defer q.Close()

	ctx := context.Background()
	futures := make([]*Future, 12)
	for i := range futures {
		futures[i] = q.Submit(ctx, Request{Text: fmt.Sprintf("chunk-%d", i)})
	}

	for i := 0; i < 10; i++ {
		if _, err := waitFuture(t, futures[i]); err != nil {
			t.Fatalf("immediate request %d failed: %v", i, err)
		}
	}

	status := q.Status()
	if status.QueueSize != 2 {
		t.Errorf("expected 2 queued, got %d", status.QueueSize)
	}
	if !status.Processing {
		t.Error("expected drain loop active")
	}
	if status.RequestsInWindow != 10 || status.Quota != 10 {
		t.Errorf("unexpected window state %+v", status)
	}
	if q.CanMakeRequest() {
		t.Error("window should be full")
	}

	clock.waitForWaiters(t, 1)
	if isDone(futures[10]) || isDone(futures[11]) {
		t.Fatal("queued requests should wait for the delay")
	}

	clock.Advance(DefaultQueueDelay)
	for i := 10; i < 12; i++ {
		res, err := waitFuture(t, futures[i])
		if err != nil {
			t.Fatalf("queued request %d failed: %v", i, err)
		}
		if want := fmt.Sprintf("chunk-%d", i); string(res.Audio) != want {
			t.Errorf("request %d got audio %q", i, res.Audio)
		}
	}

	calls := synth.calls()
	if len(calls) != 12 {
		t.Fatalf("expected 12 synth calls, got %d", len(calls))
	}
	for i, text := range calls {
		if want := fmt.Sprintf("chunk-%d", i); text != want {
			t.Errorf("call %d = %q, want %q (order %v)", i, text, want, calls)
			break
		}
	}
}

func TestQueue_ImmediateRequestsKeepSubmissionOrder(t *testing.T) {
	for run := 0; run < 50; run++ {
		synth := &recordingSynth{}
		q := NewQueue(synth, WithClock(newFakeClock()), WithLogger(quietLogger()))

		ctx := context.Background()
		futures := make([]*Future, DefaultQuota)
		for i := range futures {
			futures[i] = q.Submit(ctx, Request{Text: fmt.Sprintf("c%d", i)})
		}
		for _, f := range futures {
			if _, err := waitFuture(t, f); err != nil {
				t.Fatalf("run %d: request failed: %v", run, err)
			}
		}
		q.Close()

		calls := synth.calls()
		for i, text := range calls {
			if want := fmt.Sprintf("c%d", i); text != want {
				t.Fatalf("run %d: dispatch order %v, want c0..c%d", run, calls, DefaultQuota-1)
			}
		}
	}
}

func TestQueue_CloseFinishesAdmittedRequests(t *testing.T) {
	synth := &recordingSynth{}
	q := NewQueue(synth, WithClock(newFakeClock()), WithLogger(quietLogger()))

	a := q.Submit(context.Background(), Request{Text: "a"})
	q.Close()
	if _, err := waitFuture(t, a); err != nil {
		t.Errorf("admitted request failed after close: %v", err)
	}
}

func TestQueue_NewRequestsWaitBehindQueue(t *testing.T) {
	clock := newFakeClock()
	synth := &recordingSynth{}
	q := NewQueue(synth, WithQuota(2), WithClock(clock), WithLogger(quietLogger()))
	defer q.Close()

	ctx := context.Background()
	a := q.Submit(ctx, Request{Text: "a"})
	b := q.Submit(ctx, Request{Text: "b"})
	waitFuture(t, a)
	waitFuture(t, b)

	c := q.Submit(ctx, Request{Text: "c"})
	clock.waitForWaiters(t, 1)

	// The window has room again but c is still waiting.
	clock.Advance(61 * time.Second)
	if !q.CanMakeRequest() {
		t.Fatal("expected room in window")
	}
	d := q.Submit(ctx, Request{Text: "d"})
	if got := len(synth.calls()); got != 2 {
		t.Fatalf("d jumped the queue, %d calls", got)
	}

	clock.Advance(DefaultQueueDelay - 61*time.Second)
	waitFuture(t, c)
	waitFuture(t, d)

	calls := synth.calls()
	if len(calls) != 4 || calls[2] != "c" || calls[3] != "d" {
		t.Errorf("expected FIFO order [a b c d], got %v", calls)
	}
}

func TestQueue_CancelledRequestsSkipped(t *testing.T) {
	clock := newFakeClock()
	synth := &recordingSynth{}
	q := NewQueue(synth, WithQuota(1), WithClock(clock), WithLogger(quietLogger()))
	defer q.Close()

	a := q.Submit(context.Background(), Request{Text: "a"})
	waitFuture(t, a)

	cancelCtx, cancel := context.WithCancel(context.Background())
	b := q.Submit(cancelCtx, Request{Text: "b"})
	c := q.Submit(context.Background(), Request{Text: "c"})
	clock.waitForWaiters(t, 1)
	cancel()

	clock.Advance(DefaultQueueDelay)

	if _, err := waitFuture(t, b); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancelled request to fail with context.Canceled, got %v", err)
	}
	if _, err := waitFuture(t, c); err != nil {
		t.Errorf("expected c to succeed, got %v", err)
	}
	calls := synth.calls()
	if len(calls) != 2 || calls[1] != "c" {
		t.Errorf("cancelled request should not reach the synthesizer: %v", calls)
	}
}

func TestQueue_FailureIsolated(t *testing.T) {
	synth := &recordingSynth{fail: map[string]error{"bad": errors.New("boom")}}
	q := NewQueue(synth, WithLogger(quietLogger()))
	defer q.Close()

	ctx := context.Background()
	good1 := q.Submit(ctx, Request{Text: "good-1"})
	bad := q.Submit(ctx, Request{Text: "bad"})
	good2 := q.Submit(ctx, Request{Text: "good-2"})

	if _, err := waitFuture(t, bad); err == nil {
		t.Error("expected failure for bad request")
	}
	for _, f := range []*Future{good1, good2} {
		if _, err := waitFuture(t, f); err != nil {
			t.Errorf("sibling request failed: %v", err)
		}
	}
}

func TestQueue_RateLimitErrorFillsWindow(t *testing.T) {
	clock := newFakeClock()
	synth := &recordingSynth{fail: map[string]error{
		"limited": &providers.RateLimitError{Message: "429", RetryAfter: 30 * time.Second, StatusCode: 429},
	}}
	q := NewQueue(synth, WithClock(clock), WithLogger(quietLogger()))
	defer q.Close()

	f := q.Submit(context.Background(), Request{Text: "limited"})
	if _, err := waitFuture(t, f); err == nil {
		t.Fatal("expected rate limit error")
	}
	if q.CanMakeRequest() {
		t.Error("window should be full after a 429")
	}
	clock.Advance(30 * time.Second)
	if !q.CanMakeRequest() {
		t.Error("window should reopen after retry-after")
	}
}

func TestQueue_Close(t *testing.T) {
	clock := newFakeClock()
	q := NewQueue(&recordingSynth{}, WithQuota(1), WithClock(clock), WithLogger(quietLogger()))

	a := q.Submit(context.Background(), Request{Text: "a"})
	waitFuture(t, a)
	b := q.Submit(context.Background(), Request{Text: "b"})

	q.Close()
	if _, err := waitFuture(t, b); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed for pending request, got %v", err)
	}

	c := q.Submit(context.Background(), Request{Text: "c"})
	if _, err := waitFuture(t, c); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed after close, got %v", err)
	}

	// Idempotent
	q.Close()
}

func TestFuture_WaitHonorsContext(t *testing.T) {
	f := newFuture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewQueue_Defaults(t *testing.T) {
	q := NewQueue(&recordingSynth{}, WithQuota(-1), WithWindow(0), WithQueueDelay(0))
	defer q.Close()

	status := q.Status()
	if status.Quota != DefaultQuota || status.Window != DefaultWindow {
		t.Errorf("unexpected defaults %+v", status)
	}
	if q.queueDelay != DefaultQueueDelay {
		t.Errorf("expected default delay, got %s", q.queueDelay)
	}
}
