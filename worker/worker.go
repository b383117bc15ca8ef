// Package worker runs a bounded set of evaluation loops that claim pending
// submissions and settle failed evaluations.
package worker

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/criyle/go-evaluator/judger"
	"github.com/criyle/go-evaluator/notify"
	"github.com/criyle/go-evaluator/store"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

const (
	defaultPollInterval  = time.Second
	defaultSettleTimeout = 10 * time.Second
)

var (
	// ErrShutdown is the cancel cause of evaluations interrupted by shutdown
	ErrShutdown = errors.New("evaluator shutting down")
	// ErrCancelled is the default cause of an operator cancellation
	ErrCancelled = errors.New("cancelled by operator")
)

// Evaluator runs one claimed submission
type Evaluator interface {
	Evaluate(ctx context.Context, c *store.Claim) *judger.Report
}

// Config defines worker configuration
type Config struct {
	Store    store.Store
	Judger   Evaluator
	Notifier notify.Notifier

	Concurrency  int
	PollInterval time.Duration
	// MaxAttempts is the number of claims a submission gets before an
	// infrastructure fault aborts it
	MaxAttempts  int
	RetryBackoff time.Duration
	// LeaseDuration is the store lease, claims are extended at a third of it
	LeaseDuration time.Duration
	SettleTimeout time.Duration

	Logger   *zap.Logger
	Observer func(*judger.Report)
}

// Worker defines the evaluation loops
type Worker interface {
	Start()
	// Evaluate claims and evaluates the given submission outside the loops
	Evaluate(ctx context.Context, id string) (*judger.Report, error)
	// Cancel cancels the in-flight evaluation of id with cause
	Cancel(id string, cause error) bool
	// InFlight returns the ids being evaluated
	InFlight() []string
	// Shutdown stops claiming, waits for in-flight evaluations and cancels
	// the remaining ones when ctx is done
	Shutdown(ctx context.Context) error
}

type worker struct {
	store    store.Store
	judger   Evaluator
	notifier notify.Notifier

	concurrency   int
	pollInterval  time.Duration
	maxAttempts   int
	retryBackoff  time.Duration
	heartbeat     time.Duration
	settleTimeout time.Duration

	logger   *zap.Logger
	observer func(*judger.Report)

	running *xsync.MapOf[string, context.CancelCauseFunc]

	ctx    context.Context
	cancel context.CancelCauseFunc

	startOnce sync.Once
	stopOnce  sync.Once
	mu        sync.Mutex
	closed    bool
	wg        sync.WaitGroup
	done      chan struct{}
}

// New creates new worker
func New(conf Config) Worker {
	w := &worker{
		store:         conf.Store,
		judger:        conf.Judger,
		notifier:      conf.Notifier,
		concurrency:   max(conf.Concurrency, 1),
		pollInterval:  conf.PollInterval,
		maxAttempts:   max(conf.MaxAttempts, 1),
		retryBackoff:  conf.RetryBackoff,
		settleTimeout: conf.SettleTimeout,
		logger:        conf.Logger,
		observer:      conf.Observer,
		running:       xsync.NewMapOf[string, context.CancelCauseFunc](),
		done:          make(chan struct{}),
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.settleTimeout <= 0 {
		w.settleTimeout = defaultSettleTimeout
	}
	lease := conf.LeaseDuration
	if lease <= 0 {
		lease = store.DefaultLeaseDuration
	}
	w.heartbeat = lease / 3
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	if w.notifier == nil {
		w.notifier = notify.NewLogger(w.logger)
	}
	w.ctx, w.cancel = context.WithCancelCause(context.Background())
	return w
}

// Start starts worker loops with given concurrency
func (w *worker) Start() {
	w.startOnce.Do(func() {
		if !w.acquire(w.concurrency) {
			return
		}
		for range w.concurrency {
			go w.loop()
		}
		w.logger.Info("worker started", zap.Int("concurrency", w.concurrency))
	})
}

// acquire registers n goroutines unless shutdown has begun
func (w *worker) acquire(n int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.wg.Add(n)
	return true
}

func (w *worker) loop() {
	defer w.wg.Done()
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C
	for {
		select {
		case <-w.done:
			return
		default:
		}

		c, err := w.store.ClaimNext(w.ctx)
		if err == nil {
			w.evaluate(w.ctx, c)
			continue
		}
		if !errors.Is(err, store.ErrNoPending) && w.ctx.Err() == nil {
			w.logger.Warn("claim failed", zap.Error(err))
		}

		timer.Reset(w.pollInterval)
		select {
		case <-w.done:
			return
		case <-timer.C:
		}
	}
}

// Evaluate claims id and evaluates it in the calling goroutine
func (w *worker) Evaluate(ctx context.Context, id string) (*judger.Report, error) {
	if !w.acquire(1) {
		return nil, ErrShutdown
	}
	defer w.wg.Done()

	c, err := w.store.Claim(ctx, id)
	if err != nil {
		return nil, err
	}
	return w.evaluate(ctx, c), nil
}

func (w *worker) evaluate(parent context.Context, c *store.Claim) *judger.Report {
	id := c.Submission.ID
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)
	if parent != w.ctx {
		stop := context.AfterFunc(w.ctx, func() { cancel(context.Cause(w.ctx)) })
		defer stop()
	}
	w.running.Store(id, cancel)
	defer w.running.Delete(id)

	stop := make(chan struct{})
	var hb sync.WaitGroup
	hb.Add(1)
	go func() {
		defer hb.Done()
		w.extend(ctx, cancel, *c, stop)
	}()

	r := w.judger.Evaluate(ctx, c)
	close(stop)
	hb.Wait()

	w.settle(ctx, c, r)
	if w.observer != nil {
		w.observer(r)
	}
	return r
}

// extend keeps the lease of c alive until stop is closed. A lost lease
// cancels the evaluation.
func (w *worker) extend(ctx context.Context, cancel context.CancelCauseFunc, c store.Claim, stop <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := w.store.Extend(ctx, &c)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrStaleClaim), errors.Is(err, store.ErrNotFound):
			cancel(store.ErrStaleClaim)
			return
		default:
			w.logger.Warn("extend lease failed", zap.String("submission", c.Submission.ID), zap.Error(err))
		}
	}
}

// Cancel implements Worker
func (w *worker) Cancel(id string, cause error) bool {
	cancel, ok := w.running.Load(id)
	if !ok {
		return false
	}
	if cause == nil {
		cause = ErrCancelled
	}
	cancel(cause)
	return true
}

// InFlight implements Worker
func (w *worker) InFlight() []string {
	ids := make([]string, 0, w.running.Size())
	w.running.Range(func(id string, _ context.CancelCauseFunc) bool {
		ids = append(ids, id)
		return true
	})
	slices.Sort(ids)
	return ids
}

// Shutdown implements Worker
func (w *worker) Shutdown(ctx context.Context) error {
	var err error
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.done)
		w.mu.Unlock()

		finished := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-ctx.Done():
			w.logger.Warn("cancelling in-flight evaluations", zap.Strings("submissions", w.InFlight()))
			w.cancel(ErrShutdown)
			<-finished
			err = ctx.Err()
		}
		w.cancel(ErrShutdown)
		w.logger.Info("worker stopped")
	})
	return err
}
