package worker

import (
	"context"
	"errors"
	"time"

	"github.com/criyle/go-evaluator/judger"
	"github.com/criyle/go-evaluator/notify"
	"github.com/criyle/go-evaluator/store"
	"github.com/criyle/go-evaluator/types"
	"go.uber.org/zap"
)

// settle resolves a FAILED evaluation: the claim is released for another
// attempt or the submission is persisted ABORTED
func (w *worker) settle(ctx context.Context, c *store.Claim, r *judger.Report) {
	if r.State == judger.StateDone || r.Failure == nil {
		return
	}
	f := r.Failure
	logger := w.logger.With(
		zap.String("submission", c.Submission.ID),
		zap.Int("attempt", c.Attempt),
		zap.Stringer("kind", f.Kind))

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.settleTimeout)
	defer cancel()

	e := notify.Event{
		SubmissionID: c.Submission.ID,
		ProblemID:    c.Submission.ProblemID,
		Attempt:      c.Attempt,
		Failure:      f.Kind.String(),
		Error:        f.Err.Error(),
		Time:         time.Now(),
	}

	var err error
	switch {
	case f.Kind == judger.FailureStaleClaim || errors.Is(f, store.ErrStaleClaim):
		e.Kind = notify.KindStale

	case errors.Is(f, ErrShutdown):
		e.Kind = notify.KindShutdown
		err = w.store.Release(sctx, c, time.Time{}, f.Error())

	case f.Kind.Retryable() && c.Attempt < w.maxAttempts:
		e.Kind = notify.KindFault
		retryAt := time.Now().Add(w.retryBackoff * time.Duration(c.Attempt))
		err = w.store.Release(sctx, c, retryAt, f.Error())
		logger.Info("released for retry", zap.Time("retryAt", retryAt))

	default:
		e.Kind = notify.KindAborted
		err = w.store.Persist(sctx, c, store.Final{
			State:       types.StateAborted,
			Compilation: r.Compilation,
			AbortReason: f.Error(),
		})
	}
	if errors.Is(err, store.ErrStaleClaim) {
		e.Kind = notify.KindStale
		err = nil
	}
	if err != nil {
		logger.Error("settle failed evaluation", zap.Error(err))
		e.Error += "; settle: " + err.Error()
	}
	if err := w.notifier.Notify(sctx, e); err != nil {
		logger.Warn("notify failed", zap.Error(err))
	}
}
