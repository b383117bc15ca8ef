// Package store provides atomic claiming and optimistic persistence of
// submission records.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/criyle/go-evaluator/types"
)

// Store errors
var (
	ErrNoPending      = errors.New("no pending submission")
	ErrNotFound       = errors.New("submission not found")
	ErrAlreadyClaimed = errors.New("submission already claimed")
	ErrStaleClaim     = errors.New("stale claim")
	ErrUnavailable    = errors.New("store unavailable")
	ErrExists         = errors.New("submission already exists")
	ErrInvalidFinal   = errors.New("invalid final result")
)

// DefaultLeaseDuration is how long a claim is held without extension
const DefaultLeaseDuration = 5 * time.Minute

// Claim is exclusive permission to evaluate one submission until LeaseUntil
type Claim struct {
	Submission types.Submission
	Token      string
	Version    int64
	Attempt    int // 1 on the first claim
	ClaimedAt  time.Time
	LeaseUntil time.Time
}

// Final is the terminal outcome written by Persist
type Final struct {
	State        types.SubmissionState
	Compilation  *types.CompilationResult
	Evaluation   *types.EvaluationResult
	OverallScore types.Score
	AbortReason  string
}

// Validate checks that an EVALUATED result is complete and an ABORTED one
// carries no evaluation
func (f *Final) Validate() error {
	switch f.State {
	case types.StateEvaluated:
		if f.Compilation == nil || f.Compilation.Outcome != types.CompilationSuccess {
			return fmt.Errorf("%w: evaluated without successful compilation", ErrInvalidFinal)
		}
		if f.Evaluation == nil || f.OverallScore.IsZero() {
			return fmt.Errorf("%w: evaluated without evaluation result", ErrInvalidFinal)
		}
	case types.StateAborted:
		if f.Evaluation != nil {
			return fmt.Errorf("%w: aborted with evaluation result", ErrInvalidFinal)
		}
	default:
		return fmt.Errorf("%w: state %v is not terminal", ErrInvalidFinal, f.State)
	}
	return nil
}

// Store is the submission record store
type Store interface {
	// ClaimNext claims the oldest claimable PENDING submission
	ClaimNext(ctx context.Context) (*Claim, error)
	// Claim claims the given submission
	Claim(ctx context.Context, id string) (*Claim, error)
	// Extend moves the lease deadline of a live claim
	Extend(ctx context.Context, c *Claim) error
	// Release gives a claim back, the submission stays PENDING and is
	// claimable again after retryAt
	Release(ctx context.Context, c *Claim, retryAt time.Time, reason string) error
	// Persist writes the terminal outcome if c still holds the submission.
	// Repeating a successful Persist with the same claim is a no-op.
	Persist(ctx context.Context, c *Claim, f Final) error

	Get(ctx context.Context, id string) (*types.Submission, error)
	Insert(ctx context.Context, s *types.Submission) error
}

// Options defines common store options
type Options struct {
	LeaseDuration time.Duration
	Now           func() time.Time
}

func (o *Options) defaults() {
	if o.LeaseDuration <= 0 {
		o.LeaseDuration = DefaultLeaseDuration
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
