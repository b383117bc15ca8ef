// Package judger drives the evaluation of a claimed submission through
// compilation, execution, aggregation and persistence.
package judger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/criyle/go-evaluator/language"
	"github.com/criyle/go-evaluator/problem"
	"github.com/criyle/go-evaluator/runner"
	"github.com/criyle/go-evaluator/scoring"
	"github.com/criyle/go-evaluator/store"
	"github.com/criyle/go-evaluator/types"
	"go.uber.org/zap"
)

const defaultPersistTimeout = 10 * time.Second

// Executor compiles submissions and runs testcases
type Executor interface {
	Compile(ctx context.Context, source []byte, lang language.Language, limits problem.Limits) (types.CompilationResult, *runner.Executable, error)
	Execute(ctx context.Context, exe *runner.Executable, c problem.Case, chk problem.Checker, limits problem.Limits, kind types.ScoreKind) (types.TestcaseResult, error)
}

// Persister writes terminal results
type Persister interface {
	Persist(ctx context.Context, c *store.Claim, f store.Final) error
}

// Config defines judger configuration
type Config struct {
	Executor Executor
	Problems problem.Provider
	Store    Persister

	// CaseParallelism bounds concurrent testcases of one subtask
	CaseParallelism int
	// ShortCircuit skips the rest of a subtask once its score is fixed
	ShortCircuit   bool
	PersistTimeout time.Duration
	Logger         *zap.Logger
}

// Judger evaluates claimed submissions
type Judger struct {
	executor        Executor
	problems        problem.Provider
	store           Persister
	caseParallelism int
	shortCircuit    bool
	persistTimeout  time.Duration
	logger          *zap.Logger
}

// New creates a judger
func New(conf Config) *Judger {
	j := &Judger{
		executor:        conf.Executor,
		problems:        conf.Problems,
		store:           conf.Store,
		caseParallelism: max(conf.CaseParallelism, 1),
		shortCircuit:    conf.ShortCircuit,
		persistTimeout:  conf.PersistTimeout,
		logger:          conf.Logger,
	}
	if j.persistTimeout <= 0 {
		j.persistTimeout = defaultPersistTimeout
	}
	if j.logger == nil {
		j.logger = zap.NewNop()
	}
	return j
}

// Report is the outcome of one evaluation as seen by the caller
type Report struct {
	SubmissionID string
	ProblemID    string
	Attempt      int

	State   State   // DONE or FAILED
	Trace   []State // every state entered, in order
	Failure *Failure

	Compilation  *types.CompilationResult
	Evaluation   *types.EvaluationResult // only when an EVALUATED result was persisted
	OverallScore types.Score
	Cases        int // testcases executed
	Duration     time.Duration
}

type evaluation struct {
	*Judger
	claim  *store.Claim
	report *Report
	logger *zap.Logger
}

// Evaluate runs a claimed submission to DONE or FAILED. Results are
// persisted through the claim; a FAILED report leaves the record for the
// caller to release or abort.
func (j *Judger) Evaluate(ctx context.Context, c *store.Claim) *Report {
	e := &evaluation{
		Judger: j,
		claim:  c,
		report: &Report{
			SubmissionID: c.Submission.ID,
			ProblemID:    c.Submission.ProblemID,
			Attempt:      c.Attempt,
			State:        StateReceived,
			Trace:        []State{StateReceived},
		},
		logger: j.logger.With(
			zap.String("submission", c.Submission.ID),
			zap.String("problem", c.Submission.ProblemID),
			zap.Int("attempt", c.Attempt)),
	}

	start := time.Now()
	if err := e.run(ctx); err != nil {
		e.fail(ctx, err)
	}
	e.report.Duration = time.Since(start)

	if e.report.State == StateDone {
		e.logger.Info("evaluation finished",
			zap.Stringer("score", e.report.OverallScore),
			zap.Int("cases", e.report.Cases),
			zap.Duration("duration", e.report.Duration))
	}
	return e.report
}

func (e *evaluation) step(ev Event) error {
	next, err := Transition(e.report.State, ev)
	if err != nil {
		return err
	}
	e.report.State = next
	e.report.Trace = append(e.report.Trace, next)
	e.logger.Debug("state changed", zap.Stringer("event", ev), zap.Stringer("state", next))
	return nil
}

func (e *evaluation) fail(ctx context.Context, err error) {
	f := classify(ctx, err)
	from := e.report.State
	if !from.Terminal() {
		e.report.State = StateFailed
		e.report.Trace = append(e.report.Trace, StateFailed)
	}
	e.report.Failure = f
	e.report.Evaluation = nil
	e.report.OverallScore = types.Score{}
	e.logger.Warn("evaluation failed",
		zap.Stringer("state", from),
		zap.Stringer("kind", f.Kind),
		zap.Error(f.Err))
}

func (e *evaluation) run(ctx context.Context) error {
	if err := e.step(EventDequeued); err != nil {
		return err
	}
	sub := &e.claim.Submission

	p, err := e.problems.Get(ctx, sub.ProblemID)
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	lang, err := language.Parse(sub.Language)
	if err != nil {
		return err
	}

	compilation, exe, err := e.executor.Compile(ctx, sub.Source, lang, p.Compile)
	if err != nil {
		return err
	}
	e.report.Compilation = &compilation

	if compilation.Outcome != types.CompilationSuccess {
		if exe != nil {
			exe.Close()
		}
		return e.reject(ctx, p, &compilation)
	}
	defer exe.Close()
	if err := e.step(EventCompiled); err != nil {
		return err
	}

	results, err := e.execute(ctx, p, exe)
	if err != nil {
		return err
	}
	if err := e.step(EventExecuted); err != nil {
		return err
	}

	ev, err := aggregate(p, results)
	if err != nil {
		return err
	}
	if err := e.step(EventAggregated); err != nil {
		return err
	}

	err = e.persist(ctx, store.Final{
		State:        types.StateEvaluated,
		Compilation:  &compilation,
		Evaluation:   ev,
		OverallScore: ev.OverallScore,
	})
	if err != nil {
		return err
	}
	e.report.Evaluation = ev
	e.report.OverallScore = ev.OverallScore
	return e.step(EventPersisted)
}

// reject persists a failed compilation: no testcase runs and the overall
// score is the failing value
func (e *evaluation) reject(ctx context.Context, p *problem.Config, compilation *types.CompilationResult) error {
	if err := e.step(EventCompileRejected); err != nil {
		return err
	}
	score := types.MinScore(p.ScoreKind)
	err := e.persist(ctx, store.Final{
		State:        types.StateAborted,
		Compilation:  compilation,
		OverallScore: score,
		AbortReason:  "compilation " + strings.ToLower(compilation.Outcome.String()),
	})
	if err != nil {
		return err
	}
	e.report.OverallScore = score
	return e.step(EventPersisted)
}

// persist writes f unless ctx is already done. Once started, the write is
// not interrupted by cancellation of ctx.
func (e *evaluation) persist(ctx context.Context, f store.Final) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.persistTimeout)
	defer cancel()
	if err := e.store.Persist(pctx, e.claim, f); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

func aggregate(p *problem.Config, results [][]types.TestcaseResult) (*types.EvaluationResult, error) {
	ev := &types.EvaluationResult{Subtasks: make([]types.SubtaskResult, 0, len(p.Subtasks))}
	scores := make([]types.Score, 0, len(p.Subtasks))
	for i, s := range p.Subtasks {
		sr, err := scoring.Aggregate(results[i], s.Rule, p.ScoreKind)
		if err != nil {
			return nil, fmt.Errorf("subtask %d: %w", i, err)
		}
		ev.Subtasks = append(ev.Subtasks, sr)
		scores = append(scores, sr.Score)
	}
	overall, err := scoring.Combine(scores, p.Weights(), p.Rule, p.ScoreKind)
	if err != nil {
		return nil, err
	}
	ev.OverallScore = overall
	return ev, nil
}
