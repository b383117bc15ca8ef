package store

import (
	"fmt"
	"time"

	"github.com/criyle/go-evaluator/types"
)

// document is the persisted submission record. Enum fields are integers,
// score fields are BSON boolean or double.
type document struct {
	ID           string          `bson:"_id"`
	User         string          `bson:"user"`
	ProblemID    string          `bson:"problemId"`
	Created      time.Time       `bson:"created"`
	Source       []byte          `bson:"source"`
	Language     string          `bson:"programmingLanguage"`
	State        int32           `bson:"state"`
	Compilation  *compilationDoc `bson:"compilation,omitempty"`
	Evaluation   *evaluationDoc  `bson:"evaluation,omitempty"`
	OverallScore any             `bson:"overallScore,omitempty"`
	AbortReason  string          `bson:"abortReason,omitempty"`

	// claim bookkeeping
	Version    int64      `bson:"version"`
	Attempts   int32      `bson:"attempts"`
	ClaimToken string     `bson:"claimToken,omitempty"`
	LeaseUntil *time.Time `bson:"leaseUntil,omitempty"`
	NotBefore  *time.Time `bson:"notBefore,omitempty"`
	FinalToken string     `bson:"finalToken,omitempty"`
	LastError  string     `bson:"lastError,omitempty"`
}

type compilationDoc struct {
	Outcome int32  `bson:"outcome"`
	TimeNs  int64  `bson:"timeNs"`
	MemoryB int64  `bson:"memoryB"`
	Error   string `bson:"error,omitempty"`
}

type testcaseDoc struct {
	Outcome int32 `bson:"outcome"`
	Score   any   `bson:"score"`
	TimeNs  int64 `bson:"timeNs"`
	MemoryB int64 `bson:"memoryB"`
}

type subtaskDoc struct {
	SubtaskScore any           `bson:"subtaskScore"`
	Testcases    []testcaseDoc `bson:"testcases"`
}

type evaluationDoc struct {
	Subtasks []subtaskDoc `bson:"subtasks"`
}

func newDocument(s *types.Submission) *document {
	return &document{
		ID:           s.ID,
		User:         s.Author,
		ProblemID:    s.ProblemID,
		Created:      s.Created,
		Source:       s.Source,
		Language:     s.Language,
		State:        int32(s.State),
		Compilation:  newCompilationDoc(s.Compilation),
		Evaluation:   newEvaluationDoc(s.Evaluation),
		OverallScore: s.OverallScore.Value(),
		AbortReason:  s.AbortReason,
	}
}

func (d *document) submission() (*types.Submission, error) {
	overall, err := types.ScoreFromValue(d.OverallScore)
	if err != nil {
		return nil, fmt.Errorf("submission %s: overallScore: %w", d.ID, err)
	}
	s := &types.Submission{
		ID:           d.ID,
		Author:       d.User,
		ProblemID:    d.ProblemID,
		Created:      d.Created,
		Source:       d.Source,
		Language:     d.Language,
		State:        types.SubmissionState(d.State),
		OverallScore: overall,
		AbortReason:  d.AbortReason,
	}
	if c := d.Compilation; c != nil {
		s.Compilation = &types.CompilationResult{
			Outcome: types.CompilationOutcome(c.Outcome),
			Time:    time.Duration(c.TimeNs),
			Memory:  uint64(c.MemoryB),
			Error:   c.Error,
		}
	}
	if e := d.Evaluation; e != nil {
		ev := &types.EvaluationResult{OverallScore: overall}
		for i, st := range e.Subtasks {
			score, err := types.ScoreFromValue(st.SubtaskScore)
			if err != nil {
				return nil, fmt.Errorf("submission %s: subtask %d: %w", d.ID, i, err)
			}
			sr := types.SubtaskResult{Score: score}
			for j, tc := range st.Testcases {
				score, err := types.ScoreFromValue(tc.Score)
				if err != nil {
					return nil, fmt.Errorf("submission %s: subtask %d testcase %d: %w", d.ID, i, j, err)
				}
				sr.Testcases = append(sr.Testcases, types.TestcaseResult{
					Outcome: types.TestcaseOutcome(tc.Outcome),
					Score:   score,
					Time:    time.Duration(tc.TimeNs),
					Memory:  uint64(tc.MemoryB),
				})
			}
			ev.Subtasks = append(ev.Subtasks, sr)
		}
		s.Evaluation = ev
	}
	return s, nil
}

func newCompilationDoc(c *types.CompilationResult) *compilationDoc {
	if c == nil {
		return nil
	}
	return &compilationDoc{
		Outcome: int32(c.Outcome),
		TimeNs:  int64(c.Time),
		MemoryB: int64(c.Memory),
		Error:   c.Error,
	}
}

func newEvaluationDoc(e *types.EvaluationResult) *evaluationDoc {
	if e == nil {
		return nil
	}
	d := &evaluationDoc{Subtasks: make([]subtaskDoc, 0, len(e.Subtasks))}
	for _, st := range e.Subtasks {
		sd := subtaskDoc{
			SubtaskScore: st.Score.Value(),
			Testcases:    make([]testcaseDoc, 0, len(st.Testcases)),
		}
		for _, tc := range st.Testcases {
			sd.Testcases = append(sd.Testcases, testcaseDoc{
				Outcome: int32(tc.Outcome),
				Score:   tc.Score.Value(),
				TimeNs:  int64(tc.Time),
				MemoryB: int64(tc.Memory),
			})
		}
		d.Subtasks = append(d.Subtasks, sd)
	}
	return d
}
