package store

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/criyle/go-evaluator/types"
	"github.com/google/uuid"
)

type record struct {
	sub        types.Submission
	version    int64
	claimToken string
	leaseUntil time.Time
	notBefore  time.Time
	attempts   int
	finalToken string
	lastError  string
}

// MemoryStore is a Store kept in process memory
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*record
	opt     Options
}

var _ Store = &MemoryStore{}

// NewMemoryStore creates an empty in memory store
func NewMemoryStore(opt Options) *MemoryStore {
	opt.defaults()
	return &MemoryStore{
		records: make(map[string]*record),
		opt:     opt,
	}
}

func (r *record) claimable(now time.Time) bool {
	if r.sub.State != types.StatePending || now.Before(r.notBefore) {
		return false
	}
	return r.claimToken == "" || !now.Before(r.leaseUntil)
}

func older(a, b *record) bool {
	if c := a.sub.Created.Compare(b.sub.Created); c != 0 {
		return c < 0
	}
	return cmp.Less(a.sub.ID, b.sub.ID)
}

// ClaimNext implements Store
func (m *MemoryStore) ClaimNext(ctx context.Context) (*Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opt.Now()
	var next *record
	for _, r := range m.records {
		if r.claimable(now) && (next == nil || older(r, next)) {
			next = r
		}
	}
	if next == nil {
		return nil, ErrNoPending
	}
	return m.claim(next, now), nil
}

// Claim implements Store
func (m *MemoryStore) Claim(ctx context.Context, id string) (*Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := m.opt.Now()
	if !r.claimable(now) {
		return nil, ErrAlreadyClaimed
	}
	return m.claim(r, now), nil
}

func (m *MemoryStore) claim(r *record, now time.Time) *Claim {
	r.claimToken = uuid.NewString()
	r.leaseUntil = now.Add(m.opt.LeaseDuration)
	r.version++
	r.attempts++
	return &Claim{
		Submission: cloneSubmission(r.sub),
		Token:      r.claimToken,
		Version:    r.version,
		Attempt:    r.attempts,
		ClaimedAt:  now,
		LeaseUntil: r.leaseUntil,
	}
}

// errFinalized marks a record already finalized by the same claim
var errFinalized = errors.New("finalized by this claim")

func (m *MemoryStore) held(c *Claim) (*record, error) {
	r, ok := m.records[c.Submission.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if r.sub.State.Terminal() {
		if r.finalToken == c.Token {
			return r, errFinalized
		}
		return nil, ErrStaleClaim
	}
	if r.claimToken != c.Token || r.version != c.Version {
		return nil, ErrStaleClaim
	}
	return r, nil
}

// Extend implements Store
func (m *MemoryStore) Extend(ctx context.Context, c *Claim) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.held(c)
	if err != nil {
		if errors.Is(err, errFinalized) {
			return ErrStaleClaim
		}
		return err
	}
	r.leaseUntil = m.opt.Now().Add(m.opt.LeaseDuration)
	c.LeaseUntil = r.leaseUntil
	return nil
}

// Release implements Store
func (m *MemoryStore) Release(ctx context.Context, c *Claim, retryAt time.Time, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.held(c)
	if err != nil {
		if errors.Is(err, errFinalized) {
			return ErrStaleClaim
		}
		return err
	}
	r.claimToken = ""
	r.leaseUntil = time.Time{}
	r.notBefore = retryAt
	r.lastError = reason
	r.version++
	return nil
}

// Persist implements Store
func (m *MemoryStore) Persist(ctx context.Context, c *Claim, f Final) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.held(c)
	if errors.Is(err, errFinalized) {
		return nil
	}
	if err != nil {
		return err
	}
	r.sub.State = f.State
	r.sub.Compilation = f.Compilation
	r.sub.Evaluation = f.Evaluation
	r.sub.OverallScore = f.OverallScore
	r.sub.AbortReason = f.AbortReason
	r.finalToken = c.Token
	r.claimToken = ""
	r.leaseUntil = time.Time{}
	r.version++
	return nil
}

// Get implements Store
func (m *MemoryStore) Get(ctx context.Context, id string) (*types.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	s := cloneSubmission(r.sub)
	return &s, nil
}

// Insert implements Store
func (m *MemoryStore) Insert(ctx context.Context, s *types.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[s.ID]; ok {
		return ErrExists
	}
	m.records[s.ID] = &record{sub: cloneSubmission(*s)}
	return nil
}

func cloneSubmission(s types.Submission) types.Submission {
	s.Source = bytes.Clone(s.Source)
	return s
}
