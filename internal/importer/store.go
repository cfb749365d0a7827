package importer

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store persists import jobs and their question rows. The lease fields of a
// job may only be mutated through ClaimNext and ReleaseLock; that is the
// pipeline's single concurrency-control primitive.
type Store interface {
	// ClaimNext atomically claims the oldest PARSING job whose lease is
	// unset or older than leaseTTL, marking it locked by owner and
	// incrementing its attempt counter. Returns ErrNoEligibleJob when no
	// job is claimable or another worker won the race.
	ClaimNext(ctx context.Context, owner string, leaseTTL time.Duration) (*Job, error)

	// UpdateProgress records the current stage and percentage of a job.
	UpdateProgress(ctx context.Context, jobID, stage string, progress int) error

	// SetFingerprints records the content digests of the two documents.
	SetFingerprints(ctx context.Context, jobID, questionSum, answerSum string) error

	// FingerprintKnown reports whether another job already carries this
	// question-document digest.
	FingerprintKnown(ctx context.Context, sum, excludeJobID string) (bool, error)

	// ReplaceQuestions replaces all question rows of a job in a single
	// all-or-nothing transaction, so reprocessing is never additive.
	ReplaceQuestions(ctx context.Context, jobID string, rows []QuestionRow) error

	// Questions returns a job's question rows ordered by number.
	Questions(ctx context.Context, jobID string) ([]QuestionRow, error)

	// Finalize writes the terminal status. Success statuses also set
	// stage DONE and progress 100; FAILED keeps the failing stage and
	// records the captured errors.
	Finalize(ctx context.Context, jobID string, status Status, jobErrs, warnings []string) error

	// ReleaseLock clears the lease unconditionally.
	ReleaseLock(ctx context.Context, jobID string) error

	// GetJob returns a job by id.
	GetJob(ctx context.Context, jobID string) (*Job, error)
}

// MemoryStore is an in-memory Store implementation for tests and local runs.
type MemoryStore struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	questions map[string][]QuestionRow
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]*Job),
		questions: make(map[string][]QuestionRow),
		now:       time.Now,
	}
}

// SetClock overrides the store's clock; tests use it to age leases.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// CreateJob inserts a job the way the external upload layer would. A missing
// ID is generated; a missing status defaults to PARSING.
func (s *MemoryStore) CreateJob(job Job) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		job.ID = generateID()
	}
	if job.Status == "" {
		job.Status = StatusParsing
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	j := job
	s.jobs[j.ID] = &j
	return j.ID
}

func (s *MemoryStore) ClaimNext(ctx context.Context, owner string, leaseTTL time.Duration) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var eligible []*Job
	for _, j := range s.jobs {
		if j.Status != StatusParsing {
			continue
		}
		if j.LockOwner != "" && j.LockedAt != nil && now.Sub(*j.LockedAt) < leaseTTL {
			continue
		}
		eligible = append(eligible, j)
	}
	if len(eligible) == 0 {
		return nil, ErrNoEligibleJob
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].CreatedAt.Before(eligible[j].CreatedAt) })

	j := eligible[0]
	lockedAt := now
	j.LockOwner = owner
	j.LockedAt = &lockedAt
	j.Attempts++
	j.Stage = StageClaimed
	j.Progress = 0

	out := *j
	return &out, nil
}

func (s *MemoryStore) UpdateProgress(ctx context.Context, jobID, stage string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	j.Stage = stage
	j.Progress = progress
	return nil
}

func (s *MemoryStore) SetFingerprints(ctx context.Context, jobID, questionSum, answerSum string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	j.QuestionDocSum = questionSum
	j.AnswerDocSum = answerSum
	return nil
}

func (s *MemoryStore) FingerprintKnown(ctx context.Context, sum, excludeJobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.ID != excludeJobID && sum != "" && j.QuestionDocSum == sum {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ReplaceQuestions(ctx context.Context, jobID string, rows []QuestionRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	copied := make([]QuestionRow, len(rows))
	copy(copied, rows)
	sort.Slice(copied, func(i, j int) bool { return copied[i].Number < copied[j].Number })
	s.questions[jobID] = copied
	return nil
}

func (s *MemoryStore) Questions(ctx context.Context, jobID string) ([]QuestionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.questions[jobID]
	out := make([]QuestionRow, len(rows))
	copy(out, rows)
	return out, nil
}

func (s *MemoryStore) Finalize(ctx context.Context, jobID string, status Status, jobErrs, warnings []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if j.Status == StatusPublished {
		return fmt.Errorf("job %s is already published", jobID)
	}

	j.Status = status
	j.Errors = append([]string{}, jobErrs...)
	j.Warnings = append([]string{}, warnings...)
	if status != StatusFailed {
		j.Stage = StageDone
		j.Progress = 100
	}
	return nil
}

func (s *MemoryStore) ReleaseLock(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	j.LockOwner = ""
	j.LockedAt = nil
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	out := *j
	return &out, nil
}

// generateID creates a random hex job id.
func generateID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("job-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", b)
}
