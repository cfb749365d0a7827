package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres spins up a throwaway database with the job schema applied.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("examimport"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return pool
}

func TestPostgresStore_ClaimLifecycle(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	store, err := NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}

	id, err := store.CreateJob(ctx, Job{
		ExamTitle:       "Practice Exam 1",
		Manifest:        []byte(`{"expected_questions": 3}`),
		QuestionDocPath: "/uploads/questions.pdf",
		AnswerDocPath:   "/uploads/answers.pdf",
	})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	job, err := store.ClaimNext(ctx, "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if job.ID != id {
		t.Errorf("claimed %s, want %s", job.ID, id)
	}
	if job.LockOwner != "worker-1" || job.Attempts != 1 || job.Stage != StageClaimed {
		t.Errorf("claim state: owner=%q attempts=%d stage=%q", job.LockOwner, job.Attempts, job.Stage)
	}
	if string(job.Manifest) != `{"expected_questions": 3}` {
		t.Errorf("Manifest = %s, want round-tripped payload", job.Manifest)
	}

	// Held lease blocks a second claimer.
	if _, err := store.ClaimNext(ctx, "worker-2", time.Minute); !errors.Is(err, ErrNoEligibleJob) {
		t.Errorf("second ClaimNext() error = %v, want ErrNoEligibleJob", err)
	}

	// An already-expired lease is immediately reclaimable.
	reclaimed, err := store.ClaimNext(ctx, "worker-2", -time.Second)
	if err != nil {
		t.Fatalf("ClaimNext() with expired lease error = %v", err)
	}
	if reclaimed.LockOwner != "worker-2" || reclaimed.Attempts != 2 {
		t.Errorf("reclaim state: owner=%q attempts=%d", reclaimed.LockOwner, reclaimed.Attempts)
	}

	if err := store.ReleaseLock(ctx, id); err != nil {
		t.Fatalf("ReleaseLock() error = %v", err)
	}
	got, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.LockOwner != "" || got.LockedAt != nil {
		t.Errorf("lease not cleared: owner=%q lockedAt=%v", got.LockOwner, got.LockedAt)
	}
}

func TestPostgresStore_ConcurrentClaimers(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	store, _ := NewPostgresStore(pool)
	if _, err := store.CreateJob(ctx, Job{ExamTitle: "contended"}); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	const workers = 8
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			_, err := store.ClaimNext(ctx, fmt.Sprintf("worker-%d", n), time.Minute)
			if err == nil {
				wins.Add(1)
				return
			}
			if !errors.Is(err, ErrNoEligibleJob) {
				t.Errorf("ClaimNext() error = %v, want ErrNoEligibleJob for losers", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("%d claimers succeeded, want exactly 1", got)
	}
}

func TestPostgresStore_QuestionsAndFinalize(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	store, _ := NewPostgresStore(pool)
	id, err := store.CreateJob(ctx, Job{ExamTitle: "exam"})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if err := store.UpdateProgress(ctx, id, StagePersist, 90); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}

	rows := []QuestionRow{
		{
			Number:     1,
			Stem:       "What is 2 + 2?",
			Choices:    choicesFrom("3", "4", "5", "6"),
			Answer:     "b",
			SourcePage: 1,
			PageImage:  "/data/jobs/x/pages/page-1.png",
			CropImage:  "/data/jobs/x/questions/q-1.png",
		},
		{
			Number:       2,
			Stem:         "Free response placeholder",
			Answer:       "a",
			SourcePage:   2,
			CropFallback: true,
			Warnings:     []string{"missing choices", "fallback crop: fallback-full-page"},
		},
	}
	if err := store.ReplaceQuestions(ctx, id, rows); err != nil {
		t.Fatalf("ReplaceQuestions() error = %v", err)
	}

	// Replace again with a subset; the first write must not leak through.
	if err := store.ReplaceQuestions(ctx, id, rows[:1]); err != nil {
		t.Fatalf("second ReplaceQuestions() error = %v", err)
	}
	got, err := store.Questions(ctx, id)
	if err != nil {
		t.Fatalf("Questions() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	if got[0].Choices == nil || got[0].Choices.B != "4" {
		t.Errorf("Choices = %+v, want B=4", got[0].Choices)
	}

	if err := store.SetFingerprints(ctx, id, "sum-q", "sum-a"); err != nil {
		t.Fatalf("SetFingerprints() error = %v", err)
	}
	known, err := store.FingerprintKnown(ctx, "sum-q", id)
	if err != nil {
		t.Fatalf("FingerprintKnown() error = %v", err)
	}
	if known {
		t.Error("job's own digest reported as known")
	}

	if err := store.Finalize(ctx, id, StatusNeedsReview, nil, []string{"question 2: missing choices"}); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	job, _ := store.GetJob(ctx, id)
	if job.Status != StatusNeedsReview || job.Stage != StageDone || job.Progress != 100 {
		t.Errorf("finalized state: status=%q stage=%q progress=%d", job.Status, job.Stage, job.Progress)
	}
	if len(job.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one entry", job.Warnings)
	}
}

func TestPostgresStore_NullableChoicesRoundTrip(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	store, _ := NewPostgresStore(pool)
	id, err := store.CreateJob(ctx, Job{ExamTitle: "exam"})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if err := store.ReplaceQuestions(ctx, id, []QuestionRow{{Number: 7, Stem: "no choices"}}); err != nil {
		t.Fatalf("ReplaceQuestions() error = %v", err)
	}
	got, err := store.Questions(ctx, id)
	if err != nil {
		t.Fatalf("Questions() error = %v", err)
	}
	if len(got) != 1 || got[0].Choices != nil {
		t.Errorf("rows = %+v, want single row with nil choices", got)
	}
}
