package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProgressReporter publishes stage transitions somewhere cheap to poll, so
// clients can follow a job without hitting the database.
type ProgressReporter interface {
	Report(ctx context.Context, jobID, stage string, progress int) error
}

// NopReporter discards progress updates.
type NopReporter struct{}

func (NopReporter) Report(context.Context, string, string, int) error { return nil }

// ProgressSnapshot is the payload stored per job.
type ProgressSnapshot struct {
	Stage     string    `json:"stage"`
	Progress  int       `json:"progress"`
	UpdatedAt time.Time `json:"updated_at"`
}

const progressTTL = 24 * time.Hour

// CacheReporter writes progress snapshots to Redis. The job table stays the
// source of truth; these entries expire on their own.
type CacheReporter struct {
	client *redis.Client
}

func NewCacheReporter(client *redis.Client) *CacheReporter {
	return &CacheReporter{client: client}
}

func progressKey(jobID string) string {
	return "import:progress:" + jobID
}

func (r *CacheReporter) Report(ctx context.Context, jobID, stage string, progress int) error {
	snap := ProgressSnapshot{
		Stage:     stage,
		Progress:  progress,
		UpdatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := r.client.Set(ctx, progressKey(jobID), payload, progressTTL).Err(); err != nil {
		return fmt.Errorf("store progress: %w", err)
	}
	return nil
}

// Snapshot reads the cached progress for a job. A missing key returns
// (nil, nil); callers fall back to the store.
func (r *CacheReporter) Snapshot(ctx context.Context, jobID string) (*ProgressSnapshot, error) {
	payload, err := r.client.Get(ctx, progressKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	var snap ProgressSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &snap, nil
}
