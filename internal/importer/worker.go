package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Worker polls the job store and runs claimed jobs through the engine, one
// at a time. Multiple workers may run against the same store; the claim
// query hands each job to exactly one of them.
type Worker struct {
	store        Store
	engine       *Engine
	identity     string
	pollInterval time.Duration
	leaseTTL     time.Duration
}

// WorkerConfig holds the worker dependencies and tunables.
type WorkerConfig struct {
	Store        Store
	Engine       *Engine
	Identity     string
	PollInterval time.Duration
	LeaseTTL     time.Duration
}

// NewWorker creates a job worker. Identity defaults to hostname-pid so
// concurrent workers on one host stay distinguishable in the lock column.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.LeaseTTL <= cfg.PollInterval {
		cfg.LeaseTTL = 10 * cfg.PollInterval
	}
	if cfg.Identity == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "worker"
		}
		cfg.Identity = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return &Worker{
		store:        cfg.Store,
		engine:       cfg.Engine,
		identity:     cfg.Identity,
		pollInterval: cfg.PollInterval,
		leaseTTL:     cfg.LeaseTTL,
	}, nil
}

// Run polls for jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("import worker started",
		"identity", w.identity,
		"poll_interval", w.pollInterval,
		"lease_ttl", w.leaseTTL)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)

		select {
		case <-ctx.Done():
			slog.Info("import worker stopping", "identity", w.identity)
			return
		case <-ticker.C:
		}
	}
}

// runOnce drains the queue: it keeps claiming until no eligible job remains,
// so a backlog clears at processing speed rather than one job per tick.
func (w *Worker) runOnce(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.store.ClaimNext(ctx, w.identity, w.leaseTTL)
		if errors.Is(err, ErrNoEligibleJob) {
			return
		}
		if err != nil {
			slog.Error("failed to claim job", "identity", w.identity, "error", err)
			return
		}

		w.engine.Process(ctx, job)
	}
}
