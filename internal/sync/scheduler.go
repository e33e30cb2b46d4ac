package sync

import (
	"context"
	"log/slog"
	"time"
)

// Syncer runs one reconciliation pass. Implemented by [Engine].
type Syncer interface {
	Sync(ctx context.Context) Result
}

// Pinger reports whether the remote service is reachable. Implemented by
// [api.Client]. Optional: without one, periodic passes always run and rely
// on the engine's own connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Scheduler owns the background sync loop: an immediate pass on start, a
// periodic pass every interval (gated on connectivity when a Pinger is
// configured), and on-demand passes via [Scheduler.Kick]. All passes run on
// the scheduler's own goroutine, so at most one protocol touches the
// replica at a time; triggers arriving mid-pass coalesce into a single
// queued pass.
type Scheduler struct {
	syncer   Syncer
	pinger   Pinger
	interval time.Duration
	log      *slog.Logger
	kick     chan struct{}
}

// NewScheduler creates a Scheduler. pinger may be nil.
func NewScheduler(syncer Syncer, pinger Pinger, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		pinger:   pinger,
		interval: interval,
		log:      logger,
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests a pass as soon as possible, typically right after a local
// mutation. It never blocks; a kick while one is already pending is dropped,
// since the pending pass will observe the same replica state.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run starts the loop and blocks until ctx is cancelled. An in-flight pass
// is allowed to finish; cancellation takes effect at the next wait.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.pass(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sync scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			if !s.reachable(ctx) {
				s.log.Debug("skipping periodic sync, service unreachable")
				continue
			}
			s.pass(ctx, "periodic")
		case <-s.kick:
			// Kicked passes skip the gate: the engine's own connectivity
			// check reports unreachability in its result.
			s.pass(ctx, "kick")
		}
	}
}

func (s *Scheduler) pass(ctx context.Context, trigger string) {
	res := s.syncer.Sync(ctx)
	if !res.Success {
		s.log.Error("sync pass failed", "trigger", trigger, "message", res.Message)
		return
	}
	s.log.Debug("sync pass finished",
		"trigger", trigger,
		"created", res.Created,
		"updated", res.Updated,
		"deleted", res.Deleted,
		"failed", res.Failed,
	)
}

func (s *Scheduler) reachable(ctx context.Context) bool {
	if s.pinger == nil {
		return true
	}
	return s.pinger.Ping(ctx) == nil
}
