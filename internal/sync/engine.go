package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/remindsync/internal/model"
)

const (
	otelScope     = "remindsync/sync"
	spanSync      = "sync.run"
	metricCreated = "remindsync.sync.records.created"
	metricUpdated = "remindsync.sync.records.updated"
	metricDeleted = "remindsync.sync.records.deleted"
	metricFailed  = "remindsync.sync.records.failed"
)

// Engine orchestrates the three-phase reconciliation protocol. Create one
// with [NewEngine]; [Engine.Sync] is the single entry point.
type Engine struct {
	store  LocalStore
	remote RemoteClient
	log    *slog.Logger

	// Serializes passes: at most one three-phase protocol may touch the
	// replica at a time, because phase boundaries depend on re-reading the
	// store's own writes.
	mu sync.Mutex

	// OTel instruments, always non-nil (no-op when telemetry is disabled).
	tracer     trace.Tracer
	cntCreated metric.Int64Counter
	cntUpdated metric.Int64Counter
	cntDeleted metric.Int64Counter
	cntFailed  metric.Int64Counter
}

// NewEngine creates an Engine wired to the given replica and remote client.
func NewEngine(store LocalStore, remote RemoteClient, logger *slog.Logger) *Engine {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Engine{
		store:  store,
		remote: remote,
		log:    logger,

		tracer:     tracer,
		cntCreated: mustCounter(metricCreated, "Number of reminders created during sync"),
		cntUpdated: mustCounter(metricUpdated, "Number of reminders updated during sync"),
		cntDeleted: mustCounter(metricDeleted, "Number of reminders deleted during sync"),
		cntFailed:  mustCounter(metricFailed, "Number of reminders that failed to sync"),
	}
}

// Sync runs one full three-phase pass and returns its summary. Concurrent
// callers are serialized; a pass, once started, runs to completion (a
// partially applied pass leaves the replica consistent-but-stale, which the
// next invocation repairs).
func (e *Engine) Sync(ctx context.Context) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, spanSync)
	defer span.End()

	res := e.run(ctx)

	if res.Created > 0 {
		e.cntCreated.Add(ctx, int64(res.Created))
	}
	if res.Updated > 0 {
		e.cntUpdated.Add(ctx, int64(res.Updated))
	}
	if res.Deleted > 0 {
		e.cntDeleted.Add(ctx, int64(res.Deleted))
	}
	if res.Failed > 0 {
		e.cntFailed.Add(ctx, int64(res.Failed))
	}
	span.SetAttributes(
		attribute.Bool("sync.success", res.Success),
		attribute.Int("sync.created", res.Created),
		attribute.Int("sync.updated", res.Updated),
		attribute.Int("sync.deleted", res.Deleted),
		attribute.Int("sync.failed", res.Failed),
	)
	if !res.Success {
		span.RecordError(errors.New(res.Message))
	}

	e.log.Info("sync pass complete",
		"success", res.Success,
		"created", res.Created,
		"updated", res.Updated,
		"deleted", res.Deleted,
		"failed", res.Failed,
	)
	return res
}

// run executes the three phases in strict order.
func (e *Engine) run(ctx context.Context) Result {
	var res Result
	var firstErr error

	perRecord := func(op string, title string, err error) {
		e.log.Error("sync action failed", "op", op, "title", title, "error", err)
		res.Failed++
		if firstErr == nil {
			firstErr = err
		}
	}
	// A failing local store means the protocol cannot continue safely; the
	// pass aborts with whatever counts it accumulated.
	fatal := func(op string, err error) Result {
		e.log.Error("local store failure, aborting pass", "op", op, "error", err)
		res.Success = false
		res.Message = fmt.Sprintf("local store failure: %v", err)
		return res
	}

	// Phase 0: connectivity check. Fetch the full remote set once; if that
	// fails, nothing local is touched.
	remoteSet, err := e.remote.List(ctx)
	if err != nil {
		e.log.Error("remote set unavailable", "error", err)
		return Result{Message: fmt.Sprintf("cannot reach reminder service: %v", err)}
	}
	remoteByID := make(map[int64]*model.Reminder, len(remoteSet))
	for _, r := range remoteSet {
		remoteByID[r.ID] = r
	}

	// Phase 1: push local changes. Tombstones wait for phase 3.
	locals, err := e.store.All(ctx)
	if err != nil {
		return fatal("phase1 read", err)
	}
	for _, local := range locals {
		if local.Deleted {
			continue
		}

		switch Decide(local, remoteByID[local.ID]) {
		case ActionCreateRemote:
			if local.ID == model.SentinelID {
				created, err := e.remote.Create(ctx, local)
				if err != nil {
					perRecord("create", local.Title, err)
					continue
				}
				// Swap the sentinel row for the server-confirmed one so the
				// replica's key tracks the remote identifier from now on.
				created.Synced = true
				created.SortOrder = local.SortOrder
				if err := e.store.Replace(ctx, local.LocalID, created); err != nil {
					return fatal("id swap", err)
				}
				e.log.Debug("pushed new reminder", "title", created.Title, "id", created.ID)
			} else {
				// A real id the server does not know: an earlier create was
				// confirmed locally but never reached the server.
				if _, err := e.remote.Create(ctx, local); err != nil {
					perRecord("create", local.Title, err)
					continue
				}
				local.Synced = true
				if err := e.store.Update(ctx, local); err != nil {
					return fatal("mark synced", err)
				}
			}
			res.Created++

		case ActionUpdateRemote:
			if _, err := e.remote.Update(ctx, local); err != nil {
				perRecord("update", local.Title, err)
				continue
			}
			local.Synced = true
			if err := e.store.Update(ctx, local); err != nil {
				return fatal("mark synced", err)
			}
			res.Updated++
		}
	}

	// Phase 2: pull. Re-read the replica: phase 1 may have swapped ids.
	// Tombstoned rows stay in the index so a pending delete is never
	// resurrected as a fresh insert.
	fresh, err := e.store.All(ctx)
	if err != nil {
		return fatal("phase2 read", err)
	}
	freshByID := make(map[int64]*model.Reminder, len(fresh))
	for _, l := range fresh {
		if l.ID != model.SentinelID {
			freshByID[l.ID] = l
		}
	}

	for _, rem := range remoteSet {
		local := freshByID[rem.ID]

		switch Decide(local, rem) {
		case ActionCreateLocal:
			ins := rem.Clone()
			ins.Synced = true
			if err := e.store.Insert(ctx, ins); err != nil {
				return fatal("pull insert", err)
			}
			res.Created++

		case ActionUpdateLocal:
			merged := rem.Clone()
			merged.LocalID = local.LocalID
			merged.SortOrder = local.SortOrder // manual ordering never leaves the device
			merged.Synced = true
			if err := e.store.Update(ctx, merged); err != nil {
				return fatal("pull update", err)
			}
			res.Updated++
		}
	}

	// Phase 3: deletion reconciliation. A tombstone the remote never knew
	// is purged without a network call; otherwise the remote delete must be
	// confirmed before the tombstone goes away.
	tombs, err := e.store.DeletedUnsynced(ctx)
	if err != nil {
		return fatal("phase3 read", err)
	}
	for _, tomb := range tombs {
		if tomb.ID != model.SentinelID && remoteByID[tomb.ID] != nil {
			if err := e.remote.Delete(ctx, tomb.ID); err != nil {
				perRecord("delete", tomb.Title, err)
				continue
			}
		}
		if err := e.store.Purge(ctx, tomb.LocalID); err != nil {
			return fatal("purge", err)
		}
		res.Deleted++
	}

	res.Success = true
	res.summarize(firstErr)
	return res
}
