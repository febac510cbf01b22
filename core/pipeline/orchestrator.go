package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"audioscribe/logger"
	"audioscribe/model"
	"audioscribe/store"
)

// Orchestrator computes the work set for a batch run and drives the Executor
// over it, one item at a time, in upstream listing order. A compare-and-swap
// guard keeps at most one run in flight; concurrent triggers are rejected
// with ErrRunInProgress.
type Orchestrator struct {
	lister   Lister
	exec     *Executor
	status   *store.StatusStore
	notifier Notifier
	running  atomic.Bool
}

// NewOrchestrator wires the run loop. notifier may be nil.
func NewOrchestrator(lister Lister, exec *Executor, status *store.StatusStore, notifier Notifier) *Orchestrator {
	return &Orchestrator{
		lister:   lister,
		exec:     exec,
		status:   status,
		notifier: notifier,
	}
}

// Running reports whether a run currently holds the single-flight guard.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// plan counts how the listing splits into work and skips. Items with no
// status entry are implicitly pending; failed items are always eligible
// again; only completed items are skipped.
func (o *Orchestrator) plan(items []model.Item) model.AsyncSummary {
	counts := model.AsyncSummary{Total: len(items)}
	for _, item := range items {
		if entry, ok := o.status.Get(item.ID); ok && entry.State == model.StateCompleted {
			counts.Skip++
		} else {
			counts.Pending++
		}
	}
	return counts
}

// Run executes a synchronous batch run and blocks until every selected item
// has been through the Executor once. An unreachable upstream aborts before
// any state is touched.
func (o *Orchestrator) Run(ctx context.Context) (model.RunSummary, error) {
	if !o.running.CompareAndSwap(false, true) {
		return model.RunSummary{}, ErrRunInProgress
	}
	defer o.running.Store(false)

	items, err := o.lister.ListItems(ctx)
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	runID := uuid.NewString()
	counts := o.plan(items)
	o.notifyStarted(runID, counts)
	logger.Info("run started",
		logger.String("runId", runID),
		logger.Int("total", counts.Total),
		logger.Int("pending", counts.Pending),
		logger.Int("skip", counts.Skip))

	summary, runErr := o.processItems(ctx, items)
	o.notifyFinished(runID, summary, runErr)
	logger.Info("run finished",
		logger.String("runId", runID),
		logger.Int("processed", summary.Processed),
		logger.Int("success", summary.Success),
		logger.Int("failed", summary.Failed))
	return summary, runErr
}

// RunAsync acquires the guard, computes the counts synchronously, then hands
// the per-item loop to a detached goroutine. The caller only ever sees the
// pre-computed counts; outcomes must be polled per item afterwards.
func (o *Orchestrator) RunAsync(ctx context.Context) (model.AsyncSummary, error) {
	if !o.running.CompareAndSwap(false, true) {
		return model.AsyncSummary{}, ErrRunInProgress
	}

	items, err := o.lister.ListItems(ctx)
	if err != nil {
		o.running.Store(false)
		return model.AsyncSummary{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	runID := uuid.NewString()
	counts := o.plan(items)
	o.notifyStarted(runID, counts)
	logger.Info("async run started",
		logger.String("runId", runID),
		logger.Int("total", counts.Total),
		logger.Int("pending", counts.Pending),
		logger.Int("skip", counts.Skip))

	go func() {
		// The trigger's request context dies with the response; the detached
		// run gets its own.
		defer o.running.Store(false)

		summary, runErr := o.processItems(context.Background(), items)
		if runErr != nil {
			logger.Error("async run aborted",
				logger.String("runId", runID),
				logger.ErrorField(runErr))
		}
		o.notifyFinished(runID, summary, runErr)
		logger.Info("async run finished",
			logger.String("runId", runID),
			logger.Int("processed", summary.Processed),
			logger.Int("success", summary.Success),
			logger.Int("failed", summary.Failed))
	}()

	return counts, nil
}

// processItems is the shared per-item loop. One item's classified failure
// never stops the run; a fatal error (disk full, store persistence failure)
// aborts the remaining items and leaves already-updated entries as they are.
func (o *Orchestrator) processItems(ctx context.Context, items []model.Item) (model.RunSummary, error) {
	summary := model.RunSummary{Total: len(items)}

	for _, item := range items {
		if entry, ok := o.status.Get(item.ID); ok && entry.State == model.StateCompleted {
			summary.Processed++
			continue
		}

		err := o.exec.Process(ctx, item)
		if err == nil {
			summary.Processed++
			summary.Success++
			continue
		}

		var stageErr *StageError
		if errors.As(err, &stageErr) && !stageErr.Fatal {
			summary.Processed++
			summary.Failed++
			continue
		}

		return summary, fmt.Errorf("run aborted: %w", err)
	}

	return summary, nil
}

func (o *Orchestrator) notifyStarted(runID string, counts model.AsyncSummary) {
	if o.notifier != nil {
		o.notifier.RunStarted(runID, counts)
	}
}

func (o *Orchestrator) notifyFinished(runID string, summary model.RunSummary, runErr error) {
	if o.notifier != nil {
		o.notifier.RunFinished(runID, summary, runErr)
	}
}
