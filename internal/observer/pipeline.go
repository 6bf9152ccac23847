package observer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ianzepp/monk-api/internal/clock"
	"github.com/ianzepp/monk-api/internal/filter"
	"github.com/ianzepp/monk-api/internal/record"
	apperrors "github.com/ianzepp/monk-api/pkg/errors"
)

// Config configures a Pipeline.
type Config struct {
	Registry          *Registry
	Executor          AsyncExecutor
	Clock             clock.Clock
	Logger            *zap.Logger
	DefaultTimeout    time.Duration
	MaxPipelineBudget time.Duration // 0 means no cap
}

// Pipeline runs the ten-ring algorithm of spec §4.3 over a batch of
// records for one operation.
type Pipeline struct {
	registry          *Registry
	executor          AsyncExecutor
	clock             clock.Clock
	logger            *zap.Logger
	defaultTimeout    time.Duration
	maxPipelineBudget time.Duration
}

// New builds a Pipeline from Config, filling in defaults.
func New(cfg Config) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultObserverTimeout
	}
	return &Pipeline{
		registry:          cfg.Registry,
		executor:          cfg.Executor,
		clock:             cfg.Clock,
		logger:            cfg.Logger,
		defaultTimeout:    cfg.DefaultTimeout,
		maxPipelineBudget: cfg.MaxPipelineBudget,
	}
}

// Result is what a completed invocation returns to its caller.
type Result struct {
	Records  []*record.StatefulRecord
	Warnings []error
}

// ExecuteMutation runs Create/Update/Delete/Revert through all ten rings,
// transactionally through ring 6, then dispatches rings 7-9 detached.
func (p *Pipeline) ExecuteMutation(ctx context.Context, operation record.Operation, schemaName string, schema SchemaDefinition, records []*record.StatefulRecord, store StoreHandle, identity IdentityProvider) (Result, error) {
	tx, err := store.Begin(ctx)
	if err != nil {
		return Result{}, &PipelineError{Errors: []error{apperrors.Wrap(err, apperrors.KindStore, "STORE_ERROR", "failed to open transaction")}}
	}

	octx := NewContext(operation, schemaName, schema, records, nil, p.clock.Now(), tx, identity)
	result, err := p.run(ctx, octx)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			p.logger.Sugar().Errorw("rollback failed", "error", rbErr)
		}
		return result, err
	}
	if cmErr := tx.Commit(ctx); cmErr != nil {
		return result, &PipelineError{Errors: []error{apperrors.Wrap(cmErr, apperrors.KindStore, "STORE_ERROR", "failed to commit transaction")}}
	}

	p.dispatchAsync(octx)
	return result, nil
}

// ExecuteSelect runs rings 0-6 over a compiled query's materialized rows
// (ring 5 is expected to populate octx.Records by executing fd against
// store), then dispatches rings 7-9.
func (p *Pipeline) ExecuteSelect(ctx context.Context, schemaName string, schema SchemaDefinition, fd filter.FilterData, store StoreHandle, identity IdentityProvider) (Result, error) {
	octx := NewContext(record.OpSelect, schemaName, schema, nil, &fd, p.clock.Now(), store, identity)
	result, err := p.run(ctx, octx)
	if err != nil {
		return result, err
	}
	p.dispatchAsync(octx)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, octx *Context) (Result, error) {
	budget := p.maxPipelineBudget

	for ring := RingDataPrep; ring <= RingEnrich; ring++ {
		if err := ctx.Err(); err != nil {
			return Result{}, &PipelineError{Errors: []error{apperrors.Wrap(err, apperrors.KindSystem, "CANCELLED", "pipeline cancelled before ring 5")}}
		}
		p.runRing(ctx, octx, ring, &budget)
		if len(octx.Errors) > 0 {
			return Result{}, &PipelineError{Errors: octx.Errors}
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{}, &PipelineError{Errors: []error{apperrors.Wrap(err, apperrors.KindSystem, "CANCELLED", "pipeline cancelled before ring 5")}}
	}

	p.runRing(ctx, octx, RingDatabase, &budget)
	if len(octx.Errors) > 0 {
		return Result{}, &PipelineError{Errors: octx.Errors}
	}

	p.runRing(ctx, octx, RingPostDatabase, &budget)
	octx.Warnings = append(octx.Warnings, octx.Errors...)
	octx.Errors = nil

	return Result{Records: octx.Records, Warnings: octx.Warnings}, nil
}

func (p *Pipeline) runRing(ctx context.Context, octx *Context, ring Ring, budget *time.Duration) {
	octx.CurrentRing = ring
	observers := p.registry.selectSync(ring, octx.Operation, octx.SchemaName)
	for _, obs := range observers {
		timeout := obs.Timeout()
		if timeout <= 0 {
			timeout = p.defaultTimeout
		}
		if p.maxPipelineBudget > 0 {
			if *budget <= 0 {
				octx.AddError(apperrors.New(apperrors.KindTimeout, "TIMEOUT", fmt.Sprintf("observer %s: pipeline budget exhausted", obs.Name())))
				continue
			}
			if timeout > *budget {
				timeout = *budget
			}
		}

		start := time.Now()
		err := p.runObserver(ctx, obs, octx, timeout)
		elapsed := time.Since(start)
		if p.maxPipelineBudget > 0 {
			*budget -= elapsed
		}
		if err != nil {
			p.logger.Sugar().Debugw("observer failed", "ring", ring.String(), "observer", obs.Name(), "error", err)
			octx.AddError(err)
		}
	}
}

func (p *Pipeline) runObserver(ctx context.Context, obs Observer, octx *Context, timeout time.Duration) error {
	obsCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- apperrors.New(apperrors.KindSystem, "OBSERVER_PANIC", fmt.Sprintf("observer %s panicked: %v", obs.Name(), r))
			}
		}()
		done <- obs.Execute(obsCtx, octx)
	}()

	select {
	case err := <-done:
		return err
	case <-obsCtx.Done():
		return apperrors.Wrap(obsCtx.Err(), apperrors.KindTimeout, "OBSERVER_TIMEOUT", fmt.Sprintf("observer %s timed out", obs.Name()))
	}
}

func (p *Pipeline) dispatchAsync(octx *Context) {
	if p.executor == nil {
		return
	}
	snap := octx.Snapshot()
	for ring := RingAudit; ring <= RingNotification; ring++ {
		observers := p.registry.selectAsync(ring, snap.Operation(), snap.SchemaName())
		for _, obs := range observers {
			obs := obs
			timeout := obs.Timeout()
			if timeout <= 0 {
				timeout = p.defaultTimeout
			}
			p.executor.Dispatch(func(ctx context.Context) {
				runCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				defer func() {
					if r := recover(); r != nil {
						p.logger.Sugar().Errorw("async observer panicked", "observer", obs.Name(), "recover", r)
					}
				}()
				obs.ExecuteAsync(runCtx, snap)
			})
		}
	}
}
