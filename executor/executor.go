package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/imgcache/internal/singleflight"
	"github.com/IvanBrykalov/imgcache/pipeline"
	"github.com/IvanBrykalov/imgcache/request"
)

// ErrLifecycleDestroyed ends requests whose lifecycle was destroyed before
// or during execution. It is a cancellation: errors.Is(err,
// context.Canceled) holds.
var ErrLifecycleDestroyed = fmt.Errorf("executor: lifecycle destroyed: %w", context.Canceled)

// Options configures an Executor.
type Options struct {
	Pipeline *pipeline.Pipeline
	// Deliver runs target callbacks, e.g. on a UI thread. Nil runs them
	// inline on the executing goroutine.
	Deliver func(func())
	Metrics Metrics
	Logger  *slog.Logger
}

// Executor runs requests through a pipeline.
type Executor struct {
	pipe    *pipeline.Pipeline
	flights singleflight.Group[string, pipeline.ImageData]
	deliver func(func())
	metrics Metrics
	log     *slog.Logger
}

// New returns an executor over opt.Pipeline.
func New(opt Options) (*Executor, error) {
	if opt.Pipeline == nil {
		return nil, platformerrors.New(platformerrors.CodeInvalidConfig, "executor needs a pipeline")
	}
	if opt.Deliver == nil {
		opt.Deliver = func(fn func()) { fn() }
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Executor{
		pipe:    opt.Pipeline,
		deliver: opt.Deliver,
		metrics: opt.Metrics,
		log:     lg.With(slog.String("component", "executor")),
	}, nil
}

// InFlight returns the number of pipeline runs in progress.
func (e *Executor) InFlight() int { return e.flights.Len() }

// Execute runs req and blocks until it finishes. target may be nil.
// Cancellation (ctx, or a destroyed lifecycle) returns an error matching
// context.Canceled or context.DeadlineExceeded.
func (e *Executor) Execute(ctx context.Context, req *request.Request, target Target) (pipeline.ImageData, error) {
	start := time.Now()
	data, err := e.run(ctx, req, target)

	outcome := Success
	switch {
	case err == nil:
	case IsCanceled(err):
		outcome = Canceled
	default:
		outcome = Failure
	}
	e.metrics.Observe(outcome, data.DataFrom, time.Since(start))

	if target != nil {
		switch outcome {
		case Success:
			e.deliver(func() { target.OnSuccess(req, data) })
		case Canceled:
			e.deliver(func() { target.OnCancel(req) })
		default:
			e.deliver(func() { target.OnError(req, err) })
		}
	}
	if outcome == Failure {
		e.log.Debug("request failed", slog.String("uri", req.URI), slog.Any("error", err))
	}
	return data, err
}

func (e *Executor) run(ctx context.Context, req *request.Request, target Target) (pipeline.ImageData, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if req.Lifecycle != nil {
		lc, err := req.Lifecycle.Lifecycle(ctx)
		if err != nil {
			return pipeline.ImageData{}, err
		}
		// Subscribed before waiting so no Destroyed transition slips
		// between the wait and the run.
		unsubscribe := lc.Subscribe(func(s request.LifecycleState) {
			if s == request.Destroyed {
				cancel(ErrLifecycleDestroyed)
			}
		})
		defer unsubscribe()
		active, err := request.AwaitActive(ctx, lc)
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			return pipeline.ImageData{}, e.cause(ctx, err)
		}
		if !active {
			return pipeline.ImageData{}, ErrLifecycleDestroyed
		}
	}

	if target != nil {
		e.deliver(func() { target.OnStart(req) })
	}

	rc, err := e.pipe.Prepare(ctx, req)
	if err != nil {
		return pipeline.ImageData{}, e.cause(ctx, err)
	}
	data, err, shared := e.flights.Do(ctx, rc.ExecutionKey(), func(ctx context.Context) (pipeline.ImageData, error) {
		return e.pipe.Run(ctx, rc)
	})
	if shared {
		e.metrics.Coalesced()
	}
	if err != nil {
		return pipeline.ImageData{}, e.cause(ctx, err)
	}
	return data, nil
}

// cause prefers the reason ctx was cancelled over the bare ctx error.
func (e *Executor) cause(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		if c := context.Cause(ctx); c != nil {
			return c
		}
	}
	return err
}

// IsCanceled reports whether err is a cancellation rather than a failure.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
