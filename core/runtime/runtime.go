// Package runtime is the call boundary of the contract. Each call runs
// against an overlay of the backing store; the overlay is committed in one
// batch if the call succeeds and dropped otherwise, so a failed call leaves
// no writes behind.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"treekv/core/events"
	"treekv/core/types"
	"treekv/native/collections"
	"treekv/native/common"
	"treekv/observability"
	"treekv/observability/logging"
	"treekv/storage"
)

const (
	tracerName = "treekv/core/runtime"
	// moduleName pauses every mutating method at once.
	moduleName = "collections"
)

// Call is one request against the contract. Caller is the identity the call
// executes on behalf of; Args is the method's JSON argument object.
type Call struct {
	Caller string
	Method string
	Args   json.RawMessage
}

// Runtime executes calls one at a time against a backing store.
type Runtime struct {
	mu      sync.Mutex
	db      storage.Database
	logger  *slog.Logger
	metrics *observability.CallMetrics
	tracer  trace.Tracer
	logArgs bool
	pauses  common.PauseView
}

type Option func(*Runtime)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(metrics *observability.CallMetrics) Option {
	return func(r *Runtime) { r.metrics = metrics }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runtime) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithArgLogging includes raw call arguments in the call log instead of the
// redaction placeholder.
func WithArgLogging(enabled bool) Option {
	return func(r *Runtime) { r.logArgs = enabled }
}

// WithPauses rejects mutating calls whose method name, or the module name
// "collections", is paused in view.
func WithPauses(view common.PauseView) Option {
	return func(r *Runtime) { r.pauses = view }
}

// New returns a runtime over db. The runtime does not own db. Without
// WithMetrics, calls are counted in observability.Calls().
func New(db storage.Database, opts ...Option) *Runtime {
	r := &Runtime{
		db:      db,
		logger:  slog.Default(),
		metrics: observability.Calls(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Call executes one call to completion. Every error, including structural
// corruption of the store, is reported through the returned Outcome.
func (r *Runtime) Call(ctx context.Context, call Call) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	out := Outcome{
		CallID: uuid.NewString(),
		Method: call.Method,
		Caller: call.Caller,
	}
	ctx, span := r.tracer.Start(ctx, "treekv.call", trace.WithAttributes(
		attribute.String("treekv.call_id", out.CallID),
		attribute.String("treekv.method", call.Method),
		attribute.String("treekv.caller", call.Caller),
	))
	defer span.End()

	result, writes, evts, err := r.execute(ctx, call)
	out.Status = classify(err)
	if err != nil {
		out.Message = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(out.Status))
	} else {
		out.Result = result
		out.Writes = writes
		out.Events = evts
	}
	span.SetAttributes(attribute.String("treekv.status", string(out.Status)))

	elapsed := time.Since(start)
	r.metrics.Observe(call.Method, string(out.Status), elapsed, out.Writes)
	r.logOutcome(ctx, out, call.Args, elapsed)
	return out
}

func (r *Runtime) execute(ctx context.Context, call Call) (json.RawMessage, int, []*types.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, nil, err
	}
	h, ok := methods[call.Method]
	if !ok {
		return nil, 0, nil, fmt.Errorf("%w: %q", ErrUnknownMethod, call.Method)
	}
	caller, err := types.ParseAccountID(call.Caller)
	if err != nil {
		return nil, 0, nil, err
	}
	if h.mutating {
		if err := common.Guard(r.pauses, moduleName); err != nil {
			return nil, 0, nil, fmt.Errorf("%s: %w", moduleName, err)
		}
		if err := common.Guard(r.pauses, call.Method); err != nil {
			return nil, 0, nil, fmt.Errorf("%s: %w", call.Method, err)
		}
	}

	overlay := storage.NewOverlay(r.db)
	defer overlay.Discard()

	recorder := &events.Recorder{}
	inv := &invocation{store: overlay, caller: caller, args: call.Args}
	if !h.init {
		contract, err := collections.Load(overlay)
		if err != nil {
			return nil, 0, nil, err
		}
		contract.SetEmitter(recorder)
		inv.contract = contract
	}

	value, err := run(h, inv)
	if err != nil {
		return nil, 0, nil, err
	}

	var result json.RawMessage
	if !h.mutating || value != nil {
		if result, err = json.Marshal(value); err != nil {
			return nil, 0, nil, fmt.Errorf("runtime: encode result: %w", err)
		}
	}

	writes := 0
	if h.mutating {
		writes = overlay.Pending()
		if err := overlay.Commit(); err != nil {
			return nil, 0, nil, fmt.Errorf("runtime: commit: %w", err)
		}
	}
	return result, writes, eventsOf(recorder), nil
}

func run(h handler, inv *invocation) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("runtime: call aborted: %v", p)
		}
	}()
	return h.run(inv)
}

func eventsOf(rec *events.Recorder) []*types.Event {
	var out []*types.Event
	for _, evt := range rec.Events() {
		if typed, ok := evt.(interface{ Event() *types.Event }); ok {
			if e := typed.Event(); e != nil {
				out = append(out, e)
			}
		}
	}
	return out
}

func (r *Runtime) logOutcome(ctx context.Context, out Outcome, args json.RawMessage, elapsed time.Duration) {
	attrs := []slog.Attr{
		slog.String("call_id", out.CallID),
		slog.String("method", out.Method),
		slog.String("caller", out.Caller),
		slog.String("status", string(out.Status)),
		slog.Int("writes", out.Writes),
		slog.Duration("duration", elapsed),
	}
	if r.logArgs {
		attrs = append(attrs, slog.String("args", string(args)))
	} else {
		attrs = append(attrs, logging.MaskField("args", string(args)))
	}
	if out.OK() {
		r.logger.LogAttrs(ctx, slog.LevelInfo, "call finished", attrs...)
		return
	}
	attrs = append(attrs, slog.String("error", out.Message))
	r.logger.LogAttrs(ctx, slog.LevelWarn, "call aborted", attrs...)
}
