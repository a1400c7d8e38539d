package host

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gobridge-dev/gobridge/application/plugin"
	"github.com/gobridge-dev/gobridge/domain/entities"
	derrors "github.com/gobridge-dev/gobridge/domain/errors"
	"github.com/gobridge-dev/gobridge/gate"
	"github.com/gobridge-dev/gobridge/internal/workerpool"
	"github.com/gobridge-dev/gobridge/log"
	"github.com/gobridge-dev/gobridge/wireformat"
)

// Handle is one plugin instance owned by a Bridge: the plugin itself,
// its lifecycle context, concurrency gate, worker pool, and log sink.
//
// Init and Shutdown serialize on mu; everything else reads the atomic
// pointers, so state and counter queries never block behind a start hook
// or a shutdown drain.
type Handle struct {
	id   uint64
	plug plugin.Plugin

	mu sync.Mutex // serializes Init and Shutdown

	pctx atomic.Pointer[plugin.Context]
	gate atomic.Pointer[gate.Gate]
	pool atomic.Pointer[workerpool.Pool]
	sink atomic.Pointer[log.Sink]

	// pendingLevel holds a log level requested before the sink exists,
	// encoded as level+1 so the zero value means none.
	pendingLevel atomic.Int32
}

// state reports the instance's lifecycle state. Before Init there is no
// context yet; the instance is Installed by definition.
func (h *Handle) state() entities.State {
	pctx := h.pctx.Load()
	if pctx == nil {
		return entities.StateInstalled
	}
	return pctx.State()
}

// init parses and validates the config, builds the instance machinery,
// and runs the plugin's start hook. On any failure the instance lands in
// Failed and subsequent calls fail fast.
func (h *Handle) init(ctx context.Context, configJSON []byte, cb log.Callback, base *slog.Logger) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if pctx := h.pctx.Load(); pctx != nil {
		return derrors.Newf(derrors.CodeInvalidState,
			"plugin %d is already initialized (%s)", h.id, pctx.State())
	}

	cfg, err := entities.ConfigFromJSON(configJSON)
	if err != nil {
		h.failEarly(cb, base)
		return derrors.Initialization(err)
	}
	if err := validateStruct(&cfg); err != nil {
		h.failEarly(cb, base)
		return derrors.Initialization(err)
	}

	level, err := entities.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		h.failEarly(cb, base)
		return derrors.Initialization(err)
	}
	// A level requested before initialization wins over the config
	// document.
	if p := h.pendingLevel.Load(); p != 0 {
		level = entities.LogLevel(p - 1)
	}

	sink := log.NewSink(cb, level)
	logger := log.NewLogger(sink)
	pctx := plugin.NewContext(cfg, logger)
	h.sink.Store(sink)
	h.gate.Store(gate.New(cfg.MaxConcurrentOps))
	h.pool.Store(workerpool.New(cfg.Workers()))
	// Stored last: once state() observes a context, the rest of the
	// machinery is visible too.
	h.pctx.Store(pctx)

	if err := pctx.Transition(entities.StateStarting); err != nil {
		return err
	}
	if err := h.runStart(ctx, pctx); err != nil {
		pctx.Fail()
		h.pool.Load().Close(0)
		return derrors.Initialization(err)
	}
	if err := pctx.Transition(entities.StateActive); err != nil {
		return err
	}
	logger.Info("plugin started",
		"workers", cfg.Workers(), "max_concurrent_ops", cfg.MaxConcurrentOps)
	return nil
}

// failEarly records a Failed instance for configs that never produced a
// context, so later calls report invalid state instead of installed.
func (h *Handle) failEarly(cb log.Callback, base *slog.Logger) {
	h.sink.Store(log.NewSink(cb, entities.LevelInfo))
	pctx := plugin.NewContext(entities.DefaultPluginConfig(), base)
	pctx.Fail()
	h.pctx.Store(pctx)
}

// runStart invokes OnStart with panic containment.
func (h *Handle) runStart(ctx context.Context, pctx *plugin.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = derrors.HandlerPanic(r)
		}
	}()
	return h.plug.OnStart(ctx, pctx)
}

// call dispatches one typed request and returns the encoded response
// envelope. The gate permit is released on every exit path, panics
// included, because the release is deferred immediately after a
// successful acquire.
func (h *Handle) call(ctx context.Context, typeTag string, payload []byte) ([]byte, error) {
	if typeTag == "" {
		return nil, derrors.InvalidInput("type tag cannot be empty")
	}
	pctx := h.pctx.Load()
	if pctx == nil || !pctx.State().CanHandleRequests() {
		return nil, derrors.NotActive(h.state())
	}
	g := h.gate.Load()
	if !g.TryAcquire() {
		return nil, derrors.TooManyRequests(g.Limit())
	}
	defer g.Release()

	// Re-check after taking the permit: shutdown may have started
	// between the first check and the acquire.
	if s := pctx.State(); !s.CanHandleRequests() {
		return nil, derrors.NotActive(s)
	}

	requestID := uuid.NewString()
	result, err := h.pool.Load().Do(ctx, func(ctx context.Context) ([]byte, error) {
		return h.plug.HandleRequest(ctx, pctx, typeTag, payload)
	})

	var env wireformat.ResponseEnvelope
	if err != nil {
		env = wireformat.FailureFrom(normalizeHandlerError(err))
	} else {
		env = wireformat.Success(result)
	}
	return wireformat.EncodeResponse(env.WithRequestID(requestID))
}

// callRaw dispatches one binary request. The response bytes are the raw
// fixed-layout struct, not an envelope; errors travel in the buffer's
// error code. The lifecycle check comes first, so a stopped plugin
// reports not-active regardless of its capabilities.
func (h *Handle) callRaw(ctx context.Context, messageID uint32, request []byte) ([]byte, error) {
	pctx := h.pctx.Load()
	if pctx == nil || !pctx.State().CanHandleRequests() {
		return nil, derrors.NotActive(h.state())
	}
	raw, ok := h.plug.(plugin.RawPlugin)
	if !ok {
		return nil, derrors.New(derrors.CodeInvalidInput,
			"plugin does not support binary dispatch")
	}
	g := h.gate.Load()
	if !g.TryAcquire() {
		return nil, derrors.TooManyRequests(g.Limit())
	}
	defer g.Release()

	if s := pctx.State(); !s.CanHandleRequests() {
		return nil, derrors.NotActive(s)
	}

	return h.pool.Load().Do(ctx, func(ctx context.Context) ([]byte, error) {
		return raw.HandleRaw(ctx, pctx, messageID, request)
	})
}

// shutdown drains in-flight requests up to the configured timeout, runs
// the stop hook, and closes the instance machinery. It is idempotent:
// shutting down a terminal instance is a successful no-op.
func (h *Handle) shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	pctx := h.pctx.Load()
	if pctx == nil {
		return derrors.New(derrors.CodeInvalidState,
			"plugin was never initialized")
	}
	if pctx.State().IsTerminal() {
		return nil
	}
	if err := pctx.Transition(entities.StateStopping); err != nil {
		return err
	}

	logger := pctx.Logger()
	timeout := pctx.Config().ShutdownTimeout()
	g := h.gate.Load()

	drainCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := g.Drain(drainCtx); err != nil {
		// Stragglers are abandoned, not killed; shutdown proceeds.
		logger.Warn("shutdown drain timed out, abandoning in-flight requests",
			"timeout", timeout, "in_flight", g.InFlight())
	}

	stopErr := h.runStop(ctx, pctx)
	if err := h.pool.Load().Close(timeout); err != nil {
		logger.Warn("worker pool did not drain before deadline")
	}

	sink := h.sink.Load()
	if stopErr != nil {
		pctx.Fail()
		sink.Close()
		return derrors.Shutdown(stopErr)
	}
	// The callback must go quiet no later than the Stopped transition,
	// so the final record and the sink close precede it.
	logger.Info("plugin stopped")
	sink.Close()
	return pctx.Transition(entities.StateStopped)
}

// runStop invokes OnStop with panic containment.
func (h *Handle) runStop(ctx context.Context, pctx *plugin.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = derrors.HandlerPanic(r)
		}
	}()
	return h.plug.OnStop(ctx, pctx)
}

// setLogLevel records the requested minimum level. Before the sink
// exists the level is stashed and applied at initialization; the call is
// advisory and never fails.
func (h *Handle) setLogLevel(level entities.LogLevel) error {
	h.pendingLevel.Store(int32(level) + 1)
	if sink := h.sink.Load(); sink != nil {
		sink.SetLevel(level)
	}
	return nil
}

// rejectedCount returns the gate's monotonic rejection counter; 0 before
// initialization.
func (h *Handle) rejectedCount() uint64 {
	g := h.gate.Load()
	if g == nil {
		return 0
	}
	return g.Rejected()
}

// normalizeHandlerError ensures handler failures carry the handler code
// while preserving already-coded errors.
func normalizeHandlerError(err error) error {
	var pe *derrors.PluginError
	if stdErrors.As(err, &pe) {
		return err
	}
	return derrors.Handler(err)
}
