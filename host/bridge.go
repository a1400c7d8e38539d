package host

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gobridge-dev/gobridge/application/plugin"
	"github.com/gobridge-dev/gobridge/domain/entities"
	derrors "github.com/gobridge-dev/gobridge/domain/errors"
	"github.com/gobridge-dev/gobridge/internal/abi"
	"github.com/gobridge-dev/gobridge/log"
	"github.com/gobridge-dev/gobridge/wireformat"
)

// Bridge owns the handle table and the buffer arena. Handles are opaque
// uint64 ids minted from a monotonic counter and never reused, so a
// stale handle is detected instead of resolving to a different plugin.
type Bridge struct {
	logger *slog.Logger
	arena  *abi.Arena

	mu      sync.RWMutex
	handles map[uint64]*Handle
	nextID  uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge's own logger, used before a handle has a
// log sink and for boundary-level diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// New creates a Bridge.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		logger:  slog.Default(),
		arena:   abi.NewArena(),
		handles: make(map[uint64]*Handle),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Create registers a plugin and returns its opaque handle. The instance
// starts Installed; nothing runs until Init.
func (b *Bridge) Create(plug plugin.Plugin) (uint64, error) {
	if plug == nil {
		return 0, derrors.InvalidInput("plugin cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handles[id] = &Handle{id: id, plug: plug}
	b.logger.Debug("plugin handle created", "handle", id)
	return id, nil
}

// Init configures and starts the plugin behind handle. configJSON may be
// nil for defaults; cb receives the instance's log records and is owned
// by this handle alone.
func (b *Bridge) Init(ctx context.Context, handle uint64, configJSON []byte, cb log.Callback) error {
	h, ok := b.lookup(handle)
	if !ok {
		return derrors.InvalidHandle(handle)
	}
	return h.init(ctx, configJSON, cb, b.logger)
}

// Call dispatches a typed request and always returns an owned Buffer:
// on success it contains the encoded response envelope, on failure an
// error envelope with the matching code. The host must release the
// buffer exactly once via FreeBuffer.
func (b *Bridge) Call(ctx context.Context, handle uint64, typeTag string, payload []byte) (buf *Buffer) {
	defer b.recoverToBuffer("call", &buf)

	h, ok := b.lookup(handle)
	if !ok {
		return b.errorBuffer(derrors.InvalidHandle(handle))
	}
	data, err := h.call(ctx, typeTag, payload)
	if err != nil {
		return b.errorBuffer(err)
	}
	return b.newBuffer(data, 0)
}

// CallRaw dispatches a fixed-layout binary request. The returned buffer
// holds the raw response struct; failures are conveyed through the
// buffer's error code since there is no envelope on this path.
func (b *Bridge) CallRaw(ctx context.Context, handle uint64, messageID uint32, request []byte) (buf *Buffer) {
	defer b.recoverToBuffer("call_raw", &buf)

	h, ok := b.lookup(handle)
	if !ok {
		return b.errorBuffer(derrors.InvalidHandle(handle))
	}
	data, err := h.callRaw(ctx, messageID, request)
	if err != nil {
		return b.errorBuffer(err)
	}
	return b.newBuffer(data, 0)
}

// FreeBuffer releases a buffer returned by Call or CallRaw. Releasing
// the same buffer twice is an error, not a crash; the arena's record is
// authoritative.
func (b *Bridge) FreeBuffer(buf *Buffer) error {
	if buf == nil {
		return derrors.InvalidInput("buffer cannot be nil")
	}
	if buf.id == 0 {
		return derrors.InvalidInput("buffer was not registered")
	}
	if err := b.arena.Release(buf.id); err != nil {
		return derrors.Wrap(derrors.CodeInvalidInput, "release buffer", err)
	}
	buf.data = nil
	return nil
}

// Shutdown stops the plugin behind handle, draining in-flight requests
// up to its configured timeout. Shutting down an already-stopped plugin
// is a successful no-op.
func (b *Bridge) Shutdown(ctx context.Context, handle uint64) error {
	h, ok := b.lookup(handle)
	if !ok {
		return derrors.InvalidHandle(handle)
	}
	return h.shutdown(ctx)
}

// Dispose removes a terminal handle from the table. Restarting a plugin
// means disposing of its handle and creating a new one; there is no
// in-place restart.
func (b *Bridge) Dispose(handle uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.handles[handle]
	if !ok {
		return derrors.InvalidHandle(handle)
	}
	if s := h.state(); s != entities.StateInstalled && !s.IsTerminal() {
		return derrors.Newf(derrors.CodeInvalidState,
			"cannot dispose handle %d in state %s", handle, s)
	}
	delete(b.handles, handle)
	return nil
}

// SetLogLevel changes the minimum level delivered to the handle's log
// callback. It is advisory: a level set before Init is applied when the
// sink is built, and a valid level never fails.
func (b *Bridge) SetLogLevel(handle uint64, level string) error {
	h, ok := b.lookup(handle)
	if !ok {
		return derrors.InvalidHandle(handle)
	}
	parsed, err := entities.ParseLogLevel(level)
	if err != nil {
		return derrors.InvalidInput(err.Error())
	}
	return h.setLogLevel(parsed)
}

// Metadata returns the plugin's self-description. Publishing metadata is
// optional; plugins that do not implement the capability report an
// invalid-input error.
func (b *Bridge) Metadata(handle uint64) (entities.PluginMetadata, error) {
	h, ok := b.lookup(handle)
	if !ok {
		return entities.PluginMetadata{}, derrors.InvalidHandle(handle)
	}
	d, ok := h.plug.(plugin.Describer)
	if !ok {
		return entities.PluginMetadata{}, derrors.InvalidInput("plugin does not publish metadata")
	}
	return d.Metadata(), nil
}

// State reports the lifecycle state behind handle. Unknown handles get
// the StateInvalid sentinel; the query never dereferences anything.
func (b *Bridge) State(handle uint64) entities.State {
	h, ok := b.lookup(handle)
	if !ok {
		return entities.StateInvalid
	}
	return h.state()
}

// RejectedCount returns the handle's monotonic gate rejection counter.
// Unknown handles report 0.
func (b *Bridge) RejectedCount(handle uint64) uint64 {
	h, ok := b.lookup(handle)
	if !ok {
		return 0
	}
	return h.rejectedCount()
}

// OutstandingBuffers returns the number of unreleased buffers. Useful
// for leak checks in host test suites.
func (b *Bridge) OutstandingBuffers() int {
	return b.arena.Outstanding()
}

func (b *Bridge) lookup(handle uint64) (*Handle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.handles[handle]
	return h, ok
}

// newBuffer registers data with the arena and wraps it. Arena exhaustion
// degrades to an unregistered error buffer rather than losing the
// response code.
func (b *Bridge) newBuffer(data []byte, code derrors.Code) *Buffer {
	id, err := b.arena.Register(len(data), cap(data))
	if err != nil {
		b.logger.Error("buffer registration failed", "err", err)
		return &Buffer{data: nil, id: 0, code: derrors.CodeInternal}
	}
	return &Buffer{data: data, id: id, code: code}
}

// errorBuffer encodes err as an owned buffer carrying its code and, for
// the typed path, an error envelope as payload.
func (b *Bridge) errorBuffer(err error) *Buffer {
	code := derrors.CodeOf(err)
	payload, encErr := encodeErrorEnvelope(err)
	if encErr != nil {
		payload = nil
	}
	return b.newBuffer(payload, code)
}

// recoverToBuffer is the outermost panic guard: nothing unwinds past a
// Bridge entry point. A caught panic becomes an internal error buffer.
func (b *Bridge) recoverToBuffer(entry string, buf **Buffer) {
	if r := recover(); r != nil {
		b.logger.Error("panic crossed into boundary guard", "entry", entry, "panic", r)
		*buf = b.errorBuffer(derrors.Newf(derrors.CodeInternal, "panic: %v", r))
	}
}

// encodeErrorEnvelope renders err as an error response envelope so the
// typed path always hands back well-formed bytes.
func encodeErrorEnvelope(err error) ([]byte, error) {
	return wireformat.EncodeResponse(wireformat.FailureFrom(err))
}
