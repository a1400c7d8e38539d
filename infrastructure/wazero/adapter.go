package wazero

import (
	"context"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/gobridge-dev/gobridge/application/plugin"
	derrors "github.com/gobridge-dev/gobridge/domain/errors"
	"github.com/gobridge-dev/gobridge/domain/ports"
	"github.com/gobridge-dev/gobridge/wireformat"
)

// Guest export names forming the WASM plugin ABI. ExportCall and
// ExportAllocate are mandatory; the rest are optional capabilities
// probed at load time.
const (
	ExportAllocate      = "allocate"
	ExportCall          = "plugin_call"
	ExportStart         = "plugin_start"
	ExportStop          = "plugin_stop"
	ExportCallRaw       = "plugin_call_raw"
	ExportRejectedCount = "plugin_get_rejected_count"
)

// DefaultMaxResponseSize bounds responses read back from guest memory.
const DefaultMaxResponseSize = 16 * 1024 * 1024 // 16 MB

// Runtime wraps a wazero runtime configured for plugin modules.
type Runtime struct {
	rt wazero.Runtime
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*runtimeConfig)

type runtimeConfig struct {
	wasi bool
}

// WithWASI controls whether WASI preview1 imports are available to guest
// modules. Enabled by default; plugins built with TinyGo and Go need it.
func WithWASI(enabled bool) RuntimeOption {
	return func(c *runtimeConfig) {
		c.wasi = enabled
	}
}

// NewRuntime creates a Runtime ready to load plugin modules.
func NewRuntime(ctx context.Context, opts ...RuntimeOption) *Runtime {
	cfg := runtimeConfig{wasi: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	rt := wazero.NewRuntime(ctx)
	if cfg.wasi {
		wasi_snapshot_preview1.MustInstantiate(ctx, rt)
	}
	return &Runtime{rt: rt}
}

// Close releases the runtime and every module instantiated from it.
func (r *Runtime) Close(ctx context.Context) error {
	return r.rt.Close(ctx)
}

// Load reads a compiled WASM plugin from path, instantiates it, and
// resolves its exports. Missing mandatory exports fail the load; missing
// optional exports only narrow the module's Capabilities.
func (r *Runtime) Load(ctx context.Context, path string) (*Module, error) {
	binary, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin module: %w", err)
	}

	mod, err := r.rt.Instantiate(ctx, binary)
	if err != nil {
		return nil, fmt.Errorf("instantiate plugin module: %w", err)
	}

	m := &Module{
		mod:        mod,
		allocateFn: mod.ExportedFunction(ExportAllocate),
		callFn:     mod.ExportedFunction(ExportCall),
		startFn:    mod.ExportedFunction(ExportStart),
		stopFn:     mod.ExportedFunction(ExportStop),
		rawFn:      mod.ExportedFunction(ExportCallRaw),
		rejectedFn: mod.ExportedFunction(ExportRejectedCount),
	}
	if m.allocateFn == nil {
		_ = mod.Close(ctx)
		return nil, fmt.Errorf("plugin module %s does not export %q", path, ExportAllocate)
	}
	if m.callFn == nil {
		_ = mod.Close(ctx)
		return nil, fmt.Errorf("plugin module %s does not export %q", path, ExportCall)
	}
	return m, nil
}

// LoadBundle resolves a plugin artifact from a bundle manifest and loads
// it. Resolution verifies the artifact checksum before anything is
// instantiated.
func (r *Runtime) LoadBundle(ctx context.Context, resolver ports.BundleResolver, manifestPath, platform string) (*Module, error) {
	artifact, err := resolver.Resolve(manifestPath, platform)
	if err != nil {
		return nil, fmt.Errorf("resolve plugin bundle: %w", err)
	}
	return r.Load(ctx, artifact.Path)
}

// Capabilities reports which optional parts of the guest ABI a module
// implements. Absence of an export means the feature is unsupported, not
// that the module is broken.
type Capabilities struct {
	Start         bool
	Stop          bool
	Raw           bool
	RejectedCount bool
}

// Module is an instantiated WASM plugin adapted to the Plugin interface.
type Module struct {
	mod        api.Module
	allocateFn api.Function
	callFn     api.Function
	startFn    api.Function
	stopFn     api.Function
	rawFn      api.Function
	rejectedFn api.Function
}

var _ plugin.Plugin = (*Module)(nil)

// Capabilities returns the module's probed optional exports.
func (m *Module) Capabilities() Capabilities {
	return Capabilities{
		Start:         m.startFn != nil,
		Stop:          m.stopFn != nil,
		Raw:           m.rawFn != nil,
		RejectedCount: m.rejectedFn != nil,
	}
}

// Raw returns the module as a RawPlugin when it exports the binary call
// path, and nil otherwise. Callers use this instead of a bare type
// assertion, which would always succeed on *Module.
func (m *Module) Raw() plugin.RawPlugin {
	if m.rawFn == nil {
		return nil
	}
	return (*rawModule)(m)
}

// OnStart passes the plugin config to the guest's start export. Modules
// without one start implicitly.
func (m *Module) OnStart(ctx context.Context, pctx *plugin.Context) error {
	if m.startFn == nil {
		return nil
	}
	cfgBytes, err := wireformat.JSONCodec{}.Encode(pctx.Config())
	if err != nil {
		return derrors.Initialization(err)
	}
	packed, err := m.writeBytes(ctx, cfgBytes)
	if err != nil {
		return derrors.Initialization(err)
	}
	results, err := m.startFn.Call(ctx, packed)
	if err != nil {
		return derrors.Initialization(err)
	}
	if len(results) > 0 && results[0] != 0 {
		return derrors.Newf(derrors.CodeInitialization,
			"guest start hook returned error code %d", results[0])
	}
	return nil
}

// HandleRequest sends a request envelope into the guest and decodes the
// response envelope it returns.
func (m *Module) HandleRequest(ctx context.Context, _ *plugin.Context, typeTag string, payload []byte) ([]byte, error) {
	env := wireformat.RequestEnvelope{Type: typeTag, Payload: payload}
	reqBytes, err := wireformat.JSONCodec{}.Encode(env)
	if err != nil {
		return nil, err
	}

	respBytes, err := m.roundTrip(ctx, m.callFn, reqBytes)
	if err != nil {
		return nil, err
	}
	resp, err := wireformat.DecodeResponse(respBytes)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, resp.Err()
	}
	return resp.Payload, nil
}

// OnStop invokes the guest's stop export when present.
func (m *Module) OnStop(ctx context.Context, _ *plugin.Context) error {
	if m.stopFn == nil {
		return nil
	}
	results, err := m.stopFn.Call(ctx)
	if err != nil {
		return derrors.Shutdown(err)
	}
	if len(results) > 0 && results[0] != 0 {
		return derrors.Newf(derrors.CodeShutdown,
			"guest stop hook returned error code %d", results[0])
	}
	return nil
}

// RejectedCount reads the guest's own rejection counter. Modules without
// the export report ErrUnsupported.
func (m *Module) RejectedCount(ctx context.Context) (uint64, error) {
	if m.rejectedFn == nil {
		return 0, derrors.New(derrors.CodeInvalidInput,
			"module does not export a rejected-request counter")
	}
	results, err := m.rejectedFn.Call(ctx)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0], nil
}

// Close releases the module instance.
func (m *Module) Close(ctx context.Context) error {
	return m.mod.Close(ctx)
}

// rawModule is the RawPlugin view over a module that exports the binary
// call path.
type rawModule Module

var _ plugin.RawPlugin = (*rawModule)(nil)

func (m *rawModule) OnStart(ctx context.Context, pctx *plugin.Context) error {
	return (*Module)(m).OnStart(ctx, pctx)
}

func (m *rawModule) HandleRequest(ctx context.Context, pctx *plugin.Context, typeTag string, payload []byte) ([]byte, error) {
	return (*Module)(m).HandleRequest(ctx, pctx, typeTag, payload)
}

func (m *rawModule) OnStop(ctx context.Context, pctx *plugin.Context) error {
	return (*Module)(m).OnStop(ctx, pctx)
}

// HandleRaw sends a fixed-layout request through the guest's binary
// export.
func (m *rawModule) HandleRaw(ctx context.Context, _ *plugin.Context, messageID uint32, request []byte) ([]byte, error) {
	mod := (*Module)(m)
	packed, err := mod.writeBytes(ctx, request)
	if err != nil {
		return nil, derrors.Wrap(derrors.CodeInternal, "write raw request to guest", err)
	}
	results, err := mod.rawFn.Call(ctx, uint64(messageID), packed)
	if err != nil {
		return nil, derrors.Handler(err)
	}
	if len(results) == 0 || results[0] == 0 {
		return nil, derrors.New(derrors.CodeHandler, "guest returned no raw response")
	}
	return mod.readPacked(results[0])
}

// roundTrip writes request bytes into the guest, invokes fn, and reads
// the packed response back out.
func (m *Module) roundTrip(ctx context.Context, fn api.Function, request []byte) ([]byte, error) {
	packed, err := m.writeBytes(ctx, request)
	if err != nil {
		return nil, derrors.Wrap(derrors.CodeInternal, "write request to guest", err)
	}
	results, err := fn.Call(ctx, packed)
	if err != nil {
		return nil, derrors.Handler(err)
	}
	if len(results) == 0 || results[0] == 0 {
		return nil, derrors.New(derrors.CodeHandler, "guest returned no response")
	}
	return m.readPacked(results[0])
}

// writeBytes allocates guest memory via the allocate export and copies
// data into it, returning the packed ptr+len.
func (m *Module) writeBytes(ctx context.Context, data []byte) (uint64, error) {
	if len(data) == 0 {
		return 0, nil
	}
	results, err := m.allocateFn.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("guest allocate failed: %w", err)
	}
	if len(results) == 0 || results[0] == 0 {
		return 0, fmt.Errorf("guest allocate returned null")
	}
	ptr := uint32(results[0])
	if !m.mod.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("write to guest memory at %d failed", ptr)
	}
	return packPtrLen(ptr, uint32(len(data))), nil
}

// readPacked reads a packed ptr+len response from guest memory.
func (m *Module) readPacked(packed uint64) ([]byte, error) {
	ptr, length := unpackPtrLen(packed)
	if ptr == 0 || length == 0 {
		return nil, derrors.New(derrors.CodeHandler, "null response from guest")
	}
	if length > DefaultMaxResponseSize {
		return nil, derrors.Newf(derrors.CodeInvalidInput,
			"guest response of %d bytes exceeds limit %d", length, DefaultMaxResponseSize)
	}
	data, ok := m.mod.Memory().Read(ptr, length)
	if !ok {
		return nil, derrors.New(derrors.CodeInternal, "read response from guest memory failed")
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// packPtrLen packs a pointer and length into a single i64.
// Upper 32 bits: pointer, lower 32 bits: length.
func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// unpackPtrLen unpacks a pointer and length from a packed i64.
func unpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> 32)
	length = uint32(packed & 0xFFFFFFFF)
	return ptr, length
}
