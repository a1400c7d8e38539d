// Package testutil provides shared fixtures for boundary and runtime
// tests, chiefly an in-process plugin exercising both dispatch paths.
package testutil

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gobridge-dev/gobridge/application/plugin"
	"github.com/gobridge-dev/gobridge/application/schema"
	"github.com/gobridge-dev/gobridge/domain/entities"
	derrors "github.com/gobridge-dev/gobridge/domain/errors"
	"github.com/gobridge-dev/gobridge/wireformat"
)

// EchoRequest is the payload for the echo operation.
type EchoRequest struct {
	Message string `json:"message"`
}

// EchoResponse reports the echoed message and its length in bytes.
type EchoResponse struct {
	Echoed string `json:"echoed"`
	Length int    `json:"length"`
}

// GreetRequest is the payload for the greet operation.
type GreetRequest struct {
	Name string `json:"name"`
}

// GreetResponse is the greet operation's reply.
type GreetResponse struct {
	Greeting string `json:"greeting"`
}

// AddRequest is the payload for math.add.
type AddRequest struct {
	A int64 `json:"a"`
	B int64 `json:"b"`
}

// AddResponse is math.add's reply.
type AddResponse struct {
	Sum int64 `json:"sum"`
}

// SleepRequest is the payload for test.sleep, used to hold gate permits
// open in concurrency tests.
type SleepRequest struct {
	DurationMS int `json:"duration_ms"`
}

// SleepResponse is test.sleep's reply.
type SleepResponse struct {
	SleptMS int `json:"slept_ms"`
}

// KVRequest is the payload for kv.get on the JSON path.
type KVRequest struct {
	Key   string `json:"key"`
	Flags uint32 `json:"flags"`
}

// KVResponse is kv.get's reply. TTL and cache-hit mirror the binary
// KeyQueryResponse fields so the two paths can be compared.
type KVResponse struct {
	Value      string `json:"value"`
	TTLSeconds uint32 `json:"ttl_seconds"`
	CacheHit   bool   `json:"cache_hit"`
}

// TestPlugin is an in-process plugin covering every dispatch shape:
// JSON operations, a binary kv path answering the same store, start and
// stop hooks that can be forced to fail, and panic triggers.
type TestPlugin struct {
	registry *plugin.Registry

	// FailStart and FailStop make the corresponding hook return an
	// error; PanicStart makes OnStart panic.
	FailStart  bool
	FailStop   bool
	PanicStart bool

	mu      sync.Mutex
	store   map[string]string
	started bool
	stopped bool
}

// NewTestPlugin builds the plugin with its full operation set
// registered.
func NewTestPlugin() *TestPlugin {
	p := &TestPlugin{
		store: map[string]string{
			"test_key": "test_value",
			"greeting": "hello from the store",
		},
	}

	reg, err := plugin.NewRegistry(
		plugin.WithTypeHandler("echo", plugin.NewJSONHandler(p.echo)),
		plugin.WithTypeHandler("greet", plugin.NewJSONHandler(p.greet)),
		plugin.WithTypeHandler("math.add", plugin.NewJSONHandler(p.add)),
		plugin.WithTypeHandler("test.sleep", plugin.NewJSONHandler(p.sleep)),
		plugin.WithTypeHandler("kv.get", plugin.NewJSONHandler(p.kvGet)),
		plugin.WithTypeHandler("test.panic", plugin.Handler(func(ctx context.Context, pctx *plugin.Context, payload []byte) ([]byte, error) {
			panic("handler exploded on purpose")
		})),
		plugin.WithRawHandler(wireformat.MsgKeyQuery, p.kvGetRaw),
		plugin.WithRawHandler(wireformat.MsgPing, pingRaw),
		plugin.WithMiddleware(plugin.PanicRecoveryMiddleware()),
	)
	if err != nil {
		panic(fmt.Sprintf("testutil: building registry: %v", err))
	}
	p.registry = reg
	return p
}

// Metadata publishes the plugin's description with a schema for its
// config section.
func (p *TestPlugin) Metadata() entities.PluginMetadata {
	meta := entities.PluginMetadata{
		Name:           "test-plugin",
		Version:        "0.0.1",
		SupportedTypes: p.registry.Types(),
	}
	meta, err := schema.AttachConfigSchema(meta, struct {
		Greeting string `json:"greeting,omitempty"`
	}{})
	if err != nil {
		return meta
	}
	return meta
}

// Put stores a key for later retrieval through either dispatch path.
func (p *TestPlugin) Put(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store[key] = value
}

// Started reports whether OnStart ran successfully.
func (p *TestPlugin) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Stopped reports whether OnStop ran successfully.
func (p *TestPlugin) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (p *TestPlugin) OnStart(ctx context.Context, pctx *plugin.Context) error {
	if p.PanicStart {
		panic("start hook exploded on purpose")
	}
	if p.FailStart {
		return fmt.Errorf("start hook configured to fail")
	}
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	return nil
}

func (p *TestPlugin) HandleRequest(ctx context.Context, pctx *plugin.Context, typeTag string, payload []byte) ([]byte, error) {
	return p.registry.Dispatch(ctx, pctx, typeTag, payload)
}

func (p *TestPlugin) HandleRaw(ctx context.Context, pctx *plugin.Context, messageID uint32, request []byte) ([]byte, error) {
	return p.registry.DispatchRaw(ctx, pctx, messageID, request)
}

func (p *TestPlugin) OnStop(ctx context.Context, pctx *plugin.Context) error {
	if p.FailStop {
		return fmt.Errorf("stop hook configured to fail")
	}
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	return nil
}

func (p *TestPlugin) echo(ctx context.Context, pctx *plugin.Context, req EchoRequest) (EchoResponse, error) {
	return EchoResponse{Echoed: req.Message, Length: len(req.Message)}, nil
}

func (p *TestPlugin) greet(ctx context.Context, pctx *plugin.Context, req GreetRequest) (GreetResponse, error) {
	if req.Name == "" {
		return GreetResponse{}, derrors.InvalidInput("name cannot be empty")
	}
	return GreetResponse{Greeting: "Hello, " + req.Name + "!"}, nil
}

func (p *TestPlugin) add(ctx context.Context, pctx *plugin.Context, req AddRequest) (AddResponse, error) {
	return AddResponse{Sum: req.A + req.B}, nil
}

func (p *TestPlugin) sleep(ctx context.Context, pctx *plugin.Context, req SleepRequest) (SleepResponse, error) {
	select {
	case <-time.After(time.Duration(req.DurationMS) * time.Millisecond):
	case <-ctx.Done():
		return SleepResponse{}, ctx.Err()
	}
	return SleepResponse{SleptMS: req.DurationMS}, nil
}

func (p *TestPlugin) kvGet(ctx context.Context, pctx *plugin.Context, req KVRequest) (KVResponse, error) {
	p.mu.Lock()
	value, ok := p.store[req.Key]
	p.mu.Unlock()
	if !ok {
		return KVResponse{}, derrors.InvalidInput("key not found: " + req.Key)
	}
	return KVResponse{Value: value, TTLSeconds: 300, CacheHit: true}, nil
}

// kvGetRaw answers the same store over the fixed-layout path so tests
// can assert JSON and binary dispatch agree.
func (p *TestPlugin) kvGetRaw(ctx context.Context, pctx *plugin.Context, request []byte) ([]byte, error) {
	var req wireformat.KeyQueryRequest
	if err := req.UnmarshalBinary(request); err != nil {
		return nil, err
	}

	p.mu.Lock()
	value, ok := p.store[req.KeyString()]
	p.mu.Unlock()
	if !ok {
		return nil, derrors.InvalidInput("key not found: " + req.KeyString())
	}

	resp, err := wireformat.NewKeyQueryResponse(value, 300, true)
	if err != nil {
		return nil, err
	}
	return resp.MarshalBinary()
}

func pingRaw(ctx context.Context, pctx *plugin.Context, request []byte) ([]byte, error) {
	var req wireformat.PingRequest
	if err := req.UnmarshalBinary(request); err != nil {
		return nil, err
	}
	resp := wireformat.PingResponse{Version: wireformat.BinaryVersion, Sequence: req.Sequence}
	return resp.MarshalBinary()
}

// DecodeUint32LE reads a little-endian u32, for tests poking at raw
// layouts without going through the struct types.
func DecodeUint32LE(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}
