package host

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobridge-dev/gobridge/domain/entities"
	derrors "github.com/gobridge-dev/gobridge/domain/errors"
	"github.com/gobridge-dev/gobridge/internal/testutil"
	"github.com/gobridge-dev/gobridge/wireformat"
)

func newActive(t *testing.T, config string) (*Bridge, uint64, *testutil.TestPlugin) {
	t.Helper()
	b := New()
	p := testutil.NewTestPlugin()
	handle, err := b.Create(p)
	require.NoError(t, err)
	var cfg []byte
	if config != "" {
		cfg = []byte(config)
	}
	require.NoError(t, b.Init(context.Background(), handle, cfg, nil))
	require.Equal(t, entities.StateActive, b.State(handle))
	return b, handle, p
}

func callJSON(t *testing.T, b *Bridge, handle uint64, tag string, req any) (wireformat.ResponseEnvelope, derrors.Code) {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	buf := b.Call(context.Background(), handle, tag, payload)
	require.NotNil(t, buf)
	code := buf.ErrorCode()
	var env wireformat.ResponseEnvelope
	if len(buf.Bytes()) > 0 {
		env, err = wireformat.DecodeResponse(buf.Bytes())
		require.NoError(t, err)
	}
	require.NoError(t, b.FreeBuffer(buf))
	return env, code
}

func TestBridgeLifecycle(t *testing.T) {
	b := New()
	p := testutil.NewTestPlugin()

	handle, err := b.Create(p)
	require.NoError(t, err)
	assert.Equal(t, entities.StateInstalled, b.State(handle))

	require.NoError(t, b.Init(context.Background(), handle, nil, nil))
	assert.Equal(t, entities.StateActive, b.State(handle))
	assert.True(t, p.Started())

	require.NoError(t, b.Shutdown(context.Background(), handle))
	assert.Equal(t, entities.StateStopped, b.State(handle))
	assert.True(t, p.Stopped())
}

func TestBridgeCreateNil(t *testing.T) {
	b := New()
	_, err := b.Create(nil)
	assert.Equal(t, derrors.CodeInvalidInput, derrors.CodeOf(err))
}

func TestBridgeUnknownHandle(t *testing.T) {
	b := New()

	assert.Equal(t, entities.StateInvalid, b.State(42))
	assert.Equal(t, uint64(0), b.RejectedCount(42))

	err := b.Init(context.Background(), 42, nil, nil)
	assert.Equal(t, derrors.CodeInvalidInput, derrors.CodeOf(err))

	buf := b.Call(context.Background(), 42, "echo", nil)
	require.NotNil(t, buf)
	assert.Equal(t, derrors.CodeInvalidInput, buf.ErrorCode())
	require.NoError(t, b.FreeBuffer(buf))
}

func TestBridgeInitFailedStart(t *testing.T) {
	b := New()
	p := testutil.NewTestPlugin()
	p.FailStart = true
	handle, err := b.Create(p)
	require.NoError(t, err)

	err = b.Init(context.Background(), handle, nil, nil)
	require.Error(t, err)
	assert.Equal(t, derrors.CodeInitialization, derrors.CodeOf(err))
	assert.Equal(t, entities.StateFailed, b.State(handle))

	// A failed instance rejects requests deterministically.
	buf := b.Call(context.Background(), handle, "echo", []byte(`{"message":"x"}`))
	assert.Equal(t, derrors.CodeInvalidState, buf.ErrorCode())
	require.NoError(t, b.FreeBuffer(buf))
}

func TestBridgeInitPanicStart(t *testing.T) {
	b := New()
	p := testutil.NewTestPlugin()
	p.PanicStart = true
	handle, err := b.Create(p)
	require.NoError(t, err)

	err = b.Init(context.Background(), handle, nil, nil)
	require.Error(t, err)
	assert.Equal(t, entities.StateFailed, b.State(handle))
}

func TestBridgeInitBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{"malformed json", `{broken`},
		{"negative concurrency", `{"max_concurrent_ops": -1}`},
		{"unknown log level", `{"log_level": "shout"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New()
			handle, err := b.Create(testutil.NewTestPlugin())
			require.NoError(t, err)

			err = b.Init(context.Background(), handle, []byte(tt.config), nil)
			require.Error(t, err)
			assert.Equal(t, derrors.CodeInitialization, derrors.CodeOf(err))
			assert.Equal(t, entities.StateFailed, b.State(handle))
		})
	}
}

func TestBridgeDoubleInit(t *testing.T) {
	b, handle, _ := newActive(t, "")
	err := b.Init(context.Background(), handle, nil, nil)
	assert.Equal(t, derrors.CodeInvalidState, derrors.CodeOf(err))
}

func TestBridgeEcho(t *testing.T) {
	b, handle, _ := newActive(t, "")

	env, code := callJSON(t, b, handle, "echo", testutil.EchoRequest{Message: "Hello, World!"})
	assert.Equal(t, derrors.Code(0), code)
	require.True(t, env.IsSuccess())
	assert.NotEmpty(t, env.RequestID)

	var resp testutil.EchoResponse
	require.NoError(t, json.Unmarshal(env.Payload, &resp))
	assert.Equal(t, "Hello, World!", resp.Echoed)
	assert.Equal(t, 13, resp.Length)
}

func TestBridgeEchoMultiByte(t *testing.T) {
	b, handle, _ := newActive(t, "")

	env, _ := callJSON(t, b, handle, "echo", testutil.EchoRequest{Message: "héllo"})
	require.True(t, env.IsSuccess())

	var resp testutil.EchoResponse
	require.NoError(t, json.Unmarshal(env.Payload, &resp))
	// Length counts bytes, not runes.
	assert.Equal(t, 6, resp.Length)
}

func TestBridgeUnknownType(t *testing.T) {
	b, handle, _ := newActive(t, "")

	env, code := callJSON(t, b, handle, "no.such.op", map[string]string{})
	assert.Equal(t, derrors.CodeUnknownMessageType, code)
	require.False(t, env.IsSuccess())
	assert.Equal(t, int32(derrors.CodeUnknownMessageType), env.ErrorCode)
}

func TestBridgeMalformedPayload(t *testing.T) {
	b, handle, _ := newActive(t, "")

	buf := b.Call(context.Background(), handle, "echo", []byte(`{broken json`))
	require.NotNil(t, buf)
	assert.Equal(t, derrors.CodeSerialization, buf.ErrorCode())

	env, err := wireformat.DecodeResponse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, int32(derrors.CodeSerialization), env.ErrorCode)
	require.NoError(t, b.FreeBuffer(buf))
}

func TestBridgeEmptyTypeTag(t *testing.T) {
	b, handle, _ := newActive(t, "")

	buf := b.Call(context.Background(), handle, "", nil)
	assert.Equal(t, derrors.CodeInvalidInput, buf.ErrorCode())
	require.NoError(t, b.FreeBuffer(buf))
}

func TestBridgeHandlerPanicContained(t *testing.T) {
	b, handle, _ := newActive(t, "")

	env, code := callJSON(t, b, handle, "test.panic", map[string]string{})
	assert.Equal(t, derrors.CodeHandler, code)
	assert.False(t, env.IsSuccess())

	// The instance survives and keeps serving.
	env, _ = callJSON(t, b, handle, "math.add", testutil.AddRequest{A: 2, B: 3})
	require.True(t, env.IsSuccess())
}

func TestBridgeConcurrencyGate(t *testing.T) {
	const permits = 4
	const extra = 6
	b, handle, _ := newActive(t, `{"max_concurrent_ops": 4, "worker_threads": 16}`)

	var wg sync.WaitGroup
	rejected := make(chan derrors.Code, permits+extra)
	for i := 0; i < permits+extra; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload, _ := json.Marshal(testutil.SleepRequest{DurationMS: 200})
			buf := b.Call(context.Background(), handle, "test.sleep", payload)
			rejected <- buf.ErrorCode()
			_ = b.FreeBuffer(buf)
		}()
	}
	wg.Wait()
	close(rejected)

	var ok, tooMany int
	for code := range rejected {
		switch code {
		case 0:
			ok++
		case derrors.CodeTooManyRequests:
			tooMany++
		default:
			t.Fatalf("unexpected code %d", code)
		}
	}
	assert.Equal(t, permits, ok)
	assert.Equal(t, extra, tooMany)
	assert.Equal(t, uint64(extra), b.RejectedCount(handle))
}

func TestBridgeUnlimitedConcurrency(t *testing.T) {
	b, handle, _ := newActive(t, `{"max_concurrent_ops": 0, "worker_threads": 32}`)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload, _ := json.Marshal(testutil.SleepRequest{DurationMS: 20})
			buf := b.Call(context.Background(), handle, "test.sleep", payload)
			assert.Equal(t, derrors.Code(0), buf.ErrorCode())
			_ = b.FreeBuffer(buf)
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(0), b.RejectedCount(handle))
}

func TestBridgeShutdownIdempotent(t *testing.T) {
	b, handle, _ := newActive(t, "")

	require.NoError(t, b.Shutdown(context.Background(), handle))
	require.NoError(t, b.Shutdown(context.Background(), handle))
	assert.Equal(t, entities.StateStopped, b.State(handle))
}

func TestBridgeShutdownBeforeInit(t *testing.T) {
	b := New()
	handle, err := b.Create(testutil.NewTestPlugin())
	require.NoError(t, err)

	err = b.Shutdown(context.Background(), handle)
	assert.Equal(t, derrors.CodeInvalidState, derrors.CodeOf(err))
}

func TestBridgeShutdownStopError(t *testing.T) {
	b := New()
	p := testutil.NewTestPlugin()
	p.FailStop = true
	handle, err := b.Create(p)
	require.NoError(t, err)
	require.NoError(t, b.Init(context.Background(), handle, nil, nil))

	err = b.Shutdown(context.Background(), handle)
	assert.Equal(t, derrors.CodeShutdown, derrors.CodeOf(err))
	assert.Equal(t, entities.StateFailed, b.State(handle))
}

func TestBridgeCallAfterShutdown(t *testing.T) {
	b, handle, _ := newActive(t, "")
	require.NoError(t, b.Shutdown(context.Background(), handle))

	env, code := callJSON(t, b, handle, "echo", testutil.EchoRequest{Message: "x"})
	assert.Equal(t, derrors.CodeInvalidState, code)
	assert.False(t, env.IsSuccess())
}

func TestBridgeShutdownDrainsInFlight(t *testing.T) {
	b, handle, _ := newActive(t, `{"max_concurrent_ops": 2, "shutdown_timeout_ms": 2000}`)

	started := make(chan struct{})
	done := make(chan derrors.Code, 1)
	go func() {
		payload, _ := json.Marshal(testutil.SleepRequest{DurationMS: 150})
		close(started)
		buf := b.Call(context.Background(), handle, "test.sleep", payload)
		done <- buf.ErrorCode()
		_ = b.FreeBuffer(buf)
	}()

	<-started
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, b.Shutdown(context.Background(), handle))

	assert.Equal(t, derrors.Code(0), <-done)
	assert.Equal(t, entities.StateStopped, b.State(handle))
}

func TestBridgeDispose(t *testing.T) {
	b, handle, _ := newActive(t, "")

	// An active instance cannot be disposed.
	err := b.Dispose(handle)
	assert.Equal(t, derrors.CodeInvalidState, derrors.CodeOf(err))

	require.NoError(t, b.Shutdown(context.Background(), handle))
	require.NoError(t, b.Dispose(handle))
	assert.Equal(t, entities.StateInvalid, b.State(handle))

	// Handle ids are never reused.
	next, err := b.Create(testutil.NewTestPlugin())
	require.NoError(t, err)
	assert.Greater(t, next, handle)
}

func TestBridgeMetadata(t *testing.T) {
	b, handle, _ := newActive(t, "")

	meta, err := b.Metadata(handle)
	require.NoError(t, err)
	assert.Equal(t, "test-plugin", meta.Name)
	assert.Contains(t, meta.SupportedTypes, "echo")
	assert.NotEmpty(t, meta.ConfigSchema)
	assert.True(t, meta.Supports("kv.get"))
	assert.False(t, meta.Supports("nope"))

	_, err = b.Metadata(999)
	assert.Equal(t, derrors.CodeInvalidInput, derrors.CodeOf(err))
}

func TestBridgeSetLogLevel(t *testing.T) {
	type record struct {
		level   entities.LogLevel
		message string
	}
	var mu sync.Mutex
	var records []record
	cb := func(level entities.LogLevel, target, message string) {
		mu.Lock()
		records = append(records, record{level, message})
		mu.Unlock()
	}

	b := New()
	handle, err := b.Create(testutil.NewTestPlugin())
	require.NoError(t, err)
	require.NoError(t, b.Init(context.Background(), handle, []byte(`{"log_level":"info"}`), cb))

	mu.Lock()
	n := len(records)
	mu.Unlock()
	assert.Greater(t, n, 0, "start should have logged")

	require.NoError(t, b.SetLogLevel(handle, "error"))
	require.NoError(t, b.Shutdown(context.Background(), handle))

	mu.Lock()
	defer mu.Unlock()
	// The info-level stop message was filtered after the level change.
	assert.Equal(t, n, len(records))

	err = b.SetLogLevel(handle, "bogus")
	assert.Equal(t, derrors.CodeInvalidInput, derrors.CodeOf(err))
}

func TestBridgeSetLogLevelBeforeInit(t *testing.T) {
	b := New()
	handle, err := b.Create(testutil.NewTestPlugin())
	require.NoError(t, err)

	// Advisory in any non-terminal state, including Installed; the
	// stashed level wins over the config document when the sink is
	// built.
	require.NoError(t, b.SetLogLevel(handle, "error"))

	var calls atomic.Int32
	cb := func(level entities.LogLevel, target, message string) {
		calls.Add(1)
	}
	require.NoError(t, b.Init(context.Background(), handle, []byte(`{"log_level":"info"}`), cb))
	assert.Zero(t, calls.Load(), "info records should be filtered by the pre-init level")
	require.NoError(t, b.Shutdown(context.Background(), handle))
	assert.Zero(t, calls.Load())
}

func TestBridgeLogCallbackSilentAfterStopped(t *testing.T) {
	b := New()
	handle, err := b.Create(testutil.NewTestPlugin())
	require.NoError(t, err)

	var violations atomic.Int32
	cb := func(level entities.LogLevel, target, message string) {
		if b.State(handle) == entities.StateStopped {
			violations.Add(1)
		}
	}
	require.NoError(t, b.Init(context.Background(), handle, nil, cb))
	require.NoError(t, b.Shutdown(context.Background(), handle))
	assert.Zero(t, violations.Load(), "no callback may observe the Stopped state")
}

func TestBridgeShutdownBoundedByTimeout(t *testing.T) {
	b, handle, _ := newActive(t, `{"worker_threads": 1, "shutdown_timeout_ms": 100}`)

	// One call occupies the single worker; two more queue behind it
	// inside the pool. All three outlive the shutdown timeout.
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload, _ := json.Marshal(testutil.SleepRequest{DurationMS: 2000})
			buf := b.Call(context.Background(), handle, "test.sleep", payload)
			if buf != nil {
				_ = b.FreeBuffer(buf)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	require.NoError(t, b.Shutdown(context.Background(), handle))
	assert.Less(t, time.Since(start), time.Second,
		"shutdown must abandon stragglers after the timeout")
	assert.Equal(t, entities.StateStopped, b.State(handle))
	wg.Wait()
}

func TestBridgeStateReadDuringShutdown(t *testing.T) {
	b, handle, _ := newActive(t, `{"worker_threads": 1, "shutdown_timeout_ms": 400}`)

	go func() {
		payload, _ := json.Marshal(testutil.SleepRequest{DurationMS: 500})
		buf := b.Call(context.Background(), handle, "test.sleep", payload)
		_ = b.FreeBuffer(buf)
	}()
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Shutdown(context.Background(), handle)
	}()
	time.Sleep(50 * time.Millisecond)

	// The drain is in progress; state and counter reads must not wait
	// for it.
	start := time.Now()
	s := b.State(handle)
	_ = b.RejectedCount(handle)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, entities.StateStopping, s)

	<-done
	assert.Equal(t, entities.StateStopped, b.State(handle))
}
