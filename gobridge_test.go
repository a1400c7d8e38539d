package gobridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "github.com/gobridge-dev/gobridge/domain/errors"
	"github.com/gobridge-dev/gobridge/host"
	"github.com/gobridge-dev/gobridge/internal/testutil"
	"github.com/gobridge-dev/gobridge/wireformat"
)

func activeBridge(t *testing.T) (*host.Bridge, uint64) {
	t.Helper()
	b := host.New()
	handle, err := b.Create(testutil.NewTestPlugin())
	require.NoError(t, err)
	require.NoError(t, b.Init(context.Background(), handle, nil, nil))
	return b, handle
}

func TestCallTyped(t *testing.T) {
	b, handle := activeBridge(t)

	resp, err := Call[testutil.GreetRequest, testutil.GreetResponse](
		context.Background(), b, handle, "greet", testutil.GreetRequest{Name: "World"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", resp.Greeting)
	assert.Equal(t, 0, b.OutstandingBuffers(), "helper must release its buffer")
}

func TestCallTypedHandlerError(t *testing.T) {
	b, handle := activeBridge(t)

	_, err := Call[testutil.GreetRequest, testutil.GreetResponse](
		context.Background(), b, handle, "greet", testutil.GreetRequest{})
	require.Error(t, err)
	assert.True(t, IsCode(err, derrors.CodeInvalidInput))
	assert.Equal(t, 0, b.OutstandingBuffers())
}

func TestCallTypedUnknownType(t *testing.T) {
	b, handle := activeBridge(t)

	_, err := Call[struct{}, struct{}](context.Background(), b, handle, "nope", struct{}{})
	assert.True(t, IsCode(err, derrors.CodeUnknownMessageType))
}

func TestCallRawHelper(t *testing.T) {
	b, handle := activeBridge(t)

	req, err := wireformat.NewKeyQueryRequest("test_key", 0)
	require.NoError(t, err)
	data, err := req.MarshalBinary()
	require.NoError(t, err)

	out, err := CallRaw(context.Background(), b, handle, wireformat.MsgKeyQuery, data)
	require.NoError(t, err)

	var resp wireformat.KeyQueryResponse
	require.NoError(t, resp.UnmarshalBinary(out))
	assert.Equal(t, "test_value", resp.ValueString())
	assert.Equal(t, 0, b.OutstandingBuffers())
}

func TestDecode(t *testing.T) {
	v, err := Decode[testutil.AddResponse]([]byte(`{"sum": 5}`))
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.Sum)

	_, err = Decode[testutil.AddResponse]([]byte(`{bad`))
	assert.True(t, IsCode(err, derrors.CodeSerialization))
}

func TestValidateConfig(t *testing.T) {
	type target struct {
		Host string `json:"host" validate:"required"`
		Port int    `json:"port" validate:"gte=1,lte=65535"`
	}

	var ok target
	require.NoError(t, ValidateConfig(Config{"host": "example.com", "port": 443}, &ok))
	assert.Equal(t, "example.com", ok.Host)

	var missing target
	assert.Error(t, ValidateConfig(Config{"port": 443}, &missing))

	var badPort target
	assert.Error(t, ValidateConfig(Config{"host": "example.com", "port": 99999}, &badPort))
}

func TestConfigHelpers(t *testing.T) {
	cfg := Config{
		"name":    "widget",
		"count":   float64(3),
		"ratio":   0.5,
		"enabled": true,
		"tags":    []interface{}{"a", "b"},
	}

	s, ok := GetString(cfg, "name")
	assert.True(t, ok)
	assert.Equal(t, "widget", s)

	n, ok := GetInt(cfg, "count")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	f, ok := GetFloat(cfg, "ratio")
	assert.True(t, ok)
	assert.Equal(t, 0.5, f)

	b, ok := GetBool(cfg, "enabled")
	assert.True(t, ok)
	assert.True(t, b)

	tags, ok := GetStringSlice(cfg, "tags")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, tags)

	_, ok = GetString(cfg, "absent")
	assert.False(t, ok)
	_, ok = GetInt(cfg, "name")
	assert.False(t, ok)

	_, err := MustGetString(cfg, "absent")
	assert.Error(t, err)
}
