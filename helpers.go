package gobridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	derrors "github.com/gobridge-dev/gobridge/domain/errors"
	"github.com/gobridge-dev/gobridge/host"
	"github.com/gobridge-dev/gobridge/wireformat"
)

// Call dispatches a typed request through the bridge and decodes the
// response payload into Resp. It owns the buffer lifecycle: the response
// buffer is always released, on the error paths included.
func Call[Req any, Resp any](ctx context.Context, b *host.Bridge, handle uint64, typeTag string, req Req) (Resp, error) {
	var resp Resp

	payload, err := json.Marshal(req)
	if err != nil {
		return resp, derrors.Serialization(err)
	}

	buf := b.Call(ctx, handle, typeTag, payload)
	defer func() { _ = b.FreeBuffer(buf) }()

	if len(buf.Bytes()) == 0 {
		return resp, derrors.Newf(buf.ErrorCode(), "call %q failed", typeTag)
	}
	env, err := wireformat.DecodeResponse(buf.Bytes())
	if err != nil {
		return resp, err
	}
	if err := env.Err(); err != nil {
		return resp, err
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &resp); err != nil {
			return resp, derrors.Serialization(err)
		}
	}
	return resp, nil
}

// CallRaw dispatches a fixed-layout binary request and hands back a copy
// of the response bytes, releasing the buffer before returning.
func CallRaw(ctx context.Context, b *host.Bridge, handle uint64, messageID uint32, request []byte) ([]byte, error) {
	buf := b.CallRaw(ctx, handle, messageID, request)
	defer func() { _ = b.FreeBuffer(buf) }()

	if buf.IsError() {
		return nil, derrors.Newf(buf.ErrorCode(), "raw call %d failed", messageID)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}

// Decode unmarshals a JSON payload into T, reporting failures with the
// serialization code.
func Decode[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, derrors.Serialization(err)
	}
	return v, nil
}

// IsCode reports whether err carries the given boundary error code.
func IsCode(err error, code derrors.Code) bool {
	var pe *derrors.PluginError
	return errors.As(err, &pe) && pe.Code == code
}

// GetString safely extracts a string value from Config.
func GetString(config Config, key string) (string, bool) {
	v, ok := config[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt safely extracts an int value from Config. JSON numbers decode
// as float64, so both forms are accepted.
func GetInt(config Config, key string) (int, bool) {
	v, ok := config[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// GetFloat safely extracts a float64 value from Config.
func GetFloat(config Config, key string) (float64, bool) {
	v, ok := config[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// GetBool safely extracts a bool value from Config.
func GetBool(config Config, key string) (bool, bool) {
	v, ok := config[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetStringSlice safely extracts a []string from Config, converting the
// []interface{} form JSON decoding produces.
func GetStringSlice(config Config, key string) ([]string, bool) {
	v, ok := config[key]
	if !ok {
		return nil, false
	}
	switch s := v.(type) {
	case []string:
		return s, true
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}

// MustGetString extracts a required string value, returning an error
// suitable for a start hook when it is absent.
func MustGetString(config Config, key string) (string, error) {
	s, ok := GetString(config, key)
	if !ok {
		return "", fmt.Errorf("required config key %q is missing or not a string", key)
	}
	return s, nil
}
