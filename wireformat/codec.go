package wireformat

import (
	"encoding/json"

	derrors "github.com/gobridge-dev/gobridge/domain/errors"
	"github.com/gobridge-dev/gobridge/domain/ports"
)

// JSONCodec implements ports.Codec using encoding/json. Decode failures
// surface as serialization errors that preserve the parser's message, so
// hosts can see what was malformed.
type JSONCodec struct{}

var _ ports.Codec = JSONCodec{}

// Encode serializes v to JSON.
func (JSONCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, derrors.Serialization(err)
	}
	return data, nil
}

// Decode deserializes JSON into v.
func (JSONCodec) Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return derrors.Serialization(err)
	}
	return nil
}

// ContentType returns the JSON media type.
func (JSONCodec) ContentType() string {
	return "application/json"
}

// DecodeRequest parses a request envelope from wire bytes.
func DecodeRequest(data []byte) (RequestEnvelope, error) {
	var env RequestEnvelope
	if err := (JSONCodec{}).Decode(data, &env); err != nil {
		return RequestEnvelope{}, err
	}
	return env, nil
}

// DecodeResponse parses a response envelope from wire bytes.
func DecodeResponse(data []byte) (ResponseEnvelope, error) {
	var env ResponseEnvelope
	if err := (JSONCodec{}).Decode(data, &env); err != nil {
		return ResponseEnvelope{}, err
	}
	return env, nil
}

// EncodeResponse serializes a response envelope. Envelope fields are all
// marshalable, so failures indicate a corrupted payload.
func EncodeResponse(env ResponseEnvelope) ([]byte, error) {
	return JSONCodec{}.Encode(env)
}
