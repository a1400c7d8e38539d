// Package wireformat defines the transport representations crossing the
// plugin boundary: JSON request/response envelopes and fixed-layout binary
// messages. These shapes are the boundary contract and must remain stable
// and backward compatible.
package wireformat

import (
	"encoding/json"

	derrors "github.com/gobridge-dev/gobridge/domain/errors"
)

// Response statuses. Exactly one of payload or the error fields is set,
// matching the status.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// RequestEnvelope is the JSON wire format for a typed request. The type
// tag selects the handler; the payload is opaque until that handler
// decodes it.
type RequestEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// ResponseEnvelope is the JSON wire format for a response. Success
// responses carry a payload; error responses carry a numeric code and a
// message, never both.
type ResponseEnvelope struct {
	Status       string          `json:"status"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ErrorCode    int32           `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	RequestID    string          `json:"request_id,omitempty"`
}

// Success builds a success envelope around an already-encoded payload.
func Success(payload []byte) ResponseEnvelope {
	return ResponseEnvelope{Status: StatusSuccess, Payload: payload}
}

// Failure builds an error envelope with an explicit code and message.
func Failure(code int32, message string) ResponseEnvelope {
	return ResponseEnvelope{Status: StatusError, ErrorCode: code, ErrorMessage: message}
}

// FailureFrom builds an error envelope from an error chain, extracting
// the boundary code and message.
func FailureFrom(err error) ResponseEnvelope {
	return Failure(int32(derrors.CodeOf(err)), derrors.MessageOf(err))
}

// IsSuccess reports whether the envelope carries a success status.
func (e ResponseEnvelope) IsSuccess() bool {
	return e.Status == StatusSuccess
}

// Err converts an error envelope back into a PluginError. Success
// envelopes yield nil.
func (e ResponseEnvelope) Err() error {
	if e.IsSuccess() {
		return nil
	}
	return derrors.New(derrors.Code(e.ErrorCode), e.ErrorMessage)
}

// WithRequestID returns a copy of the envelope stamped with the given
// correlation id.
func (e ResponseEnvelope) WithRequestID(id string) ResponseEnvelope {
	e.RequestID = id
	return e
}
