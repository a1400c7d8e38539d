package plugin

import (
	"context"

	derrors "github.com/gobridge-dev/gobridge/domain/errors"
	"github.com/gobridge-dev/gobridge/wireformat"
)

// TypedFunc is a handler over decoded request and response types.
type TypedFunc[Req any, Resp any] func(ctx context.Context, pctx *Context, req Req) (Resp, error)

// NewJSONHandler wraps a typed function into a Handler, taking care of
// JSON decoding of the request payload and encoding of the response.
// Decode failures surface as serialization errors.
//
// Usage:
//
//	echo := plugin.NewJSONHandler(func(ctx context.Context, pctx *plugin.Context, req EchoRequest) (EchoResponse, error) {
//	    return EchoResponse{Message: req.Message, Length: len(req.Message)}, nil
//	})
func NewJSONHandler[Req any, Resp any](fn TypedFunc[Req, Resp]) Handler {
	codec := wireformat.JSONCodec{}
	return func(ctx context.Context, pctx *Context, payload []byte) ([]byte, error) {
		var req Req
		if len(payload) > 0 {
			if err := codec.Decode(payload, &req); err != nil {
				return nil, err
			}
		}
		resp, err := fn(ctx, pctx, req)
		if err != nil {
			return nil, err
		}
		return codec.Encode(resp)
	}
}

// NewBinaryHandler wraps a typed function over fixed-layout messages into
// a Handler for the binary dispatch path. Req and Resp must implement the
// standard binary marshaling interfaces; validation lives in their
// UnmarshalBinary methods.
func NewBinaryHandler[Req any, PReq interface {
	*Req
	UnmarshalBinary([]byte) error
}, Resp interface {
	MarshalBinary() ([]byte, error)
}](fn TypedFunc[*Req, Resp]) Handler {
	return func(ctx context.Context, pctx *Context, request []byte) ([]byte, error) {
		req := PReq(new(Req))
		if err := req.UnmarshalBinary(request); err != nil {
			return nil, err
		}
		resp, err := fn(ctx, pctx, (*Req)(req))
		if err != nil {
			return nil, err
		}
		data, err := resp.MarshalBinary()
		if err != nil {
			return nil, derrors.Serialization(err)
		}
		return data, nil
	}
}
