package plugin

import (
	"context"
	"time"

	derrors "github.com/gobridge-dev/gobridge/domain/errors"
)

// Middleware wraps a Handler to add cross-cutting behavior. Middleware
// executes in FIFO order (first registered wraps first, onion model).
type Middleware func(next Handler) Handler

// PanicRecoveryMiddleware returns a middleware that catches handler
// panics and converts them to handler errors instead of unwinding into
// the dispatch machinery.
func PanicRecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, pctx *Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = nil
					err = derrors.HandlerPanic(r)
				}
			}()
			return next(ctx, pctx, payload)
		}
	}
}

// LoggingMiddleware returns a middleware that logs each dispatch with its
// duration through the instance logger.
func LoggingMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, pctx *Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, pctx, payload)
			if err != nil {
				pctx.Logger().Warn("handler failed", "duration", time.Since(start), "err", err)
			} else {
				pctx.Logger().Debug("handler completed", "duration", time.Since(start))
			}
			return resp, err
		}
	}
}
