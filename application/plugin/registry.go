package plugin

import (
	"context"
	"fmt"
	"sort"

	derrors "github.com/gobridge-dev/gobridge/domain/errors"
)

// Handler processes one decoded request payload and returns the encoded
// response payload.
type Handler func(ctx context.Context, pctx *Context, payload []byte) ([]byte, error)

// Registry is an immutable collection of request handlers with two
// dispatch keys over one table: string type tags for the JSON path and
// uint32 message ids for the binary path. Once built via NewRegistry,
// handlers cannot be added or removed, so lookups are lock-free.
type Registry struct {
	byType map[string]Handler
	byID   map[uint32]Handler
	types  []string // sorted for consistent iteration
}

// registryBuilder accumulates configuration during registry construction.
type registryBuilder struct {
	byType     map[string]Handler
	byID       map[uint32]Handler
	middleware []Middleware
	errors     []error
}

// RegistryOption is a functional option for configuring a Registry.
type RegistryOption func(*registryBuilder)

// NewRegistry creates an immutable Registry with the given options.
// Returns an error if any type tag or message id is registered twice.
//
// Example usage:
//
//	registry, err := plugin.NewRegistry(
//	    plugin.WithMiddleware(plugin.PanicRecoveryMiddleware()),
//	    plugin.WithTypeHandler("echo", echoHandler),
//	    plugin.WithRawHandler(wireformat.MsgKeyQuery, keyQueryHandler),
//	)
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	b := &registryBuilder{
		byType: make(map[string]Handler),
		byID:   make(map[uint32]Handler),
	}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}

	types := make([]string, 0, len(b.byType))
	for tag := range b.byType {
		types = append(types, tag)
	}
	sort.Strings(types)

	// Apply middleware in reverse order so the first middleware wraps
	// outermost.
	wrap := func(h Handler) Handler {
		for i := len(b.middleware) - 1; i >= 0; i-- {
			h = b.middleware[i](h)
		}
		return h
	}
	byType := make(map[string]Handler, len(b.byType))
	for tag, h := range b.byType {
		byType[tag] = wrap(h)
	}
	byID := make(map[uint32]Handler, len(b.byID))
	for id, h := range b.byID {
		byID[id] = wrap(h)
	}

	return &Registry{byType: byType, byID: byID, types: types}, nil
}

// Dispatch routes a typed request to its handler. An unknown tag yields
// an unknown-message-type error before any payload decoding happens.
func (r *Registry) Dispatch(ctx context.Context, pctx *Context, typeTag string, payload []byte) ([]byte, error) {
	h, ok := r.byType[typeTag]
	if !ok {
		return nil, derrors.UnknownType(typeTag)
	}
	return h(ctx, pctx, payload)
}

// DispatchRaw routes a binary request by message id.
func (r *Registry) DispatchRaw(ctx context.Context, pctx *Context, messageID uint32, request []byte) ([]byte, error) {
	h, ok := r.byID[messageID]
	if !ok {
		return nil, derrors.UnknownMessageID(messageID)
	}
	return h(ctx, pctx, request)
}

// Has reports whether a handler is registered for the type tag.
func (r *Registry) Has(typeTag string) bool {
	_, ok := r.byType[typeTag]
	return ok
}

// HasRaw reports whether a handler is registered for the message id.
func (r *Registry) HasRaw(messageID uint32) bool {
	_, ok := r.byID[messageID]
	return ok
}

// Types returns the sorted list of registered type tags.
func (r *Registry) Types() []string {
	out := make([]string, len(r.types))
	copy(out, r.types)
	return out
}

// WithTypeHandler registers a handler for a string type tag.
func WithTypeHandler(typeTag string, h Handler) RegistryOption {
	return func(b *registryBuilder) {
		if typeTag == "" {
			b.errors = append(b.errors, fmt.Errorf("type tag cannot be empty"))
			return
		}
		if _, exists := b.byType[typeTag]; exists {
			b.errors = append(b.errors, fmt.Errorf("duplicate type tag: %q", typeTag))
			return
		}
		b.byType[typeTag] = h
	}
}

// WithRawHandler registers a handler for a binary message id.
func WithRawHandler(messageID uint32, h Handler) RegistryOption {
	return func(b *registryBuilder) {
		if _, exists := b.byID[messageID]; exists {
			b.errors = append(b.errors, fmt.Errorf("duplicate message id: %d", messageID))
			return
		}
		b.byID[messageID] = h
	}
}

// WithMiddleware adds middleware to the registry. Middleware executes in
// FIFO order (first added wraps first) and applies to both dispatch keys.
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
