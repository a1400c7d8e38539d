// Package plugin defines the contract between the runtime and plugin
// implementations: the Plugin interface, the per-instance Context that
// enforces the lifecycle state machine, and the handler registry requests
// dispatch through.
package plugin

import (
	"context"

	"github.com/gobridge-dev/gobridge/domain/entities"
)

// Plugin is implemented by every plugin the runtime hosts.
//
// OnStart runs during the Starting state; an error fails initialization
// and the instance lands in Failed. HandleRequest serves typed requests
// while Active. OnStop runs during Stopping; its error moves the
// instance to Failed instead of Stopped.
type Plugin interface {
	OnStart(ctx context.Context, pctx *Context) error
	HandleRequest(ctx context.Context, pctx *Context, typeTag string, payload []byte) ([]byte, error)
	OnStop(ctx context.Context, pctx *Context) error
}

// RawPlugin is the optional binary-path capability. Plugins that also
// speak the fixed-layout binary protocol implement it; the runtime
// detects support with a type assertion, mirroring how optional exports
// are probed on foreign modules.
type RawPlugin interface {
	Plugin
	HandleRaw(ctx context.Context, pctx *Context, messageID uint32, request []byte) ([]byte, error)
}

// Describer is the optional metadata capability.
type Describer interface {
	Metadata() entities.PluginMetadata
}

// Func adapts plain functions into a Plugin with no-op lifecycle hooks.
// Useful for tests and small single-purpose plugins.
type Func func(ctx context.Context, pctx *Context, typeTag string, payload []byte) ([]byte, error)

// OnStart implements Plugin.
func (Func) OnStart(context.Context, *Context) error { return nil }

// OnStop implements Plugin.
func (Func) OnStop(context.Context, *Context) error { return nil }

// HandleRequest implements Plugin by calling the function itself.
func (f Func) HandleRequest(ctx context.Context, pctx *Context, typeTag string, payload []byte) ([]byte, error) {
	return f(ctx, pctx, typeTag, payload)
}
