package plugin

import (
	"log/slog"
	"sync/atomic"

	"github.com/gobridge-dev/gobridge/domain/entities"
	derrors "github.com/gobridge-dev/gobridge/domain/errors"
)

// Context is the per-instance state handed to every plugin hook: the
// resolved configuration, a logger wired to the handle's log callback,
// and the lifecycle state. State changes go through Transition so the
// lifecycle table is enforced on every path.
type Context struct {
	cfg    entities.PluginConfig
	logger *slog.Logger
	state  atomic.Uint32
}

// NewContext creates a Context in the Installed state. A nil logger gets
// the process default.
func NewContext(cfg entities.PluginConfig, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Context{cfg: cfg, logger: logger}
	c.state.Store(uint32(entities.StateInstalled))
	return c
}

// Config returns the plugin's resolved configuration.
func (c *Context) Config() entities.PluginConfig {
	return c.cfg
}

// Logger returns the instance logger.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// State returns the current lifecycle state.
func (c *Context) State() entities.State {
	return entities.State(c.state.Load())
}

// Transition moves the instance to next, failing when the lifecycle
// table forbids the edge. Concurrent transitions race on a compare and
// swap; the loser re-reads and re-validates, so an illegal edge can never
// slip through.
func (c *Context) Transition(next entities.State) error {
	for {
		cur := entities.State(c.state.Load())
		if !cur.CanTransitionTo(next) {
			return derrors.Newf(derrors.CodeInvalidState,
				"illegal lifecycle transition %s -> %s", cur, next)
		}
		if c.state.CompareAndSwap(uint32(cur), uint32(next)) {
			c.logger.Debug("lifecycle transition", "from", cur.String(), "to", next.String())
			return nil
		}
	}
}

// Fail forces the instance to Failed from any non-terminal state. On a
// terminal state it is a no-op, since Stopped and Failed have no outgoing
// edges.
func (c *Context) Fail() {
	for {
		cur := entities.State(c.state.Load())
		if !cur.CanTransitionTo(entities.StateFailed) {
			return
		}
		if c.state.CompareAndSwap(uint32(cur), uint32(entities.StateFailed)) {
			c.logger.Warn("plugin failed", "from", cur.String())
			return
		}
	}
}
