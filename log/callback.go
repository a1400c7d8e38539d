// Package log provides structured logging (slog) for plugin handles. Each
// handle owns a Sink holding its host log callback; a Handler adapts the
// sink to the slog API so plugin code logs idiomatically.
package log

import (
	"sync"

	"github.com/gobridge-dev/gobridge/domain/entities"
)

// Callback receives log records emitted on behalf of one plugin handle.
// Implementations are typically thin shims into the host language.
type Callback func(level entities.LogLevel, target, message string)

// Sink owns a single handle's log callback. The slot is per handle and
// reference-held by that handle alone: closing one handle's sink can
// never detach another handle's callback.
//
// After Close the callback is never invoked again; records emitted by
// stragglers are dropped.
type Sink struct {
	mu     sync.RWMutex
	cb     Callback
	min    entities.LogLevel
	closed bool
}

// NewSink creates a sink delivering records at or above min to cb. A nil
// callback yields a sink that silently drops everything.
func NewSink(cb Callback, min entities.LogLevel) *Sink {
	return &Sink{cb: cb, min: min}
}

// Emit delivers one record through the callback, applying the level
// filter. Emit is a no-op on a closed sink.
func (s *Sink) Emit(level entities.LogLevel, target, message string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || s.cb == nil || level < s.min {
		return
	}
	s.cb(level, target, message)
}

// SetLevel changes the minimum delivered level.
func (s *Sink) SetLevel(min entities.LogLevel) {
	s.mu.Lock()
	s.min = min
	s.mu.Unlock()
}

// Level returns the current minimum delivered level.
func (s *Sink) Level() entities.LogLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.min
}

// Close detaches the callback. Idempotent; concurrent Emits either
// complete before the close or are dropped.
func (s *Sink) Close() {
	s.mu.Lock()
	s.closed = true
	s.cb = nil
	s.mu.Unlock()
}
