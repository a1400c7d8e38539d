package entities

import (
	"encoding/json"
	"fmt"
	"runtime"
	"time"
)

// Defaults applied when a configuration field is absent from the document.
const (
	DefaultLogLevel          = "info"
	DefaultMaxConcurrentOps  = 1000
	DefaultShutdownTimeoutMs = 5000
)

// PluginConfig is the configuration handed to a plugin at initialization.
// Data carries arbitrary plugin-specific settings; the remaining fields
// tune the runtime around the plugin.
//
// MaxConcurrentOps of 0 means unlimited: the concurrency gate is a
// pass-through. An absent field gets the default, an explicit 0 does not.
type PluginConfig struct {
	// Data holds plugin-specific settings, opaque to the runtime.
	Data map[string]interface{} `json:"data,omitempty"`

	// WorkerThreads sizes the dispatch worker pool. Nil or 0 means one
	// worker per CPU.
	WorkerThreads *int `json:"worker_threads,omitempty" validate:"omitempty,gte=1"`

	// LogLevel is the minimum level forwarded to the host log callback.
	LogLevel string `json:"log_level" validate:"omitempty,oneof=trace debug info warn error off"`

	// MaxConcurrentOps caps simultaneous in-flight requests; 0 disables
	// the cap.
	MaxConcurrentOps int `json:"max_concurrent_ops" validate:"gte=0"`

	// ShutdownTimeoutMs bounds how long shutdown waits for in-flight
	// requests before abandoning them.
	ShutdownTimeoutMs int `json:"shutdown_timeout_ms" validate:"gte=0"`

	// InitParams are passed to the plugin's start hook.
	InitParams map[string]interface{} `json:"init_params,omitempty"`
}

// DefaultPluginConfig returns the configuration used when no document is
// provided.
func DefaultPluginConfig() PluginConfig {
	return PluginConfig{
		LogLevel:          DefaultLogLevel,
		MaxConcurrentOps:  DefaultMaxConcurrentOps,
		ShutdownTimeoutMs: DefaultShutdownTimeoutMs,
	}
}

// ConfigFromJSON decodes a JSON configuration document, applying defaults
// for absent fields. A nil or empty document yields the defaults. Fields
// present in the document always win, so an explicit 0 survives decoding.
func ConfigFromJSON(raw []byte) (PluginConfig, error) {
	cfg := DefaultPluginConfig()
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return PluginConfig{}, fmt.Errorf("decode plugin config: %w", err)
	}
	return cfg, nil
}

// ShutdownTimeout returns the shutdown drain deadline as a duration.
func (c PluginConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

// Workers returns the effective worker pool size.
func (c PluginConfig) Workers() int {
	if c.WorkerThreads != nil && *c.WorkerThreads > 0 {
		return *c.WorkerThreads
	}
	return runtime.NumCPU()
}

// GetString returns a string value from Data.
func (c PluginConfig) GetString(key string) (string, bool) {
	v, ok := c.Data[key].(string)
	return v, ok
}

// GetInt returns an integer value from Data. JSON numbers decode as
// float64, so both representations are accepted.
func (c PluginConfig) GetInt(key string) (int, bool) {
	switch v := c.Data[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// GetBool returns a boolean value from Data.
func (c PluginConfig) GetBool(key string) (bool, bool) {
	v, ok := c.Data[key].(bool)
	return v, ok
}
