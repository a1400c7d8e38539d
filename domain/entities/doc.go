// Package entities provides the core domain entities of the plugin runtime:
// the lifecycle state machine, plugin configuration, metadata, and log levels.
// These are pure types with no dependencies on the boundary or transport layers.
package entities
