package entities

import "encoding/json"

// PluginMetadata describes a plugin to the host: identity, the message
// type tags it handles, and an optional JSON schema for its configuration.
type PluginMetadata struct {
	// Name identifies the plugin.
	Name string `json:"name"`

	// Version is the plugin's own version string.
	Version string `json:"version"`

	// Description is a human-readable summary.
	Description string `json:"description,omitempty"`

	// SupportedTypes lists the message type tags the plugin dispatches on.
	SupportedTypes []string `json:"supported_types,omitempty"`

	// ConfigSchema is a JSON schema document for the plugin's Data
	// section, when the plugin publishes one.
	ConfigSchema json.RawMessage `json:"config_schema,omitempty"`
}

// Supports reports whether the plugin declares the given type tag. An
// empty SupportedTypes list means the plugin did not declare its types,
// not that it supports none, so it reports true.
func (m PluginMetadata) Supports(typeTag string) bool {
	if len(m.SupportedTypes) == 0 {
		return true
	}
	for _, t := range m.SupportedTypes {
		if t == typeTag {
			return true
		}
	}
	return false
}
