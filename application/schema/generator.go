// Package schema provides JSON schema generation for plugin metadata.
// Plugins publish a schema for their configuration and message payloads
// so hosts in other languages can validate documents before sending them.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/gobridge-dev/gobridge/domain/entities"
)

// Generate creates a JSON schema from a Go struct.
// It uses the `invopop/jsonschema` library to reflect on the struct
// and generate a standard JSON Schema (Draft 2020-12).
func Generate(v interface{}) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true, // Expand struct definitions inline
	}
	schema := reflector.Reflect(v)

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return jsonBytes, nil
}

// AttachConfigSchema generates the schema for configModel and embeds it
// in the metadata's ConfigSchema field.
func AttachConfigSchema(meta entities.PluginMetadata, configModel interface{}) (entities.PluginMetadata, error) {
	raw, err := Generate(configModel)
	if err != nil {
		return meta, err
	}
	meta.ConfigSchema = raw
	return meta, nil
}
