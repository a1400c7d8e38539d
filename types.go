// Package gobridge is the top-level surface of the plugin runtime: version
// constants, the plugin-facing Config map, and typed convenience wrappers
// around the host boundary.
//
// Plugins are built from the application/plugin package; hosts drive them
// through host.Bridge. This package ties the two together for Go callers.
package gobridge

import (
	"github.com/gobridge-dev/gobridge/wireformat"
)

// Version is the runtime version, reported in plugin metadata.
const Version = "1.0.0"

// BinaryFormatVersion is the fixed-layout message version this runtime
// speaks.
const BinaryFormatVersion = wireformat.BinaryVersion

// Config represents plugin-specific settings: the data section of the
// configuration document, decoded as a plain map.
type Config map[string]interface{}
