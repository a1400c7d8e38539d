package ports

// ResolvedArtifact is a plugin artifact located on disk for the current
// platform, with its integrity already verified.
type ResolvedArtifact struct {
	// Name is the plugin name from the bundle manifest.
	Name string

	// Version is the bundle version string.
	Version string

	// Path is the absolute path of the artifact file.
	Path string

	// Checksum is the verified hex-encoded SHA-256 of the artifact.
	Checksum string
}

// BundleResolver resolves a plugin bundle manifest into the artifact for
// a given platform, verifying its checksum.
type BundleResolver interface {
	// Resolve parses the manifest at manifestPath and returns the
	// artifact for the platform key (e.g. "linux-amd64" or "wasm").
	Resolve(manifestPath, platform string) (*ResolvedArtifact, error)
}
