// Package bundle resolves plugin bundle manifests. A bundle ships one
// artifact per platform plus a YAML manifest mapping platform keys to
// artifact paths and checksums; the resolver picks the artifact for the
// requesting platform and verifies its integrity before the runtime
// loads it.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gobridge-dev/gobridge/domain/ports"
)

// Manifest mirrors the bundle.yaml document layout.
type Manifest struct {
	Name      string              `yaml:"name"`
	Version   string              `yaml:"version"`
	Artifacts map[string]Artifact `yaml:"artifacts"`
}

// Artifact is one platform entry in the manifest. Path is relative to
// the manifest file.
type Artifact struct {
	Path   string `yaml:"path"`
	SHA256 string `yaml:"sha256"`
}

// Resolver implements ports.BundleResolver over on-disk bundles.
type Resolver struct{}

var _ ports.BundleResolver = (*Resolver)(nil)

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve parses the manifest, selects the artifact for platform, and
// verifies its SHA-256 before returning the resolved path. A checksum
// mismatch is an error: a corrupted artifact must never reach the
// module loader.
func (r *Resolver) Resolve(manifestPath, platform string) (*ports.ResolvedArtifact, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read bundle manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse bundle manifest: %w", err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("bundle manifest %s has no name", manifestPath)
	}

	art, ok := m.Artifacts[platform]
	if !ok {
		return nil, fmt.Errorf("bundle %s has no artifact for platform %q", m.Name, platform)
	}

	path := art.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(manifestPath), path)
	}

	sum, err := fileSHA256(path)
	if err != nil {
		return nil, fmt.Errorf("hash artifact %s: %w", path, err)
	}
	if !strings.EqualFold(sum, art.SHA256) {
		return nil, fmt.Errorf("artifact %s checksum mismatch: manifest %s, actual %s", path, art.SHA256, sum)
	}

	return &ports.ResolvedArtifact{
		Name:     m.Name,
		Version:  m.Version,
		Path:     path,
		Checksum: sum,
	}, nil
}

func fileSHA256(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
