// Package manifest merges the base package.json of each target with the npm
// packages contributed by resolved features, and renders the result in a
// canonical 6-key form so archives stay byte-stable.
package manifest

import (
	"encoding/json"
	"fmt"
)

// Manifest is the package.json subset the merger operates on. Parsing keeps
// only these keys; everything else in a base manifest is dropped from the
// emitted file.
type Manifest struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Scripts          map[string]string `json:"scripts"`
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

// ParseBase decodes a base package.json. Unknown keys are ignored, not
// rejected: base manifests are ordinary npm files with arbitrary extras.
func ParseBase(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse base: %w", err)
	}
	return &m, nil
}

// Canonical renders the manifest with keys in fixed order (name, version,
// scripts, dependencies, devDependencies, peerDependencies), each map sorted
// by key, 2-space indent, trailing newline. encoding/json already emits map
// keys sorted.
func (m *Manifest) Canonical() ([]byte, error) {
	c := *m
	if c.Scripts == nil {
		c.Scripts = map[string]string{}
	}
	if c.Dependencies == nil {
		c.Dependencies = map[string]string{}
	}
	if c.DevDependencies == nil {
		c.DevDependencies = map[string]string{}
	}
	if c.PeerDependencies == nil {
		c.PeerDependencies = map[string]string{}
	}
	data, err := json.MarshalIndent(&c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: render: %w", err)
	}
	return append(data, '\n'), nil
}
