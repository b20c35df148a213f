// Package plugin discovers and runs external pose hooks. A plugin is a
// directory holding a plugin.json manifest and an executable that reads a
// Request on stdin and writes a Response to stdout.
package plugin

import (
	"encoding/json"

	"github.com/ayusman/poseview/internal/pose"
)

// ManifestFile is the manifest file name inside a plugin directory.
const ManifestFile = "plugin.json"

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	Poses        []string        `json:"poses,omitempty"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Request represents a request sent to a plugin for execution.
type Request struct {
	Action string          `json:"action"`
	Pose   string          `json:"pose"`
	UserID int             `json:"user_id"`
	Config json.RawMessage `json:"config"`
	Params json.RawMessage `json:"params"`
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Supports reports whether the plugin reacts to p. A manifest without a
// pose list accepts every pose.
func (p *Plugin) Supports(ps pose.Pose) bool {
	if len(p.Manifest.Poses) == 0 {
		return true
	}
	for _, name := range p.Manifest.Poses {
		if parsed, err := pose.Parse(name); err == nil && parsed == ps {
			return true
		}
	}
	return false
}

// HasAction reports whether the manifest lists the action.
func (p *Plugin) HasAction(action string) bool {
	for _, a := range p.Manifest.Actions {
		if a == action {
			return true
		}
	}
	return false
}
