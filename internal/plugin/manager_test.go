package plugin

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ausocean/utils/logging"
	"github.com/google/go-cmp/cmp"

	"github.com/ayusman/poseview/internal/pose"
)

func writeManifest(t *testing.T, root string, m Manifest) string {
	t.Helper()

	dir := filepath.Join(root, m.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return dir
}

func TestManager_Discover(t *testing.T) {
	tmpDir := t.TempDir()

	pluginDir := writeManifest(t, tmpDir, Manifest{
		Name:        "test-plugin",
		Version:     "1.0.0",
		Description: "A test plugin",
		Executable:  "test-plugin",
		Actions:     []string{"action1", "action2"},
		Poses:       []string{"neko"},
	})

	manager := NewManager(tmpDir, (*logging.TestLogger)(t))
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugins := manager.List()
	if len(plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(plugins))
	}

	plugin := plugins[0]
	if plugin.Manifest.Name != "test-plugin" {
		t.Errorf("expected plugin name 'test-plugin', got %q", plugin.Manifest.Name)
	}
	if diff := cmp.Diff([]string{"action1", "action2"}, plugin.Manifest.Actions); diff != "" {
		t.Errorf("actions (-want +got):\n%s", diff)
	}
	if plugin.Path != pluginDir {
		t.Errorf("expected path %q, got %q", pluginDir, plugin.Path)
	}
	if plugin.Executable != filepath.Join(pluginDir, "test-plugin") {
		t.Errorf("unexpected executable %q", plugin.Executable)
	}
	if !plugin.HasAction("action2") || plugin.HasAction("action3") {
		t.Error("HasAction() does not match the manifest")
	}
}

func TestManager_Discover_Skips(t *testing.T) {
	tmpDir := t.TempDir()

	writeManifest(t, tmpDir, Manifest{Name: "good", Executable: "good"})
	writeManifest(t, tmpDir, Manifest{Name: "no-exec"})

	bad := filepath.Join(tmpDir, "bad-plugin")
	if err := os.MkdirAll(bad, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bad, ManifestFile), []byte("not valid json"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, "no-manifest"), 0755); err != nil {
		t.Fatal(err)
	}

	manager := NewManager(tmpDir, (*logging.TestLogger)(t))
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed unexpectedly: %v", err)
	}

	plugins := manager.List()
	if len(plugins) != 1 || plugins[0].Manifest.Name != "good" {
		t.Fatalf("expected only the good plugin, got %d plugins", len(plugins))
	}
}

func TestManager_Discover_EmptyAndMissingDir(t *testing.T) {
	for _, dir := range []string{t.TempDir(), "/path/that/does/not/exist"} {
		manager := NewManager(dir, nil)
		if err := manager.Discover(); err != nil {
			t.Fatalf("Discover(%q) failed: %v", dir, err)
		}
		if n := len(manager.List()); n != 0 {
			t.Fatalf("expected 0 plugins in %q, got %d", dir, n)
		}
	}
}

func TestManager_Get(t *testing.T) {
	tmpDir := t.TempDir()
	writeManifest(t, tmpDir, Manifest{Name: "my-plugin", Version: "2.0.0", Executable: "bin"})

	manager := NewManager(tmpDir, nil)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugin, err := manager.Get("my-plugin")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if plugin.Manifest.Version != "2.0.0" {
		t.Errorf("expected version '2.0.0', got %q", plugin.Manifest.Version)
	}

	if _, err := manager.Get("nonexistent-plugin"); err != ErrPluginNotFound {
		t.Errorf("expected ErrPluginNotFound, got %v", err)
	}
}

func TestManager_ForPose(t *testing.T) {
	tmpDir := t.TempDir()
	writeManifest(t, tmpDir, Manifest{Name: "any", Executable: "x"})
	writeManifest(t, tmpDir, Manifest{Name: "cat", Executable: "x", Poses: []string{"NEKO"}})
	writeManifest(t, tmpDir, Manifest{Name: "stairs", Executable: "x", Poses: []string{"kaidan", "bruna"}})

	manager := NewManager(tmpDir, nil)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	names := func(ps []*Plugin) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.Manifest.Name)
		}
		return out
	}

	tests := []struct {
		pose pose.Pose
		want []string
	}{
		{pose.Neko, []string{"any", "cat"}},
		{pose.Bruna, []string{"any", "stairs"}},
		{pose.Majoko, []string{"any"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, names(manager.ForPose(tt.pose))); diff != "" {
			t.Errorf("ForPose(%s) (-want +got):\n%s", tt.pose, diff)
		}
	}
}

func TestManager_PluginDir(t *testing.T) {
	pluginDir := "/path/to/plugins"
	manager := NewManager(pluginDir, nil)

	if manager.PluginDir() != pluginDir {
		t.Errorf("expected plugin dir %q, got %q", pluginDir, manager.PluginDir())
	}
}
