// Package gallery loads the image shown for each confirmed pose and keeps it
// in sync with the image directory.
package gallery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ausocean/utils/logging"
	"github.com/fsnotify/fsnotify"
	"gocv.io/x/gocv"

	"github.com/ayusman/poseview/internal/pose"
)

// Extensions recognised as pose images.
var Extensions = []string{".png", ".jpg", ".jpeg"}

// Gallery maps poses to images. Files in the directory are named after the
// pose; an override path set from a binding takes precedence.
type Gallery struct {
	dir       string
	log       logging.Logger
	overrides map[pose.Pose]string
	images    map[pose.Pose]gocv.Mat
	sources   map[pose.Pose]string
	mu        sync.RWMutex
}

// New creates a Gallery over dir. Call Load to read the images.
func New(dir string, log logging.Logger) *Gallery {
	return &Gallery{
		dir:       dir,
		log:       log,
		overrides: make(map[pose.Pose]string),
		images:    make(map[pose.Pose]gocv.Mat),
		sources:   make(map[pose.Pose]string),
	}
}

// Dir returns the watched directory.
func (g *Gallery) Dir() string {
	return g.dir
}

// SetOverride makes path the image for p. An empty path removes the override.
// The image is reloaded immediately.
func (g *Gallery) SetOverride(p pose.Pose, path string) error {
	g.mu.Lock()
	if path == "" {
		delete(g.overrides, p)
	} else {
		g.overrides[p] = path
	}
	g.mu.Unlock()

	return g.reload(p)
}

// Load reads the image of every pose. Missing images are not an error.
func (g *Gallery) Load() error {
	if g.dir != "" {
		if _, err := os.Stat(g.dir); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("stat image dir: %w", err)
		}
	}

	var first error
	for _, p := range pose.All() {
		if err := g.reload(p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Lookup returns a copy of the pose image. The caller must close it.
func (g *Gallery) Lookup(p pose.Pose) (gocv.Mat, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	m, ok := g.images[p]
	if !ok {
		return gocv.Mat{}, false
	}
	return m.Clone(), true
}

// Source returns the file the pose image was loaded from.
func (g *Gallery) Source(p pose.Pose) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sources[p]
}

// Len returns the number of poses with an image.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.images)
}

// find returns the image path for p: the override if set, otherwise the
// first file in the directory named after the pose.
func (g *Gallery) find(p pose.Pose) string {
	g.mu.RLock()
	override := g.overrides[p]
	g.mu.RUnlock()
	if override != "" {
		return override
	}

	if g.dir == "" {
		return ""
	}
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		return ""
	}
	want := strings.ToLower(string(p))
	for _, ext := range Extensions {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if strings.ToLower(e.Name()) == want+ext {
				return filepath.Join(g.dir, e.Name())
			}
		}
	}
	return ""
}

func (g *Gallery) reload(p pose.Pose) error {
	path := g.find(p)

	var (
		img    gocv.Mat
		loaded bool
		err    error
	)
	if path != "" {
		img = gocv.IMRead(path, gocv.IMReadColor)
		if img.Empty() {
			img.Close()
			err = fmt.Errorf("could not decode %s", path)
		} else {
			loaded = true
		}
	}

	g.mu.Lock()
	if old, ok := g.images[p]; ok {
		old.Close()
		delete(g.images, p)
		delete(g.sources, p)
	}
	if loaded {
		g.images[p] = img
		g.sources[p] = path
	}
	g.mu.Unlock()

	if loaded && g.log != nil {
		g.log.Debug("loaded pose image", "pose", string(p), "path", path)
	}
	return err
}

// poseForFile returns the pose a directory entry is named after.
func poseForFile(name string) (pose.Pose, bool) {
	base := filepath.Base(name)
	ext := strings.ToLower(filepath.Ext(base))
	known := false
	for _, e := range Extensions {
		if ext == e {
			known = true
			break
		}
	}
	if !known {
		return pose.None, false
	}
	p, err := pose.Parse(strings.TrimSuffix(base, filepath.Ext(base)))
	if err != nil || p == pose.None {
		return pose.None, false
	}
	return p, true
}

// Watch reloads pose images as files in the directory change. It blocks
// until ctx is done.
func (g *Gallery) Watch(ctx context.Context) error {
	if g.dir == "" {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(g.dir); err != nil {
		return fmt.Errorf("watch %s: %w", g.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			p, ok := poseForFile(ev.Name)
			if !ok {
				continue
			}
			if err := g.reload(p); err != nil && g.log != nil {
				g.log.Warning("could not reload pose image", "pose", string(p), "error", err.Error())
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if g.log != nil {
				g.log.Error("image watcher failed", "error", err.Error())
			}
		}
	}
}

// Close releases every loaded image.
func (g *Gallery) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for p, m := range g.images {
		m.Close()
		delete(g.images, p)
	}
	g.sources = make(map[pose.Pose]string)
	return nil
}
