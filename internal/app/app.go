// Package app ties the tracker, classifier and presentation together into the
// poseview pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"
	"gocv.io/x/gocv"

	"github.com/ayusman/poseview/internal/capture"
	"github.com/ayusman/poseview/internal/display"
	"github.com/ayusman/poseview/internal/gallery"
	"github.com/ayusman/poseview/internal/plugin"
	"github.com/ayusman/poseview/internal/pose"
	"github.com/ayusman/poseview/internal/render"
	"github.com/ayusman/poseview/internal/sensor"
	"github.com/ayusman/poseview/internal/store"
)

// Pipeline timing defaults.
const (
	// ActiveFPS is the tick rate while users are tracked.
	ActiveFPS = 30
	// IdleFPS is the tick rate once the pipeline has been idle.
	IdleFPS = 5
)

// Config holds the components and settings of an App. Tracker and Display
// are required; the rest is optional.
type Config struct {
	Tracker  sensor.Tracker
	Camera   capture.Camera
	Display  display.Display
	Store    *store.Store
	Gallery  *gallery.Gallery
	Plugins  *plugin.Manager
	Executor *plugin.Executor
	Log      logging.Logger

	// Source names the frame source in the session record.
	Source string

	// Width and Height are the depth resolution used for projection.
	Width  int
	Height int

	FPS     int
	IdleFPS int
	// IdleTimeout is how long the pipeline stays active after the last
	// tracked user. Zero keeps it active.
	IdleTimeout time.Duration

	MaxDepth      uint16
	MinConfidence float64
	Thresholds    pose.Thresholds
	ConfirmFrames int
}

// PoseCallback is called when a user's pose is confirmed.
type PoseCallback func(user sensor.UserID, p pose.Pose)

// App is the pose pipeline. Step processes one frame; Run drives Step at the
// configured frame rate.
type App struct {
	config     Config
	log        logging.Logger
	tracker    sensor.Tracker
	camera     capture.Camera
	display    display.Display
	store      *store.Store
	gallery    *gallery.Gallery
	plugins    *plugin.Manager
	executor   *plugin.Executor
	colorizer  *render.Colorizer
	overlay    *render.Overlay
	classifier *pose.Classifier
	sessions   *pose.Sessions

	callbacks []PoseCallback
	enabled   bool
	sessionID string
	lastPose  pose.Pose
	mu        sync.RWMutex

	hookCtx    context.Context
	hookCancel context.CancelFunc
	hooks      sync.WaitGroup
}

// New creates an App from config, filling unset settings with defaults.
func New(config Config) (*App, error) {
	if config.Tracker == nil {
		return nil, errors.New("app: tracker is required")
	}
	if config.Display == nil {
		return nil, errors.New("app: display is required")
	}

	if config.Width <= 0 || config.Height <= 0 {
		sc := sensor.DefaultConfig()
		config.Width, config.Height = sc.Width, sc.Height
	}
	if config.FPS <= 0 {
		config.FPS = ActiveFPS
	}
	if config.IdleFPS <= 0 || config.IdleFPS > config.FPS {
		config.IdleFPS = min(IdleFPS, config.FPS)
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = render.DefaultMaxDepth
	}
	if config.MinConfidence <= 0 {
		config.MinConfidence = render.DefaultMinConfidence
	}
	if config.Thresholds == (pose.Thresholds{}) {
		config.Thresholds = pose.DefaultThresholds()
	}
	if config.ConfirmFrames < 1 {
		config.ConfirmFrames = pose.DefaultConfirmFrames
	}
	if config.Executor == nil {
		config.Executor = plugin.NewExecutor(plugin.DefaultTimeoutMs)
	}
	if config.Log == nil {
		config.Log = logging.New(logging.Info, io.Discard, true)
	}

	overlay := render.NewOverlay(config.Width, config.Height)
	overlay.MinConfidence = config.MinConfidence

	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		config:     config,
		log:        config.Log,
		tracker:    config.Tracker,
		camera:     config.Camera,
		display:    config.Display,
		store:      config.Store,
		gallery:    config.Gallery,
		plugins:    config.Plugins,
		executor:   config.Executor,
		colorizer:  render.NewColorizer(config.MaxDepth),
		overlay:    overlay,
		classifier: pose.NewClassifier(config.Thresholds),
		sessions:   pose.NewSessions(config.ConfirmFrames),
		enabled:    true,
		lastPose:   pose.None,
		hookCtx:    ctx,
		hookCancel: cancel,
	}, nil
}

// SetEnabled enables or disables classification. Disabling releases every
// confirmed pose on the next step.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether classification is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// RegisterPoseCallback adds fn to the functions called on each confirmed pose.
func (a *App) RegisterPoseCallback(fn PoseCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks = append(a.callbacks, fn)
}

// LastPose returns the most recently confirmed pose.
func (a *App) LastPose() pose.Pose {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastPose
}

// SessionID returns the current session, or "" outside a session.
func (a *App) SessionID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessionID
}

// Sessions returns the per-user stabilizers.
func (a *App) Sessions() *pose.Sessions {
	return a.sessions
}

// Classifier returns the pose classifier.
func (a *App) Classifier() *pose.Classifier {
	return a.classifier
}

// LoadBindings applies the image overrides stored in pose bindings to the
// gallery.
func (a *App) LoadBindings() error {
	if a.store == nil || a.gallery == nil {
		return nil
	}

	bindings, err := a.store.Bindings().List()
	if err != nil {
		return fmt.Errorf("list bindings: %w", err)
	}

	for _, b := range bindings {
		if b.ImagePath == "" {
			continue
		}
		if err := a.gallery.SetOverride(b.Pose, b.ImagePath); err != nil {
			a.log.Warning("could not load bound image", "pose", string(b.Pose), "path", b.ImagePath, "error", err.Error())
		}
	}

	a.log.Info("loaded pose bindings", "count", len(bindings))
	return nil
}

// DiscoverPlugins scans the plugin directory.
func (a *App) DiscoverPlugins() error {
	if a.plugins == nil {
		return nil
	}
	return a.plugins.Discover()
}

// StartSession opens a session record for the events of this run.
func (a *App) StartSession() error {
	if a.store == nil {
		return nil
	}

	s, err := a.store.Sessions().Start(a.config.Source)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	a.mu.Lock()
	a.sessionID = s.ID
	a.mu.Unlock()

	a.log.Info("session started", "id", s.ID, "source", a.config.Source)
	return nil
}

// EndSession closes the current session record.
func (a *App) EndSession() error {
	a.mu.Lock()
	id := a.sessionID
	a.sessionID = ""
	a.mu.Unlock()

	if a.store == nil || id == "" {
		return nil
	}
	if err := a.store.Sessions().End(id); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	a.log.Info("session ended", "id", id)
	return nil
}

// Wait blocks until every running pose hook has returned.
func (a *App) Wait() {
	a.hooks.Wait()
}

// Close stops running hooks and releases the tracker, camera, gallery and
// display. The store is left open.
func (a *App) Close() error {
	a.hookCancel()
	a.hooks.Wait()

	var errs []error
	if err := a.tracker.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close tracker: %w", err))
	}
	if a.camera != nil {
		if err := a.camera.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close camera: %w", err))
		}
	}
	if a.gallery != nil {
		if err := a.gallery.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gallery: %w", err))
		}
	}
	if err := a.display.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close display: %w", err))
	}
	return errors.Join(errs...)
}

// blank returns a black frame for the pose window.
func (a *App) blank() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), a.config.Height, a.config.Width, gocv.MatTypeCV8UC3)
}
