package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/poseview/internal/display"
	"github.com/ayusman/poseview/internal/plugin"
	"github.com/ayusman/poseview/internal/pose"
	"github.com/ayusman/poseview/internal/render"
	"github.com/ayusman/poseview/internal/sensor"
	"github.com/ayusman/poseview/internal/store"
)

// StepResult is the outcome of one pipeline tick.
type StepResult struct {
	Frame       *sensor.UserFrame
	Poses       map[sensor.UserID]pose.Result
	Transitions []pose.UserTransition
}

// Step processes one tick:
//  1. Read a color frame when a camera is configured
//  2. Read a user frame from the tracker
//  3. Colorize the depth frame into the depth view
//  4. Start tracking new users, drop lost ones, classify and draw the rest
//  5. Record and present confirmed and released poses
//  6. Show the debug and depth views
//
// A tracker read error is returned as is; io.EOF means the source is done.
func (a *App) Step() (*StepResult, error) {
	var (
		color    gocv.Mat
		hasColor bool
	)
	if a.camera != nil {
		if frame, err := a.camera.ReadFrame(); err != nil {
			a.log.Warning("could not read color frame", "error", err.Error())
		} else {
			color, hasColor = *frame, true
			defer color.Close()
		}
	}

	uf, err := a.tracker.ReadFrame()
	if err != nil {
		return nil, err
	}

	var (
		depth    gocv.Mat
		hasDepth bool
	)
	if img, err := a.colorizer.Colorize(uf); err == nil {
		if m, err := render.ToMat(img); err == nil {
			depth, hasDepth = m, true
			defer depth.Close()
		} else {
			a.log.Warning("could not convert depth view", "error", err.Error())
		}
	}

	scale := 1.0
	if hasColor {
		scale = colorScale(color.Cols(), uf, a.config.Width)
	}

	res := &StepResult{
		Frame: uf,
		Poses: make(map[sensor.UserID]pose.Result),
	}

	enabled := a.IsEnabled()
	if !enabled && a.sessions.Len() > 0 {
		for _, t := range a.sessions.Reset() {
			if t.Changed() {
				res.Transitions = append(res.Transitions, t)
			}
		}
	}

	for _, u := range uf.Tracked {
		if u.IsNew {
			if err := a.tracker.StartSkeletonTracking(u.ID); err != nil {
				a.log.Warning("could not start skeleton tracking", "user", int(u.ID), "error", err.Error())
			} else {
				a.log.Debug("started skeleton tracking", "user", int(u.ID))
			}
			continue
		}
		if u.IsLost {
			if t := a.sessions.Drop(u.ID); t.Changed() {
				res.Transitions = append(res.Transitions, t)
			}
			a.log.Debug("user lost", "user", int(u.ID))
			continue
		}

		if hasDepth {
			a.overlay.DrawSkeleton(&depth, u)
		}
		if hasColor {
			a.overlay.DrawBox(&color, u, scale)
		}
		if !enabled {
			continue
		}

		r := a.classifier.Classify(&u.Skeleton)
		res.Poses[u.ID] = r
		if t := a.sessions.Observe(u.ID, r.Pose); t.Changed() {
			res.Transitions = append(res.Transitions, t)
		}
		if hasColor && r.Pose != pose.None {
			a.overlay.DrawLabel(&color, u, string(r.Pose), scale)
		}
	}

	for _, t := range res.Transitions {
		if t.Released != pose.None {
			a.released(t.User, t.Released, uf.Index)
		}
		if t.Confirmed != pose.None {
			a.confirmed(t.User, t.Confirmed, uf.Index)
		}
	}

	if hasColor {
		a.display.Show(display.DebugWindow, color)
	}
	if hasDepth {
		a.display.Show(display.DepthWindow, depth)
	}
	return res, nil
}

// colorScale maps depth coordinates onto a color frame cols wide. The depth
// width comes from the frame, or width when the frame carries no depth.
func colorScale(cols int, uf *sensor.UserFrame, width int) float64 {
	if uf.Depth.Valid() {
		width = uf.Depth.Width
	}
	if width <= 0 {
		return 1
	}
	return float64(cols) / float64(width)
}

func (a *App) confirmed(user sensor.UserID, p pose.Pose, frame int64) {
	a.log.Info("pose confirmed", "user", int(user), "pose", string(p), "frame", frame)
	a.record(user, p, store.EventConfirmed, frame)

	a.showPose(p)

	a.mu.Lock()
	a.lastPose = p
	callbacks := append([]PoseCallback(nil), a.callbacks...)
	a.mu.Unlock()

	for _, fn := range callbacks {
		fn(user, p)
	}

	a.runHook(user, p, frame)
}

func (a *App) released(user sensor.UserID, p pose.Pose, frame int64) {
	a.log.Info("pose released", "user", int(user), "pose", string(p), "frame", frame)
	a.record(user, p, store.EventReleased, frame)

	// Fall back to a pose another user still holds, lowest user first.
	active := a.sessions.Active()
	if len(active) == 0 {
		a.showBlank()
		return
	}
	users := make([]sensor.UserID, 0, len(active))
	for id := range active {
		users = append(users, id)
	}
	slices.Sort(users)
	if !a.showPose(active[users[0]]) {
		a.showBlank()
	}
}

// showPose shows the gallery image of p and reports whether there was one.
func (a *App) showPose(p pose.Pose) bool {
	if a.gallery == nil {
		return false
	}
	m, ok := a.gallery.Lookup(p)
	if !ok {
		a.log.Debug("no image for pose", "pose", string(p))
		return false
	}
	a.display.Show(display.PoseWindow, m)
	m.Close()
	return true
}

func (a *App) showBlank() {
	m := a.blank()
	a.display.Show(display.PoseWindow, m)
	m.Close()
}

func (a *App) record(user sensor.UserID, p pose.Pose, kind store.EventKind, frame int64) {
	id := a.SessionID()
	if a.store == nil || id == "" {
		return
	}

	err := a.store.Events().Record(&store.Event{
		SessionID:  id,
		UserID:     int(user),
		Pose:       p,
		Kind:       kind,
		FrameIndex: frame,
	})
	if err != nil {
		a.log.Error("could not record pose event", "pose", string(p), "kind", string(kind), "error", err.Error())
	}
}

// runHook starts the plugin action bound to p, if any, in the background.
func (a *App) runHook(user sensor.UserID, p pose.Pose, frame int64) {
	if a.store == nil || a.plugins == nil {
		return
	}

	b, err := a.store.Bindings().Get(p)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.log.Error("could not load pose binding", "pose", string(p), "error", err.Error())
		}
		return
	}
	if !b.Enabled || !b.HasAction() {
		return
	}

	pl, err := a.plugins.Get(b.PluginName)
	if err != nil {
		a.log.Warning("bound plugin not found", "pose", string(p), "plugin", b.PluginName)
		return
	}
	if !pl.Supports(p) || !pl.HasAction(b.ActionName) {
		a.log.Warning("plugin does not handle binding", "pose", string(p), "plugin", b.PluginName, "action", b.ActionName)
		return
	}

	params, _ := json.Marshal(map[string]any{"frame_index": frame})
	req := &plugin.Request{
		Action: b.ActionName,
		Pose:   string(p),
		UserID: int(user),
		Config: b.Config,
		Params: params,
	}

	a.hooks.Add(1)
	go func() {
		defer a.hooks.Done()

		resp, err := a.executor.Execute(a.hookCtx, pl, req)
		if err != nil {
			a.log.Error("plugin failed", "plugin", pl.Manifest.Name, "action", req.Action, "error", err.Error())
			return
		}
		if !resp.Success {
			a.log.Warning("plugin reported failure", "plugin", pl.Manifest.Name, "action", req.Action, "error", resp.Error)
			return
		}
		a.log.Debug("plugin ran", "plugin", pl.Manifest.Name, "action", req.Action)
	}()
}

// mode tracks the idle and active tick rates.
type mode struct {
	active     bool
	lastActive time.Time
	activeFPS  int
	idleFPS    int
	timeout    time.Duration
}

// update reports the tick rate for a frame that did or did not contain a
// tracked user. changed is true when the rate switched.
func (m *mode) update(users bool, now time.Time) (fps int, changed bool) {
	if users {
		m.lastActive = now
		if !m.active {
			m.active = true
			return m.activeFPS, true
		}
		return m.activeFPS, false
	}

	if m.active && m.timeout > 0 && now.Sub(m.lastActive) > m.timeout {
		m.active = false
		return m.idleFPS, true
	}
	if m.active {
		return m.activeFPS, false
	}
	return m.idleFPS, false
}

func hasUsers(uf *sensor.UserFrame) bool {
	for _, u := range uf.Tracked {
		if !u.IsLost && u.IsVisible {
			return true
		}
	}
	return false
}

// Run drives Step until ctx is done, the source is exhausted, or a quit key
// is pressed. Cancelling ctx closes the tracker so that a blocked read
// returns. The pipeline starts in active mode and drops to the idle frame
// rate after IdleTimeout without tracked users. Run opens and closes a
// session around the loop.
func (a *App) Run(ctx context.Context) error {
	if err := a.StartSession(); err != nil {
		return err
	}
	defer func() {
		if err := a.EndSession(); err != nil {
			a.log.Error("could not end session", "error", err.Error())
		}
	}()

	if a.camera != nil {
		if err := a.camera.Open(); err != nil {
			a.log.Warning("color camera unavailable", "error", err.Error())
			a.camera = nil
		} else {
			a.camera.SetFPS(a.config.FPS)
		}
	}

	m := &mode{
		active:     true,
		lastActive: time.Now(),
		activeFPS:  a.config.FPS,
		idleFPS:    a.config.IdleFPS,
		timeout:    a.config.IdleTimeout,
	}

	// A tracker read can block indefinitely; closing the tracker breaks it.
	stop := context.AfterFunc(ctx, func() {
		if err := a.tracker.Close(); err != nil {
			a.log.Warning("could not close tracker", "error", err.Error())
		}
	})
	defer stop()

	ticker := time.NewTicker(time.Second / time.Duration(m.activeFPS))
	defer ticker.Stop()

	a.log.Info("pipeline started", "source", a.config.Source, "fps", m.activeFPS)
	defer a.log.Info("pipeline stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		res, err := a.Step()
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			var be *sensor.BridgeError
			if errors.As(err, &be) {
				a.log.Warning("tracker reported an error", "error", err.Error())
				continue
			}
			return fmt.Errorf("read user frame: %w", err)
		}

		if display.IsQuit(a.display.WaitKey(1)) {
			a.log.Info("quit requested")
			return nil
		}

		fps, changed := m.update(hasUsers(res.Frame), time.Now())
		if !changed {
			continue
		}
		ticker.Reset(time.Second / time.Duration(fps))
		if a.camera != nil {
			a.camera.SetFPS(fps)
		}
		if m.active {
			a.log.Debug("switched to active mode", "fps", fps)
		} else {
			a.log.Debug("switched to idle mode", "fps", fps)
		}
	}
}
