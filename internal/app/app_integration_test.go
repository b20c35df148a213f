package app

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/google/go-cmp/cmp"
	"gocv.io/x/gocv"

	"github.com/ayusman/poseview/internal/capture"
	"github.com/ayusman/poseview/internal/display"
	"github.com/ayusman/poseview/internal/gallery"
	"github.com/ayusman/poseview/internal/plugin"
	"github.com/ayusman/poseview/internal/pose"
	"github.com/ayusman/poseview/internal/sensor"
	"github.com/ayusman/poseview/internal/store"
)

// holding returns n consecutive frames of user id holding skeleton s,
// starting at index start. The first frame marks the user as new.
func holding(id sensor.UserID, s sensor.Skeleton, start int64, n int) []*sensor.UserFrame {
	frames := make([]*sensor.UserFrame, n)
	for i := range frames {
		u := sensor.TrackedUser(id, s)
		u.IsNew = i == 0 && start == 0
		frames[i] = sensor.NewFrame(start+int64(i), u)
	}
	return frames
}

func lostFrame(id sensor.UserID, index int64) *sensor.UserFrame {
	u := sensor.TrackedUser(id, sensor.NeutralSkeleton())
	u.IsLost = true
	u.IsVisible = false
	return sensor.NewFrame(index, u)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestApp(t *testing.T, config Config) (*App, *sensor.MockTracker, *display.Headless) {
	t.Helper()

	tracker, _ := config.Tracker.(*sensor.MockTracker)
	if tracker == nil {
		tracker = sensor.NewMockTracker()
		config.Tracker = tracker
	}
	headless := display.NewHeadless()
	config.Display = headless
	config.Log = (*logging.TestLogger)(t)

	a, err := New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, tracker, headless
}

func TestNew_Requires(t *testing.T) {
	if _, err := New(Config{Display: display.NewHeadless()}); err == nil {
		t.Error("New() without a tracker should fail")
	}
	if _, err := New(Config{Tracker: sensor.NewMockTracker()}); err == nil {
		t.Error("New() without a display should fail")
	}

	a, err := New(Config{Tracker: sensor.NewMockTracker(), Display: display.NewHeadless(), FPS: 3})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.config.IdleFPS != 3 {
		t.Errorf("IdleFPS = %d, want it capped at FPS 3", a.config.IdleFPS)
	}
	if a.config.ConfirmFrames != pose.DefaultConfirmFrames {
		t.Errorf("ConfirmFrames = %d, want default", a.config.ConfirmFrames)
	}
	if !a.IsEnabled() {
		t.Error("new App should be enabled")
	}
}

func TestMode_Update(t *testing.T) {
	t0 := time.Unix(1000, 0)
	m := &mode{active: true, lastActive: t0, activeFPS: 30, idleFPS: 5, timeout: 2 * time.Second}

	steps := []struct {
		users       bool
		at          time.Duration
		wantFPS     int
		wantChanged bool
	}{
		{true, 0, 30, false},
		{false, time.Second, 30, false},
		{false, 2500 * time.Millisecond, 5, true},
		{false, 10 * time.Second, 5, false},
		{true, 11 * time.Second, 30, true},
		{true, 12 * time.Second, 30, false},
	}

	for i, s := range steps {
		fps, changed := m.update(s.users, t0.Add(s.at))
		if fps != s.wantFPS || changed != s.wantChanged {
			t.Errorf("step %d: update() = %d, %v, want %d, %v", i, fps, changed, s.wantFPS, s.wantChanged)
		}
	}
}

func TestMode_NoTimeout(t *testing.T) {
	t0 := time.Unix(1000, 0)
	m := &mode{active: true, lastActive: t0, activeFPS: 30, idleFPS: 5}
	if fps, changed := m.update(false, t0.Add(time.Hour)); fps != 30 || changed {
		t.Errorf("update() with no timeout = %d, %v, want 30, false", fps, changed)
	}
}

func TestApp_Step_ConfirmAndRelease(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s := newTestStore(t)
	frames := holding(1, sensor.NekoSkeleton(), 0, 6)
	frames = append(frames, holding(1, sensor.NeutralSkeleton(), 6, 1)...)

	a, tracker, headless := newTestApp(t, Config{
		Tracker: sensor.NewMockTracker(frames...),
		Store:   s,
		Source:  "test",
	})

	var confirmed []pose.Pose
	a.RegisterPoseCallback(func(user sensor.UserID, p pose.Pose) {
		if user != 1 {
			t.Errorf("callback user = %d, want 1", user)
		}
		confirmed = append(confirmed, p)
	})

	if err := a.StartSession(); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}

	// The new user is only handed to skeleton tracking on its first frame.
	res, err := a.Step()
	if err != nil {
		t.Fatalf("first Step() error = %v", err)
	}
	if len(res.Poses) != 0 {
		t.Fatalf("new user was classified: %+v", res.Poses)
	}

	for i := 0; i < 4; i++ {
		res, err := a.Step()
		if err != nil {
			t.Fatalf("Step() %d error = %v", i, err)
		}
		if got := res.Poses[1].Pose; got != pose.Neko {
			t.Fatalf("Step() %d classified %s, want NEKO", i, got)
		}
		if len(res.Transitions) != 0 {
			t.Fatalf("Step() %d confirmed early: %+v", i, res.Transitions)
		}
	}

	res, err = a.Step()
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(res.Transitions) != 1 || res.Transitions[0].Confirmed != pose.Neko {
		t.Fatalf("sixth Step() transitions = %+v, want NEKO confirmed", res.Transitions)
	}
	if diff := cmp.Diff([]pose.Pose{pose.Neko}, confirmed); diff != "" {
		t.Errorf("callbacks (-want +got):\n%s", diff)
	}
	if a.LastPose() != pose.Neko {
		t.Errorf("LastPose() = %s, want NEKO", a.LastPose())
	}

	res, err = a.Step()
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(res.Transitions) != 1 || res.Transitions[0].Released != pose.Neko {
		t.Fatalf("seventh Step() transitions = %+v, want NEKO released", res.Transitions)
	}
	if got := headless.Shown(display.PoseWindow); got != 1 {
		t.Errorf("pose window shown %d times, want 1 blank frame", got)
	}

	if _, err := a.Step(); !errors.Is(err, io.EOF) {
		t.Errorf("Step() at the end = %v, want io.EOF", err)
	}

	if diff := cmp.Diff([]sensor.UserID{1}, tracker.TrackingRequests()); diff != "" {
		t.Errorf("tracking requests (-want +got):\n%s", diff)
	}

	events, err := s.Events().ListBySession(a.SessionID())
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	type ev struct {
		Pose  pose.Pose
		Kind  store.EventKind
		Frame int64
	}
	var got []ev
	for _, e := range events {
		got = append(got, ev{e.Pose, e.Kind, e.FrameIndex})
	}
	want := []ev{
		{pose.Neko, store.EventConfirmed, 5},
		{pose.Neko, store.EventReleased, 6},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestApp_Step_LostUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frames := holding(7, sensor.BrunaSkeleton(), 1, 1)
	frames = append(frames, lostFrame(7, 2))

	a, _, _ := newTestApp(t, Config{
		Tracker:       sensor.NewMockTracker(frames...),
		ConfirmFrames: 1,
	})

	res, err := a.Step()
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(res.Transitions) != 1 || res.Transitions[0].Confirmed != pose.Bruna {
		t.Fatalf("transitions = %+v, want BRUNA confirmed", res.Transitions)
	}

	res, err = a.Step()
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(res.Transitions) != 1 || res.Transitions[0].Released != pose.Bruna {
		t.Fatalf("transitions = %+v, want BRUNA released", res.Transitions)
	}
	if n := a.Sessions().Len(); n != 0 {
		t.Errorf("lost user still has a stabilizer (%d)", n)
	}
	if _, ok := res.Poses[7]; ok {
		t.Error("lost user was classified")
	}
}

func TestApp_Step_Disabled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	a, _, _ := newTestApp(t, Config{
		Tracker:       sensor.NewMockTracker(holding(2, sensor.KaidanSkeleton(), 1, 3)...),
		ConfirmFrames: 1,
	})

	if _, err := a.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if got := a.Sessions().Active()[2]; got != pose.Kaidan {
		t.Fatalf("active pose = %s, want KAIDAN", got)
	}

	a.SetEnabled(false)
	res, err := a.Step()
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(res.Poses) != 0 {
		t.Errorf("disabled Step() classified %d users", len(res.Poses))
	}
	if len(res.Transitions) != 1 || res.Transitions[0].Released != pose.Kaidan {
		t.Errorf("disabled Step() transitions = %+v, want KAIDAN released", res.Transitions)
	}

	a.SetEnabled(true)
	res, err = a.Step()
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(res.Transitions) != 1 || res.Transitions[0].Confirmed != pose.Kaidan {
		t.Errorf("re-enabled Step() transitions = %+v, want KAIDAN confirmed", res.Transitions)
	}
}

func TestApp_Run_EndsAtEOF(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s := newTestStore(t)
	a, _, _ := newTestApp(t, Config{
		Tracker: sensor.NewMockTracker(holding(1, sensor.MajokoSkeleton(), 0, 8)...),
		Store:   s,
		Source:  "mock",
		FPS:     200,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("Run() only returned at the deadline")
	}

	sessions, err := s.Sessions().List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].Source != "mock" || sessions[0].EndedAt == nil {
		t.Fatalf("sessions = %+v, want one ended mock session", sessions)
	}

	counts, err := s.Events().CountByPose(sessions[0].ID)
	if err != nil {
		t.Fatalf("CountByPose() error = %v", err)
	}
	if diff := cmp.Diff(map[pose.Pose]int{pose.Majoko: 1}, counts); diff != "" {
		t.Errorf("counts (-want +got):\n%s", diff)
	}
}

func TestApp_Run_QuitKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tracker := sensor.NewMockTracker(holding(1, sensor.NeutralSkeleton(), 0, 1)...)
	tracker.SetLoop(true)
	a, _, headless := newTestApp(t, Config{Tracker: tracker, FPS: 200})
	headless.PressKey(display.KeyEscape)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("Run() ignored the quit key")
	}
}

func TestApp_Run_TrackerError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tracker := sensor.NewMockTracker()
	tracker.SetError(errors.New("device unplugged"))
	a, _, _ := newTestApp(t, Config{Tracker: tracker, FPS: 200})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.Run(ctx)
	if err == nil || !strings.Contains(err.Error(), "device unplugged") {
		t.Errorf("Run() error = %v, want the tracker error", err)
	}
}

func TestApp_Hook(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("skipping shell plugin on Windows")
	}

	pluginDir := t.TempDir()
	out := filepath.Join(t.TempDir(), "request.json")

	dir := filepath.Join(pluginDir, "marker")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	manifest, _ := json.Marshal(plugin.Manifest{
		Name:       "marker",
		Version:    "1.0.0",
		Executable: "run.sh",
		Actions:    []string{"mark"},
		Poses:      []string{"neko"},
	})
	if err := os.WriteFile(filepath.Join(dir, plugin.ManifestFile), manifest, 0644); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\ncat > '" + out + "'\necho '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	s := newTestStore(t)
	err := s.Bindings().Upsert(&store.Binding{
		Pose:       pose.Neko,
		PluginName: "marker",
		ActionName: "mark",
		Config:     json.RawMessage(`{"volume":3}`),
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	a, _, _ := newTestApp(t, Config{
		Tracker:       sensor.NewMockTracker(holding(4, sensor.NekoSkeleton(), 1, 1)...),
		Store:         s,
		Plugins:       plugin.NewManager(pluginDir, (*logging.TestLogger)(t)),
		ConfirmFrames: 1,
	})
	if err := a.DiscoverPlugins(); err != nil {
		t.Fatalf("DiscoverPlugins() error = %v", err)
	}

	if _, err := a.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	a.Wait()

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("plugin did not run: %v", err)
	}
	var req plugin.Request
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("plugin received bad request %q: %v", data, err)
	}
	if req.Action != "mark" || req.Pose != "NEKO" || req.UserID != 4 {
		t.Errorf("request = %+v, want mark NEKO for user 4", req)
	}
	if string(req.Config) != `{"volume":3}` {
		t.Errorf("request config = %s", req.Config)
	}
}

// blockingTracker stands in for a bridge that stopped sending frames.
type blockingTracker struct {
	done chan struct{}
	once sync.Once
}

func (b *blockingTracker) ReadFrame() (*sensor.UserFrame, error) {
	<-b.done
	return nil, sensor.ErrTrackerClosed
}

func (b *blockingTracker) StartSkeletonTracking(sensor.UserID) error { return nil }

func (b *blockingTracker) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

func TestApp_Run_CancelUnblocksRead(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tracker := &blockingTracker{done: make(chan struct{})}
	a, err := New(Config{
		Tracker: tracker,
		Display: display.NewHeadless(),
		Log:     (*logging.TestLogger)(t),
		FPS:     200,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel while the tracker was blocked")
	}
}

// depthFrame returns a 64x48 frame with depth data holding the given users.
func depthFrame(index int64, users ...sensor.User) *sensor.UserFrame {
	f := sensor.NewFrame(index, users...)
	pixels := make([]uint16, 64*48)
	for i := range pixels {
		pixels[i] = 1500
	}
	f.Depth = sensor.DepthFrame{Width: 64, Height: 48, Pixels: pixels}
	return f
}

func TestColorScale(t *testing.T) {
	tests := []struct {
		name  string
		cols  int
		frame *sensor.UserFrame
		width int
		want  float64
	}{
		{"depth frame width", 128, depthFrame(0), 320, 2},
		{"configured width without depth", 640, sensor.NewFrame(0), 320, 2},
		{"unknown width", 100, sensor.NewFrame(0), 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := colorScale(tt.cols, tt.frame, tt.width); got != tt.want {
				t.Errorf("colorScale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApp_Step_WithCamera(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	first := gocv.NewMatWithSize(96, 128, gocv.MatTypeCV8UC3)
	defer first.Close()
	second := gocv.NewMatWithSize(96, 128, gocv.MatTypeCV8UC3)
	defer second.Close()

	cam := capture.NewMockCamera([]*gocv.Mat{&first, &second}, false)
	if err := cam.Open(); err != nil {
		t.Fatalf("camera Open() error = %v", err)
	}

	neko := sensor.TrackedUser(1, sensor.NekoSkeleton())
	a, _, headless := newTestApp(t, Config{
		Tracker: sensor.NewMockTracker(
			depthFrame(1, neko),
			depthFrame(2, neko),
			depthFrame(3, neko),
		),
		Camera:        cam,
		ConfirmFrames: 1,
	})

	tests := []struct {
		name      string
		wantDebug int
		wantDepth int
	}{
		{"first color frame", 1, 1},
		{"second color frame", 2, 2},
		{"camera exhausted", 2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.Step()
			if err != nil {
				t.Fatalf("Step() error = %v", err)
			}
			if got := res.Poses[1].Pose; got != pose.Neko {
				t.Errorf("classified %s, want NEKO", got)
			}
			if got := headless.Shown(display.DebugWindow); got != tt.wantDebug {
				t.Errorf("debug window shown %d times, want %d", got, tt.wantDebug)
			}
			if got := headless.Shown(display.DepthWindow); got != tt.wantDepth {
				t.Errorf("depth window shown %d times, want %d", got, tt.wantDepth)
			}
		})
	}

	if got := cam.Reads(); got != 2 {
		t.Errorf("camera reads = %d, want 2", got)
	}
	if a.Sessions().Active()[1] != pose.Neko {
		t.Error("NEKO should stay confirmed after the camera ran out")
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
}

func TestApp_Step_ReleaseShowsRemainingPose(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "Majoko.png"), 16, 12)
	writePNG(t, filepath.Join(dir, "Neko.png"), 20, 10)

	log := (*logging.TestLogger)(t)
	g := gallery.New(dir, log)
	if err := g.Load(); err != nil {
		t.Fatalf("gallery Load() error = %v", err)
	}

	majoko := sensor.TrackedUser(1, sensor.MajokoSkeleton())
	a, _, headless := newTestApp(t, Config{
		Tracker: sensor.NewMockTracker(
			sensor.NewFrame(1, majoko, sensor.TrackedUser(2, sensor.NekoSkeleton())),
			sensor.NewFrame(2, majoko, sensor.TrackedUser(2, sensor.NeutralSkeleton())),
			sensor.NewFrame(3, sensor.TrackedUser(1, sensor.NeutralSkeleton())),
		),
		Gallery:       g,
		ConfirmFrames: 1,
	})

	steps := []struct {
		name      string
		wantShown int
		wantLast  image.Point
	}{
		{"both confirmed", 2, image.Pt(20, 10)},
		{"neko released while majoko holds", 3, image.Pt(16, 12)},
		{"majoko released", 4, image.Pt(a.config.Width, a.config.Height)},
	}
	for _, s := range steps {
		t.Run(s.name, func(t *testing.T) {
			if _, err := a.Step(); err != nil {
				t.Fatalf("Step() error = %v", err)
			}
			if got := headless.Shown(display.PoseWindow); got != s.wantShown {
				t.Errorf("pose window shown %d times, want %d", got, s.wantShown)
			}
			if got := headless.Last(display.PoseWindow); got != s.wantLast {
				t.Errorf("last pose frame = %v, want %v", got, s.wantLast)
			}
		})
	}
}
