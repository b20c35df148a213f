package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/poseview/internal/app"
	"github.com/ayusman/poseview/internal/capture"
	"github.com/ayusman/poseview/internal/display"
	"github.com/ayusman/poseview/internal/gallery"
	"github.com/ayusman/poseview/internal/plugin"
	"github.com/ayusman/poseview/internal/pose"
	"github.com/ayusman/poseview/internal/recording"
	"github.com/ayusman/poseview/internal/sensor"
	"github.com/ayusman/poseview/internal/tray"
)

var (
	runRecord   string
	runTray     bool
	runHeadless bool

	replayLoop     bool
	replayHeadless bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Classify poses from the live sensor",
	Long: `Start the sensor bridge configured under sensor.bridge and classify the
poses of every tracked user. Press q or ESC in a window to quit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bridge, err := sensor.NewBridgeTracker(cfg.Sensor.TrackerConfig())
		if err != nil {
			return err
		}

		var tracker sensor.Tracker = bridge
		if runRecord != "" {
			w, err := recording.Create(runRecord)
			if err != nil {
				bridge.Close()
				return err
			}
			tracker = recording.NewRecorder(bridge, w)
			log.Info("recording frames", "path", runRecord)
		}

		return runApp(cmd.Context(), tracker, "sensor", runHeadless, runTray, cfg.Sensor.UseCamera)
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Run the pipeline over a recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		player, err := recording.Open(args[0])
		if err != nil {
			return err
		}
		player.SetLoop(replayLoop)

		return runApp(cmd.Context(), player, "replay:"+args[0], replayHeadless, false, false)
	},
}

func init() {
	runCmd.Flags().StringVar(&runRecord, "record", "", "also write every frame to this recording file")
	runCmd.Flags().BoolVar(&runTray, "tray", false, "show a system tray menu")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "do not open any windows")

	replayCmd.Flags().BoolVar(&replayLoop, "loop", false, "restart the recording when it ends")
	replayCmd.Flags().BoolVar(&replayHeadless, "headless", false, "do not open any windows")

	rootCmd.AddCommand(runCmd, replayCmd)
}

func runApp(ctx context.Context, tracker sensor.Tracker, source string, headless, withTray, withCamera bool) error {
	st, err := openStore()
	if err != nil {
		tracker.Close()
		return err
	}
	defer st.Close()

	var disp display.Display = display.NewWindows()
	if headless {
		disp = display.NewHeadless()
	}

	g := gallery.New(paths.Images, log)
	if err := g.Load(); err != nil {
		log.Warning("could not load every pose image", "error", err.Error())
	}

	var cam capture.Camera
	if withCamera {
		cam = capture.NewCamera(cfg.Sensor.Camera)
	}

	a, err := app.New(app.Config{
		Tracker:       tracker,
		Camera:        cam,
		Display:       disp,
		Store:         st,
		Gallery:       g,
		Plugins:       plugin.NewManager(paths.Plugins, log),
		Executor:      plugin.NewExecutor(cfg.Pose.PluginTimeoutMs),
		Log:           log,
		Source:        source,
		Width:         cfg.Sensor.Width,
		Height:        cfg.Sensor.Height,
		FPS:           cfg.Sensor.FPS,
		IdleFPS:       cfg.Sensor.IdleFPS,
		IdleTimeout:   time.Duration(cfg.Sensor.IdleTimeoutMs) * time.Millisecond,
		MaxDepth:      cfg.Render.MaxDepth,
		MinConfidence: cfg.Render.MinConfidence,
		Thresholds:    cfg.Pose.Thresholds,
		ConfirmFrames: cfg.Pose.ConfirmFrames,
	})
	if err != nil {
		tracker.Close()
		g.Close()
		disp.Close()
		return err
	}
	defer a.Close()

	if err := a.LoadBindings(); err != nil {
		log.Warning("could not load bindings", "error", err.Error())
	}
	if err := a.DiscoverPlugins(); err != nil {
		log.Warning("could not discover plugins", "error", err.Error())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := g.Watch(ctx); err != nil {
			log.Warning("not watching pose images", "dir", g.Dir(), "error", err.Error())
		}
	}()

	if !withTray {
		return a.Run(ctx)
	}

	tr := tray.New()
	tr.OnToggle(func(enabled bool) {
		a.SetEnabled(enabled)
		log.Info("classification toggled", "enabled", enabled)
	})
	tr.OnQuit(cancel)
	a.RegisterPoseCallback(func(_ sensor.UserID, p pose.Pose) {
		tr.SetLastPose(p)
	})

	errc := make(chan error, 1)
	go func() {
		errc <- a.Run(ctx)
		tr.Stop()
	}()
	tr.Run()
	cancel()
	return <-errc
}
