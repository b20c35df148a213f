// Command poseview classifies body poses from a depth sensor's skeleton
// tracker and shows an image for each confirmed pose.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ausocean/utils/logging"
	"github.com/spf13/cobra"

	"github.com/ayusman/poseview/internal/config"
	"github.com/ayusman/poseview/internal/store"
)

var (
	configPath    string
	logLevel      string
	confirmFrames int
	fps           int

	cfg       *config.Config
	paths     config.PathsConfig
	log       logging.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "poseview",
	Short:         "Body pose recognition for depth sensors",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			p, err := config.DefaultPath()
			if err != nil {
				return err
			}
			configPath = p
		}

		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			if _, err := config.ParseLevel(logLevel); err != nil {
				return err
			}
			c.Log.Level = logLevel
		}
		if cmd.Flags().Changed("confirm-frames") {
			c.Pose.ConfirmFrames = confirmFrames
		}
		if cmd.Flags().Changed("fps") {
			c.Sensor.FPS = fps
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		base := filepath.Dir(configPath)
		if err := os.MkdirAll(base, 0755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
		paths = cfg.Paths.Resolve(base)
		log, logCloser = cfg.Log.NewLogger(os.Stderr, base)
		log.Debug("loaded config", "path", configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.poseview/config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warning, error")
	rootCmd.PersistentFlags().IntVar(&confirmFrames, "confirm-frames", 0, "consecutive frames needed to confirm a pose")
	rootCmd.PersistentFlags().IntVar(&fps, "fps", 0, "pipeline frame rate while users are tracked")
}

// openStore opens the pose database named in the config.
func openStore() (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(paths.Database), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.New(paths.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
