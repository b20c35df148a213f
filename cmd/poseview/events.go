package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/poseview/internal/pose"
	"github.com/ayusman/poseview/internal/store"
)

var (
	eventsLimit   int
	eventsSession string

	bindImage    string
	bindPlugin   string
	bindAction   string
	bindConfig   string
	bindDisabled bool
	bindDelete   bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent pose events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		var events []*store.Event
		if eventsSession != "" {
			if _, err := st.Sessions().GetByID(eventsSession); err != nil {
				return fmt.Errorf("session %s: %w", eventsSession, err)
			}
			events, err = st.Events().ListBySession(eventsSession)
		} else {
			events, err = st.Events().Recent(eventsLimit)
		}
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}

		if len(events) == 0 {
			fmt.Println("No pose events.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSESSION\tUSER\tPOSE\tKIND\tFRAME")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%.8s\t%d\t%s\t%s\t%d\n",
				e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.SessionID, e.UserID, e.Pose, e.Kind, e.FrameIndex)
		}
		return w.Flush()
	},
}

var bindCmd = &cobra.Command{
	Use:   "bind POSE",
	Short: "Bind an image or plugin action to a pose",
	Long: `Create or update the binding of a pose. --image overrides the pose image
from the image directory; --plugin and --action run a plugin action each time
the pose is confirmed. --delete removes the binding.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := pose.Parse(args[0])
		if err != nil {
			return err
		}
		if p == pose.None {
			return errors.New("cannot bind NONE")
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if bindDelete {
			if err := st.Bindings().Delete(p); err != nil {
				return fmt.Errorf("delete binding: %w", err)
			}
			fmt.Printf("Removed binding for %s\n", p)
			return nil
		}

		b, err := st.Bindings().Get(p)
		switch {
		case errors.Is(err, store.ErrNotFound):
			b = &store.Binding{Pose: p, Enabled: true}
		case err != nil:
			return fmt.Errorf("load binding: %w", err)
		}

		if cmd.Flags().Changed("image") {
			if bindImage != "" {
				if _, err := os.Stat(bindImage); err != nil {
					return fmt.Errorf("image: %w", err)
				}
			}
			b.ImagePath = bindImage
		}
		if cmd.Flags().Changed("plugin") {
			b.PluginName = bindPlugin
		}
		if cmd.Flags().Changed("action") {
			b.ActionName = bindAction
		}
		if cmd.Flags().Changed("config") {
			if !json.Valid([]byte(bindConfig)) {
				return errors.New("config is not valid JSON")
			}
			b.Config = json.RawMessage(bindConfig)
		}
		if cmd.Flags().Changed("disabled") {
			b.Enabled = !bindDisabled
		}
		if (b.PluginName == "") != (b.ActionName == "") {
			return errors.New("--plugin and --action must be set together")
		}

		if err := st.Bindings().Upsert(b); err != nil {
			return fmt.Errorf("save binding: %w", err)
		}
		log.Info("binding saved", "pose", string(p), "image", b.ImagePath, "plugin", b.PluginName, "action", b.ActionName)
		fmt.Printf("Bound %s\n", p)
		return nil
	},
}

func init() {
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "maximum number of events to list")
	eventsCmd.Flags().StringVar(&eventsSession, "session", "", "list every event of this session")

	bindCmd.Flags().StringVar(&bindImage, "image", "", "image shown for the pose (empty clears it)")
	bindCmd.Flags().StringVar(&bindPlugin, "plugin", "", "plugin to run on confirmation")
	bindCmd.Flags().StringVar(&bindAction, "action", "", "plugin action to run")
	bindCmd.Flags().StringVar(&bindConfig, "config", "", "JSON config passed to the plugin")
	bindCmd.Flags().BoolVar(&bindDisabled, "disabled", false, "keep the binding but do not run its action")
	bindCmd.Flags().BoolVar(&bindDelete, "delete", false, "remove the binding")

	rootCmd.AddCommand(eventsCmd, bindCmd)
}
