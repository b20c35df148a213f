package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/ayusman/poseview/internal/app"
	"github.com/ayusman/poseview/internal/pose"
	"github.com/ayusman/poseview/internal/recording"
)

var classifyCmd = &cobra.Command{
	Use:   "classify FILE",
	Short: "Classify every frame of a recording and print pose counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		total, err := recording.Count(path)
		if err != nil {
			return err
		}

		bar := pb.StartNew(total)
		sum, err := app.ClassifyRecording(path, cfg.Pose.Thresholds, cfg.Pose.ConfirmFrames, func() { bar.Increment() })
		bar.Finish()
		if err != nil {
			return err
		}

		log.Info("classified recording", "path", path, "frames", sum.Frames)
		printSummary(sum)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func printSummary(sum *app.Summary) {
	fmt.Printf("%d frames\n\n", sum.Frames)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprint(w, "USER")
	for _, p := range pose.All() {
		fmt.Fprintf(w, "\t%s", p)
	}
	fmt.Fprintln(w)
	for _, id := range sum.Users() {
		fmt.Fprintf(w, "%d", id)
		for _, p := range pose.All() {
			fmt.Fprintf(w, "\t%d", sum.Counts[id][p])
		}
		fmt.Fprintln(w)
	}
	w.Flush()

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POSE\tHOLDS\tMEAN FRAMES\tSTDDEV")
	for _, p := range pose.All() {
		mean, std := sum.HoldStats(p)
		fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f\n", p, len(sum.Holds[p]), mean, std)
	}
	w.Flush()
}
