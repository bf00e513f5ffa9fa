package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runger/camflow/internal/storage"
)

var (
	runsCamera string
	runsSource string
	runsStatus string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline runs",
}

var runsListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List pipeline runs, most recent first",
	Args:         cobra.NoArgs,
	RunE:         runRunsList,
	SilenceUsage: true,
}

var runsShowCmd = &cobra.Command{
	Use:          "show <run-id>",
	Short:        "Show one run and its checkpoint",
	Args:         cobra.ExactArgs(1),
	RunE:         runRunsShow,
	SilenceUsage: true,
}

func init() {
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)

	runsListCmd.Flags().StringVar(&runsCamera, "camera", "", "Filter by camera ID")
	runsListCmd.Flags().StringVar(&runsSource, "source", "", "Filter by source")
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "Filter by status (running, completed, failed, stopped)")
	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs to show")
}

func runRunsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.QueryRuns(cmd.Context(), storage.RunQuery{
		CameraID: runsCamera,
		Source:   runsSource,
		Status:   runsStatus,
		Limit:    runsLimit,
	})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}
	for _, run := range runs {
		fmt.Printf("%s  %-9s  %s  %s  %s\n",
			run.RunID, run.Status, run.CameraID, run.Source,
			run.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run:         %s\n", run.RunID)
	fmt.Printf("camera:      %s\n", run.CameraID)
	fmt.Printf("source:      %s\n", run.Source)
	fmt.Printf("config hash: %s\n", run.ConfigHash)
	fmt.Printf("status:      %s\n", run.Status)
	fmt.Printf("started:     %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.EndedAt != nil {
		fmt.Printf("ended:       %s\n", run.EndedAt.Format("2006-01-02 15:04:05"))
	}
	if run.ErrorMessage != nil {
		fmt.Printf("error:       %s\n", *run.ErrorMessage)
	}
	if run.VideoFPS != nil {
		fmt.Printf("video:       %.2f fps", *run.VideoFPS)
		if run.FrameWidth != nil && run.FrameHeight != nil {
			fmt.Printf(", %dx%d", *run.FrameWidth, *run.FrameHeight)
		}
		if run.FrameCount != nil {
			fmt.Printf(", %d frames", *run.FrameCount)
		}
		fmt.Println()
	}

	checkpoint, err := store.GetCheckpoint(cmd.Context(), run.RunID)
	if errors.Is(err, storage.ErrCheckpointNotFound) {
		fmt.Println("checkpoint:  none (no buckets committed)")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("checkpoint:  bucket %d at %s\n",
		checkpoint.BucketIndex, checkpoint.LastBucketTS.Format("2006-01-02 15:04:05"))
	return nil
}
