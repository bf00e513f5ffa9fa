package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/runger/camflow/internal/config"
	"github.com/runger/camflow/internal/live"
	"github.com/runger/camflow/internal/pipeline"
	"github.com/runger/camflow/internal/storage"
)

// Exit codes for camflow run.
const (
	ExitSuccess     = 0
	ExitRunFailed   = 1
	ExitConfigError = 2
	ExitStopped     = 4
)

// ExitError is an error that carries a specific process exit code.
// cobra.RunE returns this so main can set the exit status.
type ExitError struct {
	Message string
	Code    int
}

func (e *ExitError) Error() string {
	return e.Message
}

var (
	runCamera    string
	runStartTime string
	runLocation  string
	runLatitude  float64
	runLongitude float64
	runNotes     string
)

var runCmd = &cobra.Command{
	Use:   "run <source>",
	Short: "Run the detection pipeline against a video source",
	Long: `Run the detection pipeline against a video source.

The source is either synthetic:<name> (frames generated from the
video.synthetic config section) or a path to a .jsonl capture file.

Runs are resumable: a run that failed or was interrupted picks up
after its last committed bucket when invoked again with the same
camera, source, and configuration. A completed run is never
reprocessed.

Examples:
  camflow run --camera cam-01 synthetic:demo
  camflow run --camera cam-01 captures/morning.jsonl
  camflow run --camera cam-01 --start-time 2026-08-25T08:00:00Z clip.jsonl`,
	Args:         cobra.ExactArgs(1),
	RunE:         runPipeline,
	SilenceUsage: true,
}

func init() {
	runCmd.Flags().StringVar(&runCamera, "camera", "", "Camera identifier (required)")
	runCmd.Flags().StringVar(&runStartTime, "start-time", "", "Bucket grid origin, RFC3339 (default now)")
	runCmd.Flags().StringVar(&runLocation, "location", "", "Camera location, stored in the registry")
	runCmd.Flags().Float64Var(&runLatitude, "lat", 0, "Camera latitude")
	runCmd.Flags().Float64Var(&runLongitude, "lon", 0, "Camera longitude")
	runCmd.Flags().StringVar(&runNotes, "notes", "", "Camera notes")
	runCmd.MarkFlagRequired("camera")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return &ExitError{Code: ExitConfigError, Message: err.Error()}
	}

	req := pipeline.Request{
		CameraID: runCamera,
		Source:   args[0],
		Location: runLocation,
		Notes:    runNotes,
	}
	if runStartTime != "" {
		start, err := time.Parse(time.RFC3339, runStartTime)
		if err != nil {
			return &ExitError{Code: ExitConfigError, Message: fmt.Sprintf("invalid --start-time: %v", err)}
		}
		req.StartTime = start.UTC()
	}
	if cmd.Flags().Changed("lat") {
		req.Latitude = &runLatitude
	}
	if cmd.Flags().Changed("lon") {
		req.Longitude = &runLongitude
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	paths := config.DefaultPaths()
	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	store, err := storage.Open(cfg.Storage.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	var sink pipeline.EventSink
	if cfg.Live.Enabled {
		publisher := live.NewPublisher(cfg.Live, logger)
		defer publisher.Close()
		sink = publisher
	}

	p, err := pipeline.New(&pipeline.Options{
		Config: cfg,
		Store:  store,
		Sink:   sink,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	// SIGINT/SIGTERM is a user stop, not a failure: the pipeline
	// commits what it has and marks the run stopped.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	summary, err := p.Run(ctx, req)
	if err != nil {
		return err
	}

	if summary.AlreadyComplete {
		fmt.Printf("run %s already completed; nothing to do\n", summary.RunID)
		return nil
	}

	fmt.Printf("run %s %s\n", summary.RunID, summary.Status)
	fmt.Printf("  frames processed: %d\n", summary.FramesProcessed)
	if summary.FramesSkipped > 0 {
		fmt.Printf("  frames skipped:   %d (already committed)\n", summary.FramesSkipped)
	}
	fmt.Printf("  buckets committed: %d\n", summary.BucketsCommitted)

	if summary.Status == storage.StatusStopped {
		return &ExitError{Code: ExitStopped, Message: "run stopped before completion"}
	}
	return nil
}
