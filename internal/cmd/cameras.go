package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runger/camflow/internal/storage"
)

var (
	cameraLocation  string
	cameraLatitude  float64
	cameraLongitude float64
	cameraNotes     string
)

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "Manage the traffic camera registry",
}

var camerasAddCmd = &cobra.Command{
	Use:          "add <camera-id>",
	Short:        "Register a camera or update its metadata",
	Args:         cobra.ExactArgs(1),
	RunE:         runCamerasAdd,
	SilenceUsage: true,
}

var camerasListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List registered cameras",
	Args:         cobra.NoArgs,
	RunE:         runCamerasList,
	SilenceUsage: true,
}

var camerasShowCmd = &cobra.Command{
	Use:          "show <camera-id>",
	Short:        "Show one camera",
	Args:         cobra.ExactArgs(1),
	RunE:         runCamerasShow,
	SilenceUsage: true,
}

func init() {
	camerasCmd.AddCommand(camerasAddCmd)
	camerasCmd.AddCommand(camerasListCmd)
	camerasCmd.AddCommand(camerasShowCmd)

	camerasAddCmd.Flags().StringVar(&cameraLocation, "location", "", "Human-readable location")
	camerasAddCmd.Flags().Float64Var(&cameraLatitude, "lat", 0, "Latitude")
	camerasAddCmd.Flags().Float64Var(&cameraLongitude, "lon", 0, "Longitude")
	camerasAddCmd.Flags().StringVar(&cameraNotes, "notes", "", "Free-form notes")
}

func runCamerasAdd(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	camera := &storage.Camera{
		CameraID: args[0],
		Location: cameraLocation,
		Notes:    cameraNotes,
	}
	if cmd.Flags().Changed("lat") {
		camera.Latitude = &cameraLatitude
	}
	if cmd.Flags().Changed("lon") {
		camera.Longitude = &cameraLongitude
	}

	if err := store.UpsertCamera(cmd.Context(), camera); err != nil {
		return fmt.Errorf("failed to save camera: %w", err)
	}
	fmt.Printf("camera %s saved\n", args[0])
	return nil
}

func runCamerasList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	cameras, err := store.ListCameras(cmd.Context())
	if err != nil {
		return err
	}
	if len(cameras) == 0 {
		fmt.Println("No cameras registered.")
		return nil
	}
	for _, camera := range cameras {
		line := camera.CameraID
		if camera.Location != "" {
			line += "  " + camera.Location
		}
		fmt.Println(line)
	}
	return nil
}

func runCamerasShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	camera, err := store.GetCamera(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("camera:   %s\n", camera.CameraID)
	if camera.Location != "" {
		fmt.Printf("location: %s\n", camera.Location)
	}
	if camera.Latitude != nil && camera.Longitude != nil {
		fmt.Printf("position: %.6f, %.6f\n", *camera.Latitude, *camera.Longitude)
	}
	if camera.Notes != "" {
		fmt.Printf("notes:    %s\n", camera.Notes)
	}
	fmt.Printf("created:  %s\n", camera.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

// openStore opens the configured database for query commands.
func openStore() (storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, &ExitError{Code: ExitConfigError, Message: err.Error()}
	}
	store, err := storage.Open(cfg.Storage.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}
