package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/runger/camflow/internal/storage"
)

var (
	metricsCamera string
	metricsRun    string
	metricsSource string
	metricsSince  string
	metricsUntil  string
	metricsLimit  int
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Query committed traffic metrics",
	Long: `Query committed traffic metrics.

Reads the derived per-bucket rows written by pipeline runs. Filters
combine with AND; time bounds apply to bucket_ts and are RFC3339.

Examples:
  camflow metrics counts --camera cam-01
  camflow metrics density --camera cam-01 --since 2026-08-25T00:00:00Z
  camflow metrics emissions --run 8f14e45f-...`,
}

var metricsCountsCmd = &cobra.Command{
	Use:          "counts",
	Short:        "Per-class vehicle counts by bucket",
	Args:         cobra.NoArgs,
	RunE:         runMetricsCounts,
	SilenceUsage: true,
}

var metricsDensityCmd = &cobra.Command{
	Use:          "density",
	Short:        "Congestion score and level by bucket",
	Args:         cobra.NoArgs,
	RunE:         runMetricsDensity,
	SilenceUsage: true,
}

var metricsEmissionsCmd = &cobra.Command{
	Use:          "emissions",
	Short:        "CO2 estimates by bucket",
	Args:         cobra.NoArgs,
	RunE:         runMetricsEmissions,
	SilenceUsage: true,
}

func init() {
	metricsCmd.AddCommand(metricsCountsCmd)
	metricsCmd.AddCommand(metricsDensityCmd)
	metricsCmd.AddCommand(metricsEmissionsCmd)

	metricsCmd.PersistentFlags().StringVar(&metricsCamera, "camera", "", "Filter by camera ID")
	metricsCmd.PersistentFlags().StringVar(&metricsRun, "run", "", "Filter by run ID")
	metricsCmd.PersistentFlags().StringVar(&metricsSource, "source", "", "Filter by source")
	metricsCmd.PersistentFlags().StringVar(&metricsSince, "since", "", "Inclusive lower bucket_ts bound, RFC3339")
	metricsCmd.PersistentFlags().StringVar(&metricsUntil, "until", "", "Exclusive upper bucket_ts bound, RFC3339")
	metricsCmd.PersistentFlags().IntVarP(&metricsLimit, "limit", "n", 100, "Maximum number of rows to show")
}

func buildMetricsQuery() (storage.MetricsQuery, error) {
	q := storage.MetricsQuery{
		CameraID: metricsCamera,
		RunID:    metricsRun,
		Source:   metricsSource,
		Limit:    metricsLimit,
	}
	if metricsSince != "" {
		t, err := time.Parse(time.RFC3339, metricsSince)
		if err != nil {
			return q, fmt.Errorf("invalid --since: %w", err)
		}
		t = t.UTC()
		q.Since = &t
	}
	if metricsUntil != "" {
		t, err := time.Parse(time.RFC3339, metricsUntil)
		if err != nil {
			return q, fmt.Errorf("invalid --until: %w", err)
		}
		t = t.UTC()
		q.Until = &t
	}
	return q, nil
}

func runMetricsCounts(cmd *cobra.Command, args []string) error {
	q, err := buildMetricsQuery()
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.QueryVehicleCounts(cmd.Context(), q)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No vehicle counts found.")
		return nil
	}
	for _, row := range rows {
		fmt.Printf("%s  %s  %-11s %4d\n",
			row.BucketTS.Format(time.RFC3339), row.CameraID, row.VehicleType, row.Count)
	}
	return nil
}

func runMetricsDensity(cmd *cobra.Command, args []string) error {
	q, err := buildMetricsQuery()
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.QueryDensity(cmd.Context(), q)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No density records found.")
		return nil
	}
	for _, row := range rows {
		line := fmt.Sprintf("%s  %s  total=%-4d score=%.3f level=%s",
			row.BucketTS.Format(time.RFC3339), row.CameraID,
			row.TotalVehicles, row.DensityScore, row.DensityLevel)
		if row.BBoxOccupancy != nil {
			line += fmt.Sprintf(" occupancy=%.3f", *row.BBoxOccupancy)
		}
		fmt.Println(line)
	}
	return nil
}

func runMetricsEmissions(cmd *cobra.Command, args []string) error {
	q, err := buildMetricsQuery()
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.QueryEmissions(cmd.Context(), q)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No emission estimates found.")
		return nil
	}
	for _, row := range rows {
		fmt.Printf("%s  %s  %.3f kg CO2 (%.3f - %.3f)\n",
			row.BucketTS.Format(time.RFC3339), row.CameraID,
			row.EstimatedCO2Kg, row.CO2LowKg, row.CO2HighKg)
	}
	return nil
}
