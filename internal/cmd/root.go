// Package cmd implements the camflow command-line interface.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/runger/camflow/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "camflow",
	Short: "traffic-camera metrics pipeline",
	Long: `camflow - durable traffic metrics from camera detections
  - run a detection pipeline against a video source
  - query committed counts, density, and CO2 estimates`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file (default ~/.camflow/config.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(camerasCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the effective configuration, honoring --config.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFromFile(cfgFile)
	}
	return config.Load()
}
