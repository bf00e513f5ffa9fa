package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration.

Shows the merged result of defaults, the config file, and CAMFLOW_*
environment overrides, plus the bucket hash: the digest over the
tunables that affect bucket content. Runs with different bucket hashes
form separate lineages and never resume each other.`,
	Args:         cobra.NoArgs,
	RunE:         runConfigShow,
	SilenceUsage: true,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return &ExitError{Code: ExitConfigError, Message: err.Error()}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	fmt.Print(string(data))
	fmt.Printf("# bucket hash: %s\n", cfg.BucketHash())
	return nil
}
