// Command scanbridge prepares build output for analysis: it aggregates the
// per-project dump directory, classifies test files and edits the run
// configuration.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scanbridge/internal/config"
	"scanbridge/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Set up in PersistentPreRunE
	toolCfg *config.Config
	logger  *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "scanbridge",
	Short: "Glue between parallel builds and code analysis",
	Long: `scanbridge reads what each project build left behind and turns it into
the input of the analysis step.

Each build writes a ProjectInfo.xml descriptor into its own folder under a
shared dump directory; the run configuration (SonarQubeAnalysisConfig.xml)
is shared by every build. Files locked by a concurrent build are retried
for a bounded time.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Both optional. Load stops at the first missing file, so one call each.
		for _, f := range []string{".env", ".env.local"} {
			_ = godotenv.Load(f)
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		toolCfg = cfg

		logger, err = logging.New(cfg.Logging.Options(verbose))
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "scanbridge.yaml", "Tool settings file (yaml)")

	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
