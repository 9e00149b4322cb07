package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"scanbridge/internal/analysisconfig"
	"scanbridge/internal/config"
	"scanbridge/internal/lockedfile"
	"scanbridge/internal/logging"
)

// configCmd groups commands on the tool settings and the run configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create tool settings, inspect or edit a run configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print a run configuration as yaml",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigShow,
}

var configSetLocalCmd = &cobra.Command{
	Use:   "set-local <file> <key> <value>",
	Short: "Add or replace a local setting",
	Long: `Sets a local setting in the run configuration and saves it. Keys are
matched case-insensitively; an existing entry keeps its position.

Example:
  scanbridge config set-local SonarQubeAnalysisConfig.xml sonar.msbuild.testProjectPattern '^.*Specs$'`,
	Args: cobra.ExactArgs(3),
	RunE: runConfigSetLocal,
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default tool settings to the --config file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetLocalCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}
	if err := config.DefaultConfig().Save(commandContext(cmd), configPath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := analysisconfig.Load(commandContext(cmd), args[0], lockOptions())
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigSetLocal(cmd *cobra.Command, args []string) error {
	path, key, value := args[0], args[1], args[2]
	ctx := commandContext(cmd)
	opts := lockOptions()

	cfg, err := analysisconfig.Load(ctx, path, opts)
	if err != nil {
		return err
	}
	cfg.LocalSettings.Set(key, value)
	if err := cfg.Save(ctx, path, opts); err != nil {
		return err
	}
	logger.Info("local setting updated", zap.String("file", path), zap.String("key", key))
	return nil
}

func lockOptions() lockedfile.Options {
	opts := toolCfg.LockOptions()
	opts.Logger = logging.For(logger, logging.CategoryConfig)
	return opts
}
