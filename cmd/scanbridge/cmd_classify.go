package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scanbridge/internal/classifier"
)

var classifyConfigDir string

var classifyCmd = &cobra.Command{
	Use:   "classify <file-path>",
	Short: "Report whether a file is test code",
	Long: `Matches the file name against the test project pattern configured in the
run configuration (local setting sonar.msbuild.testProjectPattern), or the
built-in default when none is set. Prints true or false.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifyConfigDir, "config-dir", "", "Directory holding the run configuration (required)")
	classifyCmd.MarkFlagRequired("config-dir")
}

func runClassify(cmd *cobra.Command, args []string) error {
	res, err := classifier.New(toolCfg, logger).Classify(commandContext(cmd), args[0], classifyConfigDir)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.IsTest)
	return nil
}
