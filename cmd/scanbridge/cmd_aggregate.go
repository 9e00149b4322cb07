package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scanbridge/internal/projectloader"
)

var (
	aggregateJSON  bool
	aggregateWatch bool
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <dump-dir>",
	Short: "List the analyzable projects in a dump directory",
	Long: `Loads the descriptor of every project folder under dump-dir, merges the
compiled and content file lists and drops projects with no source files.

With --watch the directory is re-aggregated whenever a build changes it,
until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runAggregate,
}

func init() {
	aggregateCmd.Flags().BoolVar(&aggregateJSON, "json", false, "Print the project list as JSON")
	aggregateCmd.Flags().BoolVar(&aggregateWatch, "watch", false, "Re-aggregate on every change")
}

func runAggregate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dumpDir := args[0]
	loader := projectloader.New(toolCfg, logger)
	out := cmd.OutOrStdout()

	res, err := loader.Load(ctx, dumpDir)
	if err != nil {
		return err
	}
	if err := printResult(out, res); err != nil {
		return err
	}
	if !aggregateWatch {
		return nil
	}

	w, err := projectloader.NewWatcher(loader, dumpDir, toolCfg.GetDebounce(), func(res *projectloader.Result, err error) {
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			return
		}
		if err := printResult(out, res); err != nil {
			logger.Error("failed to print result", zap.Error(err))
		}
	}, logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

func printResult(w io.Writer, res *projectloader.Result) error {
	if aggregateJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err := io.WriteString(w, renderSummary(res))
	return err
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	testCellStyle = cellStyle.Foreground(lipgloss.Color("3"))
	excludedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// renderSummary formats the projects as a table followed by one line per
// excluded folder.
func renderSummary(res *projectloader.Result) string {
	rows := make([][]string, 0, len(res.Projects))
	for _, p := range res.Projects {
		kind := "product"
		if p.IsTest {
			kind = "test"
		}
		rows = append(rows, []string{
			p.Name,
			kind,
			strconv.Itoa(len(p.Files)),
			yesNo(p.StaticAnalysisReport != ""),
			yesNo(p.CoverageReport != ""),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PROJECT", "TYPE", "FILES", "ANALYSIS", "COVERAGE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 1 && row >= 0 && row < len(rows) && rows[row][1] == "test":
				return testCellStyle
			default:
				return cellStyle
			}
		})

	s := t.String() + "\n"
	s += fmt.Sprintf("%d project(s), %d excluded\n", len(res.Projects), len(res.Exclusions))
	for _, e := range res.Exclusions {
		s += excludedStyle.Render("  skipped "+e.String()) + "\n"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

// commandContext returns the command context, or Background when the command
// was not started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
