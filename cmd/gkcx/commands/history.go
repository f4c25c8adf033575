package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sankforever/gkcx/lib/history"
	"github.com/sankforever/gkcx/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historySteps bool
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "The number of runs to show.")
	historyCmd.Flags().BoolVar(&historySteps, "steps", false, "Show the state transitions of each run.")
	rootCmd.AddCommand(historyCmd)
}

func renderHistory(runs []history.Run, steps bool) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)

	header := table.Row{"#", "Started", "Duration", "Final", "Attempts", "Submissions", "Error"}
	if steps {
		header = append(header, "Steps")
	}
	t.AppendHeader(header)

	for _, run := range runs {
		errText := run.Error
		if errText == "" {
			errText = run.NotifyError
		}
		row := table.Row{
			run.ID,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Duration().Round(100 * time.Millisecond).String(),
			run.Final,
			run.Attempts,
			run.Submissions,
			errText,
		}
		if steps {
			names := make([]string, len(run.Steps))
			for i, s := range run.Steps {
				names[i] = fmt.Sprintf("%s(%d)", s.State, s.Attempt)
			}
			row = append(row, strings.Join(names, " > "))
		}
		t.AppendRow(row)
	}
	return t.Render()
}

var historyCmd = &cobra.Command{
	Use:   "history [-n <limit>] [--steps]",
	Short: "Lists previous runs recorded in the artifact directory.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := loadConfig(configPath)
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}

		path := config.artifact(historyArtifact)
		if _, err := os.Stat(path); err != nil {
			serviceutil.Fatal("no history recorded yet", err)
		}
		database, err := history.Open(path)
		if err != nil {
			serviceutil.Fatal("failed to open history", err)
		}
		defer database.Close()

		runs, err := history.NewStore(database).Recent(cmd.Context(), historyLimit, historySteps)
		if err != nil {
			serviceutil.Fatal("failed to read history", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderHistory(runs, historySteps))
	},
}
