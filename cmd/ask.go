package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/nlq/internal/chain"
	"github.com/JonMunkholm/nlq/internal/shaper"
)

var askDetails bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question from the terminal",
	Long: `The ask command runs a single question through the same pipeline as the web page
and prints the answer. With --details it also prints the generated SQL, the raw
result and the result as a table.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return fmt.Errorf("question is required")
		}

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		startCtx, cancel := context.WithTimeout(cmd.Context(), startupTimeout)
		a, err := newApp(startCtx, cfg, logger)
		cancel()
		if err != nil {
			return err
		}
		defer a.Close()

		spinner, _ := pterm.DefaultSpinner.Start("Thinking...")
		out := a.executor.Invoke(cmd.Context(), question)
		if spinner != nil {
			if out.OK() {
				spinner.Success("Done")
			} else {
				spinner.Fail(out.State.String())
			}
		}

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Answer")).
			WithPadding(1).
			Println(out.Record.Answer)

		if askDetails && !out.Record.Sentinel {
			printDetails(out.Record)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askDetails, "details", false, "print the SQL query and result")
}

func printDetails(rec chain.Record) {
	pterm.DefaultSection.Println("SQL Query")
	pterm.Println(rec.SQL)
	pterm.DefaultSection.Println("Result")
	pterm.Println(rec.Result)

	table, err := shaper.Parse(rec.Result)
	if err != nil || len(table.Rows) == 0 {
		return
	}

	header := rec.Columns
	if len(header) != table.Columns() {
		header = make([]string, table.Columns())
		for i := range header {
			header[i] = fmt.Sprintf("column_%d", i+1)
		}
	}
	data := pterm.TableData{header}
	for _, row := range table.Rows {
		cells := make([]string, len(header))
		for i, v := range row {
			cells[i] = shaper.Text(v)
		}
		data = append(data, cells)
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()

	if points, ok := table.SortedByMetric(); ok {
		bars := make(pterm.Bars, 0, len(points))
		for _, p := range points {
			bars = append(bars, pterm.Bar{Label: p.Category, Value: int(p.Metric)})
		}
		_ = pterm.DefaultBarChart.WithHorizontal().WithBars(bars).WithShowValue().Render()
	}
}
