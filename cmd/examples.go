package cmd

import (
	"context"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/nlq/internal/embedding"
	"github.com/JonMunkholm/nlq/internal/exemplar"
)

var examplesMatch string

var examplesCmd = &cobra.Command{
	Use:   "examples",
	Short: "List the few-shot exemplars",
	Long: `The examples command lists the exemplars loaded from NLQ_EXEMPLARS. With --match it
instead shows the exemplars that would be placed in the prompt for a question,
closest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), startupTimeout)
		defer cancel()

		if examplesMatch == "" {
			examples, err := loadExemplars(ctx, cfg)
			if err != nil {
				return err
			}
			return renderExemplars(examples)
		}

		var apiKey string
		if cfg.Embeddings.Provider == embedding.ProviderOpenAI {
			if apiKey, err = resolveAPIKey(ctx, cfg); err != nil {
				return err
			}
		}
		store, err := loadExemplarStore(ctx, cfg, apiKey)
		if err != nil {
			return err
		}
		selected, err := store.SelectTopK(ctx, examplesMatch, cfg.Exemplars.Count)
		if err != nil {
			return err
		}
		return renderExemplars(selected)
	},
}

func init() {
	rootCmd.AddCommand(examplesCmd)
	examplesCmd.Flags().StringVar(&examplesMatch, "match", "", "show the exemplars selected for this question")
}

func renderExemplars(examples []exemplar.Exemplar) error {
	data := pterm.TableData{{"#", "Question", "SQL"}}
	for i, ex := range examples {
		data = append(data, []string{strconv.Itoa(i + 1), ex.Input, ex.SQLCmd})
	}
	return pterm.DefaultTable.WithHasHeader().WithRowSeparator("-").WithData(data).Render()
}
