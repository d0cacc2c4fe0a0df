package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/corpusqa/internal/app"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the built index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	asst, err := app.NewAssistant(cfg, log)
	if err != nil {
		return err
	}

	res := asst.HandleQuestion(cmd.Context(), strings.Join(args, " "))

	if askJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(res.Text)
	if len(res.Sources) > 0 {
		cmd.Println()
		cmd.Println("Источники:")
		for _, s := range res.Sources {
			cmd.Printf("  - %s\n", s)
		}
	}
	return nil
}
