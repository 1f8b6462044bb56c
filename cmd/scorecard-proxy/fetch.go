package main

import (
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/MrWong99/scorecard-proxy/internal/app"
	"github.com/MrWong99/scorecard-proxy/internal/config"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch a scorecard page and print the text the model would see",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if ex, _ := cmd.Flags().GetString("extractor"); ex != "" {
			cfg.Fetcher.Extractor = config.Extractor(ex)
		}

		f, err := app.NewFetcher(cfg.Fetcher)
		if err != nil {
			return err
		}
		page, err := f.Fetch(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), page.Text)
		fmt.Fprintf(cmd.ErrOrStderr(), "%d characters\n", utf8.RuneCountInString(page.Text))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringP("extractor", "e", "", "override fetcher.extractor (regex, tokenizer)")
}
