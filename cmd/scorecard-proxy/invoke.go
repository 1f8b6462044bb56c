package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/scorecard-proxy/internal/app"
	"github.com/MrWong99/scorecard-proxy/internal/proxy"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke [event.json]",
	Short: "Run one serverless invocation",
	Long: `Reads a function event ({"httpMethod","headers","body","isBase64Encoded"})
from the given file or stdin, handles it once and prints the response
({"statusCode","headers","body"}) to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		raw, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("reading event: %w", err)
		}
		var ev proxy.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("decoding event: %w", err)
		}

		application, err := app.New(cfg)
		if err != nil {
			return err
		}
		resp := application.Proxy().Handle(cmd.Context(), ev)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

func init() {
	rootCmd.AddCommand(invokeCmd)
}
