// Command scorecard-proxy serves the scorecard completion proxy.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/scorecard-proxy/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "scorecard-proxy",
	Short: "Completion proxy that inlines scorecard pages and follows paused turns",
	Long: `scorecard-proxy forwards chat-completion requests to the Anthropic Messages API.
When a request carries a scorecardUrl, the page is fetched, reduced to text and
appended to every user message. Paused turns are continued automatically.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "scorecard-proxy: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the YAML configuration file (optional)")
	rootCmd.PersistentFlags().String("log-level", "", "override server.log_level (debug, info, warn, error)")
}

// loadConfig loads the configuration named by --config, applies the
// environment and --log-level, and installs the default logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Server.LogLevel = config.LogLevel(lvl)
		if !cfg.Server.LogLevel.IsValid() {
			return nil, fmt.Errorf("invalid --log-level %q", lvl)
		}
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	return cfg, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
