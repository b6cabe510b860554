package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Alias1177/PaperTrader/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "papertrader",
	Short: "Paper-trading bot for Binance spot pairs",
	Long: `PaperTrader listens to closed Binance klines, runs a set of technical and
forecast strategies, and trades a simulated account when enough of them agree.
Every decision passes a risk gate before it reaches the ledger.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd, backtestCmd, summaryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and sets up the global logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	setupLogger(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func setupLogger(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
