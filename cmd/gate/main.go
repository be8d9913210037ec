package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"alpaca-gate/internal/cli"
	"alpaca-gate/internal/config"
	"alpaca-gate/internal/logging"
)

func main() {
	// Optional .env for local overrides; missing file is fine.
	godotenv.Load()

	configDir := os.Getenv("GATE_CONFIG_DIR")
	if configDir == "" {
		configDir = config.DefaultConfigDir()
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger()

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
