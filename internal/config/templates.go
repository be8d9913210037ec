package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# alpaca-gate configuration

[trading]
mode = "paper"            # "live" or "paper"
initial_cash = 100000.0
symbols = ["AAPL", "MSFT"]
submit_timeout_seconds = 10

[risk]
max_position_fraction = 0.10
max_concurrent_positions = 5
max_daily_loss_fraction = 0.03
max_loss_per_trade_fraction = 0.01
trailing_stop_percent = 3.0
max_orders_per_day = 20
min_seconds_between_orders = 60

[feed]
url = ""                  # websocket tick feed URL

[store]
# db_path = "~/.config/alpaca-gate/gate.db"

[metrics]
enabled = false
addr = ":9090"
`

// createTemplateConfig writes a template config.toml so a first run has
// something to edit. Defaults still apply until the file is changed.
func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.WriteFile(path, []byte(configTemplate), 0644)
}
