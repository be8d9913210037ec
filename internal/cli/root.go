package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"alpaca-gate/internal/broker"
	"alpaca-gate/internal/config"
	"alpaca-gate/internal/logging"
	"alpaca-gate/internal/risk"
	"alpaca-gate/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-08-01"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.DataStore
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize SQLite store
	dataStore, err := store.NewSQLiteStore(cfg.Store.DBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, state will not persist")
	} else {
		app.Store = dataStore
		logger.Debug().Msg("SQLite store initialized")
	}

	rootCmd := &cobra.Command{
		Use:   "gate",
		Short: "Alpaca Gate - risk checkpoint between strategy and broker",
		Long: `Alpaca Gate sits between an order-proposing strategy and the brokerage.

Every proposed order passes an ordered risk checklist before it can reach
the broker: circuit breaker, position count, position size, per-trade risk,
and order cadence. Open positions carry trailing stops that only tighten,
and a daily-loss circuit breaker flattens the book when breached.

Use 'gate help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/alpaca-gate)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addStatusCommands(rootCmd, app)
	addTradeCommands(rootCmd, app)
	addRunCommands(rootCmd, app)

	return rootCmd
}

// buildGate constructs a gate over a paper adapter, resuming state
// from the store when today's session is already on disk.
func (a *App) buildGate() (*risk.Gate, error) {
	paper := broker.NewPaperBroker(a.Config.Trading.InitialCash)
	return risk.NewGate(a.Logger, paper, a.Config.Trading.InitialCash, a.Config.Risk, risk.Options{
		Store: a.Store,
	})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Alpaca Gate v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage risk gate configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			output.Info("Trading")
			output.Printf("  mode:            %s\n", app.Config.Trading.Mode)
			output.Printf("  initial cash:    %.2f\n", app.Config.Trading.InitialCash)
			output.Printf("  symbols:         %v\n", app.Config.Trading.Symbols)
			output.Info("Risk limits")
			r := app.Config.Risk
			output.Printf("  max position fraction:       %.2f\n", r.MaxPositionFraction)
			output.Printf("  max concurrent positions:    %d\n", r.MaxConcurrentPositions)
			output.Printf("  max daily loss fraction:     %.2f\n", r.MaxDailyLossFraction)
			output.Printf("  max loss per trade fraction: %.2f\n", r.MaxLossPerTradeFraction)
			output.Printf("  trailing stop percent:       %.2f\n", r.TrailingStopPercent)
			output.Printf("  max orders per day:          %d\n", r.MaxOrdersPerDay)
			output.Printf("  min seconds between orders:  %d\n", r.MinSecondsBetweenOrders)
			return nil
		},
	})

	return cmd
}
