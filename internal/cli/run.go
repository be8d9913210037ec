package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"alpaca-gate/internal/broker"
	"alpaca-gate/internal/feed"
	"alpaca-gate/internal/models"
	"alpaca-gate/internal/monitoring"
	"alpaca-gate/internal/notify"
	"alpaca-gate/internal/risk"
)

// addRunCommands adds the long-running session commands.
func addRunCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newReconcileCmd(app))
}

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the gate session: consume ticks, trail stops, enforce the breaker",
		Long: `Run connects to the price feed and keeps the gate live: every tick
marks positions, advances trailing stops, and re-checks the daily-loss
breaker. Stop exits and breaker-triggered emergency exits are submitted
automatically. The session ends on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			paper := broker.NewPaperBroker(app.Config.Trading.InitialCash)
			notifier := notify.NewNotifier(notify.NewTerminalChannel(true))
			gate, err := risk.NewGate(app.Logger, paper, app.Config.Trading.InitialCash, app.Config.Risk, risk.Options{
				Store:         app.Store,
				Notifier:      notifier,
				SubmitTimeout: time.Duration(app.Config.Trading.SubmitTimeoutS) * time.Second,
			})
			if err != nil {
				return err
			}

			if app.Config.Metrics.Enabled {
				go serveMetrics(app, app.Config.Metrics.Addr)
			}

			tickFeed := feed.NewWSFeed(app.Config.Feed.URL, app.Logger)
			tickFeed.OnTick(func(tick models.Tick) {
				paper.ProcessTick(tick)
				gate.OnTick(ctx, tick)
			})
			tickFeed.OnError(func(err error) {
				app.Logger.Error().Err(err).Msg("feed error")
			})

			if err := tickFeed.Connect(ctx); err != nil {
				return err
			}
			defer tickFeed.Close()

			if err := tickFeed.Subscribe(app.Config.Trading.Symbols); err != nil {
				return err
			}

			app.Logger.Info().
				Strs("symbols", app.Config.Trading.Symbols).
				Str("feed", app.Config.Feed.URL).
				Msg("gate session started")

			<-ctx.Done()
			app.Logger.Info().Msg("gate session stopped")
			return nil
		},
	}
}

func newReconcileCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Adopt broker positions as ledger truth and clear pending flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, err := app.buildGate()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := gate.Reconcile(ctx); err != nil {
				return err
			}
			NewOutput(cmd).Success("reconciled against broker")
			return nil
		},
	}
}

func serveMetrics(app *App, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())
	app.Logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		app.Logger.Error().Err(err).Msg("metrics server stopped")
	}
}
