package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"alpaca-gate/internal/models"
	"alpaca-gate/internal/store"
	"alpaca-gate/pkg/utils"
)

// addStatusCommands adds read-only inspection commands.
func addStatusCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newPositionsCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show breaker state, daily P&L, and order counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, err := app.buildGate()
			if err != nil {
				return err
			}
			status := gate.RiskStatus()

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(status)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetTitle("RISK STATUS %s", status.TradingDay)
			t.SetStyle(table.StyleRounded)

			breaker := output.Green(string(status.Breaker))
			if status.Breaker == models.BreakerTripped {
				breaker = output.Red(string(status.Breaker))
			}
			halted := "no"
			if status.Halted {
				halted = output.Red(fmt.Sprintf("yes (%s)", status.HaltReason))
			}

			t.AppendRows([]table.Row{
				{"Breaker", breaker},
				{"Equity", utils.FormatUSD(status.Equity)},
				{"Daily P&L", utils.FormatPnL(status.DailyPnL)},
				{"Realized", utils.FormatPnL(status.RealizedPnL)},
				{"Unrealized", utils.FormatPnL(status.UnrealizedPnL)},
				{"Orders today", status.OrdersToday},
				{"Open positions", status.OpenPositionCount},
				{"Halted", halted},
			})
			t.Render()
			return nil
		},
	}
}

func newPositionsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "List open positions with trailing-stop state",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, err := app.buildGate()
			if err != nil {
				return err
			}
			positions := gate.Positions()

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(positions)
			}
			if len(positions) == 0 {
				output.Dim("No open positions")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetTitle("OPEN POSITIONS")
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"Symbol", "Side", "Qty", "Entry", "Last", "Peak", "Stop", "Unrealized"})

			for _, pos := range positions {
				t.AppendRow(table.Row{
					pos.Symbol,
					string(pos.Side),
					utils.FormatQuantity(pos.Quantity),
					utils.FormatUSD(pos.EntryPrice),
					utils.FormatUSD(pos.LastPrice),
					utils.FormatUSD(pos.PeakPrice),
					utils.FormatUSD(pos.StopPrice),
					utils.FormatPnL(pos.UnrealizedPnL()),
				})
			}
			t.Render()
			return nil
		},
	}
}

func newHistoryCmd(app *App) *cobra.Command {
	var symbol string
	var rejectedOnly bool
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show gate decision history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}
			records, err := app.Store.GetDecisions(cmd.Context(), store.DecisionFilter{
				Symbol:       symbol,
				RejectedOnly: rejectedOnly,
				Limit:        limit,
			})
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Dim("No decisions recorded")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetTitle("DECISION HISTORY")
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"Time", "Symbol", "Kind", "Side", "Qty", "Outcome", "Reason"})

			for _, rec := range records {
				outcome := output.Green("accepted")
				if !rec.Accepted {
					outcome = output.Red("rejected")
				}
				t.AppendRow(table.Row{
					rec.Timestamp.Format("15:04:05"),
					rec.Symbol,
					rec.Kind,
					rec.Side,
					utils.FormatQuantity(rec.Quantity),
					outcome,
					rec.Reason,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "filter by symbol")
	cmd.Flags().BoolVar(&rejectedOnly, "rejected", false, "show only rejections")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}
