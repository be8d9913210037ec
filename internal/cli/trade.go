package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"alpaca-gate/internal/models"
	"alpaca-gate/pkg/utils"
)

// addTradeCommands adds order submission and position management
// commands. Every order goes through the gate's checklist; there is no
// path around it.
func addTradeCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newOrderCmd(app))
	rootCmd.AddCommand(newCloseCmd(app))
	rootCmd.AddCommand(newCloseAllCmd(app))
	rootCmd.AddCommand(newBreakerCmd(app))
}

func newOrderCmd(app *App) *cobra.Command {
	var limitPrice float64
	var exit bool

	cmd := &cobra.Command{
		Use:   "order <buy|sell> <symbol> <quantity>",
		Short: "Propose an order through the risk gate",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			side := models.OrderSide(args[0])
			if side != models.OrderSideBuy && side != models.OrderSideSell {
				return fmt.Errorf("side must be buy or sell, got %q", args[0])
			}
			qty, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", args[2], err)
			}

			kind := models.OrderKindEntry
			if exit {
				kind = models.OrderKindExit
			}
			orderType := models.OrderTypeMarket
			if limitPrice > 0 {
				orderType = models.OrderTypeLimit
			}

			gate, err := app.buildGate()
			if err != nil {
				return err
			}
			decision, err := gate.CheckAndSubmitOrder(cmd.Context(), &models.Order{
				Symbol:         args[1],
				Side:           side,
				Kind:           kind,
				Type:           orderType,
				Quantity:       qty,
				LimitPrice:     limitPrice,
				TimeInForce:    models.TIFDay,
				IdempotencyKey: uuid.New().String(),
				CreatedAt:      time.Now(),
			})

			output := NewOutput(cmd)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(decision)
			}
			if !decision.Accepted {
				output.Error("rejected: %s", decision.Reason)
				return nil
			}
			if decision.Fill != nil {
				output.Success("filled %s %s x%s @ %s (order %s)",
					args[0], args[1], utils.FormatQuantity(decision.Fill.Quantity),
					utils.FormatUSD(decision.Fill.Price), decision.OrderID)
			} else {
				output.Warning("accepted, outcome pending (order %s)", decision.OrderID)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&limitPrice, "limit", 0, "limit price (market order when omitted)")
	cmd.Flags().BoolVar(&exit, "exit", false, "close or reduce an existing position")
	return cmd
}

func newCloseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "close <symbol>",
		Short: "Close the full position in a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, err := app.buildGate()
			if err != nil {
				return err
			}
			decision, err := gate.ClosePosition(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(decision)
			}
			if !decision.Accepted {
				output.Error("close rejected: %s", decision.Reason)
				return nil
			}
			if decision.Fill != nil {
				output.Success("closed %s x%s @ %s", args[0],
					utils.FormatQuantity(decision.Fill.Quantity), utils.FormatUSD(decision.Fill.Price))
			}
			return nil
		},
	}
}

func newCloseAllCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "close-all",
		Short: "Emergency-close every open position",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if !yes {
				output.Warning("This closes every open position at market. Re-run with --yes to confirm.")
				return nil
			}

			gate, err := app.buildGate()
			if err != nil {
				return err
			}
			results := gate.EmergencyCloseAll(cmd.Context())
			if output.IsJSON() {
				return output.JSON(results)
			}
			if len(results) == 0 {
				output.Dim("No open positions")
				return nil
			}
			for _, res := range results {
				switch {
				case res.Err != "":
					output.Error("%s: %s", res.Symbol, res.Err)
				case res.Fill != nil:
					output.Success("%s closed x%s @ %s", res.Symbol,
						utils.FormatQuantity(res.Fill.Quantity), utils.FormatUSD(res.Fill.Price))
				default:
					output.Warning("%s: %s", res.Symbol, res.Reason)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the emergency close")
	return cmd
}

func newBreakerCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breaker",
		Short: "Circuit breaker operations",
	}

	var force bool
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Rearm a tripped circuit breaker",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, err := app.buildGate()
			if err != nil {
				return err
			}
			if err := gate.ResetBreaker(force); err != nil {
				return err
			}
			NewOutput(cmd).Success("breaker armed")
			return nil
		},
	}
	resetCmd.Flags().BoolVar(&force, "force", false, "allow a same-day reset")

	cmd.AddCommand(resetCmd)
	return cmd
}
