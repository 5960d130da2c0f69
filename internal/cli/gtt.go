package cli

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"optiondesk/internal/broker"
	"optiondesk/internal/errors"
	"optiondesk/internal/models"
	"optiondesk/internal/session"
)

func newGTTCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gtt",
		Short: "Place and modify GTT bracket orders",
	}

	cmd.AddCommand(newGTTPlaceCmd(app))
	cmd.AddCommand(newGTTModifyCmd(app))

	return cmd
}

func newGTTPlaceCmd(app *App) *cobra.Command {
	var opts calcOptions
	var yes bool

	cmd := &cobra.Command{
		Use:   "place <symbol>",
		Short: "Price an option from its LTP and place the bracket",
		Long: `Look the option up in the catalog, derive the levels the same way calc and
watch do, and place them as a GTT order. Manual --entry, --target,
--stop-loss and --lots override the derived values.`,
		Example: `  optiondesk gtt place NIFTY25JAN24000CE --ltp 120 --balance 50000 --yes
  optiondesk gtt place NSE_FO|43121 --ltp 95 --entry 97 --target 110 --stop-loss 85 --lots 2 --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			opts.symbol = args[0]
			if !cmd.Flags().Changed("goal") {
				opts.goal = decimal.NewFromFloat(app.Config.Trading.TargetProfitGoal).String()
			}
			if !cmd.Flags().Changed("auto-trade") {
				opts.autoTrade = app.Config.Trading.AutoTrade
			}

			inst, err := calcInstrument(cmd, app, opts)
			if err != nil {
				return err
			}
			snap, err := runCalc(inst, opts, cmd.Flags().Changed("lots"))
			if err != nil {
				return err
			}

			req, err := gttRequest(snap)
			if err != nil {
				return err
			}
			if err := broker.ValidateGTT(req); err != nil {
				return err
			}

			if !output.IsJSON() {
				renderSnapshot(output, snap, false)
				output.Println()
			}
			if !yes {
				output.Warning("Dry run: pass --yes to place this order")
				return nil
			}

			result, err := app.backend().PlaceGTT(cmd.Context(), req)
			if err != nil {
				if result != nil && !output.IsJSON() {
					output.Error("Order rejected: %s", result.Message)
				}
				return err
			}
			if output.IsJSON() {
				return output.JSON(result)
			}
			output.Success("✓ GTT placed: %s", result.OrderID)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ltp, "ltp", "", "last traded price (required)")
	cmd.Flags().StringVar(&opts.balance, "balance", "0", "available margin")
	cmd.Flags().StringVar(&opts.goal, "goal", "", "target profit goal for auto-trade sizing")
	cmd.Flags().BoolVar(&opts.autoTrade, "auto-trade", false, "size the trade to the profit goal")
	cmd.Flags().IntVar(&opts.lots, "lots", 1, "lots (manual)")
	cmd.Flags().StringVar(&opts.entry, "entry", "", "entry price (manual)")
	cmd.Flags().StringVar(&opts.target, "target", "", "target price (manual)")
	cmd.Flags().StringVar(&opts.stopLoss, "stop-loss", "", "stop-loss price (manual)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "place the order instead of printing it")
	cmd.MarkFlagRequired("ltp")

	return cmd
}

// gttRequest turns a priced snapshot into a bracket order.
func gttRequest(snap session.Snapshot) (models.GTTRequest, error) {
	st := snap.State
	if st.Instrument == nil {
		return models.GTTRequest{}, errors.ErrNoInstrument
	}
	if !st.Entry.Valid || !st.Target.Valid || !st.StopLoss.Valid {
		return models.GTTRequest{}, errors.NewValidationError("levels", nil, "entry, target and stop-loss are all required")
	}
	return models.GTTRequest{
		InstrumentKey: st.Instrument.Key,
		Quantity:      snap.Quantity,
		Entry:         st.Entry.Decimal,
		Target:        st.Target.Decimal,
		StopLoss:      st.StopLoss.Decimal,
	}, nil
}

func newGTTModifyCmd(app *App) *cobra.Command {
	var quantity int
	var entry, target, stopLoss string

	cmd := &cobra.Command{
		Use:   "modify <gtt-order-id>",
		Short: "Change the legs of an existing GTT order",
		Example: `  optiondesk gtt modify 123456 --quantity 150 --stop-loss 82.5
  optiondesk gtt modify 123456 --quantity 75 --entry 101 --target 116`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			mod := broker.GTTModification{OrderID: args[0], Quantity: quantity}
			var err error
			if mod.Entry, err = optionalDecimal("entry", entry); err != nil {
				return err
			}
			if mod.Target, err = optionalDecimal("target", target); err != nil {
				return err
			}
			if mod.StopLoss, err = optionalDecimal("stop-loss", stopLoss); err != nil {
				return err
			}
			if mod.Entry == nil && mod.Target == nil && mod.StopLoss == nil {
				return errors.NewValidationError("legs", nil, "set at least one of --entry, --target or --stop-loss")
			}

			result, err := app.backend().ModifyGTT(cmd.Context(), mod)
			if err != nil {
				if result != nil && !output.IsJSON() {
					output.Error("Modification rejected: %s", result.Message)
				}
				return err
			}
			if output.IsJSON() {
				return output.JSON(result)
			}
			output.Success("✓ GTT %s modified", result.OrderID)
			return nil
		},
	}

	cmd.Flags().IntVarP(&quantity, "quantity", "q", 0, "order quantity (required)")
	cmd.Flags().StringVar(&entry, "entry", "", "new entry price")
	cmd.Flags().StringVar(&target, "target", "", "new target price")
	cmd.Flags().StringVar(&stopLoss, "stop-loss", "", "new stop-loss price")
	cmd.MarkFlagRequired("quantity")

	return cmd
}
