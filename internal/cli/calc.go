package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"optiondesk/internal/errors"
	"optiondesk/internal/models"
	"optiondesk/internal/session"
)

type calcOptions struct {
	symbol     string
	underlying string
	lotSize    int
	ltp        string
	balance    string
	goal       string
	autoTrade  bool
	lots       int
	entry      string
	target     string
	stopLoss   string
}

func newCalcCmd(app *App) *cobra.Command {
	var opts calcOptions

	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Price a trade offline from an LTP and a balance",
		Long: `Derive entry, target and stop-loss from a last traded price, then show the
capital required, the lots the balance affords and a P&L preview.

Setting --entry, --target, --stop-loss or --lots switches to manual levels,
exactly as editing the order form does in watch.`,
		Example: `  optiondesk calc --ltp 100 --balance 100000
  optiondesk calc --ltp 5 --balance 8000 --auto-trade --goal 1000
  optiondesk calc --symbol NIFTY25JAN24000CE --ltp 120 --balance 50000 --lots 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

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

			if output.IsJSON() {
				return output.JSON(viewOf(snap, false))
			}
			renderSnapshot(output, snap, false)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.symbol, "symbol", "s", "", "instrument key or trading symbol from the catalog")
	cmd.Flags().StringVarP(&opts.underlying, "underlying", "u", "", "NIFTY or SENSEX when no --symbol is given")
	cmd.Flags().IntVar(&opts.lotSize, "lot-size", 75, "lot size when no --symbol is given")
	cmd.Flags().StringVar(&opts.ltp, "ltp", "", "last traded price (required)")
	cmd.Flags().StringVar(&opts.balance, "balance", "0", "available margin")
	cmd.Flags().StringVar(&opts.goal, "goal", "", "target profit goal for auto-trade sizing")
	cmd.Flags().BoolVar(&opts.autoTrade, "auto-trade", false, "size the trade to the profit goal")
	cmd.Flags().IntVar(&opts.lots, "lots", 1, "lots (manual)")
	cmd.Flags().StringVar(&opts.entry, "entry", "", "entry price (manual)")
	cmd.Flags().StringVar(&opts.target, "target", "", "target price (manual)")
	cmd.Flags().StringVar(&opts.stopLoss, "stop-loss", "", "stop-loss price (manual)")
	cmd.MarkFlagRequired("ltp")

	return cmd
}

// calcInstrument resolves the option being priced. Without --symbol a
// placeholder contract carries the lot size.
func calcInstrument(cmd *cobra.Command, app *App, opts calcOptions) (models.Instrument, error) {
	if opts.symbol != "" {
		cat, closeFn, err := app.loadCatalog(cmd.Context())
		if err != nil {
			return models.Instrument{}, err
		}
		defer closeFn()
		return cat.Lookup(opts.symbol)
	}

	name := opts.underlying
	if name == "" {
		name = app.Config.Trading.DefaultUnderlying
	}
	u, err := models.ParseUnderlying(name)
	if err != nil {
		return models.Instrument{}, err
	}
	inst := models.Instrument{
		Key:           "CALC",
		TradingSymbol: fmt.Sprintf("%s option", u),
		Underlying:    u,
		OptionType:    models.CE,
		Expiry:        time.Now(),
		LotSize:       opts.lotSize,
	}
	if err := inst.Validate(); err != nil {
		return models.Instrument{}, errors.NewValidationError("lot-size", opts.lotSize, err.Error())
	}
	return inst, nil
}

// runCalc replays what watch does for one tick: select, record the balance
// and price, reprice, then apply any manual edit.
func runCalc(inst models.Instrument, opts calcOptions, lotsSet bool) (session.Snapshot, error) {
	ltp, err := parseDecimal("ltp", opts.ltp)
	if err != nil {
		return session.Snapshot{}, err
	}
	balance, err := parseDecimal("balance", opts.balance)
	if err != nil {
		return session.Snapshot{}, err
	}
	goal, err := parseDecimal("goal", opts.goal)
	if err != nil {
		return session.Snapshot{}, err
	}

	edit := session.Edit{}
	if edit.Entry, err = optionalDecimal("entry", opts.entry); err != nil {
		return session.Snapshot{}, err
	}
	if edit.Target, err = optionalDecimal("target", opts.target); err != nil {
		return session.Snapshot{}, err
	}
	if edit.StopLoss, err = optionalDecimal("stop-loss", opts.stopLoss); err != nil {
		return session.Snapshot{}, err
	}
	if lotsSet {
		if opts.lots < 0 {
			return session.Snapshot{}, errors.NewValidationError("lots", opts.lots, "lots must not be negative")
		}
		lots := opts.lots
		edit.Lots = &lots
	}

	st := session.NewState(goal, opts.autoTrade)
	st.SelectUnderlying(inst.Underlying)
	st.SelectInstrument(inst)
	st.ApplyBalance(balance)
	st.ApplyLTP(ltp)
	notice := st.Reprice()
	st.ApplyEdit(edit)

	return session.Evaluate(st, notice), nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.NewValidationError(field, s, "not a number")
	}
	if d.IsNegative() {
		return decimal.Zero, errors.NewValidationError(field, s, "must not be negative")
	}
	return d, nil
}

func optionalDecimal(field, s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := parseDecimal(field, s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
