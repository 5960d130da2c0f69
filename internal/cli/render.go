package cli

import (
	"fmt"

	"github.com/shopspring/decimal"

	"optiondesk/internal/margin"
	"optiondesk/internal/session"
	"optiondesk/pkg/utils"
)

// snapshotView is the JSON shape of a session snapshot.
type snapshotView struct {
	Underlying string              `json:"underlying,omitempty"`
	IndexPrice decimal.Decimal     `json:"index_price"`
	Instrument string              `json:"instrument_key,omitempty"`
	Symbol     string              `json:"trading_symbol,omitempty"`
	LTP        decimal.Decimal     `json:"ltp"`
	Balance    decimal.Decimal     `json:"balance"`
	Mode       string              `json:"mode"`
	AutoTrade  bool                `json:"auto_trade"`
	Entry      decimal.NullDecimal `json:"entry"`
	Target     decimal.NullDecimal `json:"target"`
	StopLoss   decimal.NullDecimal `json:"stop_loss"`
	Lots       int                 `json:"lots"`
	Quantity   int                 `json:"quantity"`
	Risk       decimal.NullDecimal `json:"risk"`
	Margin     *margin.Summary     `json:"margin,omitempty"`
	Notice     string              `json:"notice,omitempty"`
	Feeds      map[string]string   `json:"feeds,omitempty"`
}

func viewOf(snap session.Snapshot, withFeeds bool) snapshotView {
	st := snap.State
	v := snapshotView{
		Underlying: string(st.Underlying),
		IndexPrice: st.IndexPrice,
		LTP:        st.LTP,
		Balance:    st.Balance,
		Mode:       st.Mode.String(),
		AutoTrade:  st.AutoTrade,
		Entry:      st.Entry,
		Target:     st.Target,
		StopLoss:   st.StopLoss,
		Lots:       st.Lots,
		Quantity:   snap.Quantity,
		Risk:       snap.Risk,
		Margin:     snap.Margin,
		Notice:     snap.Notice,
	}
	if st.Instrument != nil {
		v.Instrument = st.Instrument.Key
		v.Symbol = st.Instrument.TradingSymbol
	}
	if withFeeds {
		v.Feeds = map[string]string{
			"ltp":     snap.LTPFeed.String(),
			"index":   snap.IndexFeed.String(),
			"balance": snap.BalanceFeed.String(),
		}
	}
	return v
}

func nullPrice(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return utils.FormatPrice(d.Decimal)
}

// renderSnapshot prints the order form and margin panel for a snapshot.
func renderSnapshot(output *Output, snap session.Snapshot, withFeeds bool) {
	st := snap.State

	header := []string{}
	if st.Underlying != "" {
		header = append(header, fmt.Sprintf("%-10s %s", st.Underlying, utils.FormatPrice(st.IndexPrice)))
	}
	if st.Instrument != nil {
		header = append(header, fmt.Sprintf("%-10s %s  (lot %d)", "Option", st.Instrument.TradingSymbol, st.Instrument.LotSize))
		header = append(header, fmt.Sprintf("%-10s %s", "LTP", utils.FormatPrice(st.LTP)))
	}
	header = append(header, fmt.Sprintf("%-10s %s", "Balance", utils.FormatIndianCurrency(st.Balance)))

	mode := st.Mode.String()
	if st.AutoTrade {
		mode += " + auto-trade"
	}
	header = append(header, fmt.Sprintf("%-10s %s", "Mode", mode))
	if withFeeds {
		header = append(header, fmt.Sprintf("%-10s ltp=%s index=%s balance=%s", "Feeds",
			snap.LTPFeed, snap.IndexFeed, snap.BalanceFeed))
	}
	output.Box("optiondesk", header)

	if st.Instrument != nil {
		output.Println()
		table := NewTable(output, "ENTRY", "TARGET", "STOP-LOSS", "LOTS", "QTY", "RISK")
		risk := "-"
		if snap.Risk.Valid {
			risk = utils.FormatIndianCurrency(snap.Risk.Decimal)
		}
		table.AddRow(
			nullPrice(st.Entry),
			output.Green(nullPrice(st.Target)),
			output.Red(nullPrice(st.StopLoss)),
			fmt.Sprintf("%d", st.Lots),
			utils.FormatQuantity(int64(snap.Quantity)),
			risk,
		)
		table.Render()
	}

	if snap.Notice != "" {
		output.Println()
		output.Warning("⚠ %s", snap.Notice)
	}

	output.Println()
	renderMargin(output, snap.Margin)
}

func renderMargin(output *Output, sum *margin.Summary) {
	switch {
	case sum == nil:
		output.Dim("Margin: unchanged")
		return
	case sum.NoPosition:
		output.Dim("Margin: no position")
		return
	}

	output.Printf("Capital required: %s\n", utils.FormatIndianCurrency(sum.Capital))
	output.Printf("Max lots:         %d\n", sum.MaxLots)
	output.Printf("Utilization:      %s\n", output.FormatPercent(sum.Utilization.Display))
	if sum.Utilization.Overleveraged() {
		output.Error("Position needs %s%% of the balance", sum.Utilization.Raw.StringFixed(2))
	}

	if len(sum.PnL) == 0 {
		return
	}
	output.Println()
	table := NewTable(output, "PRICE", "POINTS", "P&L")
	for _, row := range sum.PnL {
		table.AddRow(
			utils.FormatPrice(row.Price),
			fmt.Sprintf("%+d", row.Points),
			output.FormatPnL(row.PnL),
		)
	}
	table.Render()
}
