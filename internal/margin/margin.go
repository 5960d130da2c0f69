// Package margin computes capital requirements and a P&L preview for an
// option position against the available balance.
package margin

import (
	"github.com/shopspring/decimal"

	"optiondesk/internal/errors"
)

var (
	hundred = decimal.NewFromInt(100)

	// PnLOffsets are the point moves previewed on either side of entry.
	PnLOffsets = []int64{5, 10, 15, 20, 25}
)

// CapitalRequired is the full premium outlay for a quantity at entry.
func CapitalRequired(entry decimal.Decimal, quantity int) decimal.Decimal {
	return entry.Mul(decimal.NewFromInt(int64(quantity)))
}

// MaxLots is how many whole lots the balance can pay for at entry.
func MaxLots(balance, entry decimal.Decimal, lotSize int) (int, error) {
	lotCost := entry.Mul(decimal.NewFromInt(int64(lotSize)))
	if !lotCost.IsPositive() {
		return 0, errors.Wrapf(errors.ErrInvalidPrice, "entry %s x lot size %d", entry, lotSize)
	}
	if balance.IsNegative() {
		return 0, nil
	}
	return int(balance.Div(lotCost).Floor().IntPart()), nil
}

// Utilization is capital as a share of balance. Raw may exceed 100 when the
// position is over-leveraged; Display is clamped to [0, 100].
type Utilization struct {
	Raw     decimal.Decimal
	Display decimal.Decimal
}

// Overleveraged reports whether the position needs more than the balance.
func (u Utilization) Overleveraged() bool {
	return u.Raw.GreaterThan(hundred)
}

// ComputeUtilization fails with ErrInvalidBalance for a non-positive balance.
func ComputeUtilization(capital, balance decimal.Decimal) (Utilization, error) {
	if !balance.IsPositive() {
		return Utilization{}, errors.Wrapf(errors.ErrInvalidBalance, "balance %s", balance)
	}
	raw := capital.Div(balance).Mul(hundred)
	display := raw
	if display.GreaterThan(hundred) {
		display = hundred
	}
	if display.IsNegative() {
		display = decimal.Zero
	}
	return Utilization{Raw: raw, Display: display}, nil
}

// PnLRow is one line of the preview table.
type PnLRow struct {
	Price  decimal.Decimal
	Points int64
	PnL    decimal.Decimal
}

// PnLTable previews profit rows at entry+offset followed by loss rows at
// entry-offset.
func PnLTable(entry decimal.Decimal, quantity int) []PnLRow {
	qty := decimal.NewFromInt(int64(quantity))
	rows := make([]PnLRow, 0, 2*len(PnLOffsets))
	for _, sign := range []int64{1, -1} {
		for _, p := range PnLOffsets {
			points := decimal.NewFromInt(sign * p)
			rows = append(rows, PnLRow{
				Price:  entry.Add(points),
				Points: sign * p,
				PnL:    points.Mul(qty),
			})
		}
	}
	return rows
}

// Input describes a position to evaluate.
type Input struct {
	Balance decimal.Decimal
	Entry   decimal.Decimal
	Lots    int
	LotSize int
}

// Summary is the full margin picture for a position.
type Summary struct {
	Quantity    int
	Capital     decimal.Decimal
	MaxLots     int
	Utilization Utilization
	PnL         []PnLRow
	NoPosition  bool
}

// NoPosition is the summary shown when nothing can be computed.
func NoPosition() Summary {
	return Summary{NoPosition: true}
}

// Evaluate computes every margin figure at once. When the balance or entry
// cannot support the division it returns NoPosition together with the cause.
func Evaluate(in Input) (Summary, error) {
	qty := in.Lots * in.LotSize
	capital := CapitalRequired(in.Entry, qty)

	maxLots, err := MaxLots(in.Balance, in.Entry, in.LotSize)
	if err != nil {
		return NoPosition(), err
	}

	util, err := ComputeUtilization(capital, in.Balance)
	if err != nil {
		return NoPosition(), err
	}

	return Summary{
		Quantity:    qty,
		Capital:     capital,
		MaxLots:     maxLots,
		Utilization: util,
		PnL:         PnLTable(in.Entry, qty),
	}, nil
}
