// Package pricing derives order levels (entry, target, stop-loss, lots) from a
// last traded price. Everything here is pure: the same inputs always give the
// same outputs, and nothing reads session state.
package pricing

import (
	"github.com/shopspring/decimal"

	"optiondesk/internal/models"
)

var (
	minStopLoss = decimal.RequireFromString("0.05")

	autoTradeEntryOffset = decimal.NewFromInt(2)
	tierSmall            = decimal.NewFromInt(3)
	tierMedium           = decimal.NewFromInt(10)
	pointsSmall          = decimal.NewFromInt(4)
	pointsMedium         = decimal.NewFromInt(8)
	pointsLarge          = decimal.NewFromInt(15)

	autoPriceEntryOffset  = decimal.NewFromInt(3)
	autoPriceTargetOffset = decimal.NewFromInt(5)
	autoPriceStopOffset   = decimal.NewFromInt(20)
	dynamicStopFraction   = decimal.RequireFromString("0.20")
)

// RoundToTick rounds a price to the nearest multiple of the 0.05 tick.
func RoundToTick(price decimal.Decimal) decimal.Decimal {
	return price.Div(models.TickSize).Round(0).Mul(models.TickSize)
}

// TargetPoints returns the tiered target distance for an entry price.
func TargetPoints(entry decimal.Decimal) decimal.Decimal {
	switch {
	case entry.LessThanOrEqual(tierSmall):
		return pointsSmall
	case entry.LessThanOrEqual(tierMedium):
		return pointsMedium
	default:
		return pointsLarge
	}
}

// Input is everything the auto-trade sizing needs.
type Input struct {
	LTP              decimal.Decimal
	TargetProfitGoal decimal.Decimal
	LotSize          int
	Balance          decimal.Decimal
}

// Params is a complete auto-trade order.
type Params struct {
	Entry        decimal.Decimal
	Target       decimal.Decimal
	StopLoss     decimal.Decimal
	TargetPoints decimal.Decimal
	Lots         int
	Quantity     int
	Risk         decimal.Decimal
}

// AutoTrade sizes a trade so that hitting the target earns roughly the profit
// goal, capped by what the balance can afford. ok is false when not even one
// lot is affordable or the inputs cannot describe a trade; the caller then
// falls back to manual entry.
func AutoTrade(in Input) (p Params, ok bool) {
	if !in.LTP.IsPositive() || !in.TargetProfitGoal.IsPositive() || in.LotSize <= 0 || in.Balance.IsNegative() {
		return Params{}, false
	}

	// Tier and affordability use the raw entry; prices are rounded on the way out.
	entry := in.LTP.Add(autoTradeEntryOffset)
	points := TargetPoints(entry)

	requiredQty := in.TargetProfitGoal.Div(points).Ceil().IntPart()
	lots := int((requiredQty + int64(in.LotSize) - 1) / int64(in.LotSize))

	lotCost := entry.Mul(decimal.NewFromInt(int64(in.LotSize)))
	affordable := int(in.Balance.Div(lotCost).Floor().IntPart())
	if lots > affordable {
		lots = affordable
	}
	if lots < 1 {
		return Params{}, false
	}

	stop := entry.Sub(points.Div(decimal.NewFromInt(3)))
	if stop.LessThan(minStopLoss) {
		stop = minStopLoss
	}
	qty := lots * in.LotSize
	p = Params{
		Entry:        RoundToTick(entry),
		Target:       RoundToTick(entry.Add(points)),
		StopLoss:     RoundToTick(stop),
		TargetPoints: points,
		Lots:         lots,
		Quantity:     qty,
	}
	p.Risk = Risk(p.Entry, p.StopLoss, qty)
	return p, true
}

// Levels are the three prices of a bracket order.
type Levels struct {
	Entry    decimal.Decimal
	Target   decimal.Decimal
	StopLoss decimal.Decimal
}

// AutoPrice is the default pricing used when auto-trade sizing is off: fixed
// offsets from the LTP with a proportional stop-loss when the fixed one would
// be non-positive or above entry.
func AutoPrice(ltp decimal.Decimal) Levels {
	entry := ltp.Add(autoPriceEntryOffset)
	target := entry.Add(autoPriceTargetOffset)

	stop := entry.Sub(autoPriceStopOffset)
	if !stop.IsPositive() || stop.GreaterThanOrEqual(entry) {
		stop = entry.Sub(dynamicStopFraction.Mul(ltp))
	}
	if stop.LessThan(minStopLoss) {
		stop = minStopLoss
	}

	return Levels{
		Entry:    RoundToTick(entry),
		Target:   RoundToTick(target),
		StopLoss: RoundToTick(stop),
	}
}

// Risk is the rupee loss if the stop-loss is hit, rounded to the nearest rupee.
func Risk(entry, stopLoss decimal.Decimal, quantity int) decimal.Decimal {
	return entry.Sub(stopLoss).Mul(decimal.NewFromInt(int64(quantity))).Round(0)
}
