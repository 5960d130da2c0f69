package pricing

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func paise(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

// Property: Rounding an already rounded price is a no-op, and the result is
// always a whole multiple of the tick.
func TestProperty_RoundToTickIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("roundToTick(roundToTick(x)) == roundToTick(x)", prop.ForAll(
		func(v int64, scale int32) bool {
			x := decimal.New(v, -scale)
			once := RoundToTick(x)
			twice := RoundToTick(once)
			if !once.Equal(twice) {
				t.Logf("x=%s once=%s twice=%s", x, once, twice)
				return false
			}
			return once.Mod(decimal.RequireFromString("0.05")).IsZero()
		},
		gen.Int64Range(0, 10_000_000),
		gen.Int32Range(0, 4),
	))

	properties.TestingRun(t)
}

// Property: Whenever auto-trade sizing produces parameters, the bracket is
// ordered target > entry > stop-loss >= 0.05, lots stay within what the
// balance affords at LTP+2, and quantity is a whole number of lots.
func TestProperty_AutoTradeBracketOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("target > entry > stopLoss >= 0.05", prop.ForAll(
		func(ltpPaise, goal int64, lotSize int, balance int64) bool {
			in := Input{
				LTP:              paise(ltpPaise),
				TargetProfitGoal: decimal.NewFromInt(goal),
				LotSize:          lotSize,
				Balance:          decimal.NewFromInt(balance),
			}
			p, ok := AutoTrade(in)
			if !ok {
				return true
			}
			if p.Lots < 1 {
				return false
			}
			if !(p.Target.GreaterThan(p.Entry) && p.Entry.GreaterThan(p.StopLoss)) {
				t.Logf("bad ordering: %+v", p)
				return false
			}
			if p.StopLoss.LessThan(decimal.RequireFromString("0.05")) {
				return false
			}
			if p.Quantity != p.Lots*lotSize {
				return false
			}
			capital := in.LTP.Add(decimal.NewFromInt(2)).Mul(decimal.NewFromInt(int64(p.Quantity)))
			return capital.LessThanOrEqual(in.Balance)
		},
		gen.Int64Range(1, 200_000),
		gen.Int64Range(1, 50_000),
		gen.IntRange(1, 1800),
		gen.Int64Range(0, 5_000_000),
	))

	properties.TestingRun(t)
}

// Property: Auto-price levels always keep the stop-loss at or above the floor
// and never above entry, with the target strictly above entry.
func TestProperty_AutoPriceStopLossFloor(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("0.05 <= stopLoss <= entry < target", prop.ForAll(
		func(ltpPaise int64) bool {
			l := AutoPrice(paise(ltpPaise))
			return l.StopLoss.GreaterThanOrEqual(decimal.RequireFromString("0.05")) &&
				l.StopLoss.LessThanOrEqual(l.Entry) &&
				l.Target.GreaterThan(l.Entry)
		},
		gen.Int64Range(0, 500_000),
	))

	properties.TestingRun(t)
}
