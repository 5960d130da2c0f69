package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"0", "0"},
		{"102.37", "102.35"},
		{"102.375", "102.4"},
		{"102.38", "102.4"},
		{"0.024", "0"},
		{"0.025", "0.05"},
		{"7", "7"},
	}
	for _, tt := range tests {
		if got := RoundToTick(d(tt.in)); !got.Equal(d(tt.want)) {
			t.Errorf("RoundToTick(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestTargetPointsTiers(t *testing.T) {
	tests := []struct {
		entry string
		want  int64
	}{
		{"2.5", 4},
		{"3", 4},
		{"3.05", 8},
		{"10", 8},
		{"10.05", 15},
		{"250", 15},
	}
	for _, tt := range tests {
		if got := TargetPoints(d(tt.entry)); !got.Equal(decimal.NewFromInt(tt.want)) {
			t.Errorf("TargetPoints(%s) = %s, want %d", tt.entry, got, tt.want)
		}
	}
}

func TestAutoTrade(t *testing.T) {
	tests := []struct {
		name     string
		in       Input
		wantOK   bool
		entry    string
		target   string
		stopLoss string
		lots     int
		qty      int
		risk     string
	}{
		{
			// entry 102, 15 points, 1000/15 -> 67 qty -> 2 lots of 50
			name:     "large premium",
			in:       Input{LTP: d("100"), TargetProfitGoal: d("1000"), LotSize: 50, Balance: d("100000")},
			wantOK:   true,
			entry:    "102",
			target:   "117",
			stopLoss: "97",
			lots:     2,
			qty:      100,
			risk:     "500",
		},
		{
			// entry 7, 8 points, 125 qty -> 2 lots of 75; stop 7 - 2.6667 -> 4.35
			name:     "medium premium",
			in:       Input{LTP: d("5"), TargetProfitGoal: d("1000"), LotSize: 75, Balance: d("100000")},
			wantOK:   true,
			entry:    "7",
			target:   "15",
			stopLoss: "4.35",
			lots:     2,
			qty:      150,
			risk:     "398",
		},
		{
			// entry 2.5, 4 points, 250 qty -> 4 lots of 75; stop 2.5 - 1.3333 -> 1.15
			name:     "cheap premium",
			in:       Input{LTP: d("0.5"), TargetProfitGoal: d("1000"), LotSize: 75, Balance: d("100000")},
			wantOK:   true,
			entry:    "2.5",
			target:   "6.5",
			stopLoss: "1.15",
			lots:     4,
			qty:      300,
			risk:     "405",
		},
		{
			// wants 2 lots, balance only affords 1 (5100 per lot)
			name:     "capped by balance",
			in:       Input{LTP: d("100"), TargetProfitGoal: d("1000"), LotSize: 50, Balance: d("6000")},
			wantOK:   true,
			entry:    "102",
			target:   "117",
			stopLoss: "97",
			lots:     1,
			qty:      50,
			risk:     "250",
		},
		{
			// entry 3.02 is past the 3-point tier even though it reports as 3
			name:     "tier from unrounded entry",
			in:       Input{LTP: d("1.02"), TargetProfitGoal: d("1000"), LotSize: 75, Balance: d("1000000")},
			wantOK:   true,
			entry:    "3",
			target:   "11",
			stopLoss: "0.35",
			lots:     2,
			qty:      150,
			risk:     "398",
		},
		{
			// 0.98 + 2 = 2.98 stays in the 4-point tier
			name:     "just under the small tier",
			in:       Input{LTP: d("0.98"), TargetProfitGoal: d("1000"), LotSize: 75, Balance: d("1000000")},
			wantOK:   true,
			entry:    "3",
			target:   "7",
			stopLoss: "1.65",
			lots:     4,
			qty:      300,
			risk:     "405",
		},
		{
			name:   "unaffordable",
			in:     Input{LTP: d("100"), TargetProfitGoal: d("1000"), LotSize: 50, Balance: d("5000")},
			wantOK: false,
		},
		{
			name:   "zero balance",
			in:     Input{LTP: d("100"), TargetProfitGoal: d("1000"), LotSize: 50, Balance: decimal.Zero},
			wantOK: false,
		},
		{
			name:   "no ltp yet",
			in:     Input{LTP: decimal.Zero, TargetProfitGoal: d("1000"), LotSize: 50, Balance: d("100000")},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := AutoTrade(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v (params %+v)", ok, tt.wantOK, p)
			}
			if !ok {
				return
			}
			if !p.Entry.Equal(d(tt.entry)) || !p.Target.Equal(d(tt.target)) || !p.StopLoss.Equal(d(tt.stopLoss)) {
				t.Errorf("levels = %s/%s/%s, want %s/%s/%s", p.Entry, p.Target, p.StopLoss, tt.entry, tt.target, tt.stopLoss)
			}
			if p.Lots != tt.lots || p.Quantity != tt.qty {
				t.Errorf("lots/qty = %d/%d, want %d/%d", p.Lots, p.Quantity, tt.lots, tt.qty)
			}
			if !p.Risk.Equal(d(tt.risk)) {
				t.Errorf("risk = %s, want %s", p.Risk, tt.risk)
			}
		})
	}
}

func TestAutoPrice(t *testing.T) {
	tests := []struct {
		ltp                     string
		entry, target, stopLoss string
	}{
		// fixed 20-point stop
		{"100", "103", "108", "83"},
		// entry - 20 <= 0, falls back to entry - 0.2*ltp = 13 - 2
		{"10", "13", "18", "11"},
		// entry - 20 == 0 exactly also falls back: 20 - 3.4
		{"17", "20", "25", "16.6"},
		{"12.33", "15.35", "20.35", "12.85"},
	}
	for _, tt := range tests {
		l := AutoPrice(d(tt.ltp))
		if !l.Entry.Equal(d(tt.entry)) || !l.Target.Equal(d(tt.target)) || !l.StopLoss.Equal(d(tt.stopLoss)) {
			t.Errorf("AutoPrice(%s) = %s/%s/%s, want %s/%s/%s", tt.ltp,
				l.Entry, l.Target, l.StopLoss, tt.entry, tt.target, tt.stopLoss)
		}
	}
}

func TestRisk(t *testing.T) {
	if got := Risk(d("102"), d("97"), 100); !got.Equal(d("500")) {
		t.Errorf("Risk = %s, want 500", got)
	}
	if got := Risk(d("7"), d("4.35"), 150); !got.Equal(d("398")) {
		t.Errorf("Risk = %s, want 398", got)
	}
}
