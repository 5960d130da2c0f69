// Package session owns the mutable trading session: which index and option
// are selected, the latest prices, the derived order levels and whether those
// levels are computed or typed by the user.
package session

import (
	"github.com/shopspring/decimal"

	"optiondesk/internal/margin"
	"optiondesk/internal/models"
	"optiondesk/internal/pricing"
)

// Mode says who owns the order levels.
type Mode int

const (
	// Auto means levels follow the live price.
	Auto Mode = iota
	// Manual means the user edited a level and pricing is locked out.
	Manual
)

func (m Mode) String() string {
	if m == Manual {
		return "manual"
	}
	return "auto"
}

// ModeEvent drives the Auto/Manual transition.
type ModeEvent int

const (
	// ManualEdit is any user edit of a price or lot field.
	ManualEdit ModeEvent = iota
	// ResumeAuto hands the levels back to pricing.
	ResumeAuto
	// EnableAutoTrade turns on goal-based sizing.
	EnableAutoTrade
	// DisableAutoTrade turns off goal-based sizing.
	DisableAutoTrade
)

// Notices attached to snapshots.
const (
	NoticeAutoTradeUnaffordable = "auto-trade paused: balance cannot cover one lot"
	NoticeInvalidBalance        = "margin unavailable: balance is zero"
	NoticeInvalidPrice          = "margin unavailable: no usable entry price"
)

// State is the session record. It is not safe for concurrent use; the
// Controller serializes every mutation.
type State struct {
	Underlying models.Underlying // empty until selected
	Instrument *models.Instrument

	LTP        decimal.Decimal
	IndexPrice decimal.Decimal
	Balance    decimal.Decimal

	AutoTrade        bool
	Mode             Mode
	TargetProfitGoal decimal.Decimal

	Lots     int
	Entry    decimal.NullDecimal
	Target   decimal.NullDecimal
	StopLoss decimal.NullDecimal
}

// NewState returns a session with nothing selected.
func NewState(goal decimal.Decimal, autoTrade bool) *State {
	return &State{
		AutoTrade:        autoTrade,
		Mode:             Auto,
		TargetProfitGoal: goal,
		Lots:             1,
	}
}

// Reset puts every price and lot field back to its default and returns the
// levels to pricing.
func (s *State) Reset() {
	s.Entry = decimal.NullDecimal{}
	s.Target = decimal.NullDecimal{}
	s.StopLoss = decimal.NullDecimal{}
	s.Lots = 1
	s.LTP = decimal.Zero
	s.Mode = Auto
}

// SelectInstrument switches the option. Afterwards no level, lot count or
// price from the previous option survives.
func (s *State) SelectInstrument(inst models.Instrument) {
	s.Instrument = &inst
	s.Reset()
}

// ClearInstrument deselects the option.
func (s *State) ClearInstrument() {
	s.Instrument = nil
	s.Reset()
}

// SelectUnderlying switches the index. The index price is forgotten and an
// option on a different index is deselected. It reports whether the option
// was dropped.
func (s *State) SelectUnderlying(u models.Underlying) bool {
	s.Underlying = u
	s.IndexPrice = decimal.Zero
	if s.Instrument != nil && s.Instrument.Underlying != u {
		s.ClearInstrument()
		return true
	}
	return false
}

// Transition applies a mode event. It is the only place Mode and AutoTrade
// change outside Reset.
func (s *State) Transition(ev ModeEvent) {
	switch ev {
	case ManualEdit:
		s.Mode = Manual
		s.AutoTrade = false
	case ResumeAuto:
		s.Mode = Auto
	case EnableAutoTrade:
		s.AutoTrade = true
		s.Mode = Auto
	case DisableAutoTrade:
		s.AutoTrade = false
	}
}

// Edit is a user change to the order form. Nil fields are left alone.
type Edit struct {
	Entry    *decimal.Decimal
	Target   *decimal.Decimal
	StopLoss *decimal.Decimal
	Lots     *int
}

// Empty reports whether the edit changes nothing.
func (e Edit) Empty() bool {
	return e.Entry == nil && e.Target == nil && e.StopLoss == nil && e.Lots == nil
}

// ApplyEdit writes the user's values and locks pricing out.
func (s *State) ApplyEdit(e Edit) {
	if e.Empty() {
		return
	}
	if e.Entry != nil {
		s.Entry = decimal.NewNullDecimal(*e.Entry)
	}
	if e.Target != nil {
		s.Target = decimal.NewNullDecimal(*e.Target)
	}
	if e.StopLoss != nil {
		s.StopLoss = decimal.NewNullDecimal(*e.StopLoss)
	}
	if e.Lots != nil && *e.Lots >= 0 {
		s.Lots = *e.Lots
	}
	s.Transition(ManualEdit)
}

// ApplyLTP records a traded price. Negative prices are ignored.
func (s *State) ApplyLTP(p decimal.Decimal) {
	if p.IsNegative() {
		return
	}
	s.LTP = p
}

// ApplyIndexPrice records an index level. Negative prices are ignored.
func (s *State) ApplyIndexPrice(p decimal.Decimal) {
	if p.IsNegative() {
		return
	}
	s.IndexPrice = p
}

// ApplyBalance records the available margin, floored to whole rupees.
func (s *State) ApplyBalance(b decimal.Decimal) {
	if b.IsNegative() {
		b = decimal.Zero
	}
	s.Balance = b.Floor()
}

// Priceable reports whether pricing has something to work with.
func (s *State) Priceable() bool {
	return s.Instrument != nil && s.LTP.IsPositive()
}

// Reprice derives the levels from the live price. It does nothing in Manual
// mode. When auto-trade cannot afford a lot, this recompute uses the simpler
// auto-price levels and returns a notice. AutoTrade stays on, so sizing
// resumes once a large enough balance arrives.
func (s *State) Reprice() string {
	if s.Mode == Manual || !s.Priceable() {
		return ""
	}

	notice := ""
	if s.AutoTrade {
		p, ok := pricing.AutoTrade(pricing.Input{
			LTP:              s.LTP,
			TargetProfitGoal: s.TargetProfitGoal,
			LotSize:          s.Instrument.LotSize,
			Balance:          s.Balance,
		})
		if ok {
			s.setLevels(pricing.Levels{Entry: p.Entry, Target: p.Target, StopLoss: p.StopLoss})
			s.Lots = p.Lots
			return ""
		}
		s.Lots = 1
		notice = NoticeAutoTradeUnaffordable
	}

	s.setLevels(pricing.AutoPrice(s.LTP))
	return notice
}

func (s *State) setLevels(l pricing.Levels) {
	s.Entry = decimal.NewNullDecimal(l.Entry)
	s.Target = decimal.NewNullDecimal(l.Target)
	s.StopLoss = decimal.NewNullDecimal(l.StopLoss)
}

// EffectiveEntry is the entry used for margin: the set entry, else the LTP.
func (s *State) EffectiveEntry() decimal.Decimal {
	if s.Entry.Valid {
		return s.Entry.Decimal
	}
	return s.LTP
}

// Quantity is lots times the lot size of the selected option.
func (s *State) Quantity() int {
	if s.Instrument == nil {
		return 0
	}
	return s.Lots * s.Instrument.LotSize
}

// Margin evaluates the position. With nothing priceable it is the empty
// position; a nil result with an error means the figures could not be
// computed and the previous ones should stand.
func (s *State) Margin() (*margin.Summary, error) {
	if !s.Priceable() {
		none := margin.NoPosition()
		return &none, nil
	}
	sum, err := margin.Evaluate(margin.Input{
		Balance: s.Balance,
		Entry:   s.EffectiveEntry(),
		Lots:    s.Lots,
		LotSize: s.Instrument.LotSize,
	})
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

// Risk is the rupee loss at the stop-loss for the current quantity.
func (s *State) Risk() decimal.NullDecimal {
	if !s.Entry.Valid || !s.StopLoss.Valid || s.Instrument == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(pricing.Risk(s.Entry.Decimal, s.StopLoss.Decimal, s.Quantity()))
}

// Clone returns a copy that shares nothing mutable with s.
func (s *State) Clone() State {
	c := *s
	if s.Instrument != nil {
		inst := *s.Instrument
		c.Instrument = &inst
	}
	return c
}
