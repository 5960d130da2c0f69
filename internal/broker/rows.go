package broker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"optiondesk/internal/models"
	"optiondesk/pkg/utils"
)

// InstrumentRow is one entry of the backend's instrument list.
type InstrumentRow struct {
	InstrumentKey  string          `json:"instrument_key"`
	TradingSymbol  string          `json:"trading_symbol"`
	Name           string          `json:"name"`
	StrikePrice    decimal.Decimal `json:"strike_price"`
	InstrumentType string          `json:"instrument_type"`
	Expiry         json.RawMessage `json:"expiry"`
	LotSize        decimal.Decimal `json:"lot_size"`
	Segment        string          `json:"segment,omitempty"`
}

var expiryLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02-Jan-2006",
}

// ParseExpiry accepts epoch milliseconds, as a number or a string, or one of
// the usual date layouts. The result is the expiry day in IST.
func ParseExpiry(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, fmt.Errorf("missing expiry")
	}

	if raw[0] != '"' {
		ms, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("expiry %s: %w", raw, err)
		}
		return utils.DateOf(time.UnixMilli(int64(ms))), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("expiry %s: %w", raw, err)
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return utils.DateOf(time.UnixMilli(ms)), nil
	}
	for _, layout := range expiryLayouts {
		if t, err := time.ParseInLocation(layout, s, utils.IndiaLocation); err == nil {
			return utils.DateOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised expiry %q", s)
}

// Instrument converts the row, rejecting anything that is not a NIFTY or
// SENSEX call or put.
func (r InstrumentRow) Instrument() (models.Instrument, error) {
	underlying, err := models.ParseUnderlying(r.Name)
	if err != nil {
		return models.Instrument{}, err
	}
	optionType, err := models.ParseOptionType(r.InstrumentType)
	if err != nil {
		return models.Instrument{}, err
	}
	expiry, err := ParseExpiry(r.Expiry)
	if err != nil {
		return models.Instrument{}, err
	}

	inst := models.Instrument{
		Key:           r.InstrumentKey,
		TradingSymbol: r.TradingSymbol,
		Underlying:    underlying,
		StrikePrice:   r.StrikePrice,
		OptionType:    optionType,
		Expiry:        expiry,
		LotSize:       int(r.LotSize.IntPart()),
	}
	if err := inst.Validate(); err != nil {
		return models.Instrument{}, err
	}
	return inst, nil
}

// convertRows keeps the usable rows and reports how many were skipped.
func convertRows(rows []InstrumentRow) ([]models.Instrument, int) {
	out := make([]models.Instrument, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		inst, err := row.Instrument()
		if err != nil {
			skipped++
			continue
		}
		out = append(out, inst)
	}
	return out, skipped
}
