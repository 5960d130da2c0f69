// Package models provides domain models for the options desk.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
	NFO Exchange = "NFO" // NSE F&O
	BFO Exchange = "BFO" // BSE F&O
)

// Underlying is the index an option contract is written on.
type Underlying string

const (
	NIFTY  Underlying = "NIFTY"
	SENSEX Underlying = "SENSEX"
)

// Underlyings lists the supported indices in display order.
var Underlyings = []Underlying{NIFTY, SENSEX}

// ParseUnderlying parses an index name case-insensitively.
func ParseUnderlying(s string) (Underlying, error) {
	switch Underlying(strings.ToUpper(strings.TrimSpace(s))) {
	case NIFTY:
		return NIFTY, nil
	case SENSEX:
		return SENSEX, nil
	}
	return "", fmt.Errorf("unknown underlying %q", s)
}

// Exchange returns the cash exchange whose index feed prices the underlying.
func (u Underlying) Exchange() Exchange {
	if u == SENSEX {
		return BSE
	}
	return NSE
}

// OptionType is call or put.
type OptionType string

const (
	CE OptionType = "CE"
	PE OptionType = "PE"
)

// ParseOptionType parses CE/PE case-insensitively.
func ParseOptionType(s string) (OptionType, error) {
	switch OptionType(strings.ToUpper(strings.TrimSpace(s))) {
	case CE:
		return CE, nil
	case PE:
		return PE, nil
	}
	return "", fmt.Errorf("unknown option type %q", s)
}

// TickSize is the minimum price increment for index options.
var TickSize = decimal.RequireFromString("0.05")

// Instrument represents a tradeable index option contract.
type Instrument struct {
	Key           string          `json:"instrument_key"`
	TradingSymbol string          `json:"trading_symbol"`
	Underlying    Underlying      `json:"underlying"`
	StrikePrice   decimal.Decimal `json:"strike_price"`
	OptionType    OptionType      `json:"option_type"`
	Expiry        time.Time       `json:"expiry"`
	LotSize       int             `json:"lot_size"`
}

// Validate checks the invariants every catalog row must hold.
func (i Instrument) Validate() error {
	if i.Key == "" {
		return fmt.Errorf("instrument key is empty")
	}
	if i.LotSize <= 0 {
		return fmt.Errorf("instrument %s: lot size %d must be positive", i.Key, i.LotSize)
	}
	if i.Underlying != NIFTY && i.Underlying != SENSEX {
		return fmt.Errorf("instrument %s: unsupported underlying %q", i.Key, i.Underlying)
	}
	if i.OptionType != CE && i.OptionType != PE {
		return fmt.Errorf("instrument %s: unsupported option type %q", i.Key, i.OptionType)
	}
	return nil
}

// CatalogCache is a day-stamped snapshot of the instrument universe.
type CatalogCache struct {
	Version     string       `json:"version"`
	AsOf        string       `json:"date"` // YYYY-MM-DD in IST
	Instruments []Instrument `json:"data"`
}

// ValidFor reports whether the cache can be used on the given day.
func (c *CatalogCache) ValidFor(version, day string) bool {
	return c != nil && c.Version == version && c.AsOf == day
}
