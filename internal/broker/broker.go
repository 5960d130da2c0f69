// Package broker talks to the trading backend and to Zerodha Kite for
// balances, instrument lists and GTT orders.
package broker

import (
	"context"

	"github.com/shopspring/decimal"

	"optiondesk/internal/models"
)

// BalanceSource returns the available margin in whole rupees.
type BalanceSource interface {
	GetBalance(ctx context.Context) (decimal.Decimal, error)
}

// InstrumentSource returns the index option universe.
type InstrumentSource interface {
	FetchInstruments(ctx context.Context) ([]models.Instrument, error)
}

// GTTPlacer places good-till-triggered bracket orders.
type GTTPlacer interface {
	PlaceGTT(ctx context.Context, req models.GTTRequest) (*models.GTTResult, error)
}

var (
	_ BalanceSource    = (*Client)(nil)
	_ InstrumentSource = (*Client)(nil)
	_ GTTPlacer        = (*Client)(nil)
	_ BalanceSource    = (*KiteSupplier)(nil)
	_ InstrumentSource = (*KiteSupplier)(nil)
)
