package models

import (
	"github.com/shopspring/decimal"
)

// GTTRequest is a good-till-triggered bracket: entry with target and stop-loss legs.
type GTTRequest struct {
	InstrumentKey string
	Quantity      int
	Entry         decimal.Decimal
	Target        decimal.Decimal
	StopLoss      decimal.Decimal
}

// GTTResult is the backend's answer to a GTT placement.
type GTTResult struct {
	Status  string `json:"status"`
	OrderID string `json:"gtt_order_id,omitempty"`
	Message string `json:"message,omitempty"`
}
