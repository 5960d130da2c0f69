package stream

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"optiondesk/internal/models"
)

// PingPayload is the liveness frame sent on the price channel.
const PingPayload = "ping"

// LTPMessage is a last-traded-price tick.
type LTPMessage struct {
	Instrument string              `json:"instrument,omitempty"`
	LTP        decimal.NullDecimal `json:"ltp"`
}

// IndexMessage is an index level update. Exchange is empty on the single
// combined feed when the server does not tag it.
type IndexMessage struct {
	Exchange  string              `json:"exchange,omitempty"`
	Timestamp json.RawMessage     `json:"timestamp,omitempty"`
	Price     decimal.NullDecimal `json:"price"`
}

// BalanceMessage is a pushed funds update.
type BalanceMessage struct {
	Status  string              `json:"status"`
	Balance decimal.NullDecimal `json:"balance,omitempty"`
	Message string              `json:"message,omitempty"`
}

// OK reports a success status.
func (m BalanceMessage) OK() bool {
	return m.Status == "success"
}

// SubscribeMessage asks the price channel to stream one instrument.
type SubscribeMessage struct {
	Action        string `json:"action"`
	InstrumentKey string `json:"instrument_key"`
	TradingSymbol string `json:"trading_symbol"`
}

// NewSubscribe builds the subscribe request for inst.
func NewSubscribe(inst models.Instrument) SubscribeMessage {
	return SubscribeMessage{
		Action:        "subscribe",
		InstrumentKey: inst.Key,
		TradingSymbol: inst.TradingSymbol,
	}
}
