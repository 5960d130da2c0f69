package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"optiondesk/internal/errors"
	"optiondesk/internal/logging"
	"optiondesk/internal/models"
	"optiondesk/pkg/utils"
)

// KiteConfig holds Kite Connect credentials.
type KiteConfig struct {
	APIKey      string
	AccessToken string
	Logger      zerolog.Logger
}

// KiteSupplier reads instruments and funds straight from Kite Connect,
// bypassing the backend.
type KiteSupplier struct {
	client *kiteconnect.Client
	logger zerolog.Logger
}

// NewKiteSupplier creates a supplier for an already issued access token.
func NewKiteSupplier(cfg KiteConfig) (*KiteSupplier, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewValidationError("kite.api_key", "", "Kite API key is required")
	}
	if cfg.AccessToken == "" {
		return nil, errors.NewValidationError("kite.access_token", "", "Kite access token is required")
	}

	client := kiteconnect.New(cfg.APIKey)
	client.SetAccessToken(cfg.AccessToken)

	return &KiteSupplier{
		client: client,
		logger: logging.WithComponent(cfg.Logger, "kite"),
	}, nil
}

// FetchInstruments downloads the instrument dump and keeps NIFTY options on
// NFO and SENSEX options on BFO.
func (k *KiteSupplier) FetchInstruments(ctx context.Context) ([]models.Instrument, error) {
	start := time.Now()
	all, err := k.client.GetInstruments()
	logging.LogAPICall(k.logger, "GET", "/instruments", time.Since(start), err)
	if err != nil {
		return nil, errors.NewFetchError("kite", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]models.Instrument, 0, 4096)
	for _, inst := range all {
		if m, ok := kiteInstrument(inst); ok {
			out = append(out, m)
		}
	}
	k.logger.Debug().Int("rows", len(all)).Int("kept", len(out)).Msg("Kite instruments filtered")
	return out, nil
}

// GetBalance returns net equity margin, floored to whole rupees.
func (k *KiteSupplier) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	margins, err := k.client.GetUserMargins()
	if err != nil {
		return decimal.Zero, errors.NewFetchError("kite", err)
	}
	return decimal.NewFromFloat(margins.Equity.Net).Floor(), nil
}

func kiteInstrument(inst kiteconnect.Instrument) (models.Instrument, bool) {
	underlying, err := models.ParseUnderlying(inst.Name)
	if err != nil {
		return models.Instrument{}, false
	}
	wantExchange := models.NFO
	if underlying == models.SENSEX {
		wantExchange = models.BFO
	}
	if !strings.EqualFold(inst.Exchange, string(wantExchange)) {
		return models.Instrument{}, false
	}
	optionType, err := models.ParseOptionType(inst.InstrumentType)
	if err != nil {
		return models.Instrument{}, false
	}

	m := models.Instrument{
		Key:           fmt.Sprintf("%s:%s", inst.Exchange, inst.Tradingsymbol),
		TradingSymbol: inst.Tradingsymbol,
		Underlying:    underlying,
		StrikePrice:   decimal.NewFromFloat(inst.StrikePrice),
		OptionType:    optionType,
		Expiry:        utils.DateOf(inst.Expiry.Time),
		LotSize:       int(inst.LotSize),
	}
	if m.Validate() != nil {
		return models.Instrument{}, false
	}
	return m, true
}
