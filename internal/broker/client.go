package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"optiondesk/internal/errors"
	"optiondesk/internal/logging"
	"optiondesk/internal/models"
)

const (
	pathInstruments = "/instruments/all"
	pathBalance     = "/get-balance"
	pathPlaceGTT    = "/place-gtt"
	pathModifyGTT   = "/modify-gtt"

	statusSuccess = "success"
)

// ClientConfig holds configuration for the backend client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client is the HTTP client for the trading backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a backend client.
func NewClient(cfg ClientConfig) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		logger:  logging.WithComponent(cfg.Logger, "broker"),
	}
}

type balanceResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Data struct {
			Equity struct {
				AvailableMargin decimal.NullDecimal `json:"available_margin"`
			} `json:"equity"`
		} `json:"data"`
	} `json:"data"`
}

// GetBalance returns the equity available margin, floored to whole rupees.
// A non-success status means the broker session has expired.
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	var resp balanceResponse
	if err := c.do(ctx, http.MethodGet, pathBalance, nil, &resp); err != nil {
		if errors.Is(err, errors.ErrAuthExpired) {
			return decimal.Zero, err
		}
		return decimal.Zero, errors.NewFetchError("balance", err)
	}
	if resp.Status != statusSuccess {
		return decimal.Zero, errors.Wrapf(errors.ErrAuthExpired, "balance: %s", resp.Message)
	}
	margin := resp.Data.Data.Equity.AvailableMargin
	if !margin.Valid {
		return decimal.Zero, errors.NewFetchError("balance", fmt.Errorf("response has no available_margin"))
	}
	return margin.Decimal.Floor(), nil
}

type instrumentsResponse struct {
	Status  string          `json:"status"`
	Count   int             `json:"count"`
	Message string          `json:"message"`
	Data    []InstrumentRow `json:"data"`
}

// FetchInstruments downloads the full instrument list and keeps the NIFTY
// and SENSEX options.
func (c *Client) FetchInstruments(ctx context.Context) ([]models.Instrument, error) {
	var resp instrumentsResponse
	if err := c.do(ctx, http.MethodGet, pathInstruments, nil, &resp); err != nil {
		return nil, errors.NewFetchError("instruments", err)
	}
	if resp.Status != statusSuccess {
		return nil, errors.NewFetchError("instruments", fmt.Errorf("status %q: %s", resp.Status, resp.Message))
	}

	instruments, skipped := convertRows(resp.Data)
	c.logger.Debug().
		Int("rows", len(resp.Data)).
		Int("kept", len(instruments)).
		Int("skipped", skipped).
		Msg("Instrument list fetched")
	return instruments, nil
}

// ValidateGTT checks a bracket before it is sent: a positive quantity and
// target > entry > stop-loss > 0.
func ValidateGTT(req models.GTTRequest) error {
	if req.InstrumentKey == "" {
		return errors.NewValidationError("instrument", req.InstrumentKey, "instrument is required")
	}
	if req.Quantity <= 0 {
		return errors.NewValidationError("quantity", req.Quantity, "quantity must be positive")
	}
	if !req.StopLoss.IsPositive() {
		return errors.NewValidationError("stoploss", req.StopLoss.String(), "stop-loss must be positive")
	}
	if !req.Entry.GreaterThan(req.StopLoss) {
		return errors.NewValidationError("entry", req.Entry.String(), "entry must be above stop-loss")
	}
	if !req.Target.GreaterThan(req.Entry) {
		return errors.NewValidationError("target", req.Target.String(), "target must be above entry")
	}
	return nil
}

// PlaceGTT submits a bracket order.
func (c *Client) PlaceGTT(ctx context.Context, req models.GTTRequest) (*models.GTTResult, error) {
	if err := ValidateGTT(req); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("instrument_token", req.InstrumentKey)
	form.Set("quantity", strconv.Itoa(req.Quantity))
	form.Set("entry_price", req.Entry.String())
	form.Set("target_price", req.Target.String())
	form.Set("stoploss_price", req.StopLoss.String())

	var result models.GTTResult
	if err := c.do(ctx, http.MethodPost, pathPlaceGTT, form, &result); err != nil {
		return nil, errors.NewOrderError(req.InstrumentKey, "request failed", err)
	}
	if result.Status != statusSuccess {
		return &result, errors.NewOrderError(req.InstrumentKey, result.Message, errors.ErrOrderRejected)
	}

	c.logger.Info().
		Str("instrument_key", req.InstrumentKey).
		Str("gtt_order_id", result.OrderID).
		Int("quantity", req.Quantity).
		Msg("GTT placed")
	return &result, nil
}

// GTTModification changes legs of an existing GTT. Nil legs are left as they are.
type GTTModification struct {
	OrderID  string
	Quantity int
	Entry    *decimal.Decimal
	Target   *decimal.Decimal
	StopLoss *decimal.Decimal
}

// ModifyGTT updates an existing GTT order.
func (c *Client) ModifyGTT(ctx context.Context, mod GTTModification) (*models.GTTResult, error) {
	if mod.OrderID == "" {
		return nil, errors.NewValidationError("gtt_order_id", mod.OrderID, "order id is required")
	}
	if mod.Quantity <= 0 {
		return nil, errors.NewValidationError("quantity", mod.Quantity, "quantity must be positive")
	}

	form := url.Values{}
	form.Set("gtt_order_id", mod.OrderID)
	form.Set("quantity", strconv.Itoa(mod.Quantity))
	setLeg(form, "entry_price", "modify_entry", mod.Entry)
	setLeg(form, "target_price", "modify_target", mod.Target)
	setLeg(form, "stoploss_price", "modify_stoploss", mod.StopLoss)

	var result models.GTTResult
	if err := c.do(ctx, http.MethodPost, pathModifyGTT, form, &result); err != nil {
		return nil, errors.NewOrderError(mod.OrderID, "request failed", err)
	}
	if result.Status != statusSuccess {
		return &result, errors.NewOrderError(mod.OrderID, result.Message, errors.ErrOrderRejected)
	}
	if result.OrderID == "" {
		result.OrderID = mod.OrderID
	}
	return &result, nil
}

func setLeg(form url.Values, priceField, flagField string, v *decimal.Decimal) {
	if v == nil {
		return
	}
	form.Set(priceField, v.String())
	form.Set(flagField, "true")
}

// do sends a request and decodes a JSON body into out. A form body is sent
// url-encoded.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		logging.LogAPICall(c.logger, method, path, time.Since(start), err)
	}()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.Wrapf(errors.ErrAuthExpired, "HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, logging.MaskSecrets(strings.TrimSpace(string(snippet))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
