package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optiondesk/internal/catalog"
	"optiondesk/internal/errors"
	"optiondesk/internal/models"
	"optiondesk/internal/session"
	"optiondesk/internal/stream"
)

type stubFeed struct {
	state stream.State
	url   string
}

func (f *stubFeed) Open() { f.state = stream.Connecting }

func (f *stubFeed) Close() { f.state = stream.Idle }

func (f *stubFeed) SetURL(u string) error {
	f.url = u
	return nil
}

func (f *stubFeed) State() stream.State { return f.state }

type stubPlacer struct {
	reqs []models.GTTRequest
}

func (p *stubPlacer) PlaceGTT(ctx context.Context, req models.GTTRequest) (*models.GTTResult, error) {
	p.reqs = append(p.reqs, req)
	return &models.GTTResult{Status: "success", OrderID: "G-1"}, nil
}

var consoleInstruments = []models.Instrument{
	{
		Key:           "NSE_FO|1",
		TradingSymbol: "NIFTY 24000 CE",
		Underlying:    models.NIFTY,
		StrikePrice:   decimal.NewFromInt(24000),
		OptionType:    models.CE,
		Expiry:        time.Date(2099, 12, 30, 0, 0, 0, 0, time.UTC),
		LotSize:       75,
	},
}

type consoleFixture struct {
	con    *console
	ctrl   *session.Controller
	index  *stubFeed
	placer *stubPlacer
	out    bytes.Buffer
	last   session.Snapshot
}

func newConsoleFixture(t *testing.T) *consoleFixture {
	t.Helper()
	f := &consoleFixture{index: &stubFeed{}, placer: &stubPlacer{}}
	f.ctrl = session.NewController(session.Options{
		Presenter:        session.PresenterFunc(func(s session.Snapshot) { f.last = s }),
		IndexURL:         func(u models.Underlying) string { return "ws://feed/" + string(u) },
		TargetProfitGoal: decimal.NewFromInt(1000),
		Logger:           zerolog.Nop(),
	})
	f.ctrl.Attach(session.Feeds{LTP: &stubFeed{}, Index: f.index, Balance: &stubFeed{}})
	f.ctrl.Start(models.NIFTY)

	f.con = &console{
		ctrl: f.ctrl,
		lookup: func(s string) (models.Instrument, error) {
			return catalog.Lookup(consoleInstruments, s)
		},
		snapshot: func() (session.Snapshot, bool) { return f.ctrl.Snapshot(), true },
		placer:   f.placer,
		output:   newOutput(&f.out, false, false),
	}
	return f
}

func (f *consoleFixture) priced(t *testing.T) {
	t.Helper()
	require.NoError(t, f.con.exec(context.Background(), "select nifty 24000 ce"))
	f.ctrl.SetBalance(decimal.NewFromInt(100000))
	f.ctrl.HandleLTP(stream.LTPMessage{LTP: decimal.NewNullDecimal(decimal.NewFromInt(100))})
	require.True(t, f.last.State.Entry.Decimal.Equal(decimal.NewFromInt(103)))
}

func TestConsoleEditSwitchesToManualAndAutoResumes(t *testing.T) {
	f := newConsoleFixture(t)
	f.priced(t)

	require.NoError(t, f.con.exec(context.Background(), "entry 101.5"))
	assert.Equal(t, session.Manual, f.last.State.Mode)
	assert.Equal(t, "101.5", f.last.State.Entry.Decimal.String())
	assert.Equal(t, "108", f.last.State.Target.Decimal.String())

	require.NoError(t, f.con.exec(context.Background(), "lots 2"))
	assert.Equal(t, 150, f.last.Quantity)

	require.NoError(t, f.con.exec(context.Background(), "auto"))
	assert.Equal(t, session.Auto, f.last.State.Mode)
	assert.Equal(t, "103", f.last.State.Entry.Decimal.String())
}

func TestConsoleRejectsBadInput(t *testing.T) {
	f := newConsoleFixture(t)
	ctx := context.Background()

	assert.Error(t, f.con.exec(ctx, "entry"))
	assert.ErrorIs(t, f.con.exec(ctx, "entry -3"), errors.ErrInputValidation)
	assert.ErrorIs(t, f.con.exec(ctx, "lots many"), errors.ErrInputValidation)
	assert.Error(t, f.con.exec(ctx, "autotrade maybe"))
	assert.Error(t, f.con.exec(ctx, "index BANKNIFTY"))
	assert.ErrorIs(t, f.con.exec(ctx, "select NOPE"), errors.ErrSymbolNotFound)
	assert.Error(t, f.con.exec(ctx, "dance"))
	assert.NoError(t, f.con.exec(ctx, "   "))
	assert.Equal(t, errQuit, f.con.exec(ctx, "quit"))
}

func TestConsoleIndexSwitchDropsOption(t *testing.T) {
	f := newConsoleFixture(t)
	f.priced(t)

	require.NoError(t, f.con.exec(context.Background(), "index sensex"))
	assert.Nil(t, f.last.State.Instrument)
	assert.Equal(t, models.SENSEX, f.last.State.Underlying)
	assert.Equal(t, "ws://feed/SENSEX", f.index.url)
}

func TestConsolePlace(t *testing.T) {
	f := newConsoleFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.con.exec(ctx, "place"), errors.ErrNoInstrument)

	f.priced(t)
	require.NoError(t, f.con.exec(ctx, "place"))
	require.Len(t, f.placer.reqs, 1)
	req := f.placer.reqs[0]
	assert.Equal(t, "NSE_FO|1", req.InstrumentKey)
	assert.Equal(t, 75, req.Quantity)
	assert.Equal(t, "83", req.StopLoss.String())
	assert.Contains(t, f.out.String(), "G-1")
}
