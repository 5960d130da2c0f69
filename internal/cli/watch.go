package cli

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"optiondesk/internal/errors"
	"optiondesk/internal/logging"
	"optiondesk/internal/margin"
	"optiondesk/internal/metrics"
	"optiondesk/internal/models"
	"optiondesk/internal/session"
	"optiondesk/internal/stream"
	"optiondesk/pkg/utils"
)

func newWatchCmd(app *App) *cobra.Command {
	var underlyingFlag string
	var refresh time.Duration
	var noInput bool

	cmd := &cobra.Command{
		Use:   "watch [symbol]",
		Short: "Follow an option live and edit its order levels",
		Long: `Open the price, index and balance streams and keep the order levels and
margin panel current. Type 'help' for the commands that edit the levels,
switch options or place the bracket.

The session ends on Ctrl+C, on 'quit', or when the broker session expires.`,
		Example: `  optiondesk watch NIFTY25JAN24000CE
  optiondesk watch --underlying SENSEX
  optiondesk watch NSE_FO|43121 --json --no-input`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := ""
			if len(args) == 1 {
				symbol = args[0]
			}
			return runWatch(cmd, app, symbol, underlyingFlag, refresh, !noInput)
		},
	}

	cmd.Flags().StringVarP(&underlyingFlag, "underlying", "u", "", "NIFTY or SENSEX (default from config or the symbol)")
	cmd.Flags().DurationVar(&refresh, "refresh", time.Second, "minimum time between redraws")
	cmd.Flags().BoolVar(&noInput, "no-input", false, "do not read commands from stdin")

	return cmd
}

func runWatch(cmd *cobra.Command, app *App, symbol, underlyingFlag string, refresh time.Duration, interactive bool) error {
	output := NewOutput(cmd)
	cfg := app.Config
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := logging.FromContext(ctx)

	cat, closeCatalog, err := app.loadCatalog(ctx)
	if err != nil {
		return err
	}
	defer closeCatalog()

	var inst *models.Instrument
	if symbol != "" {
		found, err := cat.Lookup(symbol)
		if err != nil {
			return err
		}
		inst = &found
	}

	underlying, err := watchUnderlying(app, underlyingFlag, inst)
	if err != nil {
		return err
	}

	if !utils.IsMarketOpen(time.Now()) && !output.IsJSON() {
		output.Warning("Market is closed (09:15-15:30 IST, weekdays); prices may not move")
	}

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Addr, app.Metrics, logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	loop := stream.NewLoop(0, logger, app.Metrics)
	go loop.Run(context.Background())
	defer loop.Stop()

	presenter := newLivePresenter(output, refresh)
	expired := make(chan string, 1)

	ctrl := session.NewController(session.Options{
		Dispatcher: loop,
		Presenter:  presenter,
		IndexURL:   cfg.IndexURL,
		OnAuthExpired: func(reason string) {
			select {
			case expired <- reason:
			default:
			}
		},
		TargetProfitGoal: decimal.NewFromFloat(cfg.Trading.TargetProfitGoal),
		AutoTrade:        cfg.Trading.AutoTrade,
		Logger:           logger,
		Metrics:          app.Metrics,
	})

	ltpFeed := stream.NewChannel(stream.Config[stream.LTPMessage]{
		Name:           "ltp",
		URL:            cfg.StreamURL(cfg.Streams.LTPPath),
		ReconnectDelay: cfg.Streams.ReconnectDelay,
		DialTimeout:    cfg.Streams.DialTimeout,
		PingInterval:   cfg.Streams.PingInterval,
		Dispatcher:     loop,
		Logger:         logger,
		Metrics:        app.Metrics,
		Subscribe:      ctrl.SubscribeLTP,
		OnMessage:      ctrl.HandleLTP,
	})
	indexFeed := stream.NewChannel(stream.Config[stream.IndexMessage]{
		Name:           "index",
		URL:            cfg.IndexURL(underlying),
		ReconnectDelay: cfg.Streams.ReconnectDelay,
		DialTimeout:    cfg.Streams.DialTimeout,
		Dispatcher:     loop,
		Logger:         logger,
		Metrics:        app.Metrics,
		OnMessage:      ctrl.HandleIndex,
	})
	balanceFeed := stream.NewChannel(stream.Config[stream.BalanceMessage]{
		Name:           "balance",
		URL:            cfg.StreamURL(cfg.Streams.BalancePath),
		ReconnectDelay: cfg.Streams.ReconnectDelay,
		DialTimeout:    cfg.Streams.DialTimeout,
		Dispatcher:     loop,
		Logger:         logger,
		Metrics:        app.Metrics,
		OnMessage:      ctrl.HandleBalance,
	})
	ctrl.Attach(session.Feeds{LTP: ltpFeed, Index: indexFeed, Balance: balanceFeed})

	ctrl.Start(underlying)
	if inst != nil {
		ctrl.SelectInstrument(*inst)
	}
	go pollBalance(ctx, app, ctrl)

	defer func() {
		ctrl.Teardown()
		loop.Call(func() {})
	}()

	go presenter.run(ctx)

	quit := make(chan struct{})
	if interactive {
		con := &console{
			ctrl:   ctrl,
			lookup: cat.Lookup,
			snapshot: func() (session.Snapshot, bool) {
				var snap session.Snapshot
				ok := loop.Call(func() { snap = ctrl.Snapshot() })
				return snap, ok
			},
			placer: app.backend(),
			output: output,
		}
		go readCommands(ctx, cmd.InOrStdin(), con, quit)
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("Watch stopped")
		return nil
	case <-quit:
		return nil
	case reason := <-expired:
		output.Error("Broker session expired: %s", reason)
		return errors.Wrapf(errors.ErrAuthExpired, "%s", reason)
	}
}

// watchUnderlying picks the index: the flag, then the option's own index,
// then the configured default.
func watchUnderlying(app *App, flag string, inst *models.Instrument) (models.Underlying, error) {
	if flag != "" {
		return models.ParseUnderlying(flag)
	}
	if inst != nil {
		return inst.Underlying, nil
	}
	return models.ParseUnderlying(app.Config.Trading.DefaultUnderlying)
}

// pollBalance seeds the session with a REST balance so margin is available
// before the balance stream pushes anything.
func pollBalance(ctx context.Context, app *App, ctrl *session.Controller) {
	logger := logging.FromContext(ctx)
	src, err := app.balanceSource()
	if err != nil {
		logger.Warn().Err(err).Msg("No balance source")
		return
	}
	balance, err := src.GetBalance(ctx)
	switch {
	case errors.Is(err, errors.ErrAuthExpired):
		ctrl.AuthExpired(err.Error())
	case err != nil:
		logger.Warn().Err(err).Msg("Initial balance fetch failed")
	default:
		ctrl.SetBalance(balance)
	}
}

func readCommands(ctx context.Context, in io.Reader, con *console, quit chan<- struct{}) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		err := con.exec(ctx, scanner.Text())
		if err == errQuit {
			close(quit)
			return
		}
		if err != nil {
			con.output.Error("%v", err)
		}
	}
}

// livePresenter keeps the latest snapshot and redraws at most once per
// interval. Render is called on the dispatch loop and never blocks it.
// A snapshot without margin figures keeps showing the last ones drawn for
// the same option.
type livePresenter struct {
	output   *Output
	interval time.Duration

	mu         sync.Mutex
	latest     session.Snapshot
	pending    bool
	lastMargin *margin.Summary
	marginKey  string
}

func newLivePresenter(output *Output, interval time.Duration) *livePresenter {
	if interval <= 0 {
		interval = time.Second
	}
	return &livePresenter{output: output, interval: interval}
}

// Render implements session.Presenter.
func (p *livePresenter) Render(snap session.Snapshot) {
	p.mu.Lock()
	key := ""
	if snap.State.Instrument != nil {
		key = snap.State.Instrument.Key
	}
	switch {
	case snap.Margin != nil:
		p.lastMargin, p.marginKey = snap.Margin, key
	case key == p.marginKey:
		snap.Margin = p.lastMargin
	default:
		p.lastMargin, p.marginKey = nil, key
	}
	p.latest = snap
	p.pending = true
	p.mu.Unlock()
}

// take returns the latest snapshot if it has not been drawn yet.
func (p *livePresenter) take() (session.Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pending {
		return session.Snapshot{}, false
	}
	p.pending = false
	return p.latest, true
}

func (p *livePresenter) draw() {
	snap, ok := p.take()
	if !ok {
		return
	}
	if p.output.IsJSON() {
		p.output.JSON(viewOf(snap, true))
		return
	}
	if p.output.colorEnabled {
		p.output.Printf("\033[H\033[2J")
	}
	renderSnapshot(p.output, snap, true)
}

func (p *livePresenter) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.draw()
		}
	}
}
