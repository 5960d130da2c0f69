package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"optiondesk/internal/errors"
	"optiondesk/internal/logging"
	"optiondesk/internal/margin"
	"optiondesk/internal/metrics"
	"optiondesk/internal/models"
	"optiondesk/internal/stream"
)

// Feed is the part of a stream channel the controller drives.
type Feed interface {
	Open()
	Close()
	SetURL(url string) error
	State() stream.State
}

// Feeds are the three live feeds of a session.
type Feeds struct {
	LTP     Feed
	Index   Feed
	Balance Feed
}

// Snapshot is what the presentation layer sees after each event.
type Snapshot struct {
	State State
	// Margin is nil when the figures could not be recomputed; the previous
	// ones still apply.
	Margin   *margin.Summary
	Risk     decimal.NullDecimal
	Quantity int
	Notice   string

	LTPFeed     stream.State
	IndexFeed   stream.State
	BalanceFeed stream.State
}

// Presenter renders snapshots.
type Presenter interface {
	Render(Snapshot)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(Snapshot)

// Render calls f.
func (f PresenterFunc) Render(s Snapshot) { f(s) }

// Options configure a Controller.
type Options struct {
	Dispatcher stream.Dispatcher
	Presenter  Presenter
	// IndexURL maps an index to its price feed endpoint.
	IndexURL func(models.Underlying) string
	// OnAuthExpired runs once per session, however many expiry signals arrive.
	OnAuthExpired func(reason string)

	TargetProfitGoal decimal.Decimal
	AutoTrade        bool

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Controller owns the session State and the order in which feeds are closed,
// state is reset and feeds are reopened. Public methods post to the
// dispatcher; Handle* and SubscribeLTP are expected to already run on it.
type Controller struct {
	opts   Options
	feeds  Feeds
	state  *State
	logger zerolog.Logger

	authOnce sync.Once
}

// NewController creates a controller. Attach must be called before Start.
func NewController(opts Options) *Controller {
	if opts.Dispatcher == nil {
		opts.Dispatcher = stream.Inline{}
	}
	if opts.Presenter == nil {
		opts.Presenter = PresenterFunc(func(Snapshot) {})
	}
	return &Controller{
		opts:   opts,
		state:  NewState(opts.TargetProfitGoal, opts.AutoTrade),
		logger: logging.WithComponent(opts.Logger, "session"),
	}
}

// Attach wires the feeds. The feeds usually call back into the controller,
// so they are built after it.
func (c *Controller) Attach(feeds Feeds) {
	c.feeds = feeds
}

// Start selects the initial index and opens the index and balance feeds.
func (c *Controller) Start(u models.Underlying) {
	c.opts.Dispatcher.Post(func() {
		c.switchUnderlying(u)
		c.feeds.Balance.Open()
		c.publish(false)
	})
}

// Teardown closes every feed.
func (c *Controller) Teardown() {
	c.opts.Dispatcher.Post(func() {
		c.feeds.LTP.Close()
		c.feeds.Index.Close()
		c.feeds.Balance.Close()
	})
}

// SelectUnderlying switches the index feed. An option on another index is
// deselected along with its price feed.
func (c *Controller) SelectUnderlying(u models.Underlying) {
	c.opts.Dispatcher.Post(func() {
		if u == c.state.Underlying {
			return
		}
		c.switchUnderlying(u)
		c.publish(false)
	})
}

func (c *Controller) switchUnderlying(u models.Underlying) {
	c.feeds.Index.Close()
	if c.opts.IndexURL != nil {
		if err := c.feeds.Index.SetURL(c.opts.IndexURL(u)); err != nil {
			c.logger.Error().Err(err).Str("underlying", string(u)).Msg("Failed to retarget index feed")
		}
	}
	if c.state.Instrument != nil && c.state.Instrument.Underlying != u {
		c.feeds.LTP.Close()
	}
	c.state.SelectUnderlying(u)
	c.logger.Info().Str("underlying", string(u)).Msg("Underlying selected")
	c.feeds.Index.Open()
}

// SelectInstrument switches the option. The old price feed is closed before
// the state is reset, and the reset happens before the new feed opens, so no
// tick for the previous option can land on the new one.
func (c *Controller) SelectInstrument(inst models.Instrument) {
	c.opts.Dispatcher.Post(func() {
		c.feeds.LTP.Close()
		if inst.Underlying != c.state.Underlying {
			c.switchUnderlying(inst.Underlying)
		}
		c.state.SelectInstrument(inst)
		l := logging.WithInstrument(c.logger, inst.Key, inst.TradingSymbol)
		l.Info().Msg("Instrument selected")
		c.publish(false)
		c.feeds.LTP.Open()
	})
}

// ClearInstrument deselects the option and stops its price feed.
func (c *Controller) ClearInstrument() {
	c.opts.Dispatcher.Post(func() {
		c.feeds.LTP.Close()
		c.state.ClearInstrument()
		c.publish(false)
	})
}

// Edit applies a user edit and switches to Manual.
func (c *Controller) Edit(e Edit) {
	c.opts.Dispatcher.Post(func() {
		if e.Empty() {
			return
		}
		c.state.ApplyEdit(e)
		c.publish(false)
	})
}

// SetAutoTrade toggles goal-based sizing. Turning it on hands the levels
// back to pricing.
func (c *Controller) SetAutoTrade(on bool) {
	c.opts.Dispatcher.Post(func() {
		if on {
			c.state.Transition(EnableAutoTrade)
		} else {
			c.state.Transition(DisableAutoTrade)
		}
		c.publish(true)
	})
}

// ResumeAuto unlocks pricing after manual edits.
func (c *Controller) ResumeAuto() {
	c.opts.Dispatcher.Post(func() {
		c.state.Transition(ResumeAuto)
		c.publish(true)
	})
}

// SetBalance records a balance obtained outside the balance feed, such as
// the initial poll.
func (c *Controller) SetBalance(b decimal.Decimal) {
	c.opts.Dispatcher.Post(func() {
		c.state.ApplyBalance(b)
		c.publish(true)
	})
}

// SubscribeLTP sends the subscription for the selected option.
func (c *Controller) SubscribeLTP(w stream.Writer) error {
	inst := c.state.Instrument
	if inst == nil {
		return nil
	}
	return w.WriteJSON(stream.NewSubscribe(*inst))
}

// HandleLTP applies a price tick for the selected option. Ticks tagged with
// another instrument are ignored.
func (c *Controller) HandleLTP(msg stream.LTPMessage) {
	inst := c.state.Instrument
	if inst == nil || !msg.LTP.Valid {
		return
	}
	if msg.Instrument != "" && msg.Instrument != inst.Key {
		c.logger.Debug().
			Str("got", msg.Instrument).
			Str("want", inst.Key).
			Msg("Ignoring tick for another instrument")
		return
	}
	c.state.ApplyLTP(msg.LTP.Decimal)
	c.publish(true)
}

// HandleIndex applies an index level. Levels tagged with the other exchange
// are ignored.
func (c *Controller) HandleIndex(msg stream.IndexMessage) {
	if !msg.Price.Valid || c.state.Underlying == "" {
		return
	}
	if msg.Exchange != "" && msg.Exchange != string(c.state.Underlying.Exchange()) {
		return
	}
	c.state.ApplyIndexPrice(msg.Price.Decimal)
	c.publish(false)
}

// HandleBalance applies a pushed balance. A non-success status ends the
// session.
func (c *Controller) HandleBalance(msg stream.BalanceMessage) {
	if !msg.OK() {
		c.AuthExpired(msg.Message)
		return
	}
	if !msg.Balance.Valid {
		return
	}
	c.state.ApplyBalance(msg.Balance.Decimal)
	c.publish(true)
}

// AuthExpired raises the expiry hook. Only the first call has any effect.
// Safe from any goroutine.
func (c *Controller) AuthExpired(reason string) {
	c.authOnce.Do(func() {
		c.opts.Metrics.AuthExpiredSignal()
		c.logger.Error().Err(errors.ErrAuthExpired).Str("reason", reason).Msg("Session expired")
		if c.opts.OnAuthExpired != nil {
			c.opts.OnAuthExpired(reason)
		}
	})
}

// Snapshot computes the current view. Call it on the dispatcher.
func (c *Controller) Snapshot() Snapshot {
	sum, notice := c.evaluate()
	return c.snapshot(sum, notice)
}

func (c *Controller) publish(reprice bool) {
	start := time.Now()

	notice := ""
	if reprice {
		notice = c.state.Reprice()
	}
	sum, marginNotice := c.evaluate()
	if notice == "" {
		notice = marginNotice
	}

	c.opts.Metrics.ObserveRecompute(time.Since(start))
	c.opts.Presenter.Render(c.snapshot(sum, notice))
}

func (c *Controller) evaluate() (*margin.Summary, string) {
	sum, err := c.state.Margin()
	notice := marginNotice(err)
	if err != nil && notice == "" {
		c.logger.Warn().Err(err).Msg("Margin evaluation failed")
	}
	return sum, notice
}

func (c *Controller) snapshot(sum *margin.Summary, notice string) Snapshot {
	snap := Snapshot{
		State:    c.state.Clone(),
		Margin:   sum,
		Risk:     c.state.Risk(),
		Quantity: c.state.Quantity(),
		Notice:   notice,
	}
	if c.feeds.LTP != nil {
		snap.LTPFeed = c.feeds.LTP.State()
	}
	if c.feeds.Index != nil {
		snap.IndexFeed = c.feeds.Index.State()
	}
	if c.feeds.Balance != nil {
		snap.BalanceFeed = c.feeds.Balance.State()
	}
	return snap
}

// Evaluate snapshots a State outside any controller, as the offline
// calculator does. notice takes precedence over a margin notice.
func Evaluate(s *State, notice string) Snapshot {
	sum, err := s.Margin()
	if notice == "" {
		notice = marginNotice(err)
	}
	return Snapshot{
		State:    s.Clone(),
		Margin:   sum,
		Risk:     s.Risk(),
		Quantity: s.Quantity(),
		Notice:   notice,
	}
}

func marginNotice(err error) string {
	switch {
	case errors.Is(err, errors.ErrInvalidBalance):
		return NoticeInvalidBalance
	case errors.Is(err, errors.ErrInvalidPrice):
		return NoticeInvalidPrice
	}
	return ""
}
