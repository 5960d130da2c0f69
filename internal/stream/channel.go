package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"optiondesk/internal/errors"
	"optiondesk/internal/logging"
	"optiondesk/internal/metrics"
)

const (
	DefaultReconnectDelay = 3 * time.Second
	DefaultDialTimeout    = 10 * time.Second
)

// Config configures a Channel.
type Config[T any] struct {
	Name string
	URL  string

	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	// PingInterval enables a text liveness frame when positive.
	PingInterval time.Duration
	PingPayload  string

	Dialer     Dialer
	Clock      Clock
	Dispatcher Dispatcher
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics

	// Subscribe runs once per successful connection, before any message.
	Subscribe func(w Writer) error
	// OnMessage receives every decoded inbound message.
	OnMessage func(msg T)
}

// Channel is one logical feed. Safe for concurrent use.
type Channel[T any] struct {
	cfg    Config[T]
	logger zerolog.Logger

	mu     sync.Mutex
	url    string
	state  State
	epoch  uint64
	connID string
	conn   Conn
	cancel context.CancelFunc
	retry  Timer
}

// NewChannel creates an idle channel.
func NewChannel[T any](cfg Config[T]) *Channel[T] {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.PingInterval > 0 && cfg.PingPayload == "" {
		cfg.PingPayload = PingPayload
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WSDialer{HandshakeTimeout: cfg.DialTimeout}
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = Inline{}
	}

	return &Channel[T]{
		cfg:    cfg,
		logger: logging.WithChannel(logging.WithComponent(cfg.Logger, "stream"), cfg.Name),
		url:    cfg.URL,
	}
}

// Name returns the channel name.
func (c *Channel[T]) Name() string {
	return c.cfg.Name
}

// State returns the current lifecycle state.
func (c *Channel[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// URL returns the current target.
func (c *Channel[T]) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// SetURL retargets an idle channel.
func (c *Channel[T]) SetURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return errors.Wrapf(errors.ErrChannelBusy, "%s is %s", c.cfg.Name, c.state)
	}
	c.url = url
	return nil
}

// Open starts connecting. It is a no-op while connecting or connected; from
// Closed it skips the remaining backoff.
func (c *Channel[T]) Open() {
	c.mu.Lock()
	switch c.state {
	case Connecting, Connected:
		c.mu.Unlock()
		return
	case Closed:
		c.stopRetryLocked()
	}
	epoch, ctx := c.beginLocked()
	url := c.url
	c.mu.Unlock()

	go c.connect(ctx, epoch, url)
}

// Close tears the transport down and cancels any pending retry. Messages
// already handed to the dispatcher are discarded when they run.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		return
	}
	c.epoch++
	c.stopRetryLocked()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.setStateLocked(Idle)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Channel[T]) beginLocked() (uint64, context.Context) {
	c.epoch++
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setStateLocked(Connecting)
	return c.epoch, ctx
}

func (c *Channel[T]) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Channel[T]) setStateLocked(s State) {
	if c.state == s {
		return
	}
	logging.LogStateChange(c.logger, c.state.String(), s.String())
	c.state = s
	c.cfg.Metrics.SetStreamState(c.cfg.Name, int(s))
}

// live reports whether epoch still owns a connected transport.
func (c *Channel[T]) live(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch && c.state == Connected
}

// post dispatches fn unless the connection that produced it is gone by the
// time it runs.
func (c *Channel[T]) post(epoch uint64, fn func()) {
	c.cfg.Dispatcher.Post(func() {
		if !c.live(epoch) {
			return
		}
		fn()
	})
}

func (c *Channel[T]) connect(ctx context.Context, epoch uint64, url string) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	conn, err := c.cfg.Dialer.Dial(dialCtx, url)
	cancel()
	if err != nil {
		c.fail(epoch, "dial", err)
		return
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.connID = uuid.NewString()
	connID := c.connID
	c.setStateLocked(Connected)
	c.mu.Unlock()

	c.cfg.Metrics.StreamConnected(c.cfg.Name)
	c.logger.Info().Str("conn_id", connID).Str("url", url).Msg("Stream connected")

	if c.cfg.Subscribe != nil {
		c.post(epoch, func() {
			if err := c.cfg.Subscribe(conn); err != nil {
				c.logger.Warn().Err(errors.NewStreamError(c.cfg.Name, "subscribe", err)).Msg("Subscribe failed")
				_ = conn.Close()
			}
		})
	}

	if c.cfg.PingInterval > 0 {
		go c.pingLoop(ctx, conn)
	}
	c.readLoop(epoch, conn)
}

func (c *Channel[T]) readLoop(epoch uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.fail(epoch, "read", err)
			return
		}
		if string(data) == "pong" {
			continue
		}

		var msg T
		if err := json.Unmarshal(data, &msg); err != nil {
			c.cfg.Metrics.StreamMalformedMessage(c.cfg.Name)
			c.logger.Debug().
				Err(errors.NewMalformedMessageError(c.cfg.Name, data, err)).
				Msg("Dropping malformed message")
			continue
		}

		c.cfg.Metrics.StreamMessage(c.cfg.Name)
		if c.cfg.OnMessage != nil {
			c.post(epoch, func() { c.cfg.OnMessage(msg) })
		}
	}
}

func (c *Channel[T]) pingLoop(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	payload := []byte(c.cfg.PingPayload)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteText(payload); err != nil {
				c.logger.Debug().Err(err).Msg("Ping failed")
				return
			}
		}
	}
}

// fail moves the owning connection to Closed and schedules a retry. Failures
// from superseded connections are ignored.
func (c *Channel[T]) fail(epoch uint64, op string, err error) {
	c.mu.Lock()
	if c.epoch != epoch || (c.state != Connecting && c.state != Connected) {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.setStateLocked(Closed)
	delay := c.cfg.ReconnectDelay
	c.retry = c.cfg.Clock.AfterFunc(delay, func() { c.reconnect(epoch) })
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	c.cfg.Metrics.StreamReconnectScheduled(c.cfg.Name)
	c.logger.Warn().
		Err(errors.NewStreamError(c.cfg.Name, op, err)).
		Dur("retry_in", delay).
		Msg("Stream dropped, reconnect scheduled")
}

func (c *Channel[T]) reconnect(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch || c.state != Closed {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	next, ctx := c.beginLocked()
	url := c.url
	c.mu.Unlock()

	go c.connect(ctx, next, url)
}
