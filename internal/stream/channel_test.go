package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optiondesk/internal/errors"
	"optiondesk/internal/metrics"
)

const waitFor = 2 * time.Second

type fakeConn struct {
	in      chan []byte
	closed  chan struct{}
	once    sync.Once
	mu      sync.Mutex
	written [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, io.EOF
	case b := <-c.in:
		return b, nil
	}
}

func (c *fakeConn) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.WriteText(b)
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	for i, b := range c.written {
		out[i] = string(b)
	}
	return out
}

type fakeDialer struct {
	mu    sync.Mutex
	fail  int
	dials int
	urls  []string
	conns chan *fakeConn
}

func newFakeDialer(fail int) *fakeDialer {
	return &fakeDialer{fail: fail, conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	d.urls = append(d.urls, url)
	if d.fail > 0 {
		d.fail--
		d.mu.Unlock()
		return nil, fmt.Errorf("connection refused")
	}
	d.mu.Unlock()

	conn := newFakeConn()
	d.conns <- conn
	return conn, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type manualTimer struct {
	clock   *manualClock
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Fire runs every active timer.
func (c *manualClock) Fire() {
	c.mu.Lock()
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

// queue holds posted callbacks until drained.
type queue struct {
	mu  sync.Mutex
	fns []func()
}

func (q *queue) Post(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fns = append(q.fns, fn)
}

func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fns)
}

func (q *queue) Drain() {
	q.mu.Lock()
	fns := q.fns
	q.fns = nil
	q.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type recorder struct {
	mu   sync.Mutex
	subs int
	msgs []LTPMessage
}

func (r *recorder) subscribe(w Writer) error {
	r.mu.Lock()
	r.subs++
	r.mu.Unlock()
	return w.WriteJSON(SubscribeMessage{Action: "subscribe", InstrumentKey: "NSE_FO|1"})
}

func (r *recorder) onMessage(m LTPMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) Subs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs
}

func (r *recorder) Msgs() []LTPMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LTPMessage(nil), r.msgs...)
}

type harness struct {
	ch     *Channel[LTPMessage]
	dialer *fakeDialer
	clock  *manualClock
	rec    *recorder
	m      *metrics.Metrics
}

func newHarness(fail int, d Dispatcher) *harness {
	h := &harness{
		dialer: newFakeDialer(fail),
		clock:  &manualClock{},
		rec:    &recorder{},
		m:      metrics.New(),
	}
	if d == nil {
		d = Inline{}
	}
	h.ch = NewChannel(Config[LTPMessage]{
		Name:       "ltp",
		URL:        "ws://feed/ws/ltp",
		Dialer:     h.dialer,
		Clock:      h.clock,
		Dispatcher: d,
		Logger:     zerolog.Nop(),
		Metrics:    h.m,
		Subscribe:  h.rec.subscribe,
		OnMessage:  h.rec.onMessage,
	})
	return h
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ch.State() == want }, waitFor, time.Millisecond,
		"state %s", want)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestChannelSubscribesOnConnect(t *testing.T) {
	h := newHarness(0, nil)
	h.ch.Open()
	conn := <-h.dialer.conns
	h.waitState(t, Connected)

	require.Eventually(t, func() bool { return h.rec.Subs() == 1 }, waitFor, time.Millisecond)
	require.Eventually(t, func() bool { return len(conn.Written()) == 1 }, waitFor, time.Millisecond)
	assert.JSONEq(t, `{"action":"subscribe","instrument_key":"NSE_FO|1","trading_symbol":""}`, conn.Written()[0])

	conn.in <- []byte(`{"ltp": 101.5}`)
	require.Eventually(t, func() bool { return len(h.rec.Msgs()) == 1 }, waitFor, time.Millisecond)
	got := h.rec.Msgs()[0]
	require.True(t, got.LTP.Valid)
	assert.True(t, got.LTP.Decimal.Equal(decimal.RequireFromString("101.5")))

	h.ch.Close()
	assert.Equal(t, Idle, h.ch.State())
}

func TestChannelOpenIsIdempotent(t *testing.T) {
	h := newHarness(0, nil)
	h.ch.Open()
	h.ch.Open()
	<-h.dialer.conns
	h.waitState(t, Connected)
	h.ch.Open()

	assert.Equal(t, 1, h.dialer.Dials())
	h.ch.Close()
}

func TestChannelReconnectsAfterDialFailure(t *testing.T) {
	h := newHarness(1, nil)
	h.ch.Open()

	h.waitState(t, Closed)
	require.Equal(t, 1, h.clock.Active())
	assert.Equal(t, 0, h.rec.Subs())
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.m.StreamReconnects.WithLabelValues("ltp")) == 1
	}, waitFor, time.Millisecond)

	h.clock.Fire()
	<-h.dialer.conns
	h.waitState(t, Connected)
	require.Eventually(t, func() bool { return h.rec.Subs() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, 2, h.dialer.Dials())

	h.ch.Close()
}

func TestChannelResubscribesOnEveryConnection(t *testing.T) {
	h := newHarness(0, nil)
	h.ch.Open()
	first := <-h.dialer.conns
	h.waitState(t, Connected)
	require.Eventually(t, func() bool { return h.rec.Subs() == 1 }, waitFor, time.Millisecond)

	// peer hangs up
	first.Close()
	h.waitState(t, Closed)
	require.Eventually(t, func() bool { return h.clock.Active() == 1 }, waitFor, time.Millisecond)

	h.clock.Fire()
	<-h.dialer.conns
	h.waitState(t, Connected)
	require.Eventually(t, func() bool { return h.rec.Subs() == 2 }, waitFor, time.Millisecond)

	h.ch.Close()
}

func TestChannelCloseCancelsPendingRetry(t *testing.T) {
	h := newHarness(1, nil)
	h.ch.Open()
	h.waitState(t, Closed)
	require.Equal(t, 1, h.clock.Active())

	h.ch.Close()
	assert.Equal(t, Idle, h.ch.State())
	assert.Equal(t, 0, h.clock.Active())

	// a timer that fires despite Stop must not revive the channel
	h.clock.mu.Lock()
	stale := h.clock.timers[0].f
	h.clock.mu.Unlock()
	stale()

	assert.Equal(t, Idle, h.ch.State())
	assert.Equal(t, 1, h.dialer.Dials())
}

func TestChannelOpenFromClosedSkipsBackoff(t *testing.T) {
	h := newHarness(1, nil)
	h.ch.Open()
	h.waitState(t, Closed)

	h.ch.Open()
	<-h.dialer.conns
	h.waitState(t, Connected)
	assert.Equal(t, 0, h.clock.Active())
	assert.Equal(t, 2, h.dialer.Dials())

	h.ch.Close()
}

func TestChannelDropsMalformedPayloads(t *testing.T) {
	h := newHarness(0, nil)
	h.ch.Open()
	conn := <-h.dialer.conns
	h.waitState(t, Connected)

	conn.in <- []byte(`{not json`)
	conn.in <- []byte(`pong`)
	conn.in <- []byte(`{"instrument":"NSE_FO|1","ltp":"98.05"}`)

	require.Eventually(t, func() bool { return len(h.rec.Msgs()) == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, "NSE_FO|1", h.rec.Msgs()[0].Instrument)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.StreamMalformed.WithLabelValues("ltp")))
	assert.Equal(t, Connected, h.ch.State())

	h.ch.Close()
}

func TestChannelDiscardsCallbacksFromClosedConnection(t *testing.T) {
	q := &queue{}
	h := newHarness(0, q)
	h.ch.Open()
	conn := <-h.dialer.conns
	h.waitState(t, Connected)

	conn.in <- []byte(`{"ltp": 10}`)
	require.Eventually(t, func() bool { return q.Len() == 2 }, waitFor, time.Millisecond)

	h.ch.Close()
	q.Drain()

	assert.Equal(t, 0, h.rec.Subs())
	assert.Empty(t, h.rec.Msgs())
}

func TestChannelSetURL(t *testing.T) {
	h := newHarness(0, nil)
	h.ch.Open()
	<-h.dialer.conns
	h.waitState(t, Connected)

	err := h.ch.SetURL("ws://feed/ws/bse-candle")
	assert.True(t, errors.Is(err, errors.ErrChannelBusy))

	h.ch.Close()
	require.NoError(t, h.ch.SetURL("ws://feed/ws/bse-candle"))
	h.ch.Open()
	<-h.dialer.conns
	h.waitState(t, Connected)

	h.dialer.mu.Lock()
	last := h.dialer.urls[len(h.dialer.urls)-1]
	h.dialer.mu.Unlock()
	assert.Equal(t, "ws://feed/ws/bse-candle", last)
	assert.Equal(t, "ws://feed/ws/bse-candle", h.ch.URL())

	h.ch.Close()
}
