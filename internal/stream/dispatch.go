package stream

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"

	"optiondesk/internal/metrics"
)

// DefaultQueueSize is the Loop buffer used when none is given.
const DefaultQueueSize = 1024

// Dispatcher runs callbacks on behalf of channels.
type Dispatcher interface {
	Post(fn func())
}

// Inline runs callbacks on the posting goroutine.
type Inline struct{}

// Post runs fn immediately.
func (Inline) Post(fn func()) { fn() }

// Loop runs posted callbacks one at a time, in order, on the goroutine that
// calls Run. A panicking callback is logged and the loop keeps going.
type Loop struct {
	queue   chan func()
	done    chan struct{}
	once    sync.Once
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewLoop creates a dispatch loop with the given buffer.
func NewLoop(size int, logger zerolog.Logger, m *metrics.Metrics) *Loop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Loop{
		queue:   make(chan func(), size),
		done:    make(chan struct{}),
		logger:  logger.With().Str("component", "dispatch").Logger(),
		metrics: m,
	}
}

// Post enqueues fn. It blocks while the queue is full and drops fn once the
// loop has stopped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.queue <- fn:
		l.metrics.SetDispatchBacklog(len(l.queue))
	case <-l.done:
	}
}

// Call posts fn and waits for it to finish. It reports false if the loop
// stopped first.
func (l *Loop) Call(fn func()) bool {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

// Run drains the queue until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	defer l.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.queue:
			l.metrics.SetDispatchBacklog(len(l.queue))
			l.invoke(fn)
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.done) })
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.metrics.CallbackPanic()
			l.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered panic in dispatched callback")
		}
	}()
	fn()
}
