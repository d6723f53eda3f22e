// Package debounce delays an operation until its input stops changing.
package debounce

import (
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"cryptodash/internal/ticker"
)

// DefaultDelay is the quiet period used by the search box.
const DefaultDelay = 300 * time.Millisecond

var lastID int64

func nextID() int {
	return int(atomic.AddInt64(&lastID, 1))
}

// FireMsg is delivered when a scheduled delay elapses. Whether it still
// counts is decided by Gate.Fire.
type FireMsg[T any] struct {
	ID    int
	tag   int
	Input T
}

// Gate owns a single debounce timer. Every Schedule retires the previous
// timer, so only the last input of a burst is ever released.
type Gate[T any] struct {
	id      int
	tag     int
	delay   time.Duration
	tick    ticker.Func
	pending bool
}

// New creates a gate with the given quiet period. A nil tick uses tea.Tick.
func New[T any](delay time.Duration, tick ticker.Func) *Gate[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if tick == nil {
		tick = ticker.Real
	}
	return &Gate[T]{id: nextID(), delay: delay, tick: tick}
}

// ID identifies the gate's messages.
func (g *Gate[T]) ID() int {
	return g.id
}

// Schedule records input as the latest call and restarts the timer.
func (g *Gate[T]) Schedule(input T) tea.Cmd {
	g.tag++
	g.pending = true
	id, tag := g.id, g.tag
	return g.tick(g.delay, func(time.Time) tea.Msg {
		return FireMsg[T]{ID: id, tag: tag, Input: input}
	})
}

// Cancel discards the pending timer without invoking anything.
func (g *Gate[T]) Cancel() {
	g.tag++
	g.pending = false
}

// Pending reports whether a scheduled input has not been released yet.
func (g *Gate[T]) Pending() bool {
	return g.pending
}

// Fire returns the input carried by msg and true when msg belongs to this
// gate's current timer. Superseded or cancelled timers yield false.
func (g *Gate[T]) Fire(msg FireMsg[T]) (T, bool) {
	if msg.ID != g.id || msg.tag != g.tag || !g.pending {
		var zero T
		return zero, false
	}
	g.pending = false
	return msg.Input, true
}
