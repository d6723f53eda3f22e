// Package ticker abstracts tea.Tick so timer-driven components can be
// driven deterministically in tests.
package ticker

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Func schedules fn to produce a message after d.
type Func func(d time.Duration, fn func(time.Time) tea.Msg) tea.Cmd

// Real is the production tick.
func Real(d time.Duration, fn func(time.Time) tea.Msg) tea.Cmd {
	return tea.Tick(d, fn)
}

// Scheduled is one tick captured by a Recorder.
type Scheduled struct {
	Delay time.Duration
	fire  func(time.Time) tea.Msg
}

// Fire produces the tick's message as if the delay had elapsed.
func (s Scheduled) Fire() tea.Msg {
	return s.fire(time.Now())
}

// Recorder captures scheduled ticks instead of sleeping. The returned
// command fires immediately when run.
type Recorder struct {
	Ticks []Scheduled
}

// Tick implements Func.
func (r *Recorder) Tick(d time.Duration, fn func(time.Time) tea.Msg) tea.Cmd {
	r.Ticks = append(r.Ticks, Scheduled{Delay: d, fire: fn})
	return func() tea.Msg { return fn(time.Now()) }
}

// Last returns the most recently scheduled tick.
func (r *Recorder) Last() Scheduled {
	return r.Ticks[len(r.Ticks)-1]
}

// Reset forgets every captured tick.
func (r *Recorder) Reset() {
	r.Ticks = nil
}
