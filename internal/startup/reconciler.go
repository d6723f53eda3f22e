// Package startup aligns the client with the server's refresh state when a
// view is mounted.
package startup

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"cryptodash/internal/refresh"
	"cryptodash/internal/ticker"
	"cryptodash/pkg/cryptodash"
)

// DefaultRetryInterval is the wait between failed status probes.
const DefaultRetryInterval = 2 * time.Second

// probeQuery is a search that any non-empty catalog answers cheaply.
const probeQuery = "a"

// API is the part of the server contract the reconciler needs.
type API interface {
	RefreshStatus(ctx context.Context) (cryptodash.RefreshStatus, error)
	SearchPairs(ctx context.Context, query string) ([]cryptodash.Suggestion, error)
}

type retryMsg struct{ tag int }

type statusMsg struct {
	tag    int
	status cryptodash.RefreshStatus
	err    error
}

type datasetMsg struct {
	tag int
	err error
}

// Reconciler probes the server until it answers, then either attaches to a
// running refresh, requests one when the dataset is missing, or does
// nothing. It resolves at most once per Start.
type Reconciler struct {
	ctx      context.Context
	api      API
	tick     ticker.Func
	log      *zap.Logger
	interval time.Duration

	tag      int
	active   bool
	resolved bool
	failures int
}

// New creates a reconciler. interval <= 0 uses DefaultRetryInterval and a
// nil tick uses tea.Tick.
func New(ctx context.Context, api API, interval time.Duration, tick ticker.Func, log *zap.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	if tick == nil {
		tick = ticker.Real
	}
	return &Reconciler{ctx: ctx, api: api, tick: tick, log: log, interval: interval}
}

// Active reports whether probing is still under way.
func (r *Reconciler) Active() bool { return r.active }

// Resolved reports whether the server answered and a decision was taken.
func (r *Reconciler) Resolved() bool { return r.resolved }

// Failures returns the number of failed status probes so far.
func (r *Reconciler) Failures() int { return r.failures }

// Start begins probing immediately.
func (r *Reconciler) Start() tea.Cmd {
	r.tag++
	r.active = true
	r.resolved = false
	r.failures = 0
	return r.probeStatus(r.tag)
}

// Stop cancels any pending retry.
func (r *Reconciler) Stop() {
	r.tag++
	r.active = false
}

// Update handles the reconciler's own messages and returns refresh
// requests for the refresh controller.
func (r *Reconciler) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case retryMsg:
		if !r.active || msg.tag != r.tag {
			return nil
		}
		return r.probeStatus(msg.tag)

	case statusMsg:
		if !r.active || msg.tag != r.tag {
			return nil
		}
		if msg.err != nil {
			r.failures++
			r.log.Debug("server not reachable yet", zap.Int("failures", r.failures), zap.Error(msg.err))
			tag := r.tag
			return r.tick(r.interval, func(time.Time) tea.Msg { return retryMsg{tag: tag} })
		}
		if msg.status.Status == cryptodash.StatusInProgress {
			r.resolve()
			r.log.Info("refresh already running at startup")
			status := msg.status
			return func() tea.Msg { return refresh.AttachMsg{Status: status} }
		}
		tag, ctx, api := r.tag, r.ctx, r.api
		return func() tea.Msg {
			_, err := api.SearchPairs(ctx, probeQuery)
			return datasetMsg{tag: tag, err: err}
		}

	case datasetMsg:
		if !r.active || msg.tag != r.tag {
			return nil
		}
		r.resolve()
		if cryptodash.IsDatasetMissing(msg.err) {
			r.log.Info("dataset missing at startup, requesting refresh")
			return func() tea.Msg { return refresh.InitiateMsg{Auto: true} }
		}
		if msg.err != nil {
			r.log.Warn("probing dataset", zap.Error(msg.err))
		}
	}
	return nil
}

func (r *Reconciler) resolve() {
	r.resolved = true
	r.Stop()
}

func (r *Reconciler) probeStatus(tag int) tea.Cmd {
	ctx, api := r.ctx, r.api
	return func() tea.Msg {
		status, err := api.RefreshStatus(ctx)
		return statusMsg{tag: tag, status: status, err: err}
	}
}
