// Package refresh tracks the server-side data-refresh job from the client:
// it starts the job, attaches to one already running, polls its progress
// and settles on completion or failure.
package refresh

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"cryptodash/internal/ticker"
	"cryptodash/pkg/cryptodash"
)

// Defaults for the poll cadence and for how long a settlement message stays
// on screen.
const (
	DefaultPollInterval = time.Second
	DefaultMessageTTL   = 5 * time.Second
)

// User-facing texts.
const (
	msgConflict     = "A data refresh is already running."
	msgStartFailed  = "Failed to start the data refresh."
	msgComplete     = "Data refresh complete."
	msgJobFailed    = "The data refresh failed."
	msgConnLost     = "Lost connection to the server while refreshing data."
	msgStartPending = "Starting data refresh..."
)

// Phase is the client-side state of the refresh job.
type Phase int

const (
	Idle Phase = iota
	Starting
	Polling
	Settled
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Polling:
		return "polling"
	case Settled:
		return "settled"
	default:
		return "unknown"
	}
}

// Outcome qualifies the Settled phase.
type Outcome int

const (
	NoOutcome Outcome = iota
	Complete
	Failed
)

// API is the part of the server contract the controller needs.
type API interface {
	StartRefresh(ctx context.Context) (string, error)
	RefreshStatus(ctx context.Context) (cryptodash.RefreshStatus, error)
}

// InitiateMsg asks the controller to start a refresh. Auto marks requests
// raised by the application rather than the user; those are dropped while a
// job is already being tracked.
type InitiateMsg struct {
	Auto bool
}

// AttachMsg makes the controller follow a job that is already running.
type AttachMsg struct {
	Status cryptodash.RefreshStatus
}

type startedMsg struct {
	gen     int
	message string
	err     error
}

type pollTickMsg struct{ tag int }

type statusMsg struct {
	tag    int
	status cryptodash.RefreshStatus
	err    error
}

type expireMsg struct{ tag int }

// Controller owns the refresh lifecycle and its timers. It is driven from
// a bubbletea Update loop and is not safe for concurrent use.
type Controller struct {
	ctx          context.Context
	api          API
	tick         ticker.Func
	log          *zap.Logger
	pollInterval time.Duration
	messageTTL   time.Duration

	phase    Phase
	outcome  Outcome
	progress cryptodash.RefreshStatus
	message  string

	startGen int
	pollTag  int
	polling  bool
	msgTag   int
}

// Option configures a Controller.
type Option func(*Controller)

// WithPollInterval overrides the status poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.pollInterval = d }
}

// WithMessageTTL overrides how long settlement messages are shown.
func WithMessageTTL(d time.Duration) Option {
	return func(c *Controller) { c.messageTTL = d }
}

// WithTicker replaces tea.Tick.
func WithTicker(t ticker.Func) Option {
	return func(c *Controller) { c.tick = t }
}

// NewController creates an idle controller. ctx bounds every request it
// issues.
func NewController(ctx context.Context, api API, log *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		ctx:          ctx,
		api:          api,
		tick:         ticker.Real,
		log:          log,
		pollInterval: DefaultPollInterval,
		messageTTL:   DefaultMessageTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Phase returns the current state.
func (c *Controller) Phase() Phase { return c.phase }

// Outcome returns how the last job settled.
func (c *Controller) Outcome() Outcome { return c.outcome }

// Progress returns the last status seen while polling.
func (c *Controller) Progress() cryptodash.RefreshStatus { return c.progress }

// Message returns the status or settlement text, empty once expired.
func (c *Controller) Message() string { return c.message }

// ActiveTimers returns the number of live poll timers: one while polling,
// zero otherwise.
func (c *Controller) ActiveTimers() int {
	if c.polling {
		return 1
	}
	return 0
}

// Busy reports whether a job is being started or followed.
func (c *Controller) Busy() bool {
	return c.phase == Starting || c.phase == Polling
}

// Initiate requests a new refresh. It is allowed from any phase.
func (c *Controller) Initiate() tea.Cmd {
	c.stopPolling()
	c.phase = Starting
	c.outcome = NoOutcome
	c.progress = cryptodash.RefreshStatus{}
	c.setMessage(msgStartPending)
	c.startGen++

	gen, ctx, api := c.startGen, c.ctx, c.api
	c.log.Info("requesting data refresh")
	return func() tea.Msg {
		message, err := api.StartRefresh(ctx)
		return startedMsg{gen: gen, message: message, err: err}
	}
}

// Attach follows a job that is already running without starting one.
func (c *Controller) Attach(status cryptodash.RefreshStatus) tea.Cmd {
	c.startGen++
	c.outcome = NoOutcome
	c.progress = status
	c.log.Info("attaching to running data refresh", zap.String("stage", status.Stage))
	return c.enterPolling(status.Stage)
}

// Stop cancels every timer and pending start. Used on teardown.
func (c *Controller) Stop() {
	c.stopPolling()
	c.startGen++
	c.msgTag++
}

// Update handles the controller's own messages; others are ignored.
func (c *Controller) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case InitiateMsg:
		if msg.Auto && c.Busy() {
			return nil
		}
		return c.Initiate()

	case AttachMsg:
		return c.Attach(msg.Status)

	case startedMsg:
		if msg.gen != c.startGen || c.phase != Starting {
			return nil
		}
		switch {
		case msg.err == nil:
			return c.enterPolling(msg.message)
		case cryptodash.IsConflict(msg.err):
			c.log.Info("data refresh already running, attaching")
			return c.enterPolling(cryptodash.DetailOrDefault(msg.err, msgConflict))
		default:
			c.log.Warn("starting data refresh", zap.Error(msg.err))
			return c.settle(Failed, cryptodash.DetailOrDefault(msg.err, msgStartFailed))
		}

	case pollTickMsg:
		if !c.polling || msg.tag != c.pollTag {
			return nil
		}
		tag, ctx, api := msg.tag, c.ctx, c.api
		return func() tea.Msg {
			status, err := api.RefreshStatus(ctx)
			return statusMsg{tag: tag, status: status, err: err}
		}

	case statusMsg:
		if !c.polling || msg.tag != c.pollTag {
			return nil
		}
		if msg.err != nil {
			c.log.Warn("polling refresh status", zap.Error(msg.err))
			return c.settle(Failed, msgConnLost)
		}
		c.progress = msg.status
		switch msg.status.Status {
		case cryptodash.StatusComplete:
			c.log.Info("data refresh complete")
			return c.settle(Complete, msgComplete)
		case cryptodash.StatusError:
			text := msg.status.ErrorMessage
			if text == "" {
				text = msgJobFailed
			}
			c.log.Warn("data refresh failed", zap.String("error", text))
			return c.settle(Failed, text)
		default:
			return c.scheduleTick()
		}

	case expireMsg:
		if msg.tag == c.msgTag {
			c.message = ""
		}
	}
	return nil
}

func (c *Controller) enterPolling(message string) tea.Cmd {
	c.stopPolling()
	c.phase = Polling
	c.polling = true
	c.setMessage(message)
	return c.scheduleTick()
}

func (c *Controller) scheduleTick() tea.Cmd {
	tag := c.pollTag
	return c.tick(c.pollInterval, func(time.Time) tea.Msg {
		return pollTickMsg{tag: tag}
	})
}

func (c *Controller) stopPolling() {
	c.pollTag++
	c.polling = false
}

func (c *Controller) settle(outcome Outcome, message string) tea.Cmd {
	c.stopPolling()
	c.phase = Settled
	c.outcome = outcome
	c.setMessage(message)
	tag := c.msgTag
	return c.tick(c.messageTTL, func(time.Time) tea.Msg {
		return expireMsg{tag: tag}
	})
}

func (c *Controller) setMessage(message string) {
	c.msgTag++
	c.message = message
}
