package lending

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"cryptodash/pkg/cryptodash"
)

// DefaultCooldown is the minimum gap between two alerts for one position.
const DefaultCooldown = 5 * time.Minute

type permissionMsg struct{ granted bool }

// SentMsg reports delivered notifications.
type SentMsg struct {
	Sent []Notification
	Err  error
}

// Notifier raises alerts for risky and critical positions. Permission is
// requested once, on the first Enable, and never again.
type Notifier struct {
	ctx      context.Context
	sink     Sink
	log      *zap.Logger
	cooldown time.Duration
	now      func() time.Time

	enabled    bool
	asked      bool
	permission bool
	lastSent   map[string]time.Time
}

// NewNotifier creates a disabled notifier.
func NewNotifier(ctx context.Context, sink Sink, cooldown time.Duration, log *zap.Logger) *Notifier {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Notifier{
		ctx:      ctx,
		sink:     sink,
		log:      log,
		cooldown: cooldown,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

func (n *Notifier) Enabled() bool    { return n.enabled }
func (n *Notifier) Permission() bool { return n.permission }

// Enable turns alerts on. The first call asks the sink for permission;
// later calls reuse the answer.
func (n *Notifier) Enable() tea.Cmd {
	if !n.asked {
		n.asked = true
		ctx, sink := n.ctx, n.sink
		return func() tea.Msg {
			return permissionMsg{granted: sink.RequestPermission(ctx)}
		}
	}
	if !n.permission {
		return nil
	}
	return n.turnOn()
}

// Disable stops alerts. The cooldown table is kept.
func (n *Notifier) Disable() {
	n.enabled = false
}

// Toggle flips between Enable and Disable.
func (n *Notifier) Toggle() tea.Cmd {
	if n.enabled {
		n.Disable()
		return nil
	}
	return n.Enable()
}

// Update handles the permission answer.
func (n *Notifier) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case permissionMsg:
		n.permission = msg.granted
		if !msg.granted {
			n.log.Info("notification permission denied")
			return nil
		}
		return n.turnOn()
	case SentMsg:
		if msg.Err != nil {
			n.log.Warn("delivering notifications", zap.Error(msg.Err))
		}
	}
	return nil
}

// Check raises an alert for each risky or critical position not alerted
// within the cooldown. Suppressed alerts leave the cooldown untouched.
func (n *Notifier) Check(positions []cryptodash.LendingPosition) tea.Cmd {
	if !n.enabled || !n.permission {
		return nil
	}
	now := n.now()
	var out []Notification
	for _, p := range positions {
		alert, ok := alertFor(p)
		if !ok {
			continue
		}
		if last, seen := n.lastSent[alert.Tag]; seen && now.Sub(last) < n.cooldown {
			continue
		}
		n.lastSent[alert.Tag] = now
		out = append(out, alert)
	}
	if len(out) == 0 {
		return nil
	}
	return n.deliver(out...)
}

func (n *Notifier) turnOn() tea.Cmd {
	n.enabled = true
	return n.deliver(Notification{
		Title: "Notifications enabled",
		Body:  "You will be alerted about risky positions.",
	})
}

func (n *Notifier) deliver(batch ...Notification) tea.Cmd {
	ctx, sink := n.ctx, n.sink
	return func() tea.Msg {
		var firstErr error
		for _, nt := range batch {
			if err := sink.Notify(ctx, nt); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return SentMsg{Sent: batch, Err: firstErr}
	}
}

func alertFor(p cryptodash.LendingPosition) (Notification, bool) {
	pair := p.Collateral + "/" + p.Borrowed
	switch p.RiskLevel {
	case cryptodash.RiskCritical:
		return Notification{
			Title:   "CRITICAL ALERT",
			Body:    fmt.Sprintf("Position %s: health factor %.2f - liquidation risk!", pair, p.HealthFactor),
			Tag:     p.Key(),
			Urgency: UrgencyCritical,
		}, true
	case cryptodash.RiskRisky:
		return Notification{
			Title:   "Position alert",
			Body:    fmt.Sprintf("Position %s: health factor %.2f - keep an eye on it.", pair, p.HealthFactor),
			Tag:     p.Key(),
			Urgency: UrgencyNormal,
		}, true
	default:
		return Notification{}, false
	}
}
