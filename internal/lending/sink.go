package lending

import (
	"context"
	"os/exec"
	"sync"

	"github.com/pkg/errors"
)

// Notification is one desktop or in-app alert.
type Notification struct {
	Title string
	Body  string
	// Tag groups alerts about the same position.
	Tag     string
	Urgency string
}

// Urgency levels, named after notify-send's.
const (
	UrgencyNormal   = "normal"
	UrgencyCritical = "critical"
)

// Sink delivers notifications.
type Sink interface {
	// RequestPermission asks once whether notifications may be shown.
	RequestPermission(ctx context.Context) bool
	Notify(ctx context.Context, n Notification) error
}

// ExecSink runs a notify-send compatible command for each notification.
type ExecSink struct {
	Command string
	AppName string

	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

// NewExecSink returns a sink running command.
func NewExecSink(command string) *ExecSink {
	return &ExecSink{
		Command:  command,
		AppName:  "cryptodash",
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// RequestPermission grants when the command can be found.
func (s *ExecSink) RequestPermission(context.Context) bool {
	if s.Command == "" {
		return false
	}
	_, err := s.lookPath(s.Command)
	return err == nil
}

func (s *ExecSink) Notify(ctx context.Context, n Notification) error {
	urgency := n.Urgency
	if urgency == "" {
		urgency = UrgencyNormal
	}
	args := []string{"-a", s.AppName, "-u", urgency, n.Title, n.Body}
	if err := s.run(ctx, s.Command, args...); err != nil {
		return errors.Wrapf(err, "running %s", s.Command)
	}
	return nil
}

// BannerSink keeps the most recent notifications for display inside the
// terminal UI. It always grants permission.
type BannerSink struct {
	mu     sync.Mutex
	max    int
	recent []Notification
}

// NewBannerSink keeps up to limit notifications.
func NewBannerSink(limit int) *BannerSink {
	if limit <= 0 {
		limit = 5
	}
	return &BannerSink{max: limit}
}

func (s *BannerSink) RequestPermission(context.Context) bool { return true }

func (s *BannerSink) Notify(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, n)
	if len(s.recent) > s.max {
		s.recent = s.recent[len(s.recent)-s.max:]
	}
	return nil
}

// Recent returns a copy of the kept notifications, oldest first.
func (s *BannerSink) Recent() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.recent))
	copy(out, s.recent)
	return out
}

// MultiSink fans out to several sinks. Permission is granted when any sink
// grants it, and notifications go to the granting sinks only.
type MultiSink struct {
	sinks   []Sink
	granted []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) RequestPermission(ctx context.Context) bool {
	m.granted = m.granted[:0]
	for _, s := range m.sinks {
		if s.RequestPermission(ctx) {
			m.granted = append(m.granted, s)
		}
	}
	return len(m.granted) > 0
}

func (m *MultiSink) Notify(ctx context.Context, n Notification) error {
	var firstErr error
	for _, s := range m.granted {
		if err := s.Notify(ctx, n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
