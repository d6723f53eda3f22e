package updater

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"cryptodash/internal/domain"
)

// ErrAlreadyRunning is returned by Begin while a run is in progress.
var ErrAlreadyRunning = errors.New("a data refresh is already running")

// Tracker holds the shared progress of the refresh job. It is read by the
// status handler while the job goroutine writes it, and it enforces that at
// most one run is in progress.
type Tracker struct {
	mu    sync.Mutex
	state domain.JobState
	now   func() time.Time
}

// NewTracker creates a tracker in the not-started state.
func NewTracker() *Tracker {
	return &Tracker{
		state: domain.JobState{Status: domain.JobNotStarted},
		now:   time.Now,
	}
}

// Begin moves the tracker to in_progress for runID, or returns
// ErrAlreadyRunning.
func (t *Tracker) Begin(runID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Running() {
		return ErrAlreadyRunning
	}
	t.state = domain.JobState{
		Status:    domain.JobInProgress,
		RunID:     runID,
		StartedAt: t.now(),
	}
	return nil
}

// SetStage records the current stage and its position.
func (t *Tracker) SetStage(stage string, current, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Stage = stage
	t.state.Current = current
	t.state.Total = total
}

// Advance updates only the position within the current stage.
func (t *Tracker) Advance(current int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Current = current
}

// Complete ends the run successfully with a final stage label.
func (t *Tracker) Complete(stage string) domain.JobState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Status = domain.JobComplete
	t.state.Stage = stage
	t.state.FinishedAt = t.now()
	return t.state
}

// Fail ends the run with err.
func (t *Tracker) Fail(err error) domain.JobState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Status = domain.JobError
	t.state.ErrorMessage = err.Error()
	t.state.FinishedAt = t.now()
	return t.state
}

// State returns a copy of the current progress.
func (t *Tracker) State() domain.JobState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
