package refresh

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cryptodash/internal/ticker"
	"cryptodash/pkg/cryptodash"
)

type fakeAPI struct {
	startMsg  string
	startErr  error
	starts    int
	statuses  []cryptodash.RefreshStatus
	statusErr error
	polls     int
}

func (f *fakeAPI) StartRefresh(context.Context) (string, error) {
	f.starts++
	return f.startMsg, f.startErr
}

func (f *fakeAPI) RefreshStatus(context.Context) (cryptodash.RefreshStatus, error) {
	f.polls++
	if f.statusErr != nil {
		return cryptodash.RefreshStatus{}, f.statusErr
	}
	s := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return s, nil
}

func newTestController(api API) (*Controller, *ticker.Recorder) {
	rec := &ticker.Recorder{}
	c := NewController(context.Background(), api, zap.NewNop(), WithTicker(rec.Tick))
	return c, rec
}

func TestInitiateAndComplete(t *testing.T) {
	api := &fakeAPI{
		startMsg: "Data refresh started.",
		statuses: []cryptodash.RefreshStatus{
			{Status: cryptodash.StatusInProgress, Current: 1, Total: 4, Stage: "Fetching coins"},
			{Status: cryptodash.StatusComplete, Current: 4, Total: 4},
		},
	}
	c, rec := newTestController(api)

	cmd := c.Initiate()
	assert.Equal(t, Starting, c.Phase())
	require.NotNil(t, cmd)

	cmd = c.Update(cmd())
	assert.Equal(t, Polling, c.Phase())
	assert.Equal(t, "Data refresh started.", c.Message())
	assert.Equal(t, 1, c.ActiveTimers())
	assert.Equal(t, DefaultPollInterval, rec.Last().Delay)

	// tick -> status request -> in progress, next tick scheduled
	cmd = c.Update(cmd())
	cmd = c.Update(cmd())
	assert.Equal(t, Polling, c.Phase())
	assert.Equal(t, "Fetching coins", c.Progress().Stage)
	assert.Equal(t, 1, c.ActiveTimers())

	cmd = c.Update(cmd())
	cmd = c.Update(cmd())
	assert.Equal(t, Settled, c.Phase())
	assert.Equal(t, Complete, c.Outcome())
	assert.Equal(t, "Data refresh complete.", c.Message())
	assert.Equal(t, 0, c.ActiveTimers())
	assert.Equal(t, 2, api.polls)

	assert.Equal(t, DefaultMessageTTL, rec.Last().Delay)
	assert.Nil(t, c.Update(cmd()))
	assert.Empty(t, c.Message())
	assert.Equal(t, Settled, c.Phase())
}

func TestInitiateConflictAttaches(t *testing.T) {
	api := &fakeAPI{
		startErr: &cryptodash.APIError{StatusCode: http.StatusConflict, Detail: "Une mise à jour est déjà en cours."},
		statuses: []cryptodash.RefreshStatus{{Status: cryptodash.StatusInProgress}},
	}
	c, _ := newTestController(api)

	cmd := c.Update(c.Initiate()())
	assert.Equal(t, Polling, c.Phase())
	assert.Equal(t, NoOutcome, c.Outcome())
	assert.Equal(t, "Une mise à jour est déjà en cours.", c.Message())
	assert.Equal(t, 1, c.ActiveTimers())
	require.NotNil(t, cmd)
}

func TestInitiateFailureSettles(t *testing.T) {
	api := &fakeAPI{startErr: &cryptodash.APIError{StatusCode: http.StatusInternalServerError, Detail: "boom"}}
	c, rec := newTestController(api)

	c.Update(c.Initiate()())
	assert.Equal(t, Settled, c.Phase())
	assert.Equal(t, Failed, c.Outcome())
	assert.Equal(t, "boom", c.Message())
	assert.Equal(t, 0, c.ActiveTimers())
	assert.Equal(t, 0, api.polls)
	assert.Equal(t, DefaultMessageTTL, rec.Last().Delay)
}

func TestInitiateTransportFailureUsesFallback(t *testing.T) {
	api := &fakeAPI{startErr: errors.New("connection refused")}
	c, _ := newTestController(api)

	c.Update(c.Initiate()())
	assert.Equal(t, Failed, c.Outcome())
	assert.Equal(t, msgStartFailed, c.Message())
}

func TestJobErrorSettles(t *testing.T) {
	api := &fakeAPI{
		statuses: []cryptodash.RefreshStatus{{Status: cryptodash.StatusError, ErrorMessage: "CoinGecko unavailable"}},
	}
	c, _ := newTestController(api)

	cmd := c.Attach(cryptodash.RefreshStatus{Status: cryptodash.StatusInProgress})
	cmd = c.Update(cmd())
	c.Update(cmd())
	assert.Equal(t, Settled, c.Phase())
	assert.Equal(t, Failed, c.Outcome())
	assert.Equal(t, "CoinGecko unavailable", c.Message())
	assert.Equal(t, 0, api.starts)
}

func TestConnectionLostWhilePolling(t *testing.T) {
	api := &fakeAPI{statusErr: errors.New("dial tcp: connection refused")}
	c, _ := newTestController(api)

	cmd := c.Attach(cryptodash.RefreshStatus{Status: cryptodash.StatusInProgress})
	cmd = c.Update(cmd())
	c.Update(cmd())
	assert.Equal(t, Failed, c.Outcome())
	assert.Equal(t, msgConnLost, c.Message())
	assert.Equal(t, 0, c.ActiveTimers())
}

func TestAttachTwiceKeepsOneTimer(t *testing.T) {
	api := &fakeAPI{statuses: []cryptodash.RefreshStatus{{Status: cryptodash.StatusInProgress}}}
	c, _ := newTestController(api)

	first := c.Attach(cryptodash.RefreshStatus{Status: cryptodash.StatusInProgress})
	second := c.Update(AttachMsg{Status: cryptodash.RefreshStatus{Status: cryptodash.StatusInProgress}})
	assert.Equal(t, 1, c.ActiveTimers())

	// the superseded tick does nothing
	assert.Nil(t, c.Update(first()))
	assert.Equal(t, 0, api.polls)

	next := c.Update(second())
	require.NotNil(t, next)
	c.Update(next())
	assert.Equal(t, 1, api.polls)
	assert.Equal(t, 1, c.ActiveTimers())
}

func TestAutoInitiateIgnoredWhileBusy(t *testing.T) {
	api := &fakeAPI{startMsg: "started"}
	c, _ := newTestController(api)

	c.Attach(cryptodash.RefreshStatus{Status: cryptodash.StatusInProgress})
	assert.Nil(t, c.Update(InitiateMsg{Auto: true}))
	assert.Equal(t, Polling, c.Phase())

	cmd := c.Update(InitiateMsg{})
	require.NotNil(t, cmd)
	assert.Equal(t, Starting, c.Phase())
	assert.Equal(t, 0, c.ActiveTimers())
}

func TestStaleExpiryKeepsNewMessage(t *testing.T) {
	api := &fakeAPI{startErr: errors.New("down")}
	c, rec := newTestController(api)

	c.Update(c.Initiate()())
	stale := rec.Last()

	api.startErr = nil
	api.startMsg = "started again"
	c.Update(c.Initiate()())

	c.Update(stale.Fire())
	assert.Equal(t, "started again", c.Message())
}

func TestStopCancelsTimers(t *testing.T) {
	api := &fakeAPI{statuses: []cryptodash.RefreshStatus{{Status: cryptodash.StatusInProgress}}}
	c, _ := newTestController(api)

	tick := c.Attach(cryptodash.RefreshStatus{Status: cryptodash.StatusInProgress})
	c.Stop()
	assert.Equal(t, 0, c.ActiveTimers())
	assert.Nil(t, c.Update(tick()))
	assert.Equal(t, 0, api.polls)
}

func TestCustomIntervals(t *testing.T) {
	rec := &ticker.Recorder{}
	c := NewController(context.Background(), &fakeAPI{}, zap.NewNop(),
		WithTicker(rec.Tick), WithPollInterval(2*time.Second), WithMessageTTL(time.Second))

	c.Attach(cryptodash.RefreshStatus{})
	assert.Equal(t, 2*time.Second, rec.Last().Delay)
}
