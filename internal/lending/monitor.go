// Package lending monitors the lending positions of a wallet: it fetches
// them, keeps a session history, and raises risk alerts.
package lending

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"cryptodash/internal/ticker"
	"cryptodash/pkg/cryptodash"
)

// DefaultAutoRefresh is the auto-refresh period.
const DefaultAutoRefresh = 60 * time.Second

const (
	msgWalletRequired = "Enter a wallet address."
	msgNoPositions    = "No lending positions found for this address."
	msgFetchFailed    = "Could not fetch lending positions."
)

// API returns the lending positions of a wallet.
type API interface {
	LendingPositions(ctx context.Context, wallet string) ([]cryptodash.LendingPosition, error)
}

type resultMsg struct {
	seq       int
	wallet    string
	positions []cryptodash.LendingPosition
	err       error
}

type autoTickMsg struct{ tag int }

// Monitor holds the lending view's state.
type Monitor struct {
	ctx      context.Context
	api      API
	tick     ticker.Func
	log      *zap.Logger
	interval time.Duration
	now      func() time.Time

	Notifier *Notifier
	History  *History

	wallet     string
	positions  []cryptodash.LendingPosition
	errText    string
	loading    bool
	lastUpdate time.Time
	seq        int

	auto      bool
	autoTag   int
	autoArmed bool
}

// Options tunes a Monitor.
type Options struct {
	AutoRefresh time.Duration
	HistorySize int
	Tick        ticker.Func
}

// NewMonitor creates a monitor alerting through notifier.
func NewMonitor(ctx context.Context, api API, notifier *Notifier, opts Options, log *zap.Logger) *Monitor {
	if opts.AutoRefresh <= 0 {
		opts.AutoRefresh = DefaultAutoRefresh
	}
	if opts.Tick == nil {
		opts.Tick = ticker.Real
	}
	return &Monitor{
		ctx:      ctx,
		api:      api,
		tick:     opts.Tick,
		log:      log,
		interval: opts.AutoRefresh,
		now:      time.Now,
		Notifier: notifier,
		History:  NewHistory(opts.HistorySize),
	}
}

func (m *Monitor) Wallet() string                          { return m.wallet }
func (m *Monitor) Positions() []cryptodash.LendingPosition { return m.positions }
func (m *Monitor) Error() string                           { return m.errText }
func (m *Monitor) Loading() bool                           { return m.loading }
func (m *Monitor) LastUpdate() time.Time                   { return m.lastUpdate }
func (m *Monitor) AutoRefresh() bool                       { return m.auto }
func (m *Monitor) Totals() Totals                          { return ComputeTotals(m.positions) }

// Fetch loads the positions of wallet. An empty address is rejected
// without a request.
func (m *Monitor) Fetch(wallet string) tea.Cmd {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		m.errText = msgWalletRequired
		return nil
	}
	m.wallet = wallet
	m.loading = true
	m.errText = ""
	m.seq++

	seq, ctx, api := m.seq, m.ctx, m.api
	fetch := func() tea.Msg {
		positions, err := api.LendingPositions(ctx, wallet)
		return resultMsg{seq: seq, wallet: wallet, positions: positions, err: err}
	}
	if m.auto && !m.autoArmed {
		return tea.Batch(fetch, m.armAuto())
	}
	return fetch
}

// SetAutoRefresh turns periodic fetching on or off. Only one timer is ever
// live; turning it off retires it.
func (m *Monitor) SetAutoRefresh(on bool) tea.Cmd {
	m.autoTag++
	m.autoArmed = false
	m.auto = on
	if !on || m.wallet == "" {
		return nil
	}
	return m.armAuto()
}

// ToggleAutoRefresh flips SetAutoRefresh.
func (m *Monitor) ToggleAutoRefresh() tea.Cmd {
	return m.SetAutoRefresh(!m.auto)
}

// Stop retires the auto-refresh timer and any in-flight fetch.
func (m *Monitor) Stop() {
	m.autoTag++
	m.autoArmed = false
	m.seq++
	m.loading = false
}

// Update handles fetch results, auto-refresh ticks and notifier messages.
func (m *Monitor) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case resultMsg:
		if msg.seq != m.seq {
			return nil
		}
		m.loading = false
		if msg.err != nil {
			m.errText = cryptodash.DetailOrDefault(msg.err, msgFetchFailed)
			m.log.Warn("fetching lending positions", zap.String("wallet", msg.wallet), zap.Error(msg.err))
			return nil
		}
		m.positions = msg.positions
		if len(msg.positions) == 0 {
			m.errText = msgNoPositions
		}
		m.lastUpdate = m.now()
		m.History.Add(Sample{Time: m.lastUpdate, Totals: ComputeTotals(msg.positions)})
		return m.Notifier.Check(msg.positions)

	case autoTickMsg:
		if !m.auto || msg.tag != m.autoTag {
			return nil
		}
		m.autoArmed = false
		return m.Fetch(m.wallet)

	default:
		return m.Notifier.Update(msg)
	}
}

func (m *Monitor) armAuto() tea.Cmd {
	m.autoArmed = true
	tag := m.autoTag
	return m.tick(m.interval, func(time.Time) tea.Msg { return autoTickMsg{tag: tag} })
}

var csvHeader = []string{"Timestamp", "Collateral", "Collateral Value", "Borrowed", "Borrow Value", "LTV", "Health Factor", "Risk Level"}

// ExportCSV writes the current positions as CSV.
func (m *Monitor) ExportCSV(w io.Writer) error {
	if len(m.positions) == 0 {
		return errors.New("no positions to export")
	}
	stamp := ""
	if !m.lastUpdate.IsZero() {
		stamp = m.lastUpdate.UTC().Format(time.RFC3339)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, p := range m.positions {
		row := []string{
			stamp,
			p.Collateral,
			strconv.FormatFloat(p.CollateralValue, 'f', 2, 64),
			p.Borrowed,
			strconv.FormatFloat(p.BorrowValue, 'f', 2, 64),
			strconv.FormatFloat(p.Ratio, 'f', 2, 64),
			strconv.FormatFloat(p.HealthFactor, 'f', 3, 64),
			p.RiskLevel,
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "writing csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}
