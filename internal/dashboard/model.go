// Package dashboard is the terminal UI: a bubbletea model wiring the search,
// price, refresh and lending components together, plus formatting helpers.
package dashboard

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"cryptodash/internal/config"
	"cryptodash/internal/lending"
	"cryptodash/internal/quote"
	"cryptodash/internal/refresh"
	"cryptodash/internal/startup"
	"cryptodash/internal/suggest"
	"cryptodash/internal/ticker"
	"cryptodash/pkg/cryptodash"
)

// Page is the active screen.
type Page int

const (
	PageHome Page = iota
	PagePrice
	PageLending
)

func (p Page) String() string {
	switch p {
	case PagePrice:
		return "Price checker"
	case PageLending:
		return "Lending monitor"
	default:
		return "Home"
	}
}

// API is everything the dashboard asks of the server.
type API interface {
	suggest.Searcher
	quote.Pricer
	refresh.API
	lending.API
}

// Deps are the collaborators of a Model.
type Deps struct {
	API       API
	Config    config.Client
	Sink      lending.Sink
	Banner    *lending.BannerSink
	Logger    *zap.Logger
	Tick      ticker.Func
	ExportDir string
}

// Messages.
type alertExpireMsg struct{ tag int }

type exportedMsg struct {
	path string
	err  error
}

// Model is the root bubbletea model.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	tick   ticker.Func
	cfg    config.Client

	page          Page
	viewport      viewport.Model
	ready         bool
	width, height int

	search  textinput.Model
	wallet  textinput.Model
	spinner spinner.Model
	cursor  int

	suggest *suggest.Fetcher
	quote   *quote.Fetcher
	refresh *refresh.Controller
	startup *startup.Reconciler
	lending *lending.Monitor
	banner  *lending.BannerSink

	exportDir string
	notice    string
	alert     *lending.Notification
	alertTag  int
}

// New builds the root model. Requests issued by the model are bound to a
// context that is cancelled when the program quits.
func New(deps Deps) Model {
	ctx, cancel := context.WithCancel(context.Background())
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	tick := deps.Tick
	if tick == nil {
		tick = ticker.Real
	}
	cfg := deps.Config

	search := textinput.New()
	search.Placeholder = "Search a pair, e.g. BTC"
	search.Prompt = "> "
	search.CharLimit = 32

	wallet := textinput.New()
	wallet.Placeholder = "Solana wallet address (or DEMO)"
	wallet.Prompt = "> "
	wallet.CharLimit = 64

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	notifier := lending.NewNotifier(ctx, deps.Sink, cfg.AlertCooldown, log.Named("notifier"))

	return Model{
		ctx:       ctx,
		cancel:    cancel,
		logger:    log,
		tick:      tick,
		cfg:       cfg,
		search:    search,
		wallet:    wallet,
		spinner:   sp,
		suggest:   suggest.New(ctx, deps.API, cfg.Debounce, tick, log.Named("suggest")),
		quote:     quote.New(ctx, deps.API, log.Named("quote")),
		refresh:   refresh.NewController(ctx, deps.API, log.Named("refresh"), refresh.WithTicker(tick), refresh.WithPollInterval(cfg.PollInterval), refresh.WithMessageTTL(cfg.BannerTTL)),
		startup:   startup.New(ctx, deps.API, cfg.ProbeInterval, tick, log.Named("startup")),
		lending:   lending.NewMonitor(ctx, deps.API, notifier, lending.Options{AutoRefresh: cfg.LendingRefresh, HistorySize: cfg.HistorySize, Tick: tick}, log.Named("lending")),
		banner:    deps.Banner,
		exportDir: deps.ExportDir,
	}
}

// Page returns the active screen.
func (m Model) Page() Page { return m.page }

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.startup.Start(), m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		cmd, quit := m.handleKey(msg)
		if quit {
			m.shutdown()
			return m, tea.Quit
		}
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - 3 // header, refresh line, footer
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case lending.SentMsg:
		if n := len(msg.Sent); n > 0 {
			last := msg.Sent[n-1]
			m.alert = &last
			m.alertTag++
			tag := m.alertTag
			cmds = append(cmds, m.tick(m.cfg.BannerTTL, func(time.Time) tea.Msg { return alertExpireMsg{tag: tag} }))
		}

	case alertExpireMsg:
		if msg.tag == m.alertTag {
			m.alert = nil
		}

	case exportedMsg:
		if msg.err != nil {
			m.notice = "Export failed: " + msg.err.Error()
			m.logger.Warn("exporting positions", zap.Error(msg.err))
		} else {
			m.notice = "Exported to " + msg.path
		}
	}

	if _, isKey := msg.(tea.KeyMsg); !isKey {
		var c1, c2 tea.Cmd
		m.search, c1 = m.search.Update(msg)
		m.wallet, c2 = m.wallet.Update(msg)
		cmds = append(cmds, c1, c2)
	}

	cmds = append(cmds,
		m.suggest.Update(msg),
		m.quote.Update(msg),
		m.refresh.Update(msg),
		m.startup.Update(msg),
		m.lending.Update(msg),
	)
	if m.cursor >= len(m.suggest.Suggestions()) {
		m.cursor = 0
	}

	if m.ready {
		m.viewport.SetContent(m.renderContent())
	}
	return m, tea.Batch(cmds...)
}

// handleKey returns the command for a key press and whether to quit.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		return nil, true
	case "esc":
		m.setPage(PageHome)
		return nil, false
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd, false
	case "ctrl+r":
		return m.refresh.Initiate(), false
	}

	switch m.page {
	case PageHome:
		return m.homeKey(msg)
	case PagePrice:
		return m.priceKey(msg), false
	case PageLending:
		return m.lendingKey(msg), false
	}
	return nil, false
}

func (m *Model) homeKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "q":
		return nil, true
	case "1", "p":
		return m.setPage(PagePrice), false
	case "2", "l":
		return m.setPage(PageLending), false
	case "r":
		return m.refresh.Initiate(), false
	}
	return nil, false
}

func (m *Model) priceKey(msg tea.KeyMsg) tea.Cmd {
	items := m.suggest.Suggestions()
	switch msg.String() {
	case "up":
		if m.cursor > 0 {
			m.cursor--
		}
		return nil
	case "down":
		if m.cursor < len(items)-1 {
			m.cursor++
		}
		return nil
	case "enter":
		if len(items) == 0 {
			return nil
		}
		return m.selectSuggestion(items[m.cursor])
	case "ctrl+p":
		return m.quote.Reselect()
	}

	before := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if after := m.search.Value(); after != before {
		m.cursor = 0
		return tea.Batch(cmd, m.suggest.SetQuery(after))
	}
	return cmd
}

func (m *Model) selectSuggestion(s cryptodash.Suggestion) tea.Cmd {
	m.search.SetValue("")
	m.suggest.Clear()
	m.cursor = 0
	return m.quote.Select(s)
}

func (m *Model) lendingKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "enter":
		m.notice = ""
		return m.lending.Fetch(m.wallet.Value())
	case "ctrl+d":
		m.wallet.SetValue(cryptodash.DemoWallet)
		return m.lending.Fetch(cryptodash.DemoWallet)
	case "ctrl+n":
		return m.lending.Notifier.Toggle()
	case "ctrl+a":
		return m.lending.ToggleAutoRefresh()
	case "ctrl+e":
		return m.exportPositions()
	}
	var cmd tea.Cmd
	m.wallet, cmd = m.wallet.Update(msg)
	return cmd
}

func (m *Model) setPage(p Page) tea.Cmd {
	m.page = p
	m.search.Blur()
	m.wallet.Blur()
	switch p {
	case PagePrice:
		return m.search.Focus()
	case PageLending:
		return m.wallet.Focus()
	}
	return nil
}

// exportPositions renders the CSV on the loop and writes it off the loop.
func (m *Model) exportPositions() tea.Cmd {
	var buf bytes.Buffer
	if err := m.lending.ExportCSV(&buf); err != nil {
		m.notice = err.Error()
		return nil
	}
	path := filepath.Join(m.exportDir, fmt.Sprintf("lending_positions_%d.csv", time.Now().Unix()))
	data := buf.Bytes()
	return func() tea.Msg {
		return exportedMsg{path: path, err: os.WriteFile(path, data, 0o644)}
	}
}

func (m *Model) shutdown() {
	m.refresh.Stop()
	m.startup.Stop()
	m.lending.Stop()
	m.suggest.Cancel()
	m.cancel()
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	headerText := fmt.Sprintf(" cryptodash    %s ", m.page)
	if m.lending.AutoRefresh() {
		headerText += "   auto-refresh on "
	}
	if m.lending.Notifier.Enabled() {
		headerText += "   alerts on "
	}
	header := headerStyle.Render(padOrTrunc(headerText, m.width))

	footer := footerStyle.Render(padOrTrunc(m.footerText(), m.width))
	return header + "\n" + m.refreshLine() + "\n" + m.viewport.View() + "\n" + footer
}

func (m Model) footerText() string {
	switch m.page {
	case PagePrice:
		return " type to search  up/dn choose  enter select  ctrl+p re-fetch  ctrl+r refresh data  esc back"
	case PageLending:
		return " enter fetch  ctrl+d demo  ctrl+a auto  ctrl+n alerts  ctrl+e export  esc back"
	default:
		return " 1 price checker  2 lending monitor  r refresh data  q quit"
	}
}

// refreshLine renders the refresh job state, or the latest alert while one
// is showing.
func (m Model) refreshLine() string {
	if m.alert != nil {
		style := alertStyle
		if m.alert.Urgency == lending.UrgencyCritical {
			style = criticalStyle
		}
		return style.Render(padOrTrunc(" "+m.alert.Title+": "+m.alert.Body, m.width))
	}

	r := m.refresh
	switch r.Phase() {
	case refresh.Starting:
		return " " + m.spinner.View() + " " + r.Message()
	case refresh.Polling:
		p := r.Progress()
		parts := []string{" " + m.spinner.View()}
		if r.Message() != "" {
			parts = append(parts, r.Message())
		}
		if p.Stage != "" && p.Stage != r.Message() {
			parts = append(parts, p.Stage)
		}
		if p.Total > 0 {
			parts = append(parts, FormatProgress(p.Current, p.Total))
		}
		return strings.Join(parts, "  ")
	case refresh.Settled:
		if r.Message() == "" {
			return ""
		}
		if r.Outcome() == refresh.Complete {
			return okStyle.Render(" " + r.Message())
		}
		return errorStyle.Render(" " + r.Message())
	}
	if m.startup.Active() && m.startup.Failures() > 0 {
		return dimStyle.Render(fmt.Sprintf(" waiting for server... (%d attempts)", m.startup.Failures()))
	}
	return ""
}

func (m Model) renderContent() string {
	var b strings.Builder
	switch m.page {
	case PagePrice:
		m.renderPrice(&b)
	case PageLending:
		m.renderLending(&b)
	default:
		m.renderHome(&b)
	}
	return b.String()
}

func (m Model) renderHome(b *strings.Builder) {
	b.WriteString("\n")
	b.WriteString(titleStyle.Render("  Crypto dashboard"))
	b.WriteString("\n\n")
	b.WriteString("  1  Price checker    search the pair catalog and fetch a spot price\n")
	b.WriteString("  2  Lending monitor  follow lending positions and risk alerts\n\n")
	b.WriteString(dimStyle.Render("  server: " + m.cfg.APIURL))
	b.WriteString("\n")
}

func (m Model) renderPrice(b *strings.Builder) {
	b.WriteString("\n  ")
	b.WriteString(m.search.View())
	if m.suggest.Loading() {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n")

	for i, s := range m.suggest.Suggestions() {
		label := fmt.Sprintf(" %-10s %s ", s.Symbol, s.Name)
		if i == m.cursor {
			label = cursorStyle.Render(label)
		}
		b.WriteString("  " + label)
		if s.Tradable {
			b.WriteString(tradableStyle.Render(" binance"))
		}
		b.WriteString("\n")
	}

	sel := m.quote.Selected()
	if sel == nil {
		return
	}
	b.WriteString("\n  ")
	b.WriteString(symbolStyle.Render(sel.Symbol))
	b.WriteString(dimStyle.Render("  " + sel.Name))
	b.WriteString("\n  ")
	switch {
	case m.quote.Loading():
		b.WriteString(m.spinner.View() + " fetching price...")
	case m.quote.Error() != "":
		b.WriteString(errorStyle.Render(m.quote.Error()))
	case m.quote.Quote() != nil:
		q := m.quote.Quote()
		b.WriteString(priceStyle.Render("$" + FormatPrice(&q.Price)))
		if q.Source != "" {
			b.WriteString(dimStyle.Render("  via " + q.Source))
		}
	}
	b.WriteString("\n")
}

func (m Model) renderLending(b *strings.Builder) {
	mon := m.lending
	b.WriteString("\n  ")
	b.WriteString(m.wallet.View())
	if mon.Loading() {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n")
	if mon.Error() != "" {
		b.WriteString("  " + errorStyle.Render(mon.Error()) + "\n")
	}
	if m.notice != "" {
		b.WriteString("  " + dimStyle.Render(m.notice) + "\n")
	}

	positions := mon.Positions()
	if len(positions) > 0 {
		t := mon.Totals()
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("  supplied %s   borrowed %s   avg health %s",
			FormatUSD(t.Supply), FormatUSD(t.Borrow), FormatHealthFactor(t.AvgHealthFactor)))
		if !mon.LastUpdate().IsZero() {
			b.WriteString(dimStyle.Render("   wallet " + shortWallet(mon.Wallet()) + " updated " + mon.LastUpdate().Format("15:04:05")))
		}
		b.WriteString("\n\n")
		b.WriteString(colHeader.Render(fmt.Sprintf("  %-16s %12s %12s %9s %8s  %s", "PAIR", "COLLATERAL", "BORROWED", "LTV", "HEALTH", "RISK")))
		b.WriteString("\n")
		for _, p := range positions {
			b.WriteString(fmt.Sprintf("  %-16s %12s %12s %9s %8s  ",
				p.Collateral+"/"+p.Borrowed,
				FormatUSD(p.CollateralValue),
				FormatUSD(p.BorrowValue),
				FormatPercent(p.Ratio),
				FormatHealthFactor(p.HealthFactor)))
			b.WriteString(riskStyle(p.RiskLevel).Render(p.RiskLevel))
			b.WriteString("\n")
		}
	}

	if samples := mon.History.Samples(); len(samples) > 0 {
		b.WriteString("\n")
		b.WriteString(colHeader.Render(fmt.Sprintf("  history (%d samples)", len(samples))))
		b.WriteString("\n")
		start := len(samples) - 5
		if start < 0 {
			start = 0
		}
		for _, s := range samples[start:] {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  %s  supplied %s  borrowed %s  health %s",
				s.Time.Format("15:04:05"), FormatUSD(s.Supply), FormatUSD(s.Borrow), FormatHealthFactor(s.AvgHealthFactor))))
			b.WriteString("\n")
		}
	}

	if m.banner != nil {
		if recent := m.banner.Recent(); len(recent) > 0 {
			b.WriteString("\n")
			b.WriteString(colHeader.Render("  recent alerts"))
			b.WriteString("\n")
			for i := len(recent) - 1; i >= 0; i-- {
				b.WriteString("  " + recent[i].Title + ": " + recent[i].Body + "\n")
			}
		}
	}
}

// shortWallet abbreviates long addresses as first4...last4.
func shortWallet(w string) string {
	if len(w) <= 12 {
		return w
	}
	return w[:4] + "..." + w[len(w)-4:]
}
