package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/wintools/pkg/wintools/logging"
	"github.com/jamesainslie/wintools/pkg/wintools/metrics"
	"github.com/jamesainslie/wintools/pkg/wintools/session"
	"github.com/jamesainslie/wintools/pkg/wintools/settings"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// Trigger labels sessions started from the dashboard in history.
const Trigger = "dashboard"

// Options configures the dashboard.
type Options struct {
	// Title is shown in the header and set as the terminal window title,
	// which is how a second launch finds the running instance.
	Title string

	Registry *session.Registry

	// Snapshots delivers samples from the owner's monitor.
	Snapshots <-chan metrics.Snapshot

	// Activations fires when another launch asks this instance to show.
	Activations <-chan struct{}

	// Settings holds the widget toggle. Nil disables the widget view.
	Settings *settings.Store

	// Interval is the sampling cadence, used for the live indicator.
	Interval time.Duration
}

// sessionKeys maps action keys to kinds, in display order.
var sessionKeys = []struct {
	key  string
	kind types.Kind
}{
	{"m", types.KindMemory},
	{"t", types.KindTemp},
	{"u", types.KindUpdateCache},
	{"d", types.KindDNS},
	{"r", types.KindRecycleBin},
}

// board is written by session callbacks. The dispatcher runs them from
// Update, on the Bubble Tea goroutine, so it needs no lock.
type board struct {
	progress  map[types.Kind]string
	widget    settings.Widget
	notice    string
	noticeErr bool
	freed     int64
}

func (b *board) setNotice(msg string, isErr bool) {
	b.notice = msg
	b.noticeErr = isErr
}

func (b *board) finish(rec types.SessionRecord) {
	delete(b.progress, rec.Kind)
	if rec.State == types.StateCompleted {
		b.freed += rec.BytesFreed
		b.setNotice(rec.Summary, false)
		return
	}
	b.setNotice(rec.Summary, true)
}

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	opts  Options
	ctx   context.Context
	board *board
	now   func() time.Time

	snap    metrics.Snapshot
	spinner spinner.Model
	logs    *LogViewerState
	logSub  <-chan logging.Entry

	// Confirmation dialog state for emptying the recycle bin.
	confirm        bool
	confirmFocused int // 0 = cancel, 1 = empty

	width  int
	height int
}

type (
	snapshotMsg metrics.Snapshot
	dispatchMsg struct{}
	activateMsg struct{}
	logMsg      logging.Entry
)

// NewModel creates the dashboard. Sessions it starts inherit ctx.
func NewModel(ctx context.Context, opts Options) Model {
	if opts.Title == "" {
		opts.Title = "WinTools"
	}
	if opts.Interval <= 0 {
		opts.Interval = metrics.DashboardInterval
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	b := &board{progress: make(map[types.Kind]string)}
	if opts.Settings != nil {
		b.widget = opts.Settings.Load()
	}

	return Model{
		opts:    opts,
		ctx:     ctx,
		board:   b,
		now:     time.Now,
		spinner: s,
		logs:    NewLogViewerState(),
		width:   80,
		height:  24,
	}
}

// Init starts the listeners.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tea.SetWindowTitle(m.opts.Title),
		m.spinner.Tick,
		m.waitSnapshot(),
		m.waitDispatch(),
		m.waitActivate(),
		m.waitLog(),
	)
}

func (m Model) waitSnapshot() tea.Cmd {
	ch, ctx := m.opts.Snapshots, m.ctx
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case s, ok := <-ch:
			if !ok {
				return nil
			}
			return snapshotMsg(s)
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) waitDispatch() tea.Cmd {
	if m.opts.Registry == nil {
		return nil
	}
	ready, ctx := m.opts.Registry.Dispatcher().Ready(), m.ctx
	return func() tea.Msg {
		select {
		case <-ready:
			return dispatchMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) waitActivate() tea.Cmd {
	ch, ctx := m.opts.Activations, m.ctx
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			return activateMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) waitLog() tea.Cmd {
	ch, ctx := m.logSub, m.ctx
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			return logMsg(e)
		case <-ctx.Done():
			return nil
		}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case snapshotMsg:
		m.snap = metrics.Snapshot(msg)
		return m, m.waitSnapshot()

	case dispatchMsg:
		m.opts.Registry.Dispatcher().Drain()
		return m, m.waitDispatch()

	case activateMsg:
		m.board.setNotice("Brought to front by another launch", false)
		return m, m.waitActivate()

	case logMsg:
		m.logs.AddEntry(logging.Entry(msg), m.logRows()-2)
		return m, m.waitLog()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleKey handles keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	if m.confirm {
		switch key {
		case "q", "esc", "n":
			m.confirm = false
		case "left", "h":
			m.confirmFocused = 0
		case "right", "l":
			m.confirmFocused = 1
		case "tab":
			m.confirmFocused = (m.confirmFocused + 1) % 2
		case "enter":
			m.confirm = false
			if m.confirmFocused == 1 {
				return m.start(types.KindRecycleBin)
			}
		case "y":
			m.confirm = false
			return m.start(types.KindRecycleBin)
		}
		return m, nil
	}

	if m.logs.Open {
		switch key {
		case "1", "2", "3", "4":
			m.logs.SetFilterLevel(logging.Level(key[0] - '1'))
			return m, nil
		case "up", "k":
			m.logs.ScrollUp()
			return m, nil
		case "down", "j":
			m.logs.ScrollDown(m.logRows() - 2)
			return m, nil
		case "esc":
			m.logs.Toggle()
			return m, nil
		}
	}

	switch key {
	case "q", "esc":
		return m, tea.Quit
	case "l":
		m.logs.Toggle()
	case "w":
		m.toggleWidget()
	case "r":
		if !m.board.widget.Enabled {
			m.confirm = true
			m.confirmFocused = 0
		}
	default:
		for _, sk := range sessionKeys {
			if sk.key == key && !m.board.widget.Enabled {
				return m.start(sk.kind)
			}
		}
	}
	return m, nil
}

// start launches a session; its callbacks update the board.
func (m Model) start(kind types.Kind) (tea.Model, tea.Cmd) {
	b := m.board
	_, err := m.opts.Registry.Start(m.ctx, kind, Trigger,
		func(p types.Progress) { b.progress[p.Kind] = progressText(p) },
		b.finish)
	switch {
	case errors.Is(err, session.ErrBusy):
		b.setNotice(kind.Title()+" is already running", true)
	case err != nil:
		b.setNotice(err.Error(), true)
	default:
		b.progress[kind] = "starting"
		b.setNotice("", false)
	}
	return m, nil
}

func (m Model) toggleWidget() {
	if m.opts.Settings == nil {
		m.board.setNotice("Widget settings are unavailable", true)
		return
	}
	w, err := m.opts.Settings.Update(func(w *settings.Widget) { w.Enabled = !w.Enabled })
	if err != nil {
		m.board.setNotice(fmt.Sprintf("Saving widget settings: %v", err), true)
		return
	}
	m.board.widget = w
}

func progressText(p types.Progress) string {
	switch {
	case p.Sweep != nil:
		return fmt.Sprintf("%s removed, %s freed", humanize.Comma(int64(p.Sweep.ItemsRemoved)), types.FormatSize(p.Sweep.BytesFreed))
	case p.Total > 0:
		return fmt.Sprintf("%s (%d/%d)", p.Message, p.Done, p.Total)
	}
	return p.Message
}

// logRows is the height of the log pane.
func (m Model) logRows() int {
	return max(m.height/3, 5)
}

// View renders the dashboard, or the compact widget when it is enabled.
func (m Model) View() string {
	if m.board.widget.Enabled {
		return m.renderWidget()
	}
	view := m.renderDashboard()
	if m.confirm {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.renderConfirmDialog())
	}
	return view
}

func (m Model) renderDashboard() string {
	contentWidth := max(m.width-4, 40)
	barWidth := min(max(contentWidth-40, 10), 40)

	var b strings.Builder
	live := isLive(m.snap.TakenAt, m.now(), m.opts.Interval)
	b.WriteString(renderAppHeader(m.opts.Title, m.snap, m.board.freed, live))
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n\n")

	b.WriteString(m.renderGauges(barWidth))
	b.WriteString("\n")
	b.WriteString(titleStyle.Render("  Sessions"))
	b.WriteString("\n")
	b.WriteString(m.renderSessions(contentWidth))

	if m.board.notice != "" {
		b.WriteString("\n")
		style := successTextStyle
		if m.board.noticeErr {
			style = errorTextStyle
		}
		b.WriteString(style.Render("  " + truncate(m.board.notice, contentWidth-2)))
		b.WriteString("\n")
	}

	if m.logs.Open {
		b.WriteString("\n")
		b.WriteString(renderLogViewer(m.logs.Buffer.All(), m.logs.FilterLevel, m.logs.ScrollOffset, contentWidth, m.logRows()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n")
	b.WriteString(m.renderHelpBar())

	return outerBoxStyle.Width(m.width - 2).Render(b.String())
}

func (m Model) renderGauges(barWidth int) string {
	s := m.snap
	if s.TakenAt.IsZero() {
		return mutedTextStyle.Render("  Waiting for the first sample...") + "\n"
	}

	row := func(label string, pct float64, detail string) string {
		return fmt.Sprintf("  %s %s %s  %s\n",
			labelStyle.Render(label),
			gauge(pct, barWidth),
			valueStyle.Render(fmt.Sprintf("%5.1f%%", pct)),
			mutedTextStyle.Render(detail))
	}

	var b strings.Builder
	b.WriteString(row("CPU", s.CPUPercent, ""))
	b.WriteString(row("Memory", s.Memory.UsedPercent(), fmt.Sprintf("%s used, %s available",
		types.FormatSize(int64(s.Memory.Used)), types.FormatSize(int64(s.Memory.Available)))))
	b.WriteString(row("Disk", s.Disk.UsedPercent(), fmt.Sprintf("%s of %s",
		humanize.Bytes(s.Disk.Used), humanize.Bytes(s.Disk.Total))))
	b.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render("Processes"), valueStyle.Render(humanize.Comma(int64(s.Processes)))))
	return b.String()
}

func (m Model) renderSessions(width int) string {
	var b strings.Builder
	for _, sk := range sessionKeys {
		state := m.opts.Registry.State(sk.kind)
		name := lipgloss.NewStyle().Width(22).Render(sk.kind.Title())

		var status string
		switch {
		case state == types.StateRunning:
			detail := m.board.progress[sk.kind]
			if detail == "" {
				detail = "running"
			}
			status = m.spinner.View() + " " + warningTextStyle.Render(detail)
		default:
			status = m.lastStatus(sk.kind)
		}
		line := fmt.Sprintf("  %s %s %s", keyStyle.Render("["+sk.key+"]"), name, status)
		b.WriteString(truncateStyled(line, width))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) lastStatus(kind types.Kind) string {
	rec, ok := m.opts.Registry.Last(kind)
	if !ok {
		return mutedTextStyle.Render("idle")
	}
	ago := humanize.RelTime(rec.FinishedAt, m.now(), "ago", "from now")
	if rec.State == types.StateFailed {
		return errorTextStyle.Render("✗ "+rec.Summary) + mutedTextStyle.Render("  "+ago)
	}
	return successTextStyle.Render("✓ "+rec.Summary) + mutedTextStyle.Render("  "+ago)
}

// truncateStyled cuts a rendered line to width cells.
func truncateStyled(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}

func (m Model) renderHelpBar() string {
	hint := func(k, desc string) string {
		return keyStyle.Render("["+k+"]") + " " + keyDescStyle.Render(desc)
	}
	return "  " + strings.Join([]string{
		hint("m/t/u/d/r", "run"),
		hint("w", "widget"),
		hint("l", "logs"),
		hint("q", "quit"),
	}, "  ")
}

// renderWidget is the compact always-on view.
func (m Model) renderWidget() string {
	s := m.snap
	row := func(label string, pct float64) string {
		return fmt.Sprintf("%-5s %s %5.1f%%", label, gauge(pct, 12), pct)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.opts.Title))
	b.WriteString("\n")
	b.WriteString(row("CPU", s.CPUPercent) + "\n")
	b.WriteString(row("RAM", s.Memory.UsedPercent()) + "\n")
	b.WriteString(row("Disk", s.Disk.UsedPercent()) + "\n")
	if m.board.notice != "" {
		b.WriteString(mutedTextStyle.Render(truncate(m.board.notice, 28)) + "\n")
	}
	w := m.board.widget
	b.WriteString(mutedTextStyle.Render(fmt.Sprintf("at %g,%g  ", w.Left, w.Top)) +
		keyStyle.Render("[w]") + keyDescStyle.Render(" full  ") +
		keyStyle.Render("[q]") + keyDescStyle.Render(" quit"))
	return widgetBoxStyle.Render(b.String())
}

// renderConfirmDialog asks before emptying the recycle bin.
func (m Model) renderConfirmDialog() string {
	var b strings.Builder
	b.WriteString(dialogTitleStyle.Render("Empty Recycle Bin"))
	b.WriteString("\n\n")
	b.WriteString(dialogTextStyle.Render("Empty the recycle bin?"))
	b.WriteString("\n")
	b.WriteString(warningTextStyle.Render("Items are deleted permanently."))
	b.WriteString("\n\n")

	cancelBtn := inactiveButtonStyle.Render("Cancel")
	emptyBtn := inactiveButtonStyle.Render("Empty")
	if m.confirmFocused == 0 {
		cancelBtn = activeButtonStyle.Background(primaryColor).Render("Cancel")
	} else {
		emptyBtn = activeButtonStyle.Render("Empty")
	}
	b.WriteString(center(lipgloss.JoinHorizontal(lipgloss.Center, cancelBtn, "  ", emptyBtn), 46))

	return dialogBoxStyle.Render(b.String())
}

// Run shows the dashboard until the user quits or ctx is done.
func Run(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := logging.Subscribe()
	defer logging.Unsubscribe(sub)

	m := NewModel(ctx, opts)
	m.logSub = sub

	if opts.Settings != nil {
		d, b := opts.Registry.Dispatcher(), m.board
		log := logging.Get(logging.ComponentSettings)
		go func() {
			err := opts.Settings.Watch(ctx, func(w settings.Widget) {
				d.Post(func() { b.widget = w })
			})
			if err != nil {
				log.Warn("watching widget settings failed", "error", err)
			}
		}()
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil && errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
