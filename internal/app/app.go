package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/inbox-triage/internal/approval"
	"github.com/nhle/inbox-triage/internal/keys"
	"github.com/nhle/inbox-triage/internal/model"
	appsync "github.com/nhle/inbox-triage/internal/sync"
	"github.com/nhle/inbox-triage/internal/theme"
	"github.com/nhle/inbox-triage/internal/ui"
	"github.com/nhle/inbox-triage/internal/ui/approvals"
	"github.com/nhle/inbox-triage/internal/ui/detail"
	helpview "github.com/nhle/inbox-triage/internal/ui/help"
)

// decisionTimeout bounds one approve or reject, including the SMTP send.
const decisionTimeout = time.Minute

// Decider reads and decides approval requests.
type Decider interface {
	List(ctx context.Context) ([]*model.ApprovalRequest, approval.Stats, error)
	Approve(ctx context.Context, id string, channel model.DecisionChannel) (*model.ApprovalRequest, error)
	Reject(ctx context.Context, id, reason string, channel model.DecisionChannel) (*model.ApprovalRequest, error)
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewHelp
	ViewReject
)

// decidedMsg carries the outcome of an approve or reject.
type decidedMsg struct {
	action ui.Action
	req    *model.ApprovalRequest
	err    error
}

// Model is the root Bubble Tea model of the watch screen.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	decider      Decider
	poller       *appsync.Poller
	interval     time.Duration
	keys         *keys.KeyMap
	list         approvals.Model
	detail       detail.Model
	helpView     helpview.Model
	reason       textinput.Model
	spinner      spinner.Model
	rejecting    string
	busy         bool
	ready        bool
	lastPoll     time.Time
	pollError    string
	flash        string
	flashIsError bool
}

// New creates the root model. The poller is started by Init and stopped on
// quit.
func New(d Decider, p *appsync.Poller, interval time.Duration) Model {
	k := keys.DefaultKeyMap()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	ti := textinput.New()
	ti.Placeholder = approval.DefaultRejectReason
	ti.Prompt = "reason> "
	ti.CharLimit = 500

	return Model{
		currentView: ViewList,
		decider:     d,
		poller:      p,
		interval:    interval,
		keys:        k,
		list:        approvals.New(k, 80, 24),
		detail:      detail.New(k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		reason:      ti,
		spinner:     sp,
		busy:        true,
	}
}

// Init loads the store and starts polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.load(),
		m.poller.Start(m.interval),
		m.spinner.Tick,
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.list.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.reason.Width = max(w-12, 10)
		return m, nil

	case appsync.ResultMsg:
		m.busy = false
		m.lastPoll = msg.At
		switch {
		case msg.AuthError:
			m.pollError = "mail login rejected: " + msg.Error.Error()
		case msg.Error != nil:
			m.pollError = fmt.Sprintf("%s: %v", msg.Job, msg.Error)
		default:
			m.pollError = ""
		}
		return m, tea.Batch(m.load(), m.poller.WaitForNextResult())

	case approvals.LoadedMsg:
		if msg.Err != nil {
			m.setFlash(msg.Err.Error(), true)
			return m, nil
		}
		m.list, _ = m.list.Update(msg)
		return m, nil

	case approvals.SelectedMsg:
		m.detail.SetRequest(msg.Request)
		m.previousView = m.currentView
		m.currentView = ViewDetail
		return m, nil

	case ui.BackMsg:
		m.currentView = ViewList
		return m, nil

	case ui.ActionMsg:
		if m.busy {
			return m, nil
		}
		if msg.Action == ui.ActionReject {
			m.rejecting = msg.RequestID
			m.previousView = m.currentView
			m.currentView = ViewReject
			m.reason.SetValue("")
			return m, m.reason.Focus()
		}
		m.busy = true
		return m, tea.Batch(m.approve(msg.RequestID), m.spinner.Tick)

	case decidedMsg:
		m.busy = false
		if msg.err != nil {
			m.setFlash(msg.err.Error(), true)
			return m, m.load()
		}
		if msg.action == ui.ActionApprove {
			m.setFlash(fmt.Sprintf("%s approved and sent to %s", msg.req.ID, msg.req.FinalRecipient.Email), false)
		} else {
			m.setFlash(fmt.Sprintf("%s rejected", msg.req.ID), false)
		}
		m.currentView = ViewList
		return m, m.load()

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateActiveView(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.poller.Stop()
		return m, tea.Quit
	}

	if m.currentView == ViewReject {
		switch msg.Type {
		case tea.KeyEnter:
			id, reason := m.rejecting, strings.TrimSpace(m.reason.Value())
			m.reason.Blur()
			m.rejecting = ""
			m.currentView = m.previousView
			m.busy = true
			return m, tea.Batch(m.reject(id, reason), m.spinner.Tick)
		case tea.KeyEsc:
			m.reason.Blur()
			m.rejecting = ""
			m.currentView = m.previousView
			return m, nil
		}
		var cmd tea.Cmd
		m.reason, cmd = m.reason.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.poller.Stop()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
		} else {
			m.previousView = m.currentView
			m.currentView = ViewHelp
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.poller.Refresh()
		return m, m.spinner.Tick

	case m.currentView == ViewHelp && key.Matches(msg, m.keys.Back):
		m.currentView = m.previousView
		return m, nil
	}

	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.list, cmd = m.list.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	headerTitle := "Inbox Triage"
	if n := m.list.Stats().Pending; n > 0 {
		headerTitle = fmt.Sprintf("Inbox Triage [%d pending]", n)
	}
	header := m.layout.RenderHeader(headerTitle, m.pollStatus())
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.list.View()
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewReject:
		title := theme.WarnStyle.Render("Reject " + m.rejecting)
		return lipgloss.JoinVertical(lipgloss.Left, title, "", m.reason.View())
	default:
		return ""
	}
}

// pollStatus returns a short string describing the poller state.
func (m Model) pollStatus() string {
	if m.busy {
		return m.spinner.View() + " working"
	}
	if m.pollError != "" {
		return "⚠ " + m.pollError
	}
	if m.lastPoll.IsZero() {
		return "waiting"
	}
	return "polled " + m.lastPoll.Local().Format("15:04:05")
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.flash != "" && m.currentView == ViewList {
		if m.flashIsError {
			return theme.ErrorStyle.Render(m.flash)
		}
		return theme.SuccessStyle.Render(m.flash)
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewDetail:
		return "esc back | a approve & send | r reject | j/k scroll"
	case ViewReject:
		return "enter reject | esc cancel"
	default:
		return "q quit | ? help | enter open | a approve | r reject | R poll now"
	}
}

func (m *Model) setFlash(text string, isError bool) {
	m.flash = text
	m.flashIsError = isError
}

// load returns a command that reads the store.
func (m Model) load() tea.Cmd {
	d := m.decider
	return func() tea.Msg {
		pending, stats, err := d.List(context.Background())
		return approvals.LoadedMsg{Pending: pending, Stats: stats, Err: err}
	}
}

func (m Model) approve(id string) tea.Cmd {
	d := m.decider
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), decisionTimeout)
		defer cancel()
		req, err := d.Approve(ctx, id, model.ChannelTUI)
		return decidedMsg{action: ui.ActionApprove, req: req, err: err}
	}
}

func (m Model) reject(id, reason string) tea.Cmd {
	d := m.decider
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), decisionTimeout)
		defer cancel()
		req, err := d.Reject(ctx, id, reason, model.ChannelTUI)
		return decidedMsg{action: ui.ActionReject, req: req, err: err}
	}
}
