package approvals

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/inbox-triage/internal/approval"
	"github.com/nhle/inbox-triage/internal/keys"
	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/theme"
	"github.com/nhle/inbox-triage/internal/ui"
)

// LoadedMsg carries a fresh read of the approval store.
type LoadedMsg struct {
	Pending []*model.ApprovalRequest
	Stats   approval.Stats
	Err     error
}

// SelectedMsg is sent when the user opens a request.
type SelectedMsg struct {
	Request *model.ApprovalRequest
}

// Model is the table of pending approval requests.
type Model struct {
	table    table.Model
	keys     *keys.KeyMap
	requests []*model.ApprovalRequest
	stats    approval.Stats
	now      func() time.Time
	width    int
	height   int
}

// New creates a new pending-request list.
func New(k *keys.KeyMap, width, height int) Model {
	t := table.New(
		table.WithColumns(columns(width)),
		table.WithFocused(true),
		table.WithHeight(max(height-2, 1)),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(theme.ColorBorder).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(theme.ColorWhite).
		Background(theme.ColorBlue).
		Bold(false)
	t.SetStyles(styles)

	return Model{
		table:  t,
		keys:   k,
		now:    time.Now,
		width:  width,
		height: height,
	}
}

// columns sizes the subject column to whatever the fixed ones leave.
func columns(width int) []table.Column {
	const fixed = 14 + 28 + 10
	subject := max(width-fixed-8, 20)
	return []table.Column{
		{Title: "ID", Width: 14},
		{Title: "Subject", Width: subject},
		{Title: "To", Width: 28},
		{Title: "Age", Width: 10},
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		if msg.Err == nil {
			m.SetRequests(msg.Pending, msg.Stats)
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Select):
			if req := m.Selected(); req != nil {
				return m, func() tea.Msg { return SelectedMsg{Request: req} }
			}
			return m, nil

		case key.Matches(msg, m.keys.Approve):
			return m, m.action(ui.ActionApprove)

		case key.Matches(msg, m.keys.Reject):
			return m, m.action(ui.ActionReject)
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) action(action ui.Action) tea.Cmd {
	req := m.Selected()
	if req == nil {
		return nil
	}
	return func() tea.Msg {
		return ui.ActionMsg{Action: action, RequestID: req.ID}
	}
}

// View renders the list view.
func (m Model) View() string {
	summary := theme.DimStyle.Render(fmt.Sprintf(
		"%d pending · %d approved · %d rejected · %d total",
		m.stats.Pending, m.stats.Approved, m.stats.Rejected, m.stats.Total,
	))

	if len(m.requests) == 0 {
		empty := lipgloss.NewStyle().
			Width(m.width).
			Height(max(m.height-2, 1)).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No pending approvals")
		return lipgloss.JoinVertical(lipgloss.Left, summary, empty)
	}

	return lipgloss.JoinVertical(lipgloss.Left, summary, m.table.View())
}

// SetRequests replaces the rows, keeping the cursor in range.
func (m *Model) SetRequests(pending []*model.ApprovalRequest, stats approval.Stats) {
	m.requests = pending
	m.stats = stats

	now := m.now()
	rows := make([]table.Row, 0, len(pending))
	for _, r := range pending {
		rows = append(rows, table.Row{
			r.ID,
			r.Draft.Subject,
			r.FinalRecipient.Email,
			age(now.Sub(r.CreatedAt)),
		})
	}
	m.table.SetRows(rows)

	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

// Selected returns the request under the cursor, or nil.
func (m Model) Selected() *model.ApprovalRequest {
	c := m.table.Cursor()
	if c < 0 || c >= len(m.requests) {
		return nil
	}
	return m.requests[c]
}

// Stats returns the counts from the last load.
func (m Model) Stats() approval.Stats {
	return m.stats
}

// SetSize updates the list view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.table.SetColumns(columns(width))
	m.table.SetWidth(width)
	m.table.SetHeight(max(height-2, 1))
}

// age formats a duration as a compact "3m", "5h", "2d".
func age(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
