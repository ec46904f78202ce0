package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/inbox-triage/internal/keys"
	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/theme"
	"github.com/nhle/inbox-triage/internal/ui"
)

// Model shows one approval request with its full draft.
type Model struct {
	req      *model.ApprovalRequest
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return ui.BackMsg{} }

		case key.Matches(msg, m.keys.Approve):
			return m, m.action(ui.ActionApprove)

		case key.Matches(msg, m.keys.Reject):
			return m, m.action(ui.ActionReject)
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) action(action ui.Action) tea.Cmd {
	if m.req == nil || m.req.Status != model.ApprovalPending {
		return nil
	}
	id := m.req.ID
	return func() tea.Msg {
		return ui.ActionMsg{Action: action, RequestID: id}
	}
}

// View renders the detail view.
func (m Model) View() string {
	if m.req == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No request selected")
	}

	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.req == nil {
		return ""
	}

	req := m.req
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(req.Draft.Subject))

	idBadge := theme.LabelStyle.Render(req.ID)
	statusBadge := theme.StatusStyle(req.Status).Render(string(req.Status))
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, idBadge, "  ", statusBadge))
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) {
		sections = append(sections, fmt.Sprintf("%s %s",
			metaStyle.Render(fmt.Sprintf("%-10s", label)), valStyle.Render(value)))
	}

	row("To:", req.FinalRecipient.String())
	row("Approver:", req.Approver)
	row("Created:", req.CreatedAt.Local().Format("2006-01-02 15:04"))
	if req.ApprovedAt != nil {
		row("Approved:", req.ApprovedAt.Local().Format("2006-01-02 15:04"))
	}
	if req.RejectedAt != nil {
		row("Rejected:", req.RejectedAt.Local().Format("2006-01-02 15:04"))
	}
	if req.Notes != "" {
		row("Notes:", req.Notes)
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")

	body := req.Draft.BodyText
	if strings.TrimSpace(body) == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("Empty body")
	}
	sections = append(sections, lipgloss.NewStyle().Width(max(m.width-4, 20)).Render(body))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetRequest updates the request being displayed and re-renders the content.
func (m *Model) SetRequest(req *model.ApprovalRequest) {
	m.req = req
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Request returns the request on display, or nil.
func (m Model) Request() *model.ApprovalRequest {
	return m.req
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.req != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
