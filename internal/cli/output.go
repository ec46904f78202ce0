package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nhle/inbox-triage/internal/approval"
	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/theme"
)

var panelStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(theme.ColorBorder).
	Padding(0, 1)

// printDraft shows a draft the way it will be delivered.
func printDraft(w io.Writer, d model.Draft) {
	to := make([]string, 0, len(d.To))
	for _, a := range d.To {
		to = append(to, a.String())
	}

	head := fmt.Sprintf("%s %s\n%s %s",
		theme.LabelStyle.Render("To:"), strings.Join(to, ", "),
		theme.LabelStyle.Render("Subject:"), d.Subject,
	)
	fmt.Fprintln(w, panelStyle.Render(head+"\n\n"+d.BodyText))
}

// printSubmitted announces a new approval request.
func printSubmitted(w io.Writer, req *model.ApprovalRequest) {
	body := fmt.Sprintf("%s\n\nRequest ID: %s\nApprover: %s\nFinal recipient: %s\n\n%s",
		theme.SuccessStyle.Render("✓ Submitted for approval"),
		theme.LabelStyle.Render(req.ID),
		req.Approver,
		req.FinalRecipient.String(),
		theme.DimStyle.Render("The approver replies APPROVED or REJECTED. Run 'triage check' to pick up the answer."),
	)
	fmt.Fprintln(w, panelStyle.BorderForeground(theme.ColorGreen).Render(body))
}

// printDecided lists the requests that reached a terminal state.
func printDecided(w io.Writer, decided []*model.ApprovalRequest) {
	if len(decided) == 0 {
		fmt.Fprintln(w, theme.WarnStyle.Render("No new approval responses found"))
		return
	}
	for _, r := range decided {
		switch r.Status {
		case model.ApprovalApproved:
			fmt.Fprintf(w, "%s %s %q sent to %s\n",
				theme.SuccessStyle.Render("approved"), r.ID, r.Draft.Subject, r.FinalRecipient.Email)
		case model.ApprovalRejected:
			fmt.Fprintf(w, "%s %s %q (%s)\n",
				theme.ErrorStyle.Render("rejected"), r.ID, r.Draft.Subject, r.Notes)
		}
	}
	fmt.Fprintln(w, theme.SuccessStyle.Render(fmt.Sprintf("✓ Processed %d approval(s)", len(decided))))
}

// requestTable renders requests as a bordered table.
func requestTable(reqs []*model.ApprovalRequest, now time.Time) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers("ID", "STATUS", "SUBJECT", "TO", "CREATED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, r := range reqs {
		t.Row(
			r.ID,
			theme.StatusStyle(r.Status).UnsetPadding().Render(string(r.Status)),
			clip(r.Draft.Subject, 40),
			r.FinalRecipient.Email,
			ago(now.Sub(r.CreatedAt)),
		)
	}
	return t.Render()
}

// printRequests writes the table and the per-status totals.
func printRequests(w io.Writer, reqs []*model.ApprovalRequest, stats approval.Stats) {
	if len(reqs) == 0 {
		fmt.Fprintln(w, theme.DimStyle.Render("No approval requests"))
	} else {
		fmt.Fprintln(w, requestTable(reqs, time.Now()))
	}
	fmt.Fprintln(w, theme.DimStyle.Render(fmt.Sprintf(
		"%d pending, %d approved, %d rejected, %d total",
		stats.Pending, stats.Approved, stats.Rejected, stats.Total,
	)))
}

// printAnalysis shows one analysed message.
func printAnalysis(w io.Writer, msg model.InboundMessage, a model.EmailAnalysis) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", theme.LabelStyle.Render("From:"), msg.From.String())
	fmt.Fprintf(&b, "%s %s\n\n", theme.LabelStyle.Render("Subject:"), msg.Subject)
	fmt.Fprintf(&b, "%s %s  %s %s  %s %s\n",
		theme.DimStyle.Render("category"), a.Category,
		theme.DimStyle.Render("priority"), theme.PriorityStyle(a.Priority).Render(string(a.Priority)),
		theme.DimStyle.Render("sentiment"), a.Sentiment,
	)
	fmt.Fprintf(&b, "\n%s\n", a.Summary)
	for _, p := range a.KeyPoints {
		fmt.Fprintf(&b, "  • %s\n", p)
	}
	if a.ActionRequired {
		fmt.Fprintf(&b, "\n%s\n", theme.WarnStyle.Render("Action required"))
		for _, s := range a.SuggestedActions {
			fmt.Fprintf(&b, "  → %s\n", s)
		}
	}
	fmt.Fprintln(w, panelStyle.Render(strings.TrimRight(b.String(), "\n")))
}

// printRecords renders triage records as a table.
func printRecords(w io.Writer, recs []model.TriageRecord) {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers("WHEN", "FROM", "SUBJECT", "CATEGORY", "PRIORITY", "RESULT")

	for _, r := range recs {
		t.Row(
			r.CreatedAt.Local().Format("01-02 15:04"),
			clip(r.Sender, 28),
			clip(r.Subject, 36),
			string(r.Category),
			theme.PriorityStyle(r.Priority).Render(string(r.Priority)),
			theme.DispositionStyle(r.Disposition).UnsetPadding().Render(string(r.Disposition)),
		)
	}
	fmt.Fprintln(w, t.Render())
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
