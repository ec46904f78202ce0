package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/inbox-triage/internal/ai"
	tui "github.com/nhle/inbox-triage/internal/app"
	"github.com/nhle/inbox-triage/internal/approval"
	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/store"
	appsync "github.com/nhle/inbox-triage/internal/sync"
	"github.com/nhle/inbox-triage/internal/theme"
)

// openAudit opens the decision log. A database that cannot be opened only
// costs the audit trail, so the caller carries on with nil.
func (a *app) openAudit() *store.SQLiteStore {
	db, err := a.openStore()
	if err != nil {
		a.log.Warn().Err(err).Msg("decision audit log unavailable")
		return nil
	}
	return db
}

// auditLog avoids handing a typed nil to the workflow.
func auditLog(db *store.SQLiteStore) approval.AuditLog {
	if db == nil {
		return nil
	}
	return db
}

func closeStore(db *store.SQLiteStore) {
	if db != nil {
		_ = db.Close()
	}
}

func (a *app) submitCmd() *cobra.Command {
	var (
		to, name, subject, body, bodyFile, html string
		purpose, tone, approver                 string
		keyPoints                               []string
		yes, dryRun                             bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Send a draft to the approver and record it as pending",
		Long: "Submit mails a draft to the approver with the request id in the subject.\n" +
			"The draft reaches --to only after the approver replies APPROVED.\n" +
			"Pass --purpose to have the model write the draft instead of --subject/--body.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireMail(); err != nil {
				return err
			}
			approverAddr, err := a.approver(approver)
			if err != nil {
				return err
			}

			recipient := model.Address{Email: to, Name: name}
			ctx := cmd.Context()

			var draft model.Draft
			switch {
			case purpose != "":
				llm, err := a.llm()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), theme.DimStyle.Render("Generating email draft..."))
				draft, err = ai.NewGenerator(llm, a.signature()).Compose(ctx, ai.ComposeRequest{
					To:        recipient,
					Purpose:   purpose,
					Tone:      tone,
					KeyPoints: keyPoints,
				})
				if err != nil {
					return err
				}
			default:
				if bodyFile != "" {
					raw, err := os.ReadFile(bodyFile)
					if err != nil {
						return fmt.Errorf("reading body file: %w", err)
					}
					body = string(raw)
				}
				if subject == "" || body == "" {
					return errors.New("--subject and --body (or --body-file) are required without --purpose")
				}
				draft = model.Draft{
					To:       []model.Address{recipient},
					Subject:  subject,
					BodyText: body,
					BodyHTML: html,
				}
			}

			printDraft(cmd.OutOrStdout(), draft)

			if !yes {
				confirmed := true
				err := huh.NewConfirm().
					Title("Submit this draft to " + approverAddr + " for approval?").
					Affirmative("Submit").
					Negative("Cancel").
					Value(&confirmed).
					Run()
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(cmd.OutOrStdout(), theme.WarnStyle.Render("Cancelled"))
					return nil
				}
			}

			sender, err := a.sender(dryRun)
			if err != nil {
				return err
			}
			db := a.openAudit()
			defer closeStore(db)

			wf, err := a.workflow(approverAddr, sender, auditLog(db))
			if err != nil {
				return err
			}
			req, err := wf.Submit(ctx, draft, recipient)
			if err != nil {
				return err
			}
			printSubmitted(cmd.OutOrStdout(), req)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&to, "to", "t", "", "final recipient address (required)")
	f.StringVarP(&name, "name", "n", "", "final recipient display name")
	f.StringVarP(&subject, "subject", "s", "", "draft subject")
	f.StringVarP(&body, "body", "b", "", "draft plain-text body")
	f.StringVar(&bodyFile, "body-file", "", "read the plain-text body from a file")
	f.StringVar(&html, "html", "", "optional HTML alternative of the body")
	f.StringVarP(&purpose, "purpose", "p", "", "have the model write the draft for this purpose")
	f.StringVar(&tone, "tone", "professional", "tone of a generated draft")
	f.StringSliceVarP(&keyPoints, "point", "k", nil, "key point for a generated draft (repeatable)")
	f.StringVarP(&approver, "approver", "a", "", "approver address (defaults to approval.approver)")
	f.BoolVarP(&yes, "yes", "y", false, "submit without asking")
	f.BoolVar(&dryRun, "dry-run", false, "log outgoing mail instead of sending it")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func (a *app) checkCmd() *cobra.Command {
	var approver string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one approval tick: absorb store decisions, then read the approver's replies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireMail(); err != nil {
				return err
			}
			approverAddr, err := a.approver(approver)
			if err != nil {
				return err
			}
			sender, err := a.smtpSender()
			if err != nil {
				return err
			}
			db := a.openAudit()
			defer closeStore(db)

			wf, err := a.workflow(approverAddr, sender, auditLog(db))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			pending := wf.Pending()
			fmt.Fprintf(out, "%s %d pending\n", theme.LabelStyle.Render("Approvals:"), len(pending))

			decided, err := wf.CheckDecisions(cmd.Context())
			printDecided(out, decided)
			return err
		},
	}
	cmd.Flags().StringVarP(&approver, "approver", "a", "", "approver address (defaults to approval.approver)")
	return cmd
}

func (a *app) pollCmd() *cobra.Command {
	var (
		approver    string
		interval    time.Duration
		withTriage  bool
		autoRespond bool
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Check for approval decisions until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireMail(); err != nil {
				return err
			}
			approverAddr, err := a.approver(approver)
			if err != nil {
				return err
			}
			sender, err := a.sender(dryRun)
			if err != nil {
				return err
			}
			db := a.openAudit()
			defer closeStore(db)

			wf, err := a.workflow(approverAddr, sender, auditLog(db))
			if err != nil {
				return err
			}
			jobs := []appsync.Job{workflowJob(wf)}

			if withTriage {
				if db == nil {
					return errors.New("triage needs the database at triage.db_path")
				}
				agent, err := a.agent(sender, wf, db, autoRespond || a.cfg.Triage.AutoRespond)
				if err != nil {
					return err
				}
				jobs = append(jobs, agent)
			}

			if interval <= 0 {
				interval = a.cfg.Approval.PollInterval
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.log.Info().
				Str("approver", approverAddr).
				Dur("interval", interval).
				Bool("triage", withTriage).
				Bool("dry_run", dryRun).
				Msg("polling started, press Ctrl+C to stop")

			summary := appsync.New(a.log, jobs...).Run(ctx, interval)
			fmt.Fprintln(cmd.OutOrStdout(), theme.DimStyle.Render("stopped: "+summary.String()))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&approver, "approver", "a", "", "approver address (defaults to approval.approver)")
	f.DurationVarP(&interval, "interval", "i", 0, "pause between ticks (defaults to approval.poll_interval)")
	f.BoolVar(&withTriage, "with-triage", false, "also triage the inbox on every tick")
	f.BoolVar(&autoRespond, "auto-respond", false, "send or submit triage replies instead of only drafting them")
	f.BoolVar(&dryRun, "dry-run", false, "log outgoing mail instead of sending it")
	return cmd
}

// workflowJob runs one approval tick and reports how many requests it
// decided.
func workflowJob(wf *approval.Workflow) appsync.Job {
	return appsync.Func("approvals", func(ctx context.Context) (int, error) {
		decided, err := wf.CheckDecisions(ctx)
		return len(decided), err
	})
}

func (a *app) listCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List approval requests from the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			op := approval.NewOperator(a.approvalFile(), nil, nil, a.log)
			pending, stats, err := op.List(cmd.Context())
			if err != nil {
				return err
			}

			reqs := pending
			if all {
				reqs, err = a.approvalFile().Load()
				if err != nil {
					return err
				}
				sort.Slice(reqs, func(i, j int) bool {
					return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
				})
			}
			printRequests(cmd.OutOrStdout(), reqs, stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include decided requests")
	return cmd
}

func (a *app) watchCmd() *cobra.Command {
	var (
		approver string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Interactive view of pending approvals with live polling",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireMail(); err != nil {
				return err
			}
			approverAddr, err := a.approver(approver)
			if err != nil {
				return err
			}
			sender, err := a.smtpSender()
			if err != nil {
				return err
			}
			db := a.openAudit()
			defer closeStore(db)

			// The TUI owns the terminal, so logs go to a file.
			logFile, err := openWatchLog()
			if err == nil {
				defer logFile.Close()
				a.log = a.log.Output(logFile)
			} else {
				a.log = a.log.Level(zerolog.Disabled)
			}

			wf, err := a.workflow(approverAddr, sender, auditLog(db))
			if err != nil {
				return err
			}
			op := approval.NewOperator(a.approvalFile(), sender, auditLog(db), a.log)

			if interval <= 0 {
				interval = a.cfg.Approval.PollInterval
			}
			poller := appsync.New(a.log, workflowJob(wf))
			defer poller.Stop()

			_, err = tea.NewProgram(tui.New(op, poller, interval), tea.WithAltScreen()).Run()
			return err
		},
	}

	cmd.Flags().StringVarP(&approver, "approver", "a", "", "approver address (defaults to approval.approver)")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "pause between ticks (defaults to approval.poll_interval)")
	return cmd
}

func openWatchLog() (*os.File, error) {
	dir := model.ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "watch.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}
