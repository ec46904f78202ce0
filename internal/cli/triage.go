package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/inbox-triage/internal/ai"
	"github.com/nhle/inbox-triage/internal/approval"
	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/store"
	"github.com/nhle/inbox-triage/internal/theme"
	"github.com/nhle/inbox-triage/internal/triage"
)

func (a *app) processCmd() *cobra.Command {
	var (
		limit       int
		autoRespond bool
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Triage one batch of unread mail: analyse, log, and draft replies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireMail(); err != nil {
				return err
			}
			if limit > 0 {
				a.cfg.Triage.BatchSize = limit
			}

			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			sender, err := a.sender(dryRun)
			if err != nil {
				return err
			}

			// Without an approver, replies that need approval stay drafted.
			var wf *approval.Workflow
			if a.cfg.Approval.Approver != "" {
				wf, err = a.workflow(a.cfg.Approval.Approver, sender, db)
				if err != nil {
					return err
				}
			}

			agent, err := a.agent(sender, wf, db, autoRespond || a.cfg.Triage.AutoRespond)
			if err != nil {
				return err
			}

			recs, err := agent.ProcessInbox(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, theme.WarnStyle.Render("No emails were processed"))
				return nil
			}
			printRecords(out, recs)

			s := agent.Stats()
			fmt.Fprintln(out, theme.DimStyle.Render(fmt.Sprintf(
				"fetched %d, skipped %d, analyzed %d, drafted %d, blocked %d, sent %d, submitted %d, errors %d",
				s.Fetched, s.Skipped, s.Analyzed, s.Drafted, s.Blocked, s.Sent, s.Submitted, s.Errors,
			)))

			for _, r := range recs {
				if r.Disposition == model.DispositionDrafted && r.ReplyBody != "" {
					fmt.Fprintf(out, "\n%s %s\n", theme.LabelStyle.Render("Draft for:"), r.Subject)
					if r.Error != "" {
						fmt.Fprintln(out, theme.ErrorStyle.Render(r.Error))
					}
					printDraft(out, model.Draft{
						To:       []model.Address{{Email: r.Sender}},
						Subject:  r.ReplySubject,
						BodyText: r.ReplyBody,
					})
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&limit, "limit", "l", 0, "maximum messages to process (defaults to triage.batch_size)")
	f.BoolVar(&autoRespond, "auto-respond", false, "send or submit replies instead of only drafting them")
	f.BoolVar(&dryRun, "dry-run", false, "log outgoing mail instead of sending it")
	return cmd
}

func (a *app) analyzeCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyse unread mail without marking it read or storing anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireMail(); err != nil {
				return err
			}
			llm, err := a.llm()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			msgs, err := a.mailbox().FetchUnread(ctx, limit, false)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintln(out, theme.WarnStyle.Render("No unread emails to analyze"))
				return nil
			}

			analyser := ai.NewAnalyser(llm, a.log)
			for _, msg := range msgs {
				analysis, err := analyser.Analyse(ctx, msg)
				if err != nil {
					a.log.Error().Err(err).Str("subject", msg.Subject).Msg("analysis failed")
					continue
				}
				printAnalysis(out, msg, analysis)
				if triage.ShouldReply(msg, analysis) {
					fmt.Fprintf(out, "%s %s\n\n", theme.DimStyle.Render("reply intent:"), analyser.SuggestResponse(analysis))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 5, "number of unread messages to analyse")
	return cmd
}

func (a *app) generateCmd() *cobra.Command {
	var (
		to, name, tone, extra string
		keyPoints             []string
		send, dryRun          bool
	)

	cmd := &cobra.Command{
		Use:   "generate <purpose>",
		Short: "Write a new email with the model and optionally send it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			llm, err := a.llm()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			draft, err := ai.NewGenerator(llm, a.signature()).Compose(ctx, ai.ComposeRequest{
				To:        model.Address{Email: to, Name: name},
				Purpose:   strings.Join(args, " "),
				Context:   extra,
				Tone:      tone,
				KeyPoints: keyPoints,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printDraft(out, draft)

			report := ai.Validate(draft)
			for _, w := range report.Warnings {
				fmt.Fprintln(out, theme.WarnStyle.Render("warning: ")+w)
			}
			for _, e := range report.Errors {
				fmt.Fprintln(out, theme.ErrorStyle.Render("blocked: ")+e)
			}

			if !send {
				err := huh.NewConfirm().
					Title("Send this email to " + to + "?").
					Value(&send).
					Run()
				if err != nil {
					return err
				}
			}
			if !send {
				fmt.Fprintln(out, theme.WarnStyle.Render("Email saved as draft (not sent)"))
				return nil
			}
			if err := report.Err(); err != nil {
				return err
			}

			if err := a.requireMail(); err != nil {
				return err
			}
			sender, err := a.sender(dryRun)
			if err != nil {
				return err
			}
			if _, err := sender.Send(ctx, draft); err != nil {
				return err
			}
			fmt.Fprintln(out, theme.SuccessStyle.Render("✓ Email sent"))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&to, "to", "t", "", "recipient address (required)")
	f.StringVarP(&name, "name", "n", "", "recipient display name")
	f.StringVar(&tone, "tone", "professional", "tone of the email")
	f.StringVar(&extra, "context", "", "background the model should know")
	f.StringSliceVarP(&keyPoints, "point", "k", nil, "key point to cover (repeatable)")
	f.BoolVar(&send, "send", false, "send without asking")
	f.BoolVar(&dryRun, "dry-run", false, "log the email instead of sending it")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var (
		limit    int
		category string
		sender   string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the triage log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			filter := store.TriageFilter{Limit: limit}
			if category != "" {
				c := model.ParseCategory(category)
				if string(c) != strings.ToLower(strings.TrimSpace(category)) {
					return fmt.Errorf("unknown category %q", category)
				}
				filter.Category = &c
			}
			if sender != "" {
				filter.Sender = &sender
			}

			ctx := cmd.Context()
			recs, err := db.ListTriageRecords(ctx, filter)
			if err != nil {
				return err
			}
			stats, err := db.GetTriageStats(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, theme.DimStyle.Render("No triage records"))
			} else {
				printRecords(out, recs)
			}
			fmt.Fprintln(out, theme.DimStyle.Render(fmt.Sprintf(
				"%d processed, %d needed action, %d sent, %d submitted, %d failed",
				stats.Total, stats.ActionRequired,
				stats.ByDisposition[model.DispositionSent],
				stats.ByDisposition[model.DispositionSubmitted],
				stats.ByDisposition[model.DispositionFailed],
			)))
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&limit, "limit", "l", 20, "number of records to show")
	f.StringVar(&category, "category", "", "only this category")
	f.StringVar(&sender, "from", "", "only this sender")
	return cmd
}
