package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhle/inbox-triage/internal/approval"
	"github.com/nhle/inbox-triage/internal/approvalapi"
	appsync "github.com/nhle/inbox-triage/internal/sync"
)

func (a *app) serveCmd() *cobra.Command {
	var (
		addr     string
		withPoll bool
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the approval HTTP API",
		Long: "Serve exposes the pending approvals over HTTP. Approving through the API\n" +
			"sends the draft immediately; --with-poll also runs the mail workflow.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireMail(); err != nil {
				return err
			}
			sender, err := a.sender(dryRun)
			if err != nil {
				return err
			}
			db := a.openAudit()
			defer closeStore(db)

			op := approval.NewOperator(a.approvalFile(), sender, auditLog(db), a.log)
			var events approvalapi.EventLister
			if db != nil {
				events = db
			}

			cfg := a.cfg.API
			if addr != "" {
				cfg.Addr = addr
			}
			if cfg.JWTSecret == "" {
				a.log.Warn().Msg("api.jwt_secret not set, the API is unauthenticated")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if withPoll {
				approverAddr, err := a.approver("")
				if err != nil {
					return err
				}
				wf, err := a.workflow(approverAddr, sender, auditLog(db))
				if err != nil {
					return err
				}
				go appsync.New(a.log, workflowJob(wf)).Run(ctx, a.cfg.Approval.PollInterval)
			}

			router := approvalapi.NewRouter(cfg, approvalapi.NewHandlers(op, events), a.log)
			return approvalapi.Serve(ctx, cfg.Addr, router, a.log)
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "listen address (defaults to api.addr)")
	f.BoolVar(&withPoll, "with-poll", false, "also poll the approver's mailbox")
	f.BoolVar(&dryRun, "dry-run", false, "log approved drafts instead of sending them")
	return cmd
}
