package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nhle/inbox-triage/internal/ai"
	"github.com/nhle/inbox-triage/internal/approval"
	"github.com/nhle/inbox-triage/internal/email"
	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/store"
	"github.com/nhle/inbox-triage/internal/triage"
)

// requireMail validates the config and checks the mail password is known.
func (a *app) requireMail() error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	if a.cfg.Mail.Password == "" {
		return errors.New("mail password not set: export TRIAGE_MAIL_PASSWORD or run 'triage credential set mail-password'")
	}
	return nil
}

// approver returns the configured approver, letting a flag override it.
func (a *app) approver(flag string) (string, error) {
	if v := strings.TrimSpace(flag); v != "" {
		return v, nil
	}
	if a.cfg.Approval.Approver == "" {
		return "", errors.New("no approver: set approval.approver or pass --approver")
	}
	return a.cfg.Approval.Approver, nil
}

func (a *app) mailbox() *email.IMAPClient {
	m := a.cfg.Mail
	return email.NewIMAPClient(email.IMAPConfig{
		Host:     m.IMAPHost,
		Port:     m.IMAPPort,
		Username: m.Address,
		Password: m.Password,
		TLS:      m.IMAPTLS,
	})
}

// smtpSender builds the real relay client, with DKIM when configured.
func (a *app) smtpSender() (*email.SMTPSender, error) {
	m := a.cfg.Mail

	var signer email.Signer
	if m.DKIM.Domain != "" {
		s, err := email.NewDKIMSigner(m.DKIM.Domain, m.DKIM.Selector, m.DKIM.KeyPath)
		if err != nil {
			return nil, err
		}
		signer = s
	}

	return email.NewSMTPSender(email.SMTPConfig{
		Host:     m.SMTPHost,
		Port:     m.SMTPPort,
		Username: m.Address,
		Password: m.Password,
		TLS:      m.SMTPTLS,
		From:     model.Address{Email: m.Address, Name: m.FromName},
	}, signer, a.log), nil
}

// sender returns the relay, or a logging stand-in when dryRun is set.
func (a *app) sender(dryRun bool) (approval.Sender, error) {
	if dryRun {
		return email.NewLogSender(a.log), nil
	}
	s, err := a.smtpSender()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// openStore opens the SQLite database, creating its directory.
func (a *app) openStore() (*store.SQLiteStore, error) {
	path := a.cfg.Triage.DBPath
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	return store.NewSQLiteStore(path)
}

func (a *app) approvalFile() *store.ApprovalFile {
	if a.approvals == nil {
		a.approvals = store.NewApprovalFile(a.cfg.Approval.StorePath)
	}
	return a.approvals
}

// workflow builds the approval state machine. audit may be nil.
func (a *app) workflow(approver string, sender approval.Sender, audit approval.AuditLog) (*approval.Workflow, error) {
	return approval.New(approval.Options{
		Sender:      sender,
		Mailbox:     a.mailbox(),
		Store:       a.approvalFile(),
		Approver:    approver,
		UnreadLimit: a.cfg.Approval.UnreadLimit,
		Audit:       audit,
		Logger:      a.log,
	})
}

// llm returns the model client or an error naming how to set the key.
func (a *app) llm() (*ai.Client, error) {
	if a.cfg.AI.APIKey == "" {
		return nil, errors.New("Anthropic API key not set: export ANTHROPIC_API_KEY or run 'triage credential set claude-api-key'")
	}
	c := a.cfg.AI
	return ai.New(c.APIKey, c.Model, c.MaxTokens, c.Temperature), nil
}

func (a *app) signature() string {
	if a.cfg.Mail.FromName != "" {
		return a.cfg.Mail.FromName
	}
	return a.cfg.Mail.Address
}

// agent builds the triage pipeline. wf may be nil, in which case external
// replies stay drafted.
func (a *app) agent(sender approval.Sender, wf *approval.Workflow, db *store.SQLiteStore, autoRespond bool) (*triage.Agent, error) {
	llm, err := a.llm()
	if err != nil {
		return nil, err
	}

	opts := triage.Options{
		Mailbox:      a.mailbox(),
		Analyser:     ai.NewAnalyser(llm, a.log),
		Drafter:      ai.NewGenerator(llm, a.signature()),
		Sender:       sender,
		Records:      db,
		Address:      a.cfg.Mail.Address,
		Approver:     a.cfg.Approval.Approver,
		BatchSize:    a.cfg.Triage.BatchSize,
		AutoRespond:  autoRespond,
		ExternalOnly: a.cfg.Approval.ExternalOnly,
		Logger:       a.log,
	}
	if wf != nil {
		opts.Approvals = wf
	}
	return triage.NewAgent(opts)
}
