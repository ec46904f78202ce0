package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nhle/inbox-triage/internal/credential"
	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/theme"
)

// pingTimeout bounds each connectivity check of config test.
const pingTimeout = 20 * time.Second

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, show and test the configuration",
	}
	cmd.AddCommand(a.configInitCmd(), a.configShowCmd(), a.configTestCmd())
	return cmd
}

// configForm holds the values edited by config init.
type configForm struct {
	address, fromName, password string
	imapHost, imapPort          string
	smtpHost, smtpPort          string
	imapTLS, smtpTLS            bool
	approver                    string
	autoRespond, externalOnly   bool
}

func newConfigForm(cfg *model.AppConfig) *configForm {
	return &configForm{
		address:      cfg.Mail.Address,
		fromName:     cfg.Mail.FromName,
		imapHost:     cfg.Mail.IMAPHost,
		imapPort:     cfg.Mail.IMAPPort,
		imapTLS:      cfg.Mail.IMAPTLS,
		smtpHost:     cfg.Mail.SMTPHost,
		smtpPort:     cfg.Mail.SMTPPort,
		smtpTLS:      cfg.Mail.SMTPTLS,
		approver:     cfg.Approval.Approver,
		autoRespond:  cfg.Triage.AutoRespond,
		externalOnly: cfg.Approval.ExternalOnly,
	}
}

func (f *configForm) build() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email address").
				Description("Account used to read the inbox and send mail").
				Placeholder("you@example.com").
				Value(&f.address).
				Validate(validateEmail),
			huh.NewInput().
				Title("Display name").
				Description("Shown in From and used to sign generated mail").
				Value(&f.fromName),
			huh.NewInput().
				Title("App password").
				Description("Stored in the system keyring, never in the config file. Leave empty to keep the current one.").
				EchoMode(huh.EchoModePassword).
				Value(&f.password),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP host").
				Value(&f.imapHost).
				Validate(validateRequired("IMAP host")),
			huh.NewInput().
				Title("IMAP port").
				Value(&f.imapPort).
				Validate(validatePort),
			huh.NewConfirm().
				Title("IMAP over TLS").
				Affirmative("Yes").
				Negative("No").
				Value(&f.imapTLS),
			huh.NewInput().
				Title("SMTP host").
				Value(&f.smtpHost).
				Validate(validateRequired("SMTP host")),
			huh.NewInput().
				Title("SMTP port").
				Value(&f.smtpPort).
				Validate(validatePort),
			huh.NewConfirm().
				Title("SMTP implicit TLS").
				Description("No means STARTTLS, which port 587 expects").
				Affirmative("Yes").
				Negative("No").
				Value(&f.smtpTLS),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Approver").
				Description("Address whose APPROVED reply releases a draft").
				Placeholder("cfo@example.com").
				Value(&f.approver).
				Validate(validateOptionalEmail),
			huh.NewConfirm().
				Title("Auto-respond").
				Description("Send or submit triage replies instead of only drafting them").
				Value(&f.autoRespond),
			huh.NewConfirm().
				Title("Approve external replies only").
				Description("Replies to your own domain are sent without approval").
				Value(&f.externalOnly),
		),
	)
}

// apply copies the form values onto cfg.
func (f *configForm) apply(cfg *model.AppConfig) {
	cfg.Mail.Address = strings.TrimSpace(f.address)
	cfg.Mail.FromName = strings.TrimSpace(f.fromName)
	cfg.Mail.IMAPHost = strings.TrimSpace(f.imapHost)
	cfg.Mail.IMAPPort = strings.TrimSpace(f.imapPort)
	cfg.Mail.IMAPTLS = f.imapTLS
	cfg.Mail.SMTPHost = strings.TrimSpace(f.smtpHost)
	cfg.Mail.SMTPPort = strings.TrimSpace(f.smtpPort)
	cfg.Mail.SMTPTLS = f.smtpTLS
	cfg.Approval.Approver = strings.TrimSpace(f.approver)
	cfg.Approval.ExternalOnly = f.externalOnly
	cfg.Triage.AutoRespond = f.autoRespond
}

func (a *app) configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the config file interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			form := newConfigForm(a.cfg)
			if err := form.build().Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}
			form.apply(a.cfg)

			if err := model.SaveConfig(a.configPath, a.cfg); err != nil {
				return err
			}
			if form.password != "" {
				if err := credential.Set(credential.MailPasswordKey, form.password); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), theme.SuccessStyle.Render("✓ Saved "+a.configPath))
			return nil
		},
	}
}

func (a *app) configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration without secrets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), configTable(a.configPath, a.cfg))
			if err := a.cfg.Validate(); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), theme.WarnStyle.Render(err.Error()))
			}
			return nil
		},
	}
}

// configTable renders cfg as setting/value rows. Secrets show only whether
// they are set.
func configTable(path string, cfg *model.AppConfig) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers("SETTING", "VALUE")

	rows := [][2]string{
		{"config file", path},
		{"mail.address", cfg.Mail.Address},
		{"mail.password", secretState(cfg.Mail.Password)},
		{"imap", fmt.Sprintf("%s:%s (tls %t)", cfg.Mail.IMAPHost, cfg.Mail.IMAPPort, cfg.Mail.IMAPTLS)},
		{"smtp", fmt.Sprintf("%s:%s (tls %t)", cfg.Mail.SMTPHost, cfg.Mail.SMTPPort, cfg.Mail.SMTPTLS)},
		{"dkim", orNone(cfg.Mail.DKIM.Domain)},
		{"approval.approver", orNone(cfg.Approval.Approver)},
		{"approval.store_path", cfg.Approval.StorePath},
		{"approval.poll_interval", cfg.Approval.PollInterval.String()},
		{"approval.external_domains_only", strconv.FormatBool(cfg.Approval.ExternalOnly)},
		{"triage.poll_interval", cfg.Triage.PollInterval.String()},
		{"triage.batch_size", strconv.Itoa(cfg.Triage.BatchSize)},
		{"triage.auto_respond", strconv.FormatBool(cfg.Triage.AutoRespond)},
		{"triage.db_path", cfg.Triage.DBPath},
		{"ai.model", cfg.AI.Model},
		{"ai.api_key", secretState(cfg.AI.APIKey)},
		{"api.addr", cfg.API.Addr},
		{"api.jwt_secret", secretState(cfg.API.JWTSecret)},
		{"log_level", cfg.LogLevel},
	}
	for _, r := range rows {
		t.Row(r[0], r[1])
	}
	return t.Render()
}

func (a *app) configTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Log in to IMAP and SMTP with the current settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireMail(); err != nil {
				return err
			}
			smtp, err := a.smtpSender()
			if err != nil {
				return err
			}

			checks := []struct {
				name string
				ping func(context.Context) error
			}{
				{"IMAP " + a.cfg.Mail.IMAPHost, a.mailbox().Ping},
				{"SMTP " + a.cfg.Mail.SMTPHost, smtp.Ping},
			}

			out := cmd.OutOrStdout()
			var failed int
			for _, c := range checks {
				ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
				err := c.ping(ctx)
				cancel()
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s %s: %v\n", theme.ErrorStyle.Render("✗"), c.name, err)
					continue
				}
				fmt.Fprintf(out, "%s %s\n", theme.SuccessStyle.Render("✓"), c.name)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d connection checks failed", failed, len(checks))
			}
			return nil
		},
	}
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validatePort(s string) error {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < 1 || p > 65535 {
		return errors.New("port must be a number between 1 and 65535")
	}
	return nil
}

func validateEmail(s string) error {
	if _, err := mail.ParseAddress(strings.TrimSpace(s)); err != nil {
		return errors.New("not a valid email address")
	}
	return nil
}

func validateOptionalEmail(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return validateEmail(s)
}

func secretState(s string) string {
	if s == "" {
		return theme.WarnStyle.Render("not set")
	}
	return "set"
}

func orNone(s string) string {
	if s == "" {
		return theme.DimStyle.Render("none")
	}
	return s
}

// readSecret takes a value from the flag, from piped stdin, or from a
// password prompt, in that order.
func readSecret(flag, title string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	var value string
	err := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&value).
		Validate(validateRequired("value")).
		Run()
	return value, err
}
