// Package cli wires configuration, mail transport, the approval workflow and
// the triage pipeline into the triage command.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nhle/inbox-triage/internal/credential"
	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/store"
	"github.com/nhle/inbox-triage/internal/theme"
)

// app holds what every subcommand needs after the root has run.
type app struct {
	configPath string
	logLevel   string
	noKeyring  bool
	cfg        *model.AppConfig
	log        zerolog.Logger

	// approvals is the one approval store handle shared by every
	// component a command builds.
	approvals *store.ApprovalFile
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "triage",
		Short:         "Inbox triage with a mail-driven approval gate",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", model.DefaultConfigPath(), "config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.noKeyring, "no-keyring", false, "read secrets from the environment only")

	root.AddCommand(
		a.submitCmd(),
		a.checkCmd(),
		a.pollCmd(),
		a.listCmd(),
		a.watchCmd(),
		a.serveCmd(),
		a.processCmd(),
		a.analyzeCmd(),
		a.generateCmd(),
		a.historyCmd(),
		a.configCmd(),
		a.credentialCmd(),
		a.tokenCmd(),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(version string) int {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("error:"), err)
		return 1
	}
	return 0
}

// setup loads .env, the config file and keyring secrets, then configures the
// global logger.
func (a *app) setup() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := model.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg
	a.log = newLogger(cfg.LogLevel)
	log.Logger = a.log

	if a.noKeyring {
		return nil
	}
	if err := credential.Resolve(cfg); err != nil {
		a.log.Debug().Err(err).Msg("keyring unavailable, using environment only")
	}
	return nil
}

// newLogger writes human-readable lines to a terminal and JSON otherwise.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}
