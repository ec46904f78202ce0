package cli

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/inbox-triage/internal/approvalapi"
	"github.com/nhle/inbox-triage/internal/credential"
	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/theme"
)

var credentialKeys = []string{
	credential.MailPasswordKey,
	credential.APIKeyKey,
	credential.JWTSecretKey,
}

func checkCredentialKey(key string) error {
	if !slices.Contains(credentialKeys, key) {
		return fmt.Errorf("unknown credential %q (one of %s)", key, strings.Join(credentialKeys, ", "))
	}
	return nil
}

func (a *app) credentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage secrets in the system keyring",
	}

	var value string
	set := &cobra.Command{
		Use:       "set <key>",
		Short:     "Store a secret (" + strings.Join(credentialKeys, ", ") + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: credentialKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := checkCredentialKey(key); err != nil {
				return err
			}
			secret, err := readSecret(value, key)
			if err != nil {
				return err
			}
			if err := credential.Set(key, secret); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), theme.SuccessStyle.Render("✓ Stored "+key))
			return nil
		},
	}
	set.Flags().StringVar(&value, "value", "", "secret value (prompted or read from stdin when omitted)")

	del := &cobra.Command{
		Use:       "delete <key>",
		Short:     "Remove a secret",
		Args:      cobra.ExactArgs(1),
		ValidArgs: credentialKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkCredentialKey(args[0]); err != nil {
				return err
			}
			if err := credential.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), theme.SuccessStyle.Render("✓ Deleted "+args[0]))
			return nil
		},
	}

	cmd.AddCommand(set, del)
	return cmd
}

func (a *app) tokenCmd() *cobra.Command {
	var (
		operator string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.API.JWTSecret == "" {
				return fmt.Errorf("api.jwt_secret is not set: export %s_API_JWT_SECRET or run 'triage credential set %s'",
					model.EnvPrefix, credential.JWTSecretKey)
			}
			tok, err := approvalapi.IssueToken([]byte(a.cfg.API.JWTSecret), operator, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&operator, "operator", "operator", "name recorded with decisions made with this token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
