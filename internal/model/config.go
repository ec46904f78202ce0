package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// TRIAGE_MAIL_ADDRESS overrides mail.address.
const EnvPrefix = "TRIAGE"

// MinTriageInterval is the lower bound applied to triage.poll_interval.
const MinTriageInterval = 10 * time.Second

// DKIMConfig enables signing of outgoing mail when Domain is set.
type DKIMConfig struct {
	Domain   string `mapstructure:"domain" yaml:"domain"`
	Selector string `mapstructure:"selector" yaml:"selector" validate:"required_with=Domain"`
	KeyPath  string `mapstructure:"key_path" yaml:"key_path" validate:"required_with=Domain"`
}

// MailConfig holds the mailbox credentials and server endpoints.
type MailConfig struct {
	// Address is the account used for IMAP login and as the sender.
	Address string `mapstructure:"address" yaml:"address" validate:"required,email"`

	// Password is never written to the config file; it comes from the
	// environment or the keyring.
	Password string `mapstructure:"password" yaml:"-"`

	FromName string `mapstructure:"from_name" yaml:"from_name"`

	IMAPHost string `mapstructure:"imap_host" yaml:"imap_host" validate:"required,hostname|ip"`
	IMAPPort string `mapstructure:"imap_port" yaml:"imap_port" validate:"required,numeric"`
	IMAPTLS  bool   `mapstructure:"imap_tls" yaml:"imap_tls"`

	SMTPHost string `mapstructure:"smtp_host" yaml:"smtp_host" validate:"required,hostname|ip"`
	SMTPPort string `mapstructure:"smtp_port" yaml:"smtp_port" validate:"required,numeric"`

	// SMTPTLS selects implicit TLS; false means STARTTLS.
	SMTPTLS bool `mapstructure:"smtp_tls" yaml:"smtp_tls"`

	DKIM DKIMConfig `mapstructure:"dkim" yaml:"dkim"`
}

// ApprovalConfig holds settings for the approval workflow.
type ApprovalConfig struct {
	Approver     string        `mapstructure:"approver" yaml:"approver" validate:"omitempty,email"`
	StorePath    string        `mapstructure:"store_path" yaml:"store_path" validate:"required"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	UnreadLimit  int           `mapstructure:"unread_limit" yaml:"unread_limit" validate:"gte=1"`

	// ExternalOnly routes only replies to other domains through approval.
	ExternalOnly bool `mapstructure:"external_domains_only" yaml:"external_domains_only"`
}

// TriageConfig holds settings for the inbox pipeline.
type TriageConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size" yaml:"batch_size" validate:"gte=1,lte=100"`
	AutoRespond  bool          `mapstructure:"auto_respond" yaml:"auto_respond"`
	DBPath       string        `mapstructure:"db_path" yaml:"db_path" validate:"required"`
}

// AIConfig holds settings for the language-model collaborator.
type AIConfig struct {
	// APIKey is never written to the config file.
	APIKey      string  `mapstructure:"api_key" yaml:"-"`
	Model       string  `mapstructure:"model" yaml:"model"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gte=1"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=1"`
}

// APIConfig holds settings for the HTTP control surface.
type APIConfig struct {
	Addr        string   `mapstructure:"addr" yaml:"addr" validate:"required"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	RateRPS     float64  `mapstructure:"rate_rps" yaml:"rate_rps" validate:"gte=0"`
	RateBurst   int      `mapstructure:"rate_burst" yaml:"rate_burst" validate:"gte=0"`

	// JWTSecret enables bearer-token auth when set.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"-"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Mail     MailConfig     `mapstructure:"mail" yaml:"mail"`
	Approval ApprovalConfig `mapstructure:"approval" yaml:"approval"`
	Triage   TriageConfig   `mapstructure:"triage" yaml:"triage"`
	AI       AIConfig       `mapstructure:"ai" yaml:"ai"`
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	LogLevel string         `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
}

// ConfigDir returns ~/.config/inbox-triage, or "." when the home
// directory cannot be determined.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "inbox-triage")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/inbox-triage/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// setDefaults registers every key so that env overrides and Unmarshal see
// them even when the file omits them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("mail.address", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from_name", "")
	v.SetDefault("mail.imap_host", "imap.gmail.com")
	v.SetDefault("mail.imap_port", "993")
	v.SetDefault("mail.imap_tls", true)
	v.SetDefault("mail.smtp_host", "smtp.gmail.com")
	v.SetDefault("mail.smtp_port", "587")
	v.SetDefault("mail.smtp_tls", false)
	v.SetDefault("mail.dkim.domain", "")
	v.SetDefault("mail.dkim.selector", "")
	v.SetDefault("mail.dkim.key_path", "")

	v.SetDefault("approval.approver", "")
	v.SetDefault("approval.store_path", "./pending_approvals.json")
	v.SetDefault("approval.poll_interval", "30s")
	v.SetDefault("approval.unread_limit", 20)
	v.SetDefault("approval.external_domains_only", true)

	v.SetDefault("triage.poll_interval", "60s")
	v.SetDefault("triage.batch_size", 10)
	v.SetDefault("triage.auto_respond", false)
	v.SetDefault("triage.db_path", filepath.Join(ConfigDir(), "triage.db"))

	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.temperature", 0.3)

	v.SetDefault("api.addr", ":5000")
	v.SetDefault("api.cors_origins", []string{})
	v.SetDefault("api.rate_rps", 5)
	v.SetDefault("api.rate_burst", 10)
	v.SetDefault("api.jwt_secret", "")

	v.SetDefault("log_level", "info")
}

// newViper returns a Viper instance bound to path with defaults and
// environment overrides registered.
func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// ANTHROPIC_API_KEY is accepted as well.
	_ = v.BindEnv("ai.api_key", EnvPrefix+"_AI_API_KEY", "ANTHROPIC_API_KEY")
	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// applying TRIAGE_* environment overrides. A missing file yields defaults.
// The result is not validated; call Validate once secrets are resolved.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Approval.PollInterval <= 0 {
		cfg.Approval.PollInterval = 30 * time.Second
	}
	if cfg.Triage.PollInterval < MinTriageInterval {
		cfg.Triage.PollInterval = MinTriageInterval
	}

	return cfg, nil
}

// Validate checks the struct constraints and returns a single error
// listing every offending field.
func (c *AppConfig) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf(
			"%s failed %q", fe.Namespace(), fe.Tag(),
		))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. Secrets are omitted.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	mailCfg := map[string]any{
		"address":   cfg.Mail.Address,
		"from_name": cfg.Mail.FromName,
		"imap_host": cfg.Mail.IMAPHost,
		"imap_port": cfg.Mail.IMAPPort,
		"imap_tls":  cfg.Mail.IMAPTLS,
		"smtp_host": cfg.Mail.SMTPHost,
		"smtp_port": cfg.Mail.SMTPPort,
		"smtp_tls":  cfg.Mail.SMTPTLS,
		"dkim": map[string]any{
			"domain":   cfg.Mail.DKIM.Domain,
			"selector": cfg.Mail.DKIM.Selector,
			"key_path": cfg.Mail.DKIM.KeyPath,
		},
	}

	v.Set("mail", mailCfg)
	v.Set("approval", map[string]any{
		"approver":              cfg.Approval.Approver,
		"store_path":            cfg.Approval.StorePath,
		"poll_interval":         cfg.Approval.PollInterval.String(),
		"unread_limit":          cfg.Approval.UnreadLimit,
		"external_domains_only": cfg.Approval.ExternalOnly,
	})
	v.Set("triage", map[string]any{
		"poll_interval": cfg.Triage.PollInterval.String(),
		"batch_size":    cfg.Triage.BatchSize,
		"auto_respond":  cfg.Triage.AutoRespond,
		"db_path":       cfg.Triage.DBPath,
	})
	v.Set("ai", map[string]any{
		"model":       cfg.AI.Model,
		"max_tokens":  cfg.AI.MaxTokens,
		"temperature": cfg.AI.Temperature,
	})
	v.Set("api", map[string]any{
		"addr":         cfg.API.Addr,
		"cors_origins": cfg.API.CORSOrigins,
		"rate_rps":     cfg.API.RateRPS,
		"rate_burst":   cfg.API.RateBurst,
	})
	v.Set("log_level", cfg.LogLevel)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
