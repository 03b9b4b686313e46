// Package config loads job configuration from a colocated secrets file and
// the process environment.
//
// Precedence is environment > secrets file > defaults. A secrets file never
// overrides a variable that is already set.
package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/changetracking"
	"github.com/opendatabs/etl/portal"
)

// DefaultSecretsFile is read when Load is given an empty path.
const DefaultSecretsFile = ".env"

// Config is the configuration shared by all jobs.
type Config struct {
	FTP            FTPConfig    `koanf:"ftp"`
	Portal         PortalConfig `koanf:"portal"`
	Email          EmailConfig  `koanf:"email"`
	Slack          SlackConfig  `koanf:"slack"`
	Log            LogConfig    `koanf:"log"`
	FingerprintDir string       `koanf:"fingerprint_dir" validate:"required"`
	HTTPSProxy     string       `koanf:"https_proxy" validate:"omitempty,url"`
}

// FTPConfig is the landing FTP server.
type FTPConfig struct {
	Server   string `koanf:"server" validate:"required,hostname_port|hostname"`
	User     string `koanf:"user" validate:"required"`
	Password string `koanf:"password" validate:"required"`
}

// PortalConfig is the open data portal.
type PortalConfig struct {
	APIKey     string `koanf:"api_key" validate:"required"`
	BaseURL    string `koanf:"base_url" validate:"required,url"`
	ExploreURL string `koanf:"explore_url" validate:"required,url"`
	// PushKey authorizes realtime pushes; only jobs pushing need it.
	PushKey string `koanf:"push_key"`
}

// EmailConfig is the SMTP relay for operator notifications.
type EmailConfig struct {
	Server    string   `koanf:"server" validate:"required"`
	Port      int      `koanf:"port" validate:"required,min=1,max=65535"`
	User      string   `koanf:"user"`
	Password  string   `koanf:"password"`
	From      string   `koanf:"from" validate:"required,email"`
	Receivers []string `koanf:"receivers" validate:"required,min=1,dive,email"`
}

// SlackConfig is the Slack bot used for job results.
type SlackConfig struct {
	Token   string `koanf:"token" validate:"required"`
	Channel string `koanf:"channel" validate:"required"`
}

// LogConfig controls the job logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

func defaultConfig() Config {
	return Config{
		Portal: PortalConfig{
			BaseURL:    portal.DefaultBaseURL,
			ExploreURL: portal.DefaultExploreURL,
		},
		Email:          EmailConfig{Port: 25},
		Log:            LogConfig{Level: "info", Format: "json"},
		FingerprintDir: changetracking.DefaultDir,
	}
}

var envMappings = map[string]string{
	"FTP_SERVER":      "ftp.server",
	"FTP_USER":        "ftp.user",
	"FTP_PASS":        "ftp.password",
	"ODS_API_KEY":     "portal.api_key",
	"ODS_BASE_URL":    "portal.base_url",
	"ODS_EXPLORE_URL": "portal.explore_url",
	"ODS_PUSH_KEY":    "portal.push_key",
	"EMAIL_SERVER":    "email.server",
	"EMAIL_PORT":      "email.port",
	"EMAIL_USER":      "email.user",
	"EMAIL_PASSWORD":  "email.password",
	"EMAIL_FROM":      "email.from",
	"EMAIL_RECEIVERS": "email.receivers",
	"SLACK_TOKEN":     "slack.token",
	"SLACK_CHANNEL":   "slack.channel",
	"FINGERPRINT_DIR": "fingerprint_dir",
	"LOG_LEVEL":       "log.level",
	"LOG_FORMAT":      "log.format",
	"HTTPS_PROXY":     "https_proxy",
}

// envKey maps a variable name to its config path, "" to skip it.
func envKey(name string) string {
	return envMappings[strings.ToUpper(name)]
}

var sliceKeys = []string{"email.receivers"}

// Load reads secretsFile (DefaultSecretsFile when empty, ignored when
// missing) into the environment and builds a Config from it.
func Load(secretsFile string) (*Config, error) {
	if secretsFile == "" {
		secretsFile = DefaultSecretsFile
	}
	if err := godotenv.Load(secretsFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, xerrors.Errorf("failed to load %s: %w", secretsFile, err)
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, xerrors.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, xerrors.Errorf("failed to load environment: %w", err)
	}
	if err := splitLists(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, xerrors.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := validate.StructExcept(cfg, "FTP", "Portal", "Email", "Slack"); err != nil {
		return nil, xerrors.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func splitLists(k *koanf.Koanf) error {
	for _, key := range sliceKeys {
		s, ok := k.Get(key).(string)
		if !ok {
			continue
		}

		var items []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		if err := k.Set(key, items); err != nil {
			return xerrors.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

var validate = validator.New()

// Section names accepted by Require.
const (
	SectionFTP    = "ftp"
	SectionPortal = "portal"
	SectionEmail  = "email"
	SectionSlack  = "slack"
)

// Require validates the sections a job depends on. Missing secrets are
// reported before any network call is made.
func (c *Config) Require(sections ...string) error {
	for _, s := range sections {
		var v any
		switch s {
		case SectionFTP:
			v = &c.FTP
		case SectionPortal:
			v = &c.Portal
		case SectionEmail:
			v = &c.Email
		case SectionSlack:
			v = &c.Slack
		default:
			return xerrors.Errorf("unknown config section %q", s)
		}

		if err := validate.Struct(v); err != nil {
			return xerrors.Errorf("invalid %s config: %w", s, err)
		}
	}
	return nil
}
