package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig_Clients(t *testing.T) {
	cfg := &Config{
		FTP:            FTPConfig{Server: "ftp.example.com", User: "u", Password: "p"},
		Portal:         PortalConfig{APIKey: "k", BaseURL: "https://portal.example.com/api", ExploreURL: "https://portal.example.com/explore"},
		Email:          EmailConfig{Server: "smtp.example.com", Port: 587, User: "mailer", From: "etl@example.com", Receivers: []string{"ops@example.com"}},
		Slack:          SlackConfig{Token: "xoxb", Channel: "#etl"},
		Log:            LogConfig{Level: "debug", Format: "console"},
		FingerprintDir: t.TempDir(),
	}

	hc := cfg.HTTPClient()
	require.NotNil(t, hc)

	f := cfg.FTPClient()
	require.Equal(t, "ftp.example.com:21", f.Addr)

	p := cfg.Publisher(hc)
	require.NotNil(t, p.Store)
	require.NotNil(t, p.Embargo)
	require.False(t, p.NoFileCopy)

	e := cfg.EmailNotifier()
	require.True(t, e.StartTLS)
	require.Equal(t, []string{"ops@example.com"}, e.Receivers)

	require.Equal(t, "#etl", cfg.SlackNotifier().Channel)
	require.Len(t, cfg.Options(), 2)
}

func TestConfig_Logger(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "warn", Format: "json"}}
	require.Equal(t, "warn", cfg.Logger().GetLevel().String())

	cfg.Log.Level = ""
	require.Equal(t, "info", cfg.Logger().GetLevel().String())
}
