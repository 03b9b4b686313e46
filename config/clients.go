package config

import (
	"github.com/opendatabs/etl"
	"github.com/opendatabs/etl/changetracking"
	"github.com/opendatabs/etl/ftp"
	"github.com/opendatabs/etl/httpclient"
	"github.com/opendatabs/etl/portal"
)

// HTTPClient builds a retrying HTTP client honoring HTTPSProxy.
func (c *Config) HTTPClient(opts ...httpclient.Option) *httpclient.Client {
	return httpclient.New(append([]httpclient.Option{httpclient.WithProxy(c.HTTPSProxy)}, opts...)...)
}

// PortalClient builds a portal client for the configured instance.
func (c *Config) PortalClient(hc *httpclient.Client) *portal.Client {
	return portal.New(hc, c.Portal.APIKey,
		portal.WithBaseURL(c.Portal.BaseURL),
		portal.WithExploreURL(c.Portal.ExploreURL),
	)
}

// FTPClient builds a client for the landing FTP server.
func (c *Config) FTPClient() *ftp.Client {
	return ftp.New(c.FTP.Server, c.FTP.User, c.FTP.Password)
}

// Publisher wires the fingerprint store, FTP server and portal together.
func (c *Config) Publisher(hc *httpclient.Client) *etl.Publisher {
	return etl.NewPublisher(changetracking.NewStore(c.FingerprintDir), c.FTPClient(), c.PortalClient(hc))
}

// EmailNotifier builds a notifier for the configured SMTP relay.
func (c *Config) EmailNotifier() *etl.EmailNotifier {
	return &etl.EmailNotifier{
		Server:    c.Email.Server,
		Port:      c.Email.Port,
		User:      c.Email.User,
		Password:  c.Email.Password,
		From:      c.Email.From,
		Receivers: c.Email.Receivers,
		StartTLS:  c.Email.User != "",
	}
}

// SlackNotifier builds a notifier posting to the configured channel.
func (c *Config) SlackNotifier() *etl.SlackNotifier {
	return &etl.SlackNotifier{
		Token:   c.Slack.Token,
		Channel: c.Slack.Channel,
	}
}

// Options returns the ETL options matching the log configuration.
func (c *Config) Options() []etl.Option {
	opts := []etl.Option{etl.WithLogLevel(c.Log.Level)}
	if c.Log.Format == "console" {
		opts = append(opts, etl.WithPrettyLogging())
	}
	return opts
}
