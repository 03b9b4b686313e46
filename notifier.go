package etl

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
	"golang.org/x/xerrors"
)

// Notifier notifies results for each job.
type Notifier interface {
	Notify(context.Context, *Result) error
}

// Result is a result for each job run.
type Result struct {
	Job       *Job
	Rows      int
	Published bool
	Error     error
}

func (r *Result) text() string {
	switch {
	case r.Error != nil:
		return fmt.Sprintf("%s job failed: %s", r.Job.Name, r.Error)
	case r.Published:
		return fmt.Sprintf("%s job published %d rows to %s", r.Job.Name, r.Rows, r.Job.Target.DatasetID)
	default:
		return fmt.Sprintf("%s job processed %d rows", r.Job.Name, r.Rows)
	}
}

// SlackNotifier is a notifier for Slack.
type SlackNotifier struct {
	Channel   string
	IconEmoji string
	Username  string
	Token     string

	// OnlyErrors suppresses notifications of successful runs.
	OnlyErrors bool

	HTTPClient *http.Client
	// APIURL overrides the Slack API root.
	APIURL string
}

// Notify notifies results to Slack channel.
func (n *SlackNotifier) Notify(ctx context.Context, r *Result) error {
	l := log.Ctx(ctx)

	if n.OnlyErrors && r.Error == nil {
		return nil
	}

	opts := []slack.Option{}
	if n.HTTPClient != nil {
		opts = append(opts, slack.OptionHTTPClient(n.HTTPClient))
	}
	if n.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(n.APIURL))
	}
	api := slack.New(n.Token, opts...)

	msgOpts := []slack.MsgOption{slack.MsgOptionText(r.text(), false)}
	if n.Username != "" {
		msgOpts = append(msgOpts, slack.MsgOptionUsername(n.Username))
	}
	if n.IconEmoji != "" {
		msgOpts = append(msgOpts, slack.MsgOptionIconEmoji(n.IconEmoji))
	}

	if _, _, err := api.PostMessageContext(ctx, n.Channel, msgOpts...); err != nil {
		return xerrors.Errorf("slack postMessage failed: %w", err)
	}

	l.Debug().Str("channel", n.Channel).Msg("notified slack")

	return nil
}
