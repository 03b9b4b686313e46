package etl

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmailNotifier_Send(t *testing.T) {
	var sent []byte
	var rcpts []string

	n := &EmailNotifier{
		Server:    "mail.example.ch",
		Port:      25,
		From:      "etl@example.ch",
		Receivers: []string{"a@example.ch", "b@example.ch"},
		sendMail: func(_ context.Context, to []string, msg []byte) error {
			rcpts = to
			sent = msg
			return nil
		},
	}

	err := n.Send(context.Background(), Message{
		Subject: "Neue PLZ gefunden",
		Body:    "vorher: 4051\nnachher: 4051, 4052",
		Attachments: []Attachment{
			{Name: "new_plz.csv", Content: []byte("plz\n4051\n4052\n")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a@example.ch", "b@example.ch"}, rcpts)

	msg := string(sent)
	require.Contains(t, msg, "From: etl@example.ch\r\n")
	require.Contains(t, msg, "To: a@example.ch, b@example.ch\r\n")
	require.Contains(t, msg, "Subject: Neue PLZ gefunden\r\n")
	require.Contains(t, msg, "multipart/mixed")
	require.Contains(t, msg, `filename=new_plz.csv`)
	require.Contains(t, msg, "cGx6CjQwNTEKNDA1Mgo=")
	require.Contains(t, msg, "nachher: 4051, 4052")
}

func TestEmailNotifier_Notify(t *testing.T) {
	var subjects []string
	n := &EmailNotifier{
		From:       "etl@example.ch",
		Receivers:  []string{"ops@example.ch"},
		OnlyErrors: true,
		sendMail: func(_ context.Context, _ []string, msg []byte) error {
			for _, line := range strings.Split(string(msg), "\r\n") {
				if strings.HasPrefix(line, "Subject: ") {
					subjects = append(subjects, strings.TrimPrefix(line, "Subject: "))
				}
			}
			return nil
		},
	}
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, &Result{Job: &Job{Name: "ok"}}))
	require.NoError(t, n.Notify(ctx, &Result{Job: &Job{Name: "parkhaus"}, Error: errors.New("boom")}))
	require.Equal(t, []string{"[ETL] parkhaus failed"}, subjects)
}

func TestEmailNotifier_Errors(t *testing.T) {
	n := &EmailNotifier{From: "etl@example.ch"}
	require.Error(t, n.Send(context.Background(), Message{Subject: "x"}))

	n.Receivers = []string{"ops@example.ch"}
	n.sendMail = func(context.Context, []string, []byte) error { return errors.New("421 busy") }
	require.Error(t, n.Send(context.Background(), Message{Subject: "x"}))
}
