package etl

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// Message is an operator email.
type Message struct {
	Subject     string
	Body        string
	Attachments []Attachment
}

// Attachment is a file attached to a Message.
type Attachment struct {
	Name    string
	Content []byte
}

// EmailNotifier mails operators through an SMTP relay.
type EmailNotifier struct {
	Server    string
	Port      int
	User      string
	Password  string
	From      string
	Receivers []string

	// StartTLS upgrades the connection before authenticating.
	StartTLS bool
	// OnlyErrors suppresses mails about successful runs.
	OnlyErrors bool
	Timeout    time.Duration

	sendMail func(ctx context.Context, to []string, msg []byte) error
}

// Notify mails the result of a job.
func (n *EmailNotifier) Notify(ctx context.Context, r *Result) error {
	if n.OnlyErrors && r.Error == nil {
		return nil
	}

	subject := fmt.Sprintf("[ETL] %s succeeded", r.Job.Name)
	if r.Error != nil {
		subject = fmt.Sprintf("[ETL] %s failed", r.Job.Name)
	}

	return n.Send(ctx, Message{Subject: subject, Body: r.text()})
}

// Send mails m to all receivers.
func (n *EmailNotifier) Send(ctx context.Context, m Message) error {
	if len(n.Receivers) == 0 {
		return xerrors.New("no email receivers")
	}

	msg, err := n.buildMessage(m)
	if err != nil {
		return err
	}

	send := n.sendMail
	if send == nil {
		send = n.sendSMTP
	}
	if err := send(ctx, n.Receivers, msg); err != nil {
		return xerrors.Errorf("failed to send %q: %w", m.Subject, err)
	}

	log.Ctx(ctx).Info().Str("subject", m.Subject).Strs("to", n.Receivers).Msg("email sent")
	return nil
}

func (n *EmailNotifier) buildMessage(m Message) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", n.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(n.Receivers, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(m.Attachments) == 0 {
		buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		buf.WriteString(m.Body)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=UTF-8"}})
	if err != nil {
		return nil, xerrors.Errorf("failed to create body part: %w", err)
	}
	if _, err := part.Write([]byte(m.Body)); err != nil {
		return nil, xerrors.Errorf("failed to write body part: %w", err)
	}

	for _, a := range m.Attachments {
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {contentType(a.Name)},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Name})},
		})
		if err != nil {
			return nil, xerrors.Errorf("failed to create attachment %s: %w", a.Name, err)
		}
		enc := base64.NewEncoder(base64.StdEncoding, part)
		if _, err := enc.Write(a.Content); err != nil {
			return nil, xerrors.Errorf("failed to write attachment %s: %w", a.Name, err)
		}
		if err := enc.Close(); err != nil {
			return nil, xerrors.Errorf("failed to write attachment %s: %w", a.Name, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, xerrors.Errorf("failed to close message: %w", err)
	}
	return buf.Bytes(), nil
}

func contentType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func (n *EmailNotifier) sendSMTP(ctx context.Context, to []string, msg []byte) error {
	timeout := n.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	addr := net.JoinHostPort(n.Server, fmt.Sprint(n.Port))

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return xerrors.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, n.Server)
	if err != nil {
		return xerrors.Errorf("failed to create SMTP client: %w", err)
	}
	defer c.Close()

	if n.StartTLS {
		if err := c.StartTLS(&tls.Config{ServerName: n.Server, MinVersion: tls.VersionTLS12}); err != nil {
			return xerrors.Errorf("failed to start TLS: %w", err)
		}
	}

	if n.User != "" && n.Password != "" {
		if err := c.Auth(smtp.PlainAuth("", n.User, n.Password, n.Server)); err != nil {
			return xerrors.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := c.Mail(n.From); err != nil {
		return xerrors.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return xerrors.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return xerrors.Errorf("failed to start message: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return xerrors.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return xerrors.Errorf("failed to close message: %w", err)
	}

	return c.Quit()
}
