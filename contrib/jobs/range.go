package jobs

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl"
)

// RangeCheck segregates rows whose numeric Column lies outside [Min, Max].
// Offending rows are written to Rejected and mailed; the remaining rows are
// loaded as usual.
type RangeCheck struct {
	Column   int
	Min, Max float64

	Header   []string
	Rejected string

	Mailer  Mailer
	Subject string
}

// Loader filters records before handing them to next.
func (c *RangeCheck) Loader(next etl.Loader) etl.Loader {
	return &rangeLoader{check: c, next: next}
}

type rangeLoader struct {
	check *RangeCheck
	next  etl.Loader
}

func (l *rangeLoader) Load(ctx context.Context, records [][]string) error {
	ok, rejected, err := l.check.Split(records)
	if err != nil {
		return err
	}
	if err := l.next.Load(ctx, ok); err != nil {
		return err
	}
	if len(rejected) == 0 {
		return nil
	}

	return l.check.report(ctx, rejected)
}

// Split partitions records into rows within range and rows outside it.
// Empty values are within range.
func (c *RangeCheck) Split(records [][]string) (ok, rejected [][]string, err error) {
	for i, r := range records {
		if c.Column >= len(r) {
			return nil, nil, xerrors.Errorf("row %d has no column %d", i, c.Column)
		}

		s := strings.TrimSpace(r[c.Column])
		if s == "" {
			ok = append(ok, r)
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, nil, xerrors.Errorf("row %d: column %d is not a number: %w", i, c.Column, err)
		}

		if v < c.Min || v > c.Max {
			rejected = append(rejected, r)
			continue
		}
		ok = append(ok, r)
	}
	return ok, rejected, nil
}

func (c *RangeCheck) report(ctx context.Context, rejected [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if len(c.Header) > 0 {
		_ = w.Write(c.Header)
	}
	if err := w.WriteAll(rejected); err != nil {
		return xerrors.Errorf("failed to encode rejected rows: %w", err)
	}

	if err := os.WriteFile(c.Rejected, buf.Bytes(), 0o644); err != nil {
		return xerrors.Errorf("failed to write %s: %w", c.Rejected, err)
	}
	log.Ctx(ctx).Warn().Int("rows", len(rejected)).Str("path", c.Rejected).Msg("rows out of range")

	if c.Mailer == nil {
		return nil
	}

	subject := c.Subject
	if subject == "" {
		subject = "Values out of range"
	}
	msg := etl.Message{
		Subject: subject,
		Body: fmt.Sprintf("%d rows have values outside [%g, %g] and were not published.\n",
			len(rejected), c.Min, c.Max),
		Attachments: []etl.Attachment{{Name: "rejected.csv", Content: buf.Bytes()}},
	}
	if err := c.Mailer.Send(ctx, msg); err != nil {
		return xerrors.Errorf("failed to notify rejected rows: %w", err)
	}
	return nil
}
