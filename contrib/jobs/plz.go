package jobs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl"
	"github.com/opendatabs/etl/changetracking"
)

// Mailer sends operator emails.
type Mailer interface {
	Send(ctx context.Context, m etl.Message) error
}

// PLZWatch tracks the set of postal codes seen in a job's output and mails
// operators when it changes.
type PLZWatch struct {
	// Known is the last acknowledged set (plz.csv).
	Known string
	// Candidate receives the current set (new_plz.csv).
	Candidate string

	Mailer  Mailer
	Subject string
}

// Loader hands records to next and then checks the postal codes in column.
func (w *PLZWatch) Loader(next etl.Loader, column int) etl.Loader {
	return &plzLoader{watch: w, next: next, column: column}
}

type plzLoader struct {
	watch  *PLZWatch
	next   etl.Loader
	column int
}

func (l *plzLoader) Load(ctx context.Context, records [][]string) error {
	if err := l.next.Load(ctx, records); err != nil {
		return err
	}

	codes := make([]string, 0, len(records))
	for i, r := range records {
		if l.column >= len(r) {
			return xerrors.Errorf("row %d has no column %d", i, l.column)
		}
		codes = append(codes, r[l.column])
	}

	_, err := l.watch.Check(ctx, codes)
	return err
}

// Check writes the set of codes to Candidate and compares it with Known.
// When they differ it mails the old and new sets and replaces Known.
func (w *PLZWatch) Check(ctx context.Context, codes []string) (bool, error) {
	current := uniqueSorted(codes)
	content := "plz\n" + strings.Join(current, "\n") + "\n"
	if err := os.WriteFile(w.Candidate, []byte(content), 0o644); err != nil {
		return false, xerrors.Errorf("failed to write %s: %w", w.Candidate, err)
	}

	var previous []string
	switch _, err := os.Stat(w.Known); {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return false, xerrors.Errorf("failed to stat %s: %w", w.Known, err)
	default:
		same, err := changetracking.SameContent(w.Candidate, w.Known)
		if err != nil {
			return false, err
		}
		if same {
			return false, nil
		}
		if previous, err = readCodes(w.Known); err != nil {
			return false, err
		}
	}

	added, removed := difference(previous, current)
	log.Ctx(ctx).Warn().Strs("added", added).Strs("removed", removed).Msg("postal codes changed")

	subject := w.Subject
	if subject == "" {
		subject = "Postal codes changed"
	}
	body := fmt.Sprintf("Before: %s\nAfter: %s\nAdded: %s\nRemoved: %s\n",
		strings.Join(previous, ", "), strings.Join(current, ", "),
		strings.Join(added, ", "), strings.Join(removed, ", "))

	if w.Mailer != nil {
		msg := etl.Message{
			Subject:     subject,
			Body:        body,
			Attachments: []etl.Attachment{{Name: "new_plz.csv", Content: []byte(content)}},
		}
		if err := w.Mailer.Send(ctx, msg); err != nil {
			return true, xerrors.Errorf("failed to notify postal code change: %w", err)
		}
	}

	if err := os.WriteFile(w.Known, []byte(content), 0o644); err != nil {
		return true, xerrors.Errorf("failed to write %s: %w", w.Known, err)
	}
	return true, nil
}

func uniqueSorted(values []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func readCodes(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var codes []string
	s := bufio.NewScanner(f)
	for first := true; s.Scan(); first = false {
		if first {
			continue
		}
		codes = append(codes, s.Text())
	}
	if err := s.Err(); err != nil {
		return nil, xerrors.Errorf("failed to read %s: %w", path, err)
	}
	return uniqueSorted(codes), nil
}

func difference(before, after []string) (added, removed []string) {
	in := func(set []string, v string) bool {
		i := sort.SearchStrings(set, v)
		return i < len(set) && set[i] == v
	}
	for _, v := range after {
		if !in(before, v) {
			added = append(added, v)
		}
	}
	for _, v := range before {
		if !in(after, v) {
			removed = append(removed, v)
		}
	}
	return added, removed
}
