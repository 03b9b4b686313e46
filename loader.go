package etl

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/realtime"
)

// Loader writes projected records to a destination.
type Loader interface {
	Load(context.Context, [][]string) error
}

// CSVLoader writes records as a UTF-8, comma separated file with a header row.
type CSVLoader struct {
	Path   string
	Header []string
}

// Load writes records to Path, replacing it.
func (l *CSVLoader) Load(ctx context.Context, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return xerrors.Errorf("failed to create directory of %s: %w", l.Path, err)
	}

	f, err := os.Create(l.Path)
	if err != nil {
		return xerrors.Errorf("failed to create %s: %w", l.Path, err)
	}

	w := csv.NewWriter(f)
	if len(l.Header) > 0 {
		if err := w.Write(l.Header); err != nil {
			f.Close()
			return xerrors.Errorf("failed to write header: %w", err)
		}
	}
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return xerrors.Errorf("failed to write csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return xerrors.Errorf("failed to close %s: %w", l.Path, err)
	}

	log.Ctx(ctx).Info().Str("path", l.Path).Int("rows", len(records)).Msg("artifact written")

	return nil
}

// RealtimeLoader pushes records to a realtime endpoint, naming values by Header.
// Empty values are sent as null.
type RealtimeLoader struct {
	Transport realtime.Transport
	Header    []string
}

// Load pushes records.
func (l *RealtimeLoader) Load(ctx context.Context, records [][]string) error {
	rs := make([]realtime.Record, len(records))
	for i, rec := range records {
		if len(rec) != len(l.Header) {
			return xerrors.Errorf("row %d has %d values for %d columns", i, len(rec), len(l.Header))
		}

		r := make(realtime.Record, len(rec))
		for j, v := range rec {
			if v == "" {
				r[l.Header[j]] = nil
			} else {
				r[l.Header[j]] = v
			}
		}
		rs[i] = r
	}

	if err := l.Transport.Push(ctx, rs); err != nil {
		return xerrors.Errorf("failed to push: %w", err)
	}
	return nil
}

// MultiLoader runs loaders in order.
type MultiLoader []Loader

// Load hands records to every loader and stops at the first failure.
func (m MultiLoader) Load(ctx context.Context, records [][]string) error {
	for _, l := range m {
		if err := l.Load(ctx, records); err != nil {
			return err
		}
	}
	return nil
}
