// Package coverage keeps the declared temporal coverage of portal datasets in
// line with their contents.
//
// The analyzer looks at the finest-grained temporal fields of a dataset,
// asks the portal for the smallest and largest value of each and writes the
// resulting period into the dcat metadata when it differs from the declared
// one. Running it twice without a data change is a no-op.
package coverage

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/portal"
)

// Metadata fields written by the analyzer.
const (
	Template      = "dcat"
	PeriodField   = "temporal"
	StartField    = "temporal_coverage_start_date"
	EndField      = "temporal_coverage_end_date"
	periodDivider = "/"
)

// Portal is what the analyzer needs from the portal.
type Portal interface {
	ResolveUID(ctx context.Context, datasetID string) (string, error)
	Fields(ctx context.Context, datasetID string) ([]portal.Field, error)
	FirstValue(ctx context.Context, datasetID, field string, desc bool) (string, bool, error)
	GetMetadata(ctx context.Context, uid string) (portal.Metadata, error)
	SetMetadata(ctx context.Context, uid string, patch portal.Metadata) error
	SetGeneralAccessPolicy(ctx context.Context, uid string, public bool) (bool, error)
	Publish(ctx context.Context, uid string) error
}

// Result describes one analysis.
type Result struct {
	DatasetID   string
	Granularity Granularity
	Fields      []string

	// Start and End are empty when the dataset has no temporal values.
	Start    string
	End      string
	Previous string

	Changed    bool
	MadePublic bool
}

// Period returns "start/end".
func (r *Result) Period() string {
	if r.Start == "" {
		return ""
	}
	return r.Start + periodDivider + r.End
}

// Analyzer computes and writes temporal coverage.
type Analyzer struct {
	Portal Portal

	// DryRun computes results without writing metadata.
	DryRun bool
}

// NewAnalyzer builds an Analyzer on p.
func NewAnalyzer(p Portal) *Analyzer {
	return &Analyzer{Portal: p}
}

// Analyze updates the temporal coverage of one dataset.
func (a *Analyzer) Analyze(ctx context.Context, datasetID string) (*Result, error) {
	l := log.Ctx(ctx).With().Str("dataset_id", datasetID).Logger()

	fields, err := a.Portal.Fields(ctx, datasetID)
	if err != nil {
		return nil, xerrors.Errorf("failed to get fields: %w", err)
	}

	res := &Result{DatasetID: datasetID}
	res.Granularity, res.Fields = Classify(fields)
	if res.Granularity == None {
		l.Debug().Msg("no temporal fields")
		return res, nil
	}

	var start, end time.Time
	for _, f := range res.Fields {
		lo, hi, ok, err := a.bounds(ctx, datasetID, f, res.Granularity)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if start.IsZero() || lo.Before(start) {
			start = lo
		}
		if end.IsZero() || hi.After(end) {
			end = hi
		}
	}
	if start.IsZero() {
		l.Debug().Strs("fields", res.Fields).Msg("temporal fields are empty")
		return res, nil
	}
	res.Start = start.Format(dateLayout)
	res.End = end.Format(dateLayout)

	uid, err := a.Portal.ResolveUID(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	md, err := a.Portal.GetMetadata(ctx, uid)
	if err != nil {
		return nil, err
	}
	res.Previous = md.String(Template, PeriodField)

	if samePeriod(res.Previous, res.Start, res.End) {
		l.Info().Str("period", res.Period()).Msg("temporal coverage unchanged")
		return res, nil
	}
	res.Changed = true

	l.Info().Str("previous", res.Previous).Str("period", res.Period()).Str("granularity", res.Granularity.String()).
		Msg("temporal coverage changed")
	if a.DryRun {
		return res, nil
	}

	patch := portal.Metadata{Template: {
		PeriodField: res.Period(),
		StartField:  res.Start,
		EndField:    res.End,
	}}
	if err := a.Portal.SetMetadata(ctx, uid, patch); err != nil {
		return nil, err
	}

	res.MadePublic, err = a.Portal.SetGeneralAccessPolicy(ctx, uid, true)
	if err != nil {
		return nil, err
	}
	if err := a.Portal.Publish(ctx, uid); err != nil {
		return nil, err
	}

	return res, nil
}

func (a *Analyzer) bounds(ctx context.Context, datasetID, field string, g Granularity) (lo, hi time.Time, ok bool, err error) {
	first, ok, err := a.Portal.FirstValue(ctx, datasetID, field, false)
	if err != nil || !ok {
		return lo, hi, false, err
	}
	last, ok, err := a.Portal.FirstValue(ctx, datasetID, field, true)
	if err != nil || !ok {
		return lo, hi, false, err
	}

	if lo, err = Canonicalize(g, first, false); err != nil {
		return lo, hi, false, xerrors.Errorf("field %s: %w", field, err)
	}
	if hi, err = Canonicalize(g, last, true); err != nil {
		return lo, hi, false, xerrors.Errorf("field %s: %w", field, err)
	}
	return lo, hi, true, nil
}

// samePeriod compares a declared "start/end" period by its date portions.
func samePeriod(declared, start, end string) bool {
	from, to, ok := strings.Cut(declared, periodDivider)
	if !ok {
		return false
	}
	return datePart(from) == start && datePart(to) == end
}

func datePart(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > len(dateLayout) {
		return s[:len(dateLayout)]
	}
	return s
}
