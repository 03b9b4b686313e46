package etl

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/changetracking"
)

// Job defines how to turn one source into a published artifact.
type Job struct {
	// Name is the job's name used in logs and notifications.
	Name string

	// Source is handed to the Extractor: a local path, URL or remote FTP path.
	Source    string
	Extractor Extractor

	Encoding        encoding.Encoding
	Parser          Parser
	SkipLeadingRows int
	Preprocessor    Preprocessor
	Projector       Projector

	// Header is written as the first row of Output.
	Header []string
	// Output is the local artifact path written by the default loader.
	Output string
	Loader Loader

	// Target publishes Output when set.
	Target *Target

	Notifier Notifier
}

// Target is where an artifact is published.
type Target struct {
	RemoteDir string
	DatasetID string

	// Method decides whether the artifact changed; hash by default.
	Method changetracking.Method
	// Embargo gates publishing on the artifact's embargo descriptor.
	Embargo bool
}

// Preprocessor runs before projection. The returned context is passed to
// the Projector, so it can carry values derived from the source.
type Preprocessor func(ctx context.Context, source string) (context.Context, error)

// Projector transforms a source record into an output record.
// Returning a nil record skips the row.
type Projector func(context.Context, []string) ([]string, error)

func identity(_ context.Context, r []string) ([]string, error) {
	return r, nil
}

func (j *Job) setDefaults() error {
	if j.Extractor == nil {
		j.Extractor = &FileExtractor{}
	}
	if j.Parser == nil {
		j.Parser = CSVParser()
	}
	if j.Projector == nil {
		j.Projector = identity
	}
	if j.Loader == nil {
		if j.Output == "" {
			return xerrors.New("either Output or Loader is required")
		}
		j.Loader = &CSVLoader{Path: j.Output, Header: j.Header}
	}
	if j.Target != nil {
		if j.Output == "" {
			return xerrors.New("a job with a target needs Output")
		}
		if j.Target.Method == "" {
			j.Target.Method = changetracking.Hash
		}
	}
	return nil
}

func (j *Job) run(ctx context.Context, p *Publisher) *Result {
	r := &Result{Job: j}

	r.Rows, r.Error = j.process(ctx)
	if r.Error != nil || j.Target == nil {
		return r
	}

	r.Published, r.Error = p.Publish(ctx, j.Output, *j.Target)

	return r
}

func (j *Job) process(ctx context.Context) (int, error) {
	l := log.Ctx(ctx)

	r, closer, err := j.Extractor.Extract(ctx, j.Source)
	if err != nil {
		return 0, xerrors.Errorf("failed to extract: %w", err)
	}
	defer closer()

	if j.Encoding != nil {
		r = transform.NewReader(r, j.Encoding.NewDecoder())
	}

	source, err := j.Parser(ctx, r)
	if err != nil {
		l.Error().Err(err).Msg("failed to parse source")
		return 0, xerrors.Errorf("failed to parse: %w", err)
	}
	if j.SkipLeadingRows > len(source) {
		return 0, xerrors.Errorf("cannot skip %d rows of %d", j.SkipLeadingRows, len(source))
	}
	source = source[j.SkipLeadingRows:]

	if j.Preprocessor != nil {
		ctx, err = j.Preprocessor(ctx, j.Source)
		if err != nil {
			return 0, xerrors.Errorf("failed to preprocess: %w", err)
		}
	}

	records := make([][]string, 0, len(source))

	for i, row := range source {
		rec, err := j.Projector(ctx, row)
		if err != nil {
			l.Error().Err(err).Int("row", i).Msgf("failed to project row %d", i+j.SkipLeadingRows)
			return 0, xerrors.Errorf("failed to project row %d (line %d): %w", i, i+j.SkipLeadingRows, err)
		}
		if rec == nil {
			continue
		}

		records = append(records, rec)
	}

	l.Debug().Int("rows", len(records)).Msg("projected")

	if err := j.Loader.Load(ctx, records); err != nil {
		return 0, xerrors.Errorf("failed to load: %w", err)
	}

	return len(records), nil
}
