package etl

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
)

// ETL runs jobs in the order they were added.
type ETL interface {
	AddJob(context.Context, *Job) error
	MustAddJob(context.Context, *Job)
	Run(context.Context) error
}

// New builds a new ETL.
func New(opts ...Option) (ETL, error) {
	e := &etl{
		jobs:     []*Job{},
		logLevel: zerolog.InfoLevel,
	}

	for _, o := range opts {
		if err := o.apply(e); err != nil {
			return nil, xerrors.Errorf("failed to apply option: %w", err)
		}
	}

	var w io.Writer = os.Stderr
	if e.prettyLogging {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	e.logger = zerolog.New(w).Level(e.logLevel).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &e.logger

	return e, nil
}

type etl struct {
	jobs []*Job
	mu   sync.RWMutex

	publisher *Publisher
	notifier  Notifier

	logger        zerolog.Logger
	logLevel      zerolog.Level
	prettyLogging bool
}

func (e *etl) AddJob(ctx context.Context, j *Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if j.Name == "" {
		return xerrors.New("job name is required")
	}
	if j.Target != nil && e.publisher == nil {
		return xerrors.Errorf("job %s has a target but no publisher is configured", j.Name)
	}

	if err := j.setDefaults(); err != nil {
		return xerrors.Errorf("invalid job %s: %w", j.Name, err)
	}
	if j.Notifier == nil {
		j.Notifier = e.notifier
	}

	e.jobs = append(e.jobs, j)

	return nil
}

func (e *etl) MustAddJob(ctx context.Context, j *Job) {
	if err := e.AddJob(ctx, j); err != nil {
		panic(err)
	}
}

// Run executes every job. A failing job does not stop the following ones;
// all failures are returned together.
func (e *etl) Run(ctx context.Context) error {
	ctx = withStartedTime(e.logger.WithContext(ctx))

	e.mu.RLock()
	defer e.mu.RUnlock()

	e.logger.Info().Int("jobs", len(e.jobs)).Msg("etl started")

	var result *multierror.Error

	for _, j := range e.jobs {
		l := e.logger.With().Str("job", j.Name).Logger()
		jctx := l.WithContext(ctx)

		r := j.run(jctx, e.publisher)
		if r.Error != nil {
			l.Error().Err(r.Error).Msg("job failed")
			result = multierror.Append(result, xerrors.Errorf("job %s: %w", j.Name, r.Error))
		} else {
			l.Info().Int("rows", r.Rows).Bool("published", r.Published).Msg("job finished")
		}

		if j.Notifier != nil {
			if err := j.Notifier.Notify(jctx, r); err != nil {
				l.Error().Err(err).Msg("failed to notify")
			}
		}
	}

	if started, ok := startedTimeFrom(ctx); ok {
		e.logger.Info().Dur("elapsed", elapsed(started)).Msg("etl finished")
	}

	return result.ErrorOrNil()
}
