package etl

import (
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
)

// Option configures ETL.
type Option interface {
	apply(*etl) error
}

type optionFunc func(*etl) error

func (f optionFunc) apply(e *etl) error {
	return f(e)
}

// WithPrettyLogging configures ETL to print human friendly logs.
func WithPrettyLogging() Option {
	return optionFunc(func(e *etl) error {
		e.prettyLogging = true
		return nil
	})
}

// WithLogLevel sets the log level: trace, debug, info, warn or error.
func WithLogLevel(level string) Option {
	return optionFunc(func(e *etl) error {
		l, err := zerolog.ParseLevel(level)
		if err != nil {
			return xerrors.Errorf("invalid log level %q: %w", level, err)
		}
		e.logLevel = l
		return nil
	})
}

// WithPublisher sets the publisher used by jobs with a Target.
func WithPublisher(p *Publisher) Option {
	return optionFunc(func(e *etl) error {
		if p == nil {
			return xerrors.New("publisher is nil")
		}
		e.publisher = p
		return nil
	})
}

// WithNotifier sets the notifier of jobs that have none.
func WithNotifier(n Notifier) Option {
	return optionFunc(func(e *etl) error {
		e.notifier = n
		return nil
	})
}
