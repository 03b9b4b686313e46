// Package embargo decides whether an artifact may be published yet.
//
// An artifact may carry a descriptor file next to it holding the earliest
// publication time as an ISO 8601 datetime on its first line. Naive values
// are in Europe/Zurich.
package embargo

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// Suffix replaces the artifact's extension to name its descriptor.
const Suffix = "_embargo.txt"

// ErrMalformed is returned when a descriptor is empty or not a datetime.
var ErrMalformed = errors.New("malformed embargo descriptor")

// Location is the zone of naive descriptor values.
var Location = mustLoadLocation("Europe/Zurich")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Gate checks embargo descriptors against a clock.
type Gate struct {
	Now func() time.Time
}

// DefaultGate uses the wall clock.
var DefaultGate = &Gate{Now: time.Now}

// DescriptorPath derives the descriptor path of an artifact:
// data/out.csv -> data/out_embargo.txt.
func DescriptorPath(artifact string) string {
	return strings.TrimSuffix(artifact, filepath.Ext(artifact)) + Suffix
}

// IsOver reports whether the embargo of artifact has passed. An empty
// descriptor path is derived with DescriptorPath.
func IsOver(ctx context.Context, artifact, descriptor string) (bool, error) {
	return DefaultGate.IsOver(ctx, artifact, descriptor)
}

// IsOver reports whether now is strictly past the descriptor's time.
// An unreadable or malformed descriptor is an error.
func (g *Gate) IsOver(ctx context.Context, artifact, descriptor string) (bool, error) {
	if descriptor == "" {
		descriptor = DescriptorPath(artifact)
	}

	until, err := Read(descriptor)
	if err != nil {
		return false, err
	}

	now := g.Now().In(Location)
	over := now.After(until)

	log.Ctx(ctx).Debug().
		Str("path", artifact).
		Time("until", until).
		Bool("over", over).
		Msg("checked embargo")

	return over, nil
}

// Read parses the first line of a descriptor.
func Read(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, xerrors.Errorf("failed to open embargo descriptor: %w", err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	if !s.Scan() {
		if err := s.Err(); err != nil {
			return time.Time{}, xerrors.Errorf("failed to read embargo descriptor %s: %w", path, err)
		}
		return time.Time{}, xerrors.Errorf("%s is empty: %w", path, ErrMalformed)
	}

	t, err := Parse(s.Text())
	if err != nil {
		return time.Time{}, xerrors.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse parses an ISO 8601 datetime. Values without offset are in Location.
func Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(strings.TrimPrefix(value, "\ufeff"))

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.In(Location), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, Location); err == nil {
			return t, nil
		}
	}

	return time.Time{}, xerrors.Errorf("%q: %w", value, ErrMalformed)
}
