// Package changetracking decides whether an output artifact changed since
// its last successful publish.
//
// For every artifact the Store keeps one record per fingerprint method in its
// directory. The record name is derived from the absolute artifact path, so
// distinct artifacts never share a record. A record exists iff the artifact
// has been processed successfully at least once.
package changetracking

import (
	"context"
	"encoding/hex"
	"errors"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/highwayhash"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/retry"
)

// Method selects how an artifact is fingerprinted.
type Method string

const (
	// Hash fingerprints the CRC-32 of the file content.
	Hash Method = "hash"

	// ModificationDate fingerprints the file's modification time.
	ModificationDate Method = "modification_date"
)

var (
	// ErrUnknownMethod is returned for methods other than Hash and ModificationDate.
	ErrUnknownMethod = errors.New("unknown fingerprint method")

	// ErrMalformedRecord is returned when a record cannot be parsed.
	ErrMalformedRecord = errors.New("malformed fingerprint record")
)

// DefaultDir is the record directory used when none is configured.
const DefaultDir = "change_tracking"

// pathKey keys the hash deriving record names from artifact paths.
var pathKey = []byte("opendatabs-etl-change-tracking!!")

// Store keeps fingerprint records in Dir.
type Store struct {
	Dir string

	// Retry absorbs transient filesystem errors, e.g. on network shares.
	Retry retry.Policy
}

// NewStore returns a Store keeping its records in dir.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}

	return &Store{
		Dir: dir,
		Retry: retry.Policy{
			Attempts:  6,
			Delay:     600 * time.Second,
			Backoff:   1,
			Retryable: isTransientFS,
		},
	}
}

// isTransientFS retries filesystem errors other than a missing artifact.
func isTransientFS(err error) bool {
	var pe *fs.PathError
	return errors.As(err, &pe) && !errors.Is(err, fs.ErrNotExist)
}

// RecordPath returns the record file for path and method.
func (s *Store) RecordPath(path string, method Method) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", xerrors.Errorf("failed to resolve %s: %w", path, err)
	}

	sum := highwayhash.Sum([]byte(abs), pathKey)
	name := hex.EncodeToString(sum[:])

	switch method {
	case Hash:
		return filepath.Join(s.Dir, name+".sfv"), nil
	case ModificationDate:
		return filepath.Join(s.Dir, name+".mtime"), nil
	default:
		return "", xerrors.Errorf("%q: %w", method, ErrUnknownMethod)
	}
}

// HasChanged reports whether path differs from its recorded fingerprint. A
// missing record counts as a change. With updateOnChange the record is
// rewritten whenever a change is reported.
func (s *Store) HasChanged(ctx context.Context, path string, method Method, updateOnChange bool) (bool, error) {
	l := log.Ctx(ctx)

	if _, err := os.Stat(path); err != nil {
		return false, xerrors.Errorf("file %s does not exist: %w", path, err)
	}

	rec, err := s.RecordPath(path, method)
	if err != nil {
		return false, err
	}

	return retry.DoValue(ctx, s.Retry, func(ctx context.Context) (bool, error) {
		stored, err := os.ReadFile(rec)
		if errors.Is(err, fs.ErrNotExist) {
			l.Info().Str("path", path).Str("method", string(method)).Msg("no fingerprint recorded yet")
			if updateOnChange {
				if err := s.write(path, rec, method); err != nil {
					return false, err
				}
			}
			return true, nil
		}
		if err != nil {
			return false, xerrors.Errorf("failed to read record %s: %w", rec, err)
		}

		current, err := fingerprint(path, method)
		if err != nil {
			return false, err
		}

		same, err := matches(stored, current, method)
		if err != nil {
			return false, xerrors.Errorf("%s: %w", rec, err)
		}
		if same {
			l.Info().Str("path", path).Str("method", string(method)).Msg("file unchanged")
			return false, nil
		}

		l.Info().Str("path", path).Str("method", string(method)).Msg("file changed")
		if updateOnChange {
			if err := s.write(path, rec, method); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}

// Update records the current fingerprint of path.
func (s *Store) Update(ctx context.Context, path string, method Method) error {
	rec, err := s.RecordPath(path, method)
	if err != nil {
		return err
	}

	return retry.Do(ctx, s.Retry, func(context.Context) error {
		return s.write(path, rec, method)
	})
}

func (s *Store) write(path, rec string, method Method) error {
	content, err := fingerprint(path, method)
	if err != nil {
		return err
	}
	return writeAtomic(rec, content)
}

func writeAtomic(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return xerrors.Errorf("failed to create temp record: %w", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return xerrors.Errorf("failed to write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return xerrors.Errorf("failed to close temp record: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return xerrors.Errorf("failed to rename temp record: %w", err)
	}
	return nil
}

// CRC32 returns the CRC-32 (IEEE) checksum of the file at path.
func CRC32(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, xerrors.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return 0, xerrors.Errorf("failed to read %s: %w", path, err)
	}
	return h.Sum32(), nil
}

// SameContent reports whether two files have the same CRC-32.
func SameContent(a, b string) (bool, error) {
	ca, err := CRC32(a)
	if err != nil {
		return false, err
	}
	cb, err := CRC32(b)
	if err != nil {
		return false, err
	}
	return ca == cb, nil
}
