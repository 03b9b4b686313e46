package changetracking

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// fingerprint renders the record line for path.
//
//	hash:              <absolute_path> <hex_crc32>
//	modification_date: <epoch_float>,<iso8601>,<absolute_path>
func fingerprint(path string, method Method) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", xerrors.Errorf("failed to resolve %s: %w", path, err)
	}

	switch method {
	case Hash:
		sum, err := CRC32(abs)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %08x\n", abs, sum), nil

	case ModificationDate:
		info, err := os.Stat(abs)
		if err != nil {
			return "", xerrors.Errorf("failed to stat %s: %w", abs, err)
		}
		mt := info.ModTime()
		return fmt.Sprintf("%s,%s,%s\n", epoch(mt), mt.Format(time.RFC3339Nano), abs), nil

	default:
		return "", xerrors.Errorf("%q: %w", method, ErrUnknownMethod)
	}
}

func epoch(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', -1, 64)
}

// matches compares a stored record with the current one: the checksum for
// Hash, the epoch string for ModificationDate.
func matches(stored []byte, current string, method Method) (bool, error) {
	switch method {
	case Hash:
		_, storedSum, err := parseSFV(string(stored))
		if err != nil {
			return false, err
		}
		_, currentSum, err := parseSFV(current)
		if err != nil {
			return false, err
		}
		return strings.EqualFold(storedSum, currentSum), nil

	case ModificationDate:
		storedEpoch, err := parseMTime(string(stored))
		if err != nil {
			return false, err
		}
		currentEpoch, err := parseMTime(current)
		if err != nil {
			return false, err
		}
		return storedEpoch == currentEpoch, nil

	default:
		return false, xerrors.Errorf("%q: %w", method, ErrUnknownMethod)
	}
}

// parseSFV splits "<path> <crc>" at the last space; paths may contain spaces.
func parseSFV(line string) (string, string, error) {
	line = strings.TrimSpace(line)
	i := strings.LastIndexByte(line, ' ')
	if i <= 0 || len(line)-i-1 != 8 {
		return "", "", xerrors.Errorf("%q: %w", line, ErrMalformedRecord)
	}
	return line[:i], line[i+1:], nil
}

func parseMTime(line string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(line), ",", 3)
	if len(parts) != 3 {
		return "", xerrors.Errorf("%q: %w", line, ErrMalformedRecord)
	}
	if _, err := strconv.ParseFloat(parts[0], 64); err != nil {
		return "", xerrors.Errorf("%q: %w", line, ErrMalformedRecord)
	}
	return parts[0], nil
}
