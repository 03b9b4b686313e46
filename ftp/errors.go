package ftp

import (
	"errors"
	"io"
	"io/fs"
	"net"
	"net/textproto"
	"strings"
	"syscall"
)

// ErrNoMatch is returned by Download when a pattern selects no file.
var ErrNoMatch = errors.New("no file matches")

// IsTransient reports whether an FTP operation failing with err should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *textproto.Error
	if errors.As(err, &te) {
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	for _, target := range []error{
		syscall.EPIPE,
		syscall.ECONNRESET,
		syscall.ECONNREFUSED,
		io.EOF,
		io.ErrUnexpectedEOF,
		fs.ErrNotExist,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

func isExists(err error) bool {
	var te *textproto.Error
	if !errors.As(err, &te) {
		return false
	}
	return te.Code == 521 || strings.Contains(strings.ToLower(te.Msg), "exists")
}
