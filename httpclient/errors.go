package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/go-resty/resty/v2"
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := string(e.Body)
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s %s returned %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), body)
}

func newStatusError(resp *resty.Response) *StatusError {
	e := &StatusError{StatusCode: resp.StatusCode(), Body: resp.Body()}
	if resp.Request != nil {
		e.Method = resp.Request.Method
		e.URL = resp.Request.URL
	}
	return e
}

// RaiseForStatus returns a *StatusError when resp is not 2xx.
func RaiseForStatus(resp *resty.Response) error {
	if resp == nil {
		return errors.New("no response")
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return newStatusError(resp)
	}
	return nil
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// IsTransient reports whether err is worth retrying: failed dials and DNS
// lookups, connection resets, timeouts and truncated responses, proxy
// failures, 429/5xx responses and TLS certificate verification failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return isRetryableStatus(se.StatusCode)
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var op *net.OpError
	if errors.As(err, &op) && (op.Op == "dial" || op.Op == "proxyconnect") {
		return true
	}

	return isCertificateError(err)
}

func isCertificateError(err error) bool {
	var (
		verr *tls.CertificateVerificationError
		uerr x509.UnknownAuthorityError
		cerr x509.CertificateInvalidError
		herr x509.HostnameError
	)
	return errors.As(err, &verr) || errors.As(err, &uerr) || errors.As(err, &cerr) || errors.As(err, &herr)
}
