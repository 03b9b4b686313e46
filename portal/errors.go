package portal

import (
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

// ErrDatasetNotFound is returned when no dataset matches a dataset ID.
var ErrDatasetNotFound = errors.New("dataset not found")

// errorKeyAlreadyQueued is reported when a publish is already queued or processing.
const errorKeyAlreadyQueued = "InvalidDatasetStatusPreconditionException"

// APIError is a non-2xx reply of the management API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	ErrorKey   string
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrorKey != "" {
		return fmt.Sprintf("%s %s returned %d (%s): %s", e.Method, e.URL, e.StatusCode, e.ErrorKey, e.Message)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
}

func newAPIError(resp *resty.Response) *APIError {
	e := &APIError{StatusCode: resp.StatusCode()}
	if resp.Request != nil {
		e.Method = resp.Request.Method
		e.URL = resp.Request.URL
	}

	var body struct {
		ErrorKey string `json:"error_key"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		e.ErrorKey = body.ErrorKey
		e.Message = body.Message
	}
	if e.Message == "" {
		e.Message = resp.String()
	}

	return e
}

func checkStatus(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	return newAPIError(resp)
}
