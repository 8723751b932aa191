// Package graph is a Microsoft Graph client for the drive, site, and user
// endpoints irdrive needs. Requests are retried with backoff and failures
// are classified into sentinel errors.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinels for classified failures. Test with errors.Is.
var (
	ErrBadRequest   = errors.New("graph: bad request")
	ErrUnauthorized = errors.New("graph: unauthorized")
	ErrForbidden    = errors.New("graph: forbidden")
	ErrNotFound     = errors.New("graph: not found")
	ErrConflict     = errors.New("graph: conflict")
	ErrGone         = errors.New("graph: resource gone")
	ErrThrottled    = errors.New("graph: throttled")
	ErrLocked       = errors.New("graph: resource locked")
	ErrServerError  = errors.New("graph: server error")

	// ErrTransport means no response arrived at all, after retries.
	ErrTransport = errors.New("graph: transport failure")

	// ErrUnexpectedStatus covers any other non-2xx status.
	ErrUnexpectedStatus = errors.New("graph: unexpected status")

	// ErrDownloadInterrupted means content stopped flowing to the
	// destination writer partway through a download.
	ErrDownloadInterrupted = errors.New("graph: download interrupted")
)

var statusSentinels = map[int]error{
	http.StatusBadRequest:      ErrBadRequest,
	http.StatusUnauthorized:    ErrUnauthorized,
	http.StatusForbidden:       ErrForbidden,
	http.StatusNotFound:        ErrNotFound,
	http.StatusConflict:        ErrConflict,
	http.StatusGone:            ErrGone,
	http.StatusTooManyRequests: ErrThrottled,
	http.StatusLocked:          ErrLocked,
}

// statusBandwidthExceeded is SharePoint's 509.
const statusBandwidthExceeded = 509

var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
	statusBandwidthExceeded:        true,
}

// GraphError is a non-2xx response. Err is the sentinel it classifies as.
type GraphError struct {
	StatusCode int
	RequestID  string
	Code       string // e.g. "nameAlreadyExists"
	Message    string
	Err        error
}

func (e *GraphError) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, e.Message)
	}

	return fmt.Sprintf("graph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// newGraphError classifies resp, whose body has already been read. When the
// body is a Graph error envelope its code and message replace the raw text.
func newGraphError(resp *http.Response, body []byte) *GraphError {
	ge := &GraphError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		Message:    string(body),
		Err:        classifyStatus(resp.StatusCode),
	}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Code != "" {
		ge.Code = envelope.Error.Code
		ge.Message = envelope.Error.Code + ": " + envelope.Error.Message
	}

	return ge
}

func classifyStatus(code int) error {
	if err, ok := statusSentinels[code]; ok {
		return err
	}

	if code >= http.StatusInternalServerError {
		return ErrServerError
	}

	return ErrUnexpectedStatus
}

func isRetryable(code int) bool {
	return retryableStatuses[code]
}
