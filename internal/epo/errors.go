package epo

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound     = errors.New("epo: no results found")
	ErrThrottled    = errors.New("epo: request rejected by OPS throttling")
	ErrUnauthorized = errors.New("epo: authentication failed")

	// ErrResponseTooLarge is returned when an OPS body exceeds the client's read limit.
	ErrResponseTooLarge = errors.New("epo: OPS response exceeds size limit")
)

// APIError is a non-2xx response from OPS.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	// Rejection carries the X-Rejection-Reason header, set when OPS throttles a client.
	Rejection string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "epo: OPS returned status %d", e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Rejection != "" {
		fmt.Fprintf(&b, " [rejection: %s]", e.Rejection)
	}
	return b.String()
}

// Is lets callers match on the sentinel errors with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrThrottled:
		return e.StatusCode == http.StatusTooManyRequests ||
			(e.StatusCode == http.StatusForbidden && e.Rejection != "")
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized ||
			(e.StatusCode == http.StatusForbidden && e.Rejection == "")
	}
	return false
}

func (e *APIError) retryable() bool {
	return e.StatusCode >= 500
}

// opsFault is the OPS error body. OPS answers errors in XML even when JSON was requested.
type opsFault struct {
	XMLName xml.Name `xml:"fault"`
	Code    string   `xml:"code"`
	Message string   `xml:"message"`
}

type opsJSONFault struct {
	Fault struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"fault"`
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Rejection:  resp.Header.Get("X-Rejection-Reason"),
	}

	var xf opsFault
	if err := xml.Unmarshal(body, &xf); err == nil && (xf.Code != "" || xf.Message != "") {
		apiErr.Code = strings.TrimSpace(xf.Code)
		apiErr.Message = strings.TrimSpace(xf.Message)
		return apiErr
	}

	var jf opsJSONFault
	if err := json.Unmarshal(body, &jf); err == nil && (jf.Fault.Code != "" || jf.Fault.Message != "") {
		apiErr.Code = jf.Fault.Code
		apiErr.Message = jf.Fault.Message
		return apiErr
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	apiErr.Message = msg
	return apiErr
}
