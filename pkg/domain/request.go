package domain

import (
	"regexp"
	"time"
)

// RequestStatus tracks a conversion request through the pipeline.
type RequestStatus string

const (
	StatusReceived  RequestStatus = "RECEIVED"
	StatusValidated RequestStatus = "VALIDATED"
	StatusFetched   RequestStatus = "FETCHED"
	StatusConverted RequestStatus = "CONVERTED"
	StatusUploaded  RequestStatus = "UPLOADED"
	StatusCompleted RequestStatus = "COMPLETED"
	StatusFailed    RequestStatus = "FAILED"
)

// Terminal reports whether the status is a final pipeline state.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidRequestID reports whether id is safe to embed in storage keys and
// filesystem paths. Anything outside [A-Za-z0-9_-] is rejected.
func ValidRequestID(id string) bool {
	return requestIDPattern.MatchString(id)
}

// ConversionRequest is the parsed, immutable inbound request.
type ConversionRequest struct {
	RequestID   string `json:"unique_id"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Webhook     string `json:"webhook,omitempty"`

	ReceivedAt time.Time `json:"receivedAt"`
}

// ConversionResult is the terminal outcome of one orchestrated request.
type ConversionResult struct {
	RequestID      string         `json:"unique_id"`
	Status         RequestStatus  `json:"status"`
	Images         []string       `json:"images,omitempty"`
	PagesConverted int            `json:"pages_converted,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Error          string         `json:"error,omitempty"`
	Duration       time.Duration  `json:"-"`
}

// UploadOutcome is the result of one concurrent upload task, tagged with the
// artifact's original index so completion order never leaks into responses.
type UploadOutcome struct {
	Index    int
	Location string
	Err      error
}

// RequestRecord is the ledger's view of a request lifecycle.
type RequestRecord struct {
	RequestID  string        `json:"requestId"`
	Status     RequestStatus `json:"status"`
	Stage      string        `json:"stage,omitempty"`
	Error      string        `json:"error,omitempty"`
	Pages      int           `json:"pages,omitempty"`
	Images     []string      `json:"images,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt,omitempty"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}
