package domain

import (
	"errors"
	"net/http"
	"testing"
)

func TestValidRequestID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"alphanumeric", "req123", true},
		{"with dash and underscore", "req-1_a", true},
		{"uuid style", "8f7f2c1e-9a91-4a7e-b0cd-6f6a1c2d3e4f", true},
		{"empty", "", false},
		{"slash", "a/b", false},
		{"parent dir", "..", false},
		{"dot", "a.b", false},
		{"space", "a b", false},
		{"unicode", "reqé", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidRequestID(tt.id); got != tt.want {
				t.Errorf("ValidRequestID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestRequestStatusTerminal(t *testing.T) {
	tests := []struct {
		status RequestStatus
		want   bool
	}{
		{StatusReceived, false},
		{StatusValidated, false},
		{StatusFetched, false},
		{StatusConverted, false},
		{StatusUploaded, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		reason AuthReason
		want   int
	}{
		{AuthMissingToken, http.StatusUnauthorized},
		{AuthMalformedToken, http.StatusUnauthorized},
		{AuthExpiredSignature, http.StatusUnauthorized},
		{AuthInvalidSignature, http.StatusUnauthorized},
		{AuthUnavailable, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			e := &AuthError{Reason: tt.reason}
			if got := e.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	e := &ValidationError{Field: "destination", Reason: "missing signature parameter"}
	want := "invalid destination: missing signature parameter"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}

	bare := &ValidationError{Reason: "body is not valid JSON"}
	if bare.Error() != "body is not valid JSON" {
		t.Errorf("Error() = %q", bare.Error())
	}
}

func TestStageErrorWrapsCause(t *testing.T) {
	cause := &ContentError{Reason: "not a PDF"}
	e := NewStageError("PDF download failed", cause)

	if e.Error() != "PDF download failed: not a PDF" {
		t.Errorf("Error() = %q", e.Error())
	}
	var ce *ContentError
	if !errors.As(e, &ce) {
		t.Error("expected StageError to unwrap to ContentError")
	}
}

func TestStatusErrorMessage(t *testing.T) {
	e := &StatusError{Code: 503}
	if e.Error() != "unexpected status 503" {
		t.Errorf("Error() = %q", e.Error())
	}
	withBody := &StatusError{Code: 400, Body: "bad dpi"}
	if withBody.Error() != "unexpected status 400: bad dpi" {
		t.Errorf("Error() = %q", withBody.Error())
	}
}
