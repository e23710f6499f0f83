package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
	}{
		{"not found", NotFound("Waitlist user"), CodeNotFound, http.StatusNotFound},
		{"not found with id", NotFoundWithID("Waitlist", "wl-1"), CodeNotFound, http.StatusNotFound},
		{"validation", Validation("invalid waitlist", nil), CodeValidation, http.StatusUnprocessableEntity},
		{"invalid input", InvalidInput("malformed body"), CodeInvalidInput, http.StatusBadRequest},
		{"unauthorized", Unauthorized("session required"), CodeUnauthorized, http.StatusUnauthorized},
		{"forbidden", Forbidden("not allowed"), CodeForbidden, http.StatusForbidden},
		{"conflict", Conflict("waitlist overlaps"), CodeConflict, http.StatusConflict},
		{"failed dependency", FailedDependency("authorization component missing"), CodeFailedDependency, http.StatusFailedDependency},
		{"internal", Internal("boom", errors.New("driver")), CodeInternal, http.StatusInternalServerError},
		{"timeout", Timeout("slow"), CodeTimeout, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.wantCode)
			}
			if tt.err.StatusCode() != tt.wantStatus {
				t.Errorf("StatusCode() = %d, want %d", tt.err.StatusCode(), tt.wantStatus)
			}
		})
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			appErr:   &AppError{Code: CodeNotFound, Message: "waitlist user not found"},
			expected: "NOT_FOUND: waitlist user not found",
		},
		{
			name: "with underlying error",
			appErr: &AppError{
				Code:    CodeInternal,
				Message: "failed to create waitlist",
				Err:     errors.New("connection reset"),
			},
			expected: "INTERNAL_ERROR: failed to create waitlist (caused by: connection reset)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appErr.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestInternal_Unwraps(t *testing.T) {
	cause := errors.New("write conflict")
	wrapped := Internal("failed to create waitlist", cause)

	if !errors.Is(wrapped, cause) {
		t.Errorf("errors.Is should find the wrapped cause")
	}
}

func TestStatusCode_DefaultsToInternal(t *testing.T) {
	err := &AppError{Code: CodeInternal}
	if err.StatusCode() != http.StatusInternalServerError {
		t.Errorf("StatusCode() = %d, want 500", err.StatusCode())
	}
}

func TestIsAppError_SeesThroughWrapping(t *testing.T) {
	appErr := Conflict("waitlist overlaps")
	wrapped := fmt.Errorf("hook: %w", appErr)

	if !IsAppError(wrapped) {
		t.Errorf("IsAppError() should find an AppError behind %%w")
	}
	if IsAppError(errors.New("plain")) {
		t.Errorf("IsAppError() should be false for a plain error")
	}
	if got := AsAppError(wrapped); got != appErr {
		t.Errorf("AsAppError() should return the wrapped AppError")
	}
}

func TestAsAppError_WrapsUnknown(t *testing.T) {
	plain := errors.New("regular error")
	result := AsAppError(plain)

	if result.Code != CodeInternal {
		t.Errorf("Code = %s, want %s", result.Code, CodeInternal)
	}
	if result.Err != plain {
		t.Errorf("AsAppError() should keep the original error")
	}
}

func TestAppError_Response(t *testing.T) {
	data, jsonErr := json.Marshal(NotFoundWithID("Waitlist", "wl-1").Response())
	if jsonErr != nil {
		t.Fatalf("Response() did not marshal: %v", jsonErr)
	}

	var decoded ErrorResponse
	if jsonErr := json.Unmarshal(data, &decoded); jsonErr != nil {
		t.Fatalf("Response() produced invalid JSON: %v", jsonErr)
	}
	if decoded.Code != CodeNotFound {
		t.Errorf("code = %s, want %s", decoded.Code, CodeNotFound)
	}
	if decoded.Details["id"] != "wl-1" {
		t.Errorf("details.id = %v, want wl-1", decoded.Details["id"])
	}
}
