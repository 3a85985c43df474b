package errors

import (
	"errors"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name: "basic error",
			appError: &AppError{
				Type:    ErrTypeConfig,
				Message: "configuration is invalid",
			},
			want: "config: configuration is invalid",
		},
		{
			name: "error with code",
			appError: &AppError{
				Type:    ErrTypeAuth,
				Message: "token request failed",
				Code:    "AUTH001",
			},
			want: "authentication: token request failed: code=AUTH001",
		},
		{
			name: "error with cause",
			appError: &AppError{
				Type:    ErrTypeUpstream,
				Message: "search request failed",
				Cause:   errors.New("network timeout"),
			},
			want: "upstream: search request failed: cause=network timeout",
		},
		{
			name: "error with context",
			appError: &AppError{
				Type:    ErrTypeValidation,
				Message: "field validation failed",
				Context: map[string]interface{}{
					"field": "origin",
				},
			},
			want: "validation: field validation failed: context={field=origin}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.appError.Error()
			if got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	appError := &AppError{
		Type:    ErrTypeInternal,
		Message: "wrapper",
		Cause:   cause,
	}

	if !errors.Is(appError, cause) {
		t.Error("expected errors.Is to match the cause")
	}
	if appError.Unwrap() != cause {
		t.Error("expected Unwrap to return the cause")
	}
}

func TestUpstreamError_StatusCode(t *testing.T) {
	err := UpstreamError("retries exhausted", 503, nil)

	if !IsType(err, ErrTypeUpstream) {
		t.Error("expected upstream error type")
	}
	if got := StatusCode(err); got != 503 {
		t.Errorf("StatusCode() = %d, want 503", got)
	}
	if err.Code != "503" {
		t.Errorf("Code = %q, want 503", err.Code)
	}
}

func TestUpstreamError_TransportLevel(t *testing.T) {
	err := UpstreamError("connection refused", 0, errors.New("dial tcp"))

	if got := StatusCode(err); got != 0 {
		t.Errorf("StatusCode() = %d, want 0", got)
	}
	if err.Code != "" {
		t.Errorf("Code = %q, want empty", err.Code)
	}
}

func TestIsType(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		errType ErrorType
		want    bool
	}{
		{"matching type", AuthError("failed", nil), ErrTypeAuth, true},
		{"non-matching type", ValidationError("bad"), ErrTypeAuth, false},
		{"plain error", errors.New("plain"), ErrTypeAuth, false},
		{"nil error", nil, ErrTypeAuth, false},
		{"send error", SendError("smtp down", nil), ErrTypeSend, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsType(tt.err, tt.errType); got != tt.want {
				t.Errorf("IsType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetType(t *testing.T) {
	if got := GetType(NotFoundError("lead")); got != ErrTypeNotFound {
		t.Errorf("GetType() = %v, want %v", got, ErrTypeNotFound)
	}
	if got := GetType(errors.New("plain")); got != ErrTypeInternal {
		t.Errorf("GetType() = %v, want %v", got, ErrTypeInternal)
	}
	if got := GetType(nil); got != ErrorType("") {
		t.Errorf("GetType(nil) = %v, want empty", got)
	}
}

func TestWithContext(t *testing.T) {
	err := ValidationError("bad params").WithContext("param", "departureDate")

	if err.Context["param"] != "departureDate" {
		t.Error("expected context value to be set")
	}
}
