package errors_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	. "nitz/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{ProblemNotFound, "Problem not found"},
		{InvalidParams, "Invalid parameters"},
		{DatabaseError, "Database operation failed"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, http.StatusOK},
		{InvalidParams, http.StatusBadRequest},
		{LanguageNotSupported, http.StatusBadRequest},
		{ValidationFailed, http.StatusBadRequest},
		{Unauthorized, http.StatusUnauthorized},
		{TokenExpired, http.StatusUnauthorized},
		{Forbidden, http.StatusForbidden},
		{ProblemNotFound, http.StatusNotFound},
		{SubmissionNotFound, http.StatusNotFound},
		{CodeTooLarge, http.StatusRequestEntityTooLarge},
		{JudgeQueueFull, http.StatusServiceUnavailable},
		{DatabaseError, http.StatusServiceUnavailable},
		{Timeout, http.StatusGatewayTimeout},
		{RequestCanceled, 499},
		{JudgeSystemError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestErrorCode_Kind(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want Kind
	}{
		{LanguageNotSupported, KindUnsupportedLanguage},
		{ProblemNotFound, KindProblemNotFound},
		{TestCaseNotFound, KindProblemNotFound},
		{CompilationError, KindCompileError},
		{RuntimeError, KindRuntimeError},
		{TimeLimitExceeded, KindTimeout},
		{Timeout, KindTimeout},
		{MemoryLimitExceeded, KindMemoryExceeded},
		{JudgeQueueFull, KindOverloaded},
		{CacheError, KindStorageError},
		{ObjectStorageError, KindStorageError},
		{ServiceUnavailable, KindStorageError},
		{JudgeSystemError, KindInternalFault},
		{InternalServerError, KindInternalFault},
		{ValidationFailed, KindInvalidRequest},
		{CodeTooLarge, KindInvalidRequest},
		{RequestCanceled, KindCanceled},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			if got := tt.code.Kind(); got != tt.want {
				t.Errorf("Kind(%d) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	err := New(ProblemNotFound)

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Code != ProblemNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ProblemNotFound)
	}
	if err.Error() != ProblemNotFound.Message() {
		t.Errorf("Error() = %v, want %v", err.Error(), ProblemNotFound.Message())
	}
	if err.Stack == "" {
		t.Error("expected stack to be captured")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ProblemNotFound, "problem %d not found", int64(123))

	want := "problem 123 not found"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, DatabaseError)

	if wrappedErr.Code != DatabaseError {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, DatabaseError)
	}
	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}
	if Wrap(nil, DatabaseError) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestWrapKeepsMessageAndDetails(t *testing.T) {
	inner := New(CacheError).WithMessage("redis down").WithDetail("key", "judge:problem:1")
	outer := Wrap(fmt.Errorf("load: %w", inner), DatabaseError)

	if outer.Code != DatabaseError || outer.Error() != "redis down" {
		t.Fatalf("unexpected wrap result: %v %q", outer.Code, outer.Error())
	}
	if outer.Details["key"] != "judge:problem:1" {
		t.Fatalf("expected details kept, got %v", outer.Details)
	}
}

func TestWrapfKeepsChain(t *testing.T) {
	err := Wrapf(context.DeadlineExceeded, Timeout, "problem lookup timed out")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("expected context error in chain")
	}
	if err.Error() != "problem lookup timed out" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestError_WithDetail(t *testing.T) {
	err := New(ValidationFailed).
		WithDetail("field", "language").
		WithDetail("reason", "required")

	if err.Details["field"] != "language" {
		t.Error("Field detail not set correctly")
	}
	if err.Details["reason"] != "required" {
		t.Error("Reason detail not set correctly")
	}
}

func TestError_WithMessage(t *testing.T) {
	err := New(InternalServerError).WithMessagef("slot %d lost", 3)
	if err.Error() != "slot 3 lost" {
		t.Errorf("Error() = %v, want %v", err.Error(), "slot 3 lost")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil error", err: nil, want: Success},
		{name: "custom error", err: New(SubmissionNotFound), want: SubmissionNotFound},
		{name: "wrapped custom error", err: fmt.Errorf("ctx: %w", New(JudgeQueueFull)), want: JudgeQueueFull},
		{name: "standard error", err: errors.New("standard error"), want: InternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetErrorAndKindOf(t *testing.T) {
	plain := errors.New("boom")
	got := GetError(plain)
	if got.Code != InternalServerError || got.Err != plain {
		t.Fatalf("expected plain error wrapped as internal, got %+v", got)
	}
	if GetError(nil) != nil {
		t.Fatal("GetError(nil) should be nil")
	}
	if KindOf(New(JudgeQueueFull)) != KindOverloaded {
		t.Fatal("expected Overloaded kind")
	}
}

func TestIs(t *testing.T) {
	err := New(ProblemNotFound)

	if !Is(err, ProblemNotFound) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, DatabaseError) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(nil, ProblemNotFound) {
		t.Error("Is() should return false for nil error")
	}
}

func TestCommonErrorConstructors(t *testing.T) {
	t.Run("InternalError", func(t *testing.T) {
		if err := InternalError(errors.New("db error")); err.Code != InternalServerError {
			t.Error("InternalError should use InternalServerError code")
		}
		if err := InternalError(nil); err.Code != InternalServerError {
			t.Error("InternalError(nil) should still carry a code")
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError("language", "required")
		if err.Code != ValidationFailed {
			t.Error("ValidationError should use ValidationFailed code")
		}
		if err.Details["field"] != "language" {
			t.Error("Field detail not set")
		}
	})
}
