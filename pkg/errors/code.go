package errors

import "net/http"

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Auth errors
// 12000-12999: Problem errors
// 13000-13999: Submission & Judge errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008
	RequestCanceled     ErrorCode = 10009

	// Storage errors (10100-10199)
	DatabaseError      ErrorCode = 10100
	RecordNotFound     ErrorCode = 10101
	TransactionFailed  ErrorCode = 10103
	ObjectStorageError ErrorCode = 10110

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	CacheMiss  ErrorCode = 10201

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Auth Errors (11000-11999) ==========

	TokenExpired ErrorCode = 11003
	TokenInvalid ErrorCode = 11004

	// ========== Problem Errors (12000-12999) ==========

	ProblemNotFound     ErrorCode = 12000
	TestCaseNotFound    ErrorCode = 12100
	StarterCodeNotFound ErrorCode = 12300

	// ========== Submission & Judge Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound   ErrorCode = 13000
	CodeTooLarge         ErrorCode = 13002
	LanguageNotSupported ErrorCode = 13003

	// Judge (13100-13199)
	JudgeQueueFull      ErrorCode = 13100
	JudgeSystemError    ErrorCode = 13101
	CompilationError    ErrorCode = 13102
	RuntimeError        ErrorCode = 13103
	TimeLimitExceeded   ErrorCode = 13104
	MemoryLimitExceeded ErrorCode = 13105
	OutputLimitExceeded ErrorCode = 13106
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",
	RequestCanceled:     "Request canceled",

	DatabaseError:      "Database operation failed",
	RecordNotFound:     "Record not found in database",
	TransactionFailed:  "Database transaction failed",
	ObjectStorageError: "Object storage operation failed",

	CacheError: "Cache operation failed",
	CacheMiss:  "Cache miss",

	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	TokenExpired: "Token has expired",
	TokenInvalid: "Invalid token",

	ProblemNotFound:     "Problem not found",
	TestCaseNotFound:    "Test case not found",
	StarterCodeNotFound: "Starter code not found",

	SubmissionNotFound:   "Submission not found",
	CodeTooLarge:         "Code is too large",
	LanguageNotSupported: "Programming language not supported",

	JudgeQueueFull:      "Judge queue is full, please try again later",
	JudgeSystemError:    "Judge system error",
	CompilationError:    "Compilation error",
	RuntimeError:        "Runtime error",
	TimeLimitExceeded:   "Time limit exceeded",
	MemoryLimitExceeded: "Memory limit exceeded",
	OutputLimitExceeded: "Output limit exceeded",
}

// Kind names the error category reported to API clients.
type Kind string

const (
	KindUnsupportedLanguage Kind = "UnsupportedLanguage"
	KindProblemNotFound     Kind = "ProblemNotFound"
	KindCompileError        Kind = "CompileError"
	KindRuntimeError        Kind = "RuntimeError"
	KindTimeout             Kind = "Timeout"
	KindMemoryExceeded      Kind = "MemoryExceeded"
	KindOverloaded          Kind = "Overloaded"
	KindStorageError        Kind = "StorageError"
	KindInternalFault       Kind = "InternalFault"
	KindInvalidRequest      Kind = "InvalidRequest"
	KindNotFound            Kind = "NotFound"
	KindUnauthorized        Kind = "Unauthorized"
	KindForbidden           Kind = "Forbidden"
	KindCanceled            Kind = "Canceled"
)

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// Kind maps the code onto the judge error taxonomy.
func (c ErrorCode) Kind() Kind {
	switch {
	case c == LanguageNotSupported:
		return KindUnsupportedLanguage
	case c == ProblemNotFound, c == TestCaseNotFound:
		return KindProblemNotFound
	case c == CompilationError:
		return KindCompileError
	case c == RuntimeError, c == OutputLimitExceeded:
		return KindRuntimeError
	case c == TimeLimitExceeded, c == Timeout:
		return KindTimeout
	case c == MemoryLimitExceeded:
		return KindMemoryExceeded
	case c == JudgeQueueFull, c == TooManyRequests:
		return KindOverloaded
	case c == DatabaseError, c == TransactionFailed, c == ObjectStorageError,
		c == CacheError, c == ServiceUnavailable:
		return KindStorageError
	case c == RequestCanceled:
		return KindCanceled
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return KindUnauthorized
	case c == Forbidden:
		return KindForbidden
	case c == NotFound, c == RecordNotFound, c == SubmissionNotFound, c == StarterCodeNotFound:
		return KindNotFound
	case c == InvalidParams, c == CodeTooLarge, c >= 10300 && c < 10400:
		return KindInvalidRequest
	default:
		return KindInternalFault
	}
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return http.StatusOK
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return http.StatusUnauthorized
	case c == Forbidden:
		return http.StatusForbidden
	case c == NotFound, c == RecordNotFound, c == ProblemNotFound, c == TestCaseNotFound,
		c == StarterCodeNotFound, c == SubmissionNotFound:
		return http.StatusNotFound
	case c == CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case c == TooManyRequests:
		return http.StatusTooManyRequests
	case c == JudgeQueueFull, c == ServiceUnavailable, c == DatabaseError, c == ObjectStorageError,
		c == CacheError, c == TransactionFailed:
		return http.StatusServiceUnavailable
	case c == Timeout:
		return http.StatusGatewayTimeout
	case c == RequestCanceled:
		return 499
	case c >= 10300 && c < 10400: // Validation errors
		return http.StatusBadRequest
	case c == InvalidParams, c == LanguageNotSupported:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
