package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeConflict           ErrorCode = "COMMON_004"
	ErrCodeValidation         ErrorCode = "COMMON_005"
	ErrCodeSerialization      ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_007"
	ErrCodeTimeout            ErrorCode = "COMMON_008"

	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Filter Translator Error Codes
const (
	ErrCodeInvalidFilter       ErrorCode = "FLT_001"
	ErrCodeFieldNotQueryable   ErrorCode = "FLT_002"
	ErrCodeOperatorUnsupported ErrorCode = "FLT_003"
	ErrCodeLiteralTypeMismatch ErrorCode = "FLT_004"
	ErrCodeMalformedFilterNode ErrorCode = "FLT_005"
)

// Aggregation Engine Error Codes
const (
	ErrCodeUnsupportedAggregation       ErrorCode = "AGG_001"
	ErrCodeInvalidAggregationParameter  ErrorCode = "AGG_002"
	ErrCodeAggregationResponseMalformed ErrorCode = "AGG_003"
)

// Pagination Codec Error Codes
const (
	ErrCodeInvalidPaginationToken ErrorCode = "PAGE_001"
)

// Index & Alias Manager Error Codes
const (
	ErrCodeIndexNotFound        ErrorCode = "IDX_001"
	ErrCodeIndexAlreadyExists   ErrorCode = "IDX_002"
	ErrCodeTemplateRegistration ErrorCode = "IDX_003"
	ErrCodeIndexCreationFailed  ErrorCode = "IDX_004"
)

// Bulk Ingest Error Codes
const (
	ErrCodePartialBulkFailure ErrorCode = "BULK_001"
	ErrCodeBulkRequestFailed  ErrorCode = "BULK_002"
)

// Engine Error Codes
const (
	// ErrCodeBackendUnavailable marks engine timeouts and connection failures.
	// It is the only code eligible for caller-directed retry.
	ErrCodeBackendUnavailable ErrorCode = "ENG_001"
	ErrCodeEngineResponse     ErrorCode = "ENG_002"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,

	ErrCodeInvalidFilter:       http.StatusBadRequest,
	ErrCodeFieldNotQueryable:   http.StatusBadRequest,
	ErrCodeOperatorUnsupported: http.StatusBadRequest,
	ErrCodeLiteralTypeMismatch: http.StatusBadRequest,
	ErrCodeMalformedFilterNode: http.StatusBadRequest,

	ErrCodeUnsupportedAggregation:       http.StatusBadRequest,
	ErrCodeInvalidAggregationParameter:  http.StatusBadRequest,
	ErrCodeAggregationResponseMalformed: http.StatusBadGateway,

	ErrCodeInvalidPaginationToken: http.StatusBadRequest,

	ErrCodeIndexNotFound:        http.StatusNotFound,
	ErrCodeIndexAlreadyExists:   http.StatusConflict,
	ErrCodeTemplateRegistration: http.StatusInternalServerError,
	ErrCodeIndexCreationFailed:  http.StatusInternalServerError,

	ErrCodePartialBulkFailure: http.StatusOK,
	ErrCodeBulkRequestFailed:  http.StatusBadGateway,

	ErrCodeBackendUnavailable: http.StatusServiceUnavailable,
	ErrCodeEngineResponse:     http.StatusBadGateway,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",

	ErrCodeInvalidFilter:       "invalid filter expression",
	ErrCodeFieldNotQueryable:   "field is not queryable",
	ErrCodeOperatorUnsupported: "operator unsupported for field type",
	ErrCodeLiteralTypeMismatch: "filter literal incompatible with declared field type",
	ErrCodeMalformedFilterNode: "malformed filter expression node",

	ErrCodeUnsupportedAggregation:       "aggregation not supported for this collection",
	ErrCodeInvalidAggregationParameter:  "invalid aggregation parameter",
	ErrCodeAggregationResponseMalformed: "malformed aggregation response",

	ErrCodeInvalidPaginationToken: "invalid pagination token",

	ErrCodeIndexNotFound:        "collection has no backing index",
	ErrCodeIndexAlreadyExists:   "index already exists",
	ErrCodeTemplateRegistration: "index template registration failed",
	ErrCodeIndexCreationFailed:  "index creation failed",

	ErrCodePartialBulkFailure: "bulk request completed with per-item failures",
	ErrCodeBulkRequestFailed:  "bulk request failed",

	ErrCodeBackendUnavailable: "search backend unavailable",
	ErrCodeEngineResponse:     "unexpected search backend response",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsRetryable reports whether the code marks a transient backend condition
// that the caller may retry. All other codes are deterministic for a given
// input and must not be retried blindly.
func IsRetryable(code ErrorCode) bool {
	return code == ErrCodeBackendUnavailable
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
