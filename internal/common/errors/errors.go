// Package errors provides the structured error kinds returned by the notification engine and their
// mapping onto BPMN errors for the Zeebe trigger adapter.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Engine error kinds. Throttled and AlreadySeen are outcomes, not errors.
const (
	ErrCodeInvalidRecipient       ErrorCode = "INVALID_RECIPIENT"
	ErrCodeInvalidEvent           ErrorCode = "INVALID_EVENT"
	ErrCodeDedupUnavailable       ErrorCode = "DEDUP_UNAVAILABLE"
	ErrCodeRateLimiterUnavailable ErrorCode = "RATE_LIMITER_UNAVAILABLE"
	ErrCodeDeliveryFailed         ErrorCode = "DELIVERY_FAILED"
	ErrCodeAuditWriteFailed       ErrorCode = "AUDIT_WRITE_FAILED"

	// Adapter-level codes.
	ErrCodePayloadSchemaInvalid ErrorCode = "PAYLOAD_SCHEMA_INVALID"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// StageTimeout is the Details value attached when a stage exceeded its deadline.
const StageTimeout = "STAGE_TIMEOUT"

// StandardError represents a structured engine error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns the same error with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func detailsOf(err error) string {
	if err == nil {
		return ""
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return StageTimeout
	}
	return err.Error()
}

// NewInvalidRecipientError is returned when no usable recipient key was supplied.
func NewInvalidRecipientError(details string) *StandardError {
	return newError(ErrCodeInvalidRecipient, "No usable recipient key", details, false, nil)
}

// NewInvalidEventError is returned for events that fail validation.
func NewInvalidEventError(details string) *StandardError {
	return newError(ErrCodeInvalidEvent, "Notification event is invalid", details, false, nil)
}

// NewDedupUnavailableError is returned when the dedup store cannot be consulted. Retryable.
func NewDedupUnavailableError(err error) *StandardError {
	return newError(ErrCodeDedupUnavailable, "Dedup store unavailable", detailsOf(err), true, err)
}

// NewRateLimiterUnavailableError is returned when the rate limiter cannot be consulted. Retryable.
func NewRateLimiterUnavailableError(err error) *StandardError {
	return newError(ErrCodeRateLimiterUnavailable, "Rate limiter unavailable", detailsOf(err), true, err)
}

// NewDeliveryFailedError is not retryable at the engine layer: the event already holds its dedup slot.
func NewDeliveryFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeDeliveryFailed, fmt.Sprintf("Delivery over '%s' failed", channel), detailsOf(err), false, err).
		WithMetadata("channel", channel)
}

// NewAuditWriteFailedError is returned when the terminal audit entry could not be persisted.
func NewAuditWriteFailedError(err error) *StandardError {
	return newError(ErrCodeAuditWriteFailed, "Audit entry could not be written", detailsOf(err), true, err)
}

func NewPayloadSchemaInvalidError(details string) *StandardError {
	return newError(ErrCodePayloadSchemaInvalid, "Job variables do not match the activity schema", details, false, nil)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", detailsOf(err), false, err)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the error codes caught by boundary events.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidRecipient:       "NOTIFICATION_INVALID_RECIPIENT",
	ErrCodeInvalidEvent:           "NOTIFICATION_INVALID_EVENT",
	ErrCodeDedupUnavailable:       "NOTIFICATION_DEDUP_UNAVAILABLE",
	ErrCodeRateLimiterUnavailable: "NOTIFICATION_RATE_LIMITER_UNAVAILABLE",
	ErrCodeDeliveryFailed:         "NOTIFICATION_DELIVERY_FAILED",
	ErrCodeAuditWriteFailed:       "NOTIFICATION_AUDIT_WRITE_FAILED",
	ErrCodePayloadSchemaInvalid:   "NOTIFICATION_PAYLOAD_INVALID",
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDedupUnavailable,
		ErrCodeRateLimiterUnavailable:
		return 3

	case ErrCodeAuditWriteFailed:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandardError unwraps err to a *StandardError, if one is in the chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first StandardError in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr.Code
	}
	return ""
}

// IsRetryable reports whether err carries a retryable StandardError.
func IsRetryable(err error) bool {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr.Retryable
	}
	return false
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID") || strings.Contains(codeStr, "SCHEMA"):
		return "VALIDATION"
	case strings.Contains(codeStr, "UNAVAILABLE"):
		return "STORAGE"
	case strings.Contains(codeStr, "DELIVERY"):
		return "TRANSPORT"
	case strings.Contains(codeStr, "AUDIT"):
		return "AUDIT"
	default:
		return "OTHER"
	}
}
