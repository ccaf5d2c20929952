// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Lifecycle / business errors. Never retried.
	ErrCodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
	ErrCodeDuplicateEngagement ErrorCode = "DUPLICATE_ENGAGEMENT"
	ErrCodeCapacityExceeded    ErrorCode = "CAPACITY_EXCEEDED"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeRateLimited         ErrorCode = "RATE_LIMITED"

	// Storage errors. TRANSIENT_STORAGE carries exactly one automatic retry;
	// anything that survives the retry surfaces as a generic retry-later.
	ErrCodeTransientStorage     ErrorCode = "TRANSIENT_STORAGE"
	ErrCodeQueryExecutionFailed ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeInvalidQueryType     ErrorCode = "INVALID_QUERY_TYPE"

	// Integration errors.
	ErrCodeNotificationFailed       ErrorCode = "NOTIFICATION_FAILED"
	ErrCodeSearchQueryFailed        ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeSearchSyncFailed         ErrorCode = "SEARCH_SYNC_FAILED"
	ErrCodeIdentityResolutionFailed ErrorCode = "IDENTITY_RESOLUTION_FAILED"
	ErrCodeBrokerUnavailable        ErrorCode = "BROKER_UNAVAILABLE"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error. Message is safe to
// surface to the end user; Details is operator-facing.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the workflow engine.
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

// ToErrorVariables returns a map suitable for setting job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	if e.ErrorVariables != nil {
		for k, v := range e.ErrorVariables {
			vars[k] = v
		}
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewValidationError creates a non-retryable validation error. The message is
// surfaced to the user verbatim.
func NewValidationError(message string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   message,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateEngagementError creates a non-retryable duplicate-application error.
func NewDuplicateEngagementError(taskID, volunteerID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateEngagement,
		Message:   "You have already applied for this task.",
		Details:   fmt.Sprintf("taskId: %s, volunteerId: %s", taskID, volunteerID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCapacityExceededError creates a non-retryable task-full error.
func NewCapacityExceededError(taskID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCapacityExceeded,
		Message:   "This task has reached its maximum number of volunteers.",
		Details:   fmt.Sprintf("taskId: %s", taskID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError creates a non-retryable stale-reference error.
func NewNotFoundError(entity, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   "This item is no longer available.",
		Details:   fmt.Sprintf("%s: %s", entity, id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitedError creates a non-retryable rate-limit error carrying the
// retry-after window in seconds.
func NewRateLimitedError(action string, retryAfter int) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   "Too many requests. Please wait and try again.",
		Details:   fmt.Sprintf("action: %s", action),
		Retryable: false,
		Metadata:  map[string]interface{}{"retryAfterSeconds": retryAfter},
		Timestamp: time.Now().UTC(),
	}
}

// NewTransientStorageError creates a retryable storage error.
func NewTransientStorageError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransientStorage,
		Message:   "Temporary problem saving your changes. Please try again.",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidQueryTypeError creates a non-retryable invalid query type error.
func NewInvalidQueryTypeError(queryType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidQueryType,
		Message:   "Unsupported query type",
		Details:   fmt.Sprintf("queryType: %s", queryType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationFailedError creates a retryable notification delivery error.
func NewNotificationFailedError(notificationType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchQueryFailedError creates a retryable search query error.
func NewSearchQueryFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchQueryFailed,
		Message:   "Task search is temporarily unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchSyncFailedError creates a retryable index sync error.
func NewSearchSyncFailedError(taskID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchSyncFailed,
		Message:   "Task index sync failed",
		Details:   fmt.Sprintf("taskId: %s, error: %s", taskID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewIdentityResolutionFailedError creates a retryable identity provider error.
func NewIdentityResolutionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeIdentityResolutionFailed,
		Message:   "Could not verify your identity. Please sign in again.",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewBrokerUnavailableError creates a retryable workflow engine connectivity error.
func NewBrokerUnavailableError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeBrokerUnavailable,
		Message:   "Workflow engine is temporarily unavailable",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Storage Error Mapping
// ==========================

// MapStorageError classifies a database error. Unique-constraint violations
// on the (task, volunteer) pair become DUPLICATE_ENGAGEMENT; connection-level
// and serialization failures become TRANSIENT_STORAGE so the caller's single
// retry can fire; everything else is a query execution failure.
func MapStorageError(op string, err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return &StandardError{
				Code:      ErrCodeDuplicateEngagement,
				Message:   "You have already applied for this task.",
				Details:   fmt.Sprintf("op: %s, constraint: %s", op, pqErr.Constraint),
				Retryable: false,
				Timestamp: time.Now().UTC(),
			}
		case pqErr.Code.Class() == "08",
			pqErr.Code.Class() == "57",
			pqErr.Code == "40001",
			pqErr.Code == "40P01":
			// connection loss, shutdown, serialization failure, deadlock
			return NewTransientStorageError(op, err)
		}
	}

	if stderrors.Is(err, driver.ErrBadConn) ||
		stderrors.Is(err, context.DeadlineExceeded) {
		return NewTransientStorageError(op, err)
	}

	return NewQueryExecutionFailedError(op, err)
}

// ==========================
// 5. Error Conversion to BPMN
// ==========================

// GetRetryCount returns how many engine-level retries an error code earns.
// TRANSIENT_STORAGE is deliberately 0 here: its single retry happens inside
// the service call, not in the workflow engine.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeQueryExecutionFailed,
		ErrCodeNotificationFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeSearchSyncFailed,
		ErrCodeBrokerUnavailable:
		return 3

	case ErrCodeIdentityResolutionFailed:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for the engine.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// AsBPMN coerces any error into a BPMNError. Errors that are not already
// StandardErrors are wrapped as INTERNAL_ERROR.
func AsBPMN(err error) *BPMNError {
	var stdErr *StandardError
	if !stderrors.As(err, &stdErr) {
		stdErr = NewInternalError(err)
	}
	return ConvertToBPMNError(stdErr)
}

// ==========================
// 6. Utility Functions
// ==========================

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code == code
	}
	return false
}

// IsTransient reports whether err should trigger the single automatic retry.
func IsTransient(err error) bool {
	return IsCode(err, ErrCodeTransientStorage)
}

// IsRetryableErrorCode checks if an error code earns engine retries.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "DUPLICATE") ||
		strings.Contains(codeStr, "CAPACITY") || strings.Contains(codeStr, "NOT_FOUND") ||
		strings.Contains(codeStr, "RATE"):
		return "LIFECYCLE"
	case strings.Contains(codeStr, "STORAGE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "IDENTITY"):
		return "IDENTITY"
	default:
		return "INTERNAL"
	}
}
