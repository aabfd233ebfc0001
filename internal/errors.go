package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeForbidden  ErrorType = "FORBIDDEN"
	ErrorTypeConflict   ErrorType = "CONFLICT"
	ErrorTypeCompliance ErrorType = "COMPLIANCE_BLOCKED"
	ErrorTypeInternal   ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidWindow    ErrorCode = "INVALID_TIME_WINDOW"
	ErrCodeInvalidWeekStart ErrorCode = "INVALID_WEEK_START"
	ErrCodeOutsideWeek      ErrorCode = "OUTSIDE_TIMESHEET_WEEK"

	ErrCodeStateConflict     ErrorCode = "STATE_CONFLICT"
	ErrCodeOverlapConflict   ErrorCode = "OVERLAP_CONFLICT"
	ErrCodeIntegrityConflict ErrorCode = "INTEGRITY_CONFLICT"
	ErrCodeComplianceBlocked ErrorCode = "COMPLIANCE_BLOCKED"
	ErrCodeDuplicateWeek     ErrorCode = "DUPLICATE_TIMESHEET_WEEK"

	ErrCodeTimesheetNotFound ErrorCode = "TIMESHEET_NOT_FOUND"
	ErrCodeEntryNotFound     ErrorCode = "ENTRY_NOT_FOUND"
	ErrCodeRuleNotFound      ErrorCode = "RULE_NOT_FOUND"
	ErrCodeResultNotFound    ErrorCode = "RESULT_NOT_FOUND"
	ErrCodeExportNotFound    ErrorCode = "EXPORT_NOT_FOUND"

	ErrCodeOwnerMismatch      ErrorCode = "OWNER_MISMATCH"
	ErrCodeTenantMismatch     ErrorCode = "TENANT_MISMATCH"
	ErrCodeEmptyExport        ErrorCode = "NO_TIMESHEETS_IN_PERIOD"
	ErrCodeAlreadyExported    ErrorCode = "ALREADY_EXPORTED"
	ErrCodeEntryNotAdjustable ErrorCode = "ENTRY_NOT_ADJUSTABLE"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// Is lets sentinel AppErrors match through errors.Is by type+code rather than
// pointer identity, so wrapped copies with details still compare equal.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewStateConflictError rejects a lifecycle operation and surfaces the current
// status to the caller.
func NewStateConflictError(message, currentStatus string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       ErrCodeStateConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
		Details:    map[string]string{"current_status": currentStatus},
	}
}

// OverlapDetails carries the colliding window's bounds.
type OverlapDetails struct {
	ExistingEntryID string `json:"existing_entry_id"`
	ExistingStart   string `json:"existing_start"`
	ExistingEnd     string `json:"existing_end"`
}

func NewOverlapConflictError(d OverlapDetails) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       ErrCodeOverlapConflict,
		Message:    fmt.Sprintf("time entry overlaps with existing entry %s to %s", d.ExistingStart, d.ExistingEnd),
		StatusCode: http.StatusConflict,
		Details:    d,
	}
}

// BlockedRule identifies one rule that blocked a transition.
type BlockedRule struct {
	RuleCode string `json:"rule_code"`
	Severity string `json:"severity"`
}

// NewComplianceBlockError distinguishes a compliance block from a generic
// state conflict: the timesheet status is valid, the contents are not.
func NewComplianceBlockError(message string, rules []BlockedRule) *AppError {
	return &AppError{
		Type:       ErrorTypeCompliance,
		Code:       ErrCodeComplianceBlocked,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Details:    map[string]interface{}{"violations": rules},
	}
}

func NewIntegrityConflictError(message string, code ErrorCode, details interface{}) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
		Details:    details,
	}
}

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
