package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeUnauthorized    ErrorType = "unauthorized"
	ErrorTypeForbidden       ErrorType = "forbidden"
	ErrorTypeConflict        ErrorType = "conflict"
	ErrorTypeInternal        ErrorType = "internal"
	ErrorTypeParse           ErrorType = "parse"
	ErrorTypeInvalidRule     ErrorType = "invalid_rule"
	ErrorTypeStreamNotActive ErrorType = "stream_not_active"
	ErrorTypeTokenExpired    ErrorType = "token_expired"
	ErrorTypeTokenRevoked    ErrorType = "token_revoked"
	ErrorTypeTokenExhausted  ErrorType = "token_exhausted"
	ErrorTypeEvaluation      ErrorType = "evaluation"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// FieldError is one caller-fixable problem in a submitted configuration
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationErrors is the complete list of problems found; it is never truncated
type ValidationErrors []FieldError

// Add appends a problem for field
func (v *ValidationErrors) Add(field, format string, args ...interface{}) {
	*v = append(*v, FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
}

// Error implements the error interface
func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Reason)
	}
	return strings.Join(parts, "; ")
}

// HasField reports whether any problem was recorded for field
func (v ValidationErrors) HasField(field string) bool {
	for _, fe := range v {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// OrNil returns nil for an empty list so callers can return it as an error
func (v ValidationErrors) OrNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// Domain error variables

var (
	// Not Found Errors
	ErrDatasetNotFound = NewDomainError(ErrorTypeNotFound, "dataset not found", nil)
	ErrRuleNotFound    = NewDomainError(ErrorTypeNotFound, "rule not found", nil)
	ErrStreamNotFound  = NewDomainError(ErrorTypeNotFound, "stream not found", nil)
	ErrTokenNotFound   = NewDomainError(ErrorTypeNotFound, "token not found", nil)

	// Validation Errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)

	// Authorization Errors
	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrForbidden    = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)

	// Conflict Errors
	ErrDuplicateDataset = NewDomainError(ErrorTypeConflict, "dataset with identical content already exists", nil)
	ErrConcurrentUpdate = NewDomainError(ErrorTypeConflict, "record changed concurrently, retry the request", nil)

	// Internal Errors
	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)

	// Lifecycle Errors
	ErrParse           = NewDomainError(ErrorTypeParse, "malformed tabular input", nil)
	ErrInvalidRule     = NewDomainError(ErrorTypeInvalidRule, "rule failed validation", nil)
	ErrStreamNotActive = NewDomainError(ErrorTypeStreamNotActive, "stream is not active", nil)
	ErrTokenExpired    = NewDomainError(ErrorTypeTokenExpired, "token expired", nil)
	ErrTokenRevoked    = NewDomainError(ErrorTypeTokenRevoked, "token revoked", nil)
	ErrTokenExhausted  = NewDomainError(ErrorTypeTokenExhausted, "one-time token already used", nil)
	ErrEvaluation      = NewDomainError(ErrorTypeEvaluation, "rule evaluation failed", nil)
)

// NewParseError reports malformed input. line is 0 when unknown.
func NewParseError(message string, line int, err error) *DomainError {
	e := NewDomainError(ErrorTypeParse, message, err)
	if line > 0 {
		e.WithDetail("line", line)
	}
	return e
}

// NewValidationFailure wraps a complete list of field problems
func NewValidationFailure(errs ValidationErrors) *DomainError {
	return NewDomainError(ErrorTypeValidation, "validation failed", errs).WithDetail("errors", []FieldError(errs))
}

// NewInvalidRuleError reports that a rule cannot back a stream
func NewInvalidRuleError(errs ValidationErrors) *DomainError {
	return NewDomainError(ErrorTypeInvalidRule, "rule failed validation", errs).WithDetail("errors", []FieldError(errs))
}

// NewEvaluationError reports an internal-consistency failure during evaluation
func NewEvaluationError(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeEvaluation, message, err)
}

// NewNotFoundError builds a not found error for an entity kind and id
func NewNotFoundError(kind string, id fmt.Stringer) *DomainError {
	return NewDomainError(ErrorTypeNotFound, kind+" not found", nil).WithDetail("id", id.String())
}

// Error type checking helper functions

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool { return hasType(err, ErrorTypeUnauthorized) }

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool { return hasType(err, ErrorTypeForbidden) }

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool { return hasType(err, ErrorTypeConflict) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return hasType(err, ErrorTypeInternal) }

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool { return hasType(err, ErrorTypeParse) }

// IsInvalidRuleError checks if an error is an invalid rule error
func IsInvalidRuleError(err error) bool { return hasType(err, ErrorTypeInvalidRule) }

// IsStreamNotActiveError checks if an error is a stream not active error
func IsStreamNotActiveError(err error) bool { return hasType(err, ErrorTypeStreamNotActive) }

// IsTokenExpiredError checks if an error is a token expired error
func IsTokenExpiredError(err error) bool { return hasType(err, ErrorTypeTokenExpired) }

// IsTokenRevokedError checks if an error is a token revoked error
func IsTokenRevokedError(err error) bool { return hasType(err, ErrorTypeTokenRevoked) }

// IsTokenExhaustedError checks if an error is a token exhausted error
func IsTokenExhaustedError(err error) bool { return hasType(err, ErrorTypeTokenExhausted) }

// IsEvaluationError checks if an error is an evaluation error
func IsEvaluationError(err error) bool { return hasType(err, ErrorTypeEvaluation) }

// IsAccessError reports whether err is one of the terminal token outcomes
func IsAccessError(err error) bool {
	return IsTokenExpiredError(err) || IsTokenRevokedError(err) || IsTokenExhaustedError(err)
}

// AsValidationErrors extracts the field list from a validation or invalid rule error
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var v ValidationErrors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
