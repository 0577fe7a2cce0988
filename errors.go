package fieldline

import (
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeImmutable  ErrorType = "immutable"
	ErrorTypeReference  ErrorType = "reference"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeExecution  ErrorType = "execution"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error codes used across the module. Presentation adapters key on these to
// attach messages to the right input control or column.
const (
	ErrCodeNamingConflict       = "NAMING_CONFLICT"
	ErrCodeImmutableField       = "IMMUTABLE_FIELD"
	ErrCodeRequiredFieldMissing = "REQUIRED_FIELD_MISSING"
	ErrCodeTypeMismatch         = "TYPE_MISMATCH"
	ErrCodePatternMismatch      = "PATTERN_MISMATCH"
	ErrCodeRangeViolation       = "RANGE_VIOLATION"
	ErrCodeInvalidChoice        = "INVALID_CHOICE"
	ErrCodeReferenceProtected   = "REFERENCE_PROTECTED"
	ErrCodeFieldNotFound        = "FIELD_NOT_FOUND"
	ErrCodeObjectNotFound       = "OBJECT_NOT_FOUND"
	ErrCodeKindNotFound         = "KIND_NOT_FOUND"
	ErrCodeInvalidFilter        = "INVALID_FILTER"
	ErrCodeInvalidDefinition    = "INVALID_DEFINITION"
	ErrCodeQueryFailed          = "QUERY_FAILED"
	ErrCodeTransactionFailed    = "TRANSACTION_FAILED"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// FieldError is the structured error carried by every failure in this module.
// Errors raised during validation are keyed by the offending field so callers
// can attach them to the correct input.
type FieldError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FieldError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *FieldError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to the error
func (e *FieldError) WithDetail(key string, value any) *FieldError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches the underlying cause
func (e *FieldError) WithCause(cause error) *FieldError {
	e.Cause = cause
	return e
}

// WithField adds field context to the error
func (e *FieldError) WithField(field string) *FieldError {
	e.Field = field
	return e
}

// NewFieldError creates a new FieldError
func NewFieldError(errorType ErrorType, code, message string) *FieldError {
	return &FieldError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewNamingConflictError reports a reserved or duplicate field name/slug.
func NewNamingConflictError(name, reason string) *FieldError {
	return &FieldError{
		Type:    ErrorTypeConflict,
		Code:    ErrCodeNamingConflict,
		Message: fmt.Sprintf("name %q is not usable: %s", name, reason),
		Field:   name,
		Details: map[string]any{"name": name},
	}
}

// NewImmutableFieldError reports an attempt to change key, slug or type on a
// persisted definition.
func NewImmutableFieldError(attribute, key string) *FieldError {
	return &FieldError{
		Type:    ErrorTypeImmutable,
		Code:    ErrCodeImmutableField,
		Message: fmt.Sprintf("%s cannot be changed once the field has been created", attribute),
		Field:   key,
		Details: map[string]any{"attribute": attribute},
	}
}

// NewRequiredFieldMissingError reports a required field with neither a value
// nor a default.
func NewRequiredFieldMissingError(key string) *FieldError {
	return &FieldError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeRequiredFieldMissing,
		Message: fmt.Sprintf("required field '%s' has no value", key),
		Field:   key,
		Details: make(map[string]any),
	}
}

// NewTypeMismatchError reports a value of the wrong shape for its field kind.
func NewTypeMismatchError(key, message string) *FieldError {
	return &FieldError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeTypeMismatch,
		Message: message,
		Field:   key,
		Details: make(map[string]any),
	}
}

// NewPatternMismatchError reports a regex validation failure. The message
// names both the pattern and the offending value.
func NewPatternMismatchError(key, value, pattern string) *FieldError {
	return &FieldError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodePatternMismatch,
		Message: fmt.Sprintf("value %q does not match regex %s", value, pattern),
		Field:   key,
		Details: map[string]any{"value": value, "pattern": pattern},
	}
}

// NewRangeViolationError reports an integer outside its configured bounds.
func NewRangeViolationError(key string, value int64, bound int64, minimum bool) *FieldError {
	direction := "less than minimum"
	if !minimum {
		direction = "greater than maximum"
	}
	return &FieldError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeRangeViolation,
		Message: fmt.Sprintf("value %d is %s %d", value, direction, bound),
		Field:   key,
		Details: map[string]any{"value": value, "bound": bound},
	}
}

// NewInvalidChoiceError reports a value outside the declared choice set.
func NewInvalidChoiceError(key, value string, choices []string) *FieldError {
	return &FieldError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeInvalidChoice,
		Message: fmt.Sprintf("invalid choice %q, valid choices are: %v", value, choices),
		Field:   key,
		Details: map[string]any{"value": value, "choices": choices},
	}
}

// NewReferenceProtectedError reports an attempt to delete a choice still
// referenced by at least one stored value.
func NewReferenceProtectedError(key, value string) *FieldError {
	return &FieldError{
		Type:    ErrorTypeReference,
		Code:    ErrCodeReferenceProtected,
		Message: fmt.Sprintf("choice %q of field '%s' is referenced by stored values and cannot be deleted", value, key),
		Field:   key,
		Details: map[string]any{"value": value},
	}
}

// NewFieldNotFoundError reports a missing field definition.
func NewFieldNotFoundError(key string) *FieldError {
	return &FieldError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeFieldNotFound,
		Message: fmt.Sprintf("field definition '%s' not found", key),
		Field:   key,
		Details: make(map[string]any),
	}
}

// NewObjectNotFoundError reports a missing object record.
func NewObjectNotFoundError(id string) *FieldError {
	return &FieldError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeObjectNotFound,
		Message: fmt.Sprintf("object %s not found", id),
		Details: map[string]any{"id": id},
	}
}

// NewKindNotFoundError reports an unknown object kind.
func NewKindNotFoundError(name string) *FieldError {
	return &FieldError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeKindNotFound,
		Message: fmt.Sprintf("object kind %q not registered", name),
		Details: map[string]any{"kind": name},
	}
}

// NewInvalidFilterError reports an unparseable filter expression.
func NewInvalidFilterError(message string) *FieldError {
	return &FieldError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeInvalidFilter,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewQueryError wraps a failed storage query.
func NewQueryError(message string, cause error) *FieldError {
	return &FieldError{
		Type:    ErrorTypeExecution,
		Code:    ErrCodeQueryFailed,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewTransactionError wraps a failed storage transaction.
func NewTransactionError(message string, cause error) *FieldError {
	return &FieldError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeTransactionFailed,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, cause error) *FieldError {
	return &FieldError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// ============================================================================
// ValidationErrors
// ============================================================================

// ValidationErrors aggregates field-keyed validation failures from one
// validation pass over a single object.
type ValidationErrors struct {
	Errors []*FieldError `json:"errors"`
}

// NewValidationErrors creates an empty ValidationErrors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Errors: make([]*FieldError, 0)}
}

// Error implements the error interface for ValidationErrors
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "no validation errors"
	}
	if len(ve.Errors) == 1 {
		return ve.Errors[0].Error()
	}
	return fmt.Sprintf("multiple validation errors: %d errors found", len(ve.Errors))
}

// Add appends an error to the collection
func (ve *ValidationErrors) Add(err *FieldError) {
	ve.Errors = append(ve.Errors, err)
}

// HasErrors returns true if there are any errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ByField groups the collected errors by their field key.
func (ve *ValidationErrors) ByField() map[string][]*FieldError {
	grouped := make(map[string][]*FieldError)
	for _, err := range ve.Errors {
		grouped[err.Field] = append(grouped[err.Field], err)
	}
	return grouped
}

// ToError returns the collection as an error if non-empty, nil otherwise.
func (ve *ValidationErrors) ToError() error {
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// ============================================================================
// BatchErrors
// ============================================================================

// RowError ties a failure to one row of a batch create or import.
type RowError struct {
	Row   int         `json:"row"`
	Cause *FieldError `json:"cause"`
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Cause.Error())
}

// BatchErrors reports per-row failures from batch operations without hiding
// the rows that validated cleanly.
type BatchErrors struct {
	Errors       []*RowError `json:"errors"`
	SuccessCount int         `json:"success_count"`
	FailureCount int         `json:"failure_count"`
	TotalCount   int         `json:"total_count"`
}

// NewBatchErrors creates an empty BatchErrors instance
func NewBatchErrors() *BatchErrors {
	return &BatchErrors{Errors: make([]*RowError, 0)}
}

// Error implements the error interface for BatchErrors
func (be *BatchErrors) Error() string {
	if len(be.Errors) == 0 {
		return "no batch errors"
	}
	if len(be.Errors) == 1 {
		return fmt.Sprintf("batch operation failed: %s (success: %d/%d)",
			be.Errors[0].Error(), be.SuccessCount, be.TotalCount)
	}
	return fmt.Sprintf("batch operation failed: %d errors found (success: %d/%d)",
		len(be.Errors), be.SuccessCount, be.TotalCount)
}

// Add records one failed row
func (be *BatchErrors) Add(row int, cause *FieldError) {
	be.Errors = append(be.Errors, &RowError{Row: row, Cause: cause})
}

// HasErrors returns true if there are any errors
func (be *BatchErrors) HasErrors() bool {
	return len(be.Errors) > 0
}

// SetStatistics records the batch operation counters
func (be *BatchErrors) SetStatistics(successCount, failureCount, totalCount int) {
	be.SuccessCount = successCount
	be.FailureCount = failureCount
	be.TotalCount = totalCount
}

// HasPartialSuccess returns true if some rows succeeded and some failed
func (be *BatchErrors) HasPartialSuccess() bool {
	return be.SuccessCount > 0 && be.FailureCount > 0
}

// ToError returns the collection as an error if non-empty, nil otherwise.
func (be *BatchErrors) ToError() error {
	if be.HasErrors() {
		return be
	}
	return nil
}

// ============================================================================
// Error checking utilities
// ============================================================================

func hasCode(err error, code string) bool {
	if fe, ok := err.(*FieldError); ok {
		return fe.Code == code
	}
	return false
}

// IsNamingConflictError checks if an error is a naming conflict
func IsNamingConflictError(err error) bool {
	return hasCode(err, ErrCodeNamingConflict)
}

// IsImmutableFieldError checks if an error is an immutability violation
func IsImmutableFieldError(err error) bool {
	return hasCode(err, ErrCodeImmutableField)
}

// IsReferenceProtectedError checks if an error is a referential protection failure
func IsReferenceProtectedError(err error) bool {
	return hasCode(err, ErrCodeReferenceProtected)
}

// IsNotFoundError checks if an error is any of the not-found kinds
func IsNotFoundError(err error) bool {
	if fe, ok := err.(*FieldError); ok {
		return fe.Type == ErrorTypeNotFound
	}
	return false
}

// IsValidationError checks if an error is a validation failure
func IsValidationError(err error) bool {
	if _, ok := err.(*ValidationErrors); ok {
		return true
	}
	if fe, ok := err.(*FieldError); ok {
		return fe.Type == ErrorTypeValidation
	}
	return false
}
