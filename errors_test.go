package fieldline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// FieldError Tests
// =============================================================================

func TestFieldErrorChaining(t *testing.T) {
	cause := errors.New("boom")
	err := NewQueryError("load object", cause).
		WithField("serial").
		WithDetail("attempt", 2)

	assert.Equal(t, "serial", err.Field)
	assert.Equal(t, 2, err.Details["attempt"])
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "load object")
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"naming conflict", NewNamingConflictError("id", "reserved name"), IsNamingConflictError},
		{"immutable field", NewImmutableFieldError("type", "serial"), IsImmutableFieldError},
		{"reference protected", NewReferenceProtectedError("color", "red"), IsReferenceProtectedError},
		{"field not found", NewFieldNotFoundError("ghost"), IsNotFoundError},
		{"object not found", NewObjectNotFoundError("abc"), IsNotFoundError},
		{"kind not found", NewKindNotFoundError("ghost"), IsNotFoundError},
		{"type mismatch", NewTypeMismatchError("vlan", "value must be an integer"), IsValidationError},
		{"required missing", NewRequiredFieldMissingError("serial"), IsValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
		})
	}
}

func TestErrorClassificationDoesNotCross(t *testing.T) {
	err := NewFieldNotFoundError("ghost")
	assert.False(t, IsValidationError(err))
	assert.False(t, IsNamingConflictError(err))
	assert.False(t, IsNotFoundError(errors.New("plain")))
}

// =============================================================================
// ValidationErrors Tests
// =============================================================================

func TestValidationErrorsAggregation(t *testing.T) {
	ve := NewValidationErrors()
	assert.False(t, ve.HasErrors())
	assert.NoError(t, ve.ToError())

	ve.Add(NewRequiredFieldMissingError("serial"))
	ve.Add(NewTypeMismatchError("vlan", "value must be an integer"))
	ve.Add(NewTypeMismatchError("vlan", "value out of range"))

	require.Error(t, ve.ToError())
	assert.True(t, IsValidationError(ve.ToError()))

	grouped := ve.ByField()
	assert.Len(t, grouped["serial"], 1)
	assert.Len(t, grouped["vlan"], 2)
}

// =============================================================================
// BatchErrors Tests
// =============================================================================

func TestBatchErrorsStatistics(t *testing.T) {
	be := NewBatchErrors()
	assert.False(t, be.HasErrors())
	assert.NoError(t, be.ToError())

	be.Add(3, NewRequiredFieldMissingError("serial"))
	be.SetStatistics(9, 1, 10)

	assert.True(t, be.HasErrors())
	assert.True(t, be.HasPartialSuccess())
	assert.Equal(t, 3, be.Errors[0].Row)
	assert.Contains(t, be.Error(), "success: 9/10")
}

func TestBatchErrorsTotalFailure(t *testing.T) {
	be := NewBatchErrors()
	be.Add(0, NewRequiredFieldMissingError("serial"))
	be.Add(1, NewRequiredFieldMissingError("serial"))
	be.SetStatistics(0, 2, 2)

	assert.False(t, be.HasPartialSuccess())
	require.Error(t, be.ToError())
}
