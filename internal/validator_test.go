package internal

import (
	"encoding/json"
	"testing"

	"github.com/fieldline/fieldline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textField(key string) *fieldline.FieldDefinition {
	return &fieldline.FieldDefinition{Key: key, Slug: key, Type: fieldline.FieldTypeText}
}

func selectField(key string, choices ...string) *fieldline.FieldDefinition {
	def := &fieldline.FieldDefinition{Key: key, Slug: key, Type: fieldline.FieldTypeSelect}
	for _, c := range choices {
		def.Choices = append(def.Choices, fieldline.FieldChoice{Value: c})
	}
	return def
}

func containerWith(data map[string]any) *fieldline.ValueContainer {
	return fieldline.NewValueContainer(data)
}

func TestValidateObjectRequiredField(t *testing.T) {
	required := textField("serial")
	required.Required = true

	errs := ValidateObject([]*fieldline.FieldDefinition{required}, containerWith(nil))
	require.True(t, errs.HasErrors())
	assert.Equal(t, fieldline.ErrCodeRequiredFieldMissing, errs.Errors[0].Code)
	assert.Equal(t, "serial", errs.Errors[0].Field)
}

func TestValidateObjectRequiredFieldWithDefaultPasses(t *testing.T) {
	required := textField("serial")
	required.Required = true
	required.Default = "UNKNOWN"

	errs := ValidateObject([]*fieldline.FieldDefinition{required}, containerWith(nil))
	assert.False(t, errs.HasErrors())
}

func TestValidateObjectExplicitNullOnRequiredField(t *testing.T) {
	// A staged null is a present key but carries no value, so the
	// required check still fires.
	required := textField("serial")
	required.Required = true

	errs := ValidateObject([]*fieldline.FieldDefinition{required},
		containerWith(map[string]any{"serial": nil}))
	require.True(t, errs.HasErrors())
	assert.Equal(t, fieldline.ErrCodeRequiredFieldMissing, errs.Errors[0].Code)
	assert.Equal(t, "serial", errs.Errors[0].Field)
}

func TestValidateObjectEmptyStringOnRequiredField(t *testing.T) {
	required := textField("serial")
	required.Required = true

	errs := ValidateObject([]*fieldline.FieldDefinition{required},
		containerWith(map[string]any{"serial": ""}))
	require.True(t, errs.HasErrors())
	assert.Equal(t, fieldline.ErrCodeRequiredFieldMissing, errs.Errors[0].Code)
}

func TestValidateObjectExplicitNullNotRescuedByDefault(t *testing.T) {
	// A default fills absence, never an explicitly staged null.
	required := textField("serial")
	required.Required = true
	required.Default = "UNKNOWN"

	errs := ValidateObject([]*fieldline.FieldDefinition{required},
		containerWith(map[string]any{"serial": nil}))
	require.True(t, errs.HasErrors())
	assert.Equal(t, fieldline.ErrCodeRequiredFieldMissing, errs.Errors[0].Code)
}

func TestValidateObjectEmptyStringOnOptionalFieldSkipsChecks(t *testing.T) {
	field := textField("site_code")
	field.ValidationRegex = `^[A-Z]{3}\d{2}$`

	errs := ValidateObject([]*fieldline.FieldDefinition{field},
		containerWith(map[string]any{"site_code": ""}))
	assert.False(t, errs.HasErrors())
}

func TestValidateObjectTypeMismatch(t *testing.T) {
	intField := &fieldline.FieldDefinition{Key: "asset_count", Slug: "asset_count", Type: fieldline.FieldTypeInteger}

	errs := ValidateObject([]*fieldline.FieldDefinition{intField},
		containerWith(map[string]any{"asset_count": "not-a-number"}))
	require.True(t, errs.HasErrors())
	assert.Equal(t, fieldline.ErrCodeTypeMismatch, errs.Errors[0].Code)
}

func TestValidateObjectIntegerWidenedByJSONDecode(t *testing.T) {
	// JSON decoding hands integers to the validator as float64.
	intField := &fieldline.FieldDefinition{Key: "asset_count", Slug: "asset_count", Type: fieldline.FieldTypeInteger}

	errs := ValidateObject([]*fieldline.FieldDefinition{intField},
		containerWith(map[string]any{"asset_count": float64(42)}))
	assert.False(t, errs.HasErrors())
}

func TestValidateObjectIntegerBounds(t *testing.T) {
	min := int64(1)
	max := int64(100)
	intField := &fieldline.FieldDefinition{
		Key: "vlan", Slug: "vlan", Type: fieldline.FieldTypeInteger,
		ValidationMinimum: &min, ValidationMaximum: &max,
	}

	errs := ValidateObject([]*fieldline.FieldDefinition{intField},
		containerWith(map[string]any{"vlan": 0}))
	require.True(t, errs.HasErrors())
	assert.Equal(t, fieldline.ErrCodeRangeViolation, errs.Errors[0].Code)

	errs = ValidateObject([]*fieldline.FieldDefinition{intField},
		containerWith(map[string]any{"vlan": 101}))
	require.True(t, errs.HasErrors())

	errs = ValidateObject([]*fieldline.FieldDefinition{intField},
		containerWith(map[string]any{"vlan": 50}))
	assert.False(t, errs.HasErrors())
}

func TestValidateObjectIntegerBoundsBeyond32Bit(t *testing.T) {
	min := int64(1)
	max := int64(4294967295)
	intField := &fieldline.FieldDefinition{
		Key: "octets", Slug: "octets", Type: fieldline.FieldTypeInteger,
		ValidationMinimum: &min, ValidationMaximum: &max,
	}

	errs := ValidateObject([]*fieldline.FieldDefinition{intField},
		containerWith(map[string]any{"octets": float64(4294967294)}))
	assert.False(t, errs.HasErrors())

	errs = ValidateObject([]*fieldline.FieldDefinition{intField},
		containerWith(map[string]any{"octets": json.Number("4294967296")}))
	require.True(t, errs.HasErrors())
	assert.Equal(t, fieldline.ErrCodeRangeViolation, errs.Errors[0].Code)

	low := int64(4294967294)
	intField.ValidationMinimum = &low
	errs = ValidateObject([]*fieldline.FieldDefinition{intField},
		containerWith(map[string]any{"octets": float64(4294967293)}))
	require.True(t, errs.HasErrors())
	assert.Equal(t, fieldline.ErrCodeRangeViolation, errs.Errors[0].Code)
}

func TestValidateObjectRegex(t *testing.T) {
	field := textField("site_code")
	field.ValidationRegex = `^[A-Z]{3}\d{2}$`

	errs := ValidateObject([]*fieldline.FieldDefinition{field},
		containerWith(map[string]any{"site_code": "nope"}))
	require.True(t, errs.HasErrors())
	assert.Equal(t, fieldline.ErrCodePatternMismatch, errs.Errors[0].Code)
	assert.Contains(t, errs.Errors[0].Message, `"nope"`)
	assert.Contains(t, errs.Errors[0].Message, field.ValidationRegex)

	errs = ValidateObject([]*fieldline.FieldDefinition{field},
		containerWith(map[string]any{"site_code": "AMS01"}))
	assert.False(t, errs.HasErrors())
}

func TestValidateObjectBrokenRegexNeverRejects(t *testing.T) {
	field := textField("site_code")
	field.ValidationRegex = `([`

	errs := ValidateObject([]*fieldline.FieldDefinition{field},
		containerWith(map[string]any{"site_code": "anything"}))
	assert.False(t, errs.HasErrors())
}

func TestValidateObjectDateFormat(t *testing.T) {
	field := &fieldline.FieldDefinition{Key: "installed", Slug: "installed", Type: fieldline.FieldTypeDate}

	errs := ValidateObject([]*fieldline.FieldDefinition{field},
		containerWith(map[string]any{"installed": "2026-08-28"}))
	assert.False(t, errs.HasErrors())

	errs = ValidateObject([]*fieldline.FieldDefinition{field},
		containerWith(map[string]any{"installed": "08/28/2026"}))
	require.True(t, errs.HasErrors())
	assert.Equal(t, fieldline.ErrCodeTypeMismatch, errs.Errors[0].Code)
}

func TestValidateObjectChoiceMembership(t *testing.T) {
	field := selectField("environment", "prod", "staging", "dev")

	errs := ValidateObject([]*fieldline.FieldDefinition{field},
		containerWith(map[string]any{"environment": "qa"}))
	require.True(t, errs.HasErrors())
	assert.Equal(t, fieldline.ErrCodeInvalidChoice, errs.Errors[0].Code)

	errs = ValidateObject([]*fieldline.FieldDefinition{field},
		containerWith(map[string]any{"environment": "prod"}))
	assert.False(t, errs.HasErrors())
}

func TestValidateObjectMultiChoiceMembership(t *testing.T) {
	field := &fieldline.FieldDefinition{Key: "tags", Slug: "tags", Type: fieldline.FieldTypeMultiSelect}
	field.Choices = []fieldline.FieldChoice{{Value: "red"}, {Value: "blue"}}

	errs := ValidateObject([]*fieldline.FieldDefinition{field},
		containerWith(map[string]any{"tags": []any{"red", "green"}}))
	require.True(t, errs.HasErrors())

	errs = ValidateObject([]*fieldline.FieldDefinition{field},
		containerWith(map[string]any{"tags": []any{"red", "blue"}}))
	assert.False(t, errs.HasErrors())
}

func TestValidateObjectUnknownKeysAreWarningsOnly(t *testing.T) {
	errs := ValidateObject([]*fieldline.FieldDefinition{textField("known")},
		containerWith(map[string]any{"known": "x", "ghost": "y"}))
	assert.False(t, errs.HasErrors())
}

func TestValidateObjectJSONSchema(t *testing.T) {
	field := &fieldline.FieldDefinition{Key: "payload", Slug: "payload", Type: fieldline.FieldTypeJSON}
	field.ValidationSchema = json.RawMessage(`{"type":"object","required":["name"]}`)

	errs := ValidateObject([]*fieldline.FieldDefinition{field},
		containerWith(map[string]any{"payload": map[string]any{"name": "ok"}}))
	assert.False(t, errs.HasErrors())

	errs = ValidateObject([]*fieldline.FieldDefinition{field},
		containerWith(map[string]any{"payload": map[string]any{"other": 1}}))
	require.True(t, errs.HasErrors())
	assert.Equal(t, fieldline.ErrCodeTypeMismatch, errs.Errors[0].Code)
}

func TestValidateObjectJSONWithoutSchemaAcceptsAnyShape(t *testing.T) {
	field := &fieldline.FieldDefinition{Key: "payload", Slug: "payload", Type: fieldline.FieldTypeJSON}

	for _, value := range []any{map[string]any{"a": 1}, []any{1, 2}, "plain", 3.5, true} {
		errs := ValidateObject([]*fieldline.FieldDefinition{field},
			containerWith(map[string]any{"payload": value}))
		assert.False(t, errs.HasErrors(), "value %v should validate", value)
	}
}

func TestValidateObjectCollectsAllFailures(t *testing.T) {
	intField := &fieldline.FieldDefinition{Key: "count", Slug: "count", Type: fieldline.FieldTypeInteger}
	required := textField("serial")
	required.Required = true

	errs := ValidateObject([]*fieldline.FieldDefinition{intField, required},
		containerWith(map[string]any{"count": "NaN"}))
	require.Len(t, errs.Errors, 2)

	byField := errs.ByField()
	assert.Contains(t, byField, "count")
	assert.Contains(t, byField, "serial")
}

func TestValidateDefault(t *testing.T) {
	field := selectField("environment", "prod", "dev")
	field.Default = "qa"
	require.NotNil(t, ValidateDefault(field))

	field.Default = "prod"
	assert.Nil(t, ValidateDefault(field))

	field.Default = nil
	assert.Nil(t, ValidateDefault(field))
}

func TestValidateChoiceValue(t *testing.T) {
	field := selectField("environment")
	field.ValidationRegex = `^[a-z]+$`

	assert.Nil(t, ValidateChoiceValue(field, "prod"))
	assert.NotNil(t, ValidateChoiceValue(field, "PROD"))
}
