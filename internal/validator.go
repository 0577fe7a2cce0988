package internal

import (
	"encoding/json"
	"regexp"

	"github.com/fieldline/fieldline"
	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"
)

// ValidateObject runs the full validation pass over an object's staged custom
// field data against the definitions applicable to its kind. It is a pure
// function of its inputs: mutation (staging) and validation never mix.
//
// Keys present in the container that match no applicable definition are
// logged as warnings, never raised; stale data from deleted or re-scoped
// definitions must not block saves.
func ValidateObject(defs []*fieldline.FieldDefinition, container *fieldline.ValueContainer) *fieldline.ValidationErrors {
	errs := fieldline.NewValidationErrors()

	known := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		known[def.Key] = struct{}{}

		value, present := container.Lookup(def.Key)
		if !present || emptyValue(def.Type, value) {
			// A staged null or empty string never satisfies a required
			// field; absence passes only when a default will fill it in.
			if def.Required && (present || def.Default == nil) {
				errs.Add(fieldline.NewRequiredFieldMissingError(def.Key))
			}
			continue
		}

		if err := validateValue(def, value); err != nil {
			errs.Add(err)
		}
	}

	for _, key := range container.Keys() {
		if _, ok := known[key]; !ok {
			zap.S().Warnw("unknown custom field key present on object",
				"key", key)
		}
	}

	return errs
}

// emptyValue reports whether a present value carries no content: nil for
// every kind, the empty string for the string kinds.
func emptyValue(t fieldline.FieldType, value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok && s == "" {
		switch t {
		case fieldline.FieldTypeText, fieldline.FieldTypeURL, fieldline.FieldTypeSelect:
			return true
		}
	}
	return false
}

// validateValue checks one non-nil value against its definition, dispatching
// exhaustively on the coerced kind.
func validateValue(def *fieldline.FieldDefinition, raw any) *fieldline.FieldError {
	typed, err := fieldline.Coerce(def.Type, raw)
	if err != nil {
		return fieldline.NewTypeMismatchError(def.Key, err.Error())
	}

	switch typed.Kind {
	case fieldline.ValueKindNull:
		return nil

	case fieldline.ValueKindText:
		return validatePattern(def, typed.Text)

	case fieldline.ValueKindInteger:
		if def.ValidationMinimum != nil && typed.Integer < *def.ValidationMinimum {
			return fieldline.NewRangeViolationError(def.Key, typed.Integer, *def.ValidationMinimum, true)
		}
		if def.ValidationMaximum != nil && typed.Integer > *def.ValidationMaximum {
			return fieldline.NewRangeViolationError(def.Key, typed.Integer, *def.ValidationMaximum, false)
		}
		return nil

	case fieldline.ValueKindBoolean, fieldline.ValueKindDate:
		return nil

	case fieldline.ValueKindJSON:
		return validateJSONSchema(def, typed.JSON)

	case fieldline.ValueKindChoice:
		if !def.HasChoice(typed.Choice) {
			return fieldline.NewInvalidChoiceError(def.Key, typed.Choice, def.ChoiceValues())
		}
		return nil

	case fieldline.ValueKindMultiChoice:
		for _, element := range typed.MultiChoice {
			if !def.HasChoice(element) {
				return fieldline.NewInvalidChoiceError(def.Key, element, def.ChoiceValues())
			}
		}
		return nil

	default:
		return fieldline.NewTypeMismatchError(def.Key, "unhandled value kind")
	}
}

func validatePattern(def *fieldline.FieldDefinition, value string) *fieldline.FieldError {
	if def.ValidationRegex == "" {
		return nil
	}
	re, err := regexp.Compile(def.ValidationRegex)
	if err != nil {
		// A broken admin-authored regex must not make every value invalid.
		zap.S().Warnw("invalid validation regex on field definition",
			"field", def.Key, "regex", def.ValidationRegex, "err", err)
		return nil
	}
	if !re.MatchString(value) {
		return fieldline.NewPatternMismatchError(def.Key, value, def.ValidationRegex)
	}
	return nil
}

func validateJSONSchema(def *fieldline.FieldDefinition, value any) *fieldline.FieldError {
	if len(def.ValidationSchema) == 0 {
		return nil
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(def.ValidationSchema, &schema); err != nil {
		zap.S().Warnw("invalid validation schema on field definition",
			"field", def.Key, "err", err)
		return nil
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		zap.S().Warnw("unresolvable validation schema on field definition",
			"field", def.Key, "err", err)
		return nil
	}
	if err := resolved.Validate(value); err != nil {
		return fieldline.NewTypeMismatchError(def.Key, "value does not satisfy the field's JSON schema: "+err.Error())
	}
	return nil
}

// ValidateDefault checks a definition's default value against its own rules.
// For choice kinds the default must be one of the declared choices.
func ValidateDefault(def *fieldline.FieldDefinition) *fieldline.FieldError {
	if def.Default == nil {
		return nil
	}
	return validateValue(def, def.Default)
}

// ValidateChoiceValue checks a choice value against the owning field's regex.
func ValidateChoiceValue(def *fieldline.FieldDefinition, value string) *fieldline.FieldError {
	return validatePattern(def, value)
}
