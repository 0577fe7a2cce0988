package fieldline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// FieldType enumerates the value kinds a FieldDefinition may declare.
type FieldType string

const (
	FieldTypeText        FieldType = "text"
	FieldTypeInteger     FieldType = "integer"
	FieldTypeBoolean     FieldType = "boolean"
	FieldTypeDate        FieldType = "date"
	FieldTypeURL         FieldType = "url"
	FieldTypeJSON        FieldType = "json"
	FieldTypeSelect      FieldType = "select"
	FieldTypeMultiSelect FieldType = "multiselect"
)

// DateFormat is the calendar-date layout accepted for date-kind values.
const DateFormat = "2006-01-02"

// FieldTypes lists every supported kind in declaration order.
var FieldTypes = []FieldType{
	FieldTypeText,
	FieldTypeInteger,
	FieldTypeBoolean,
	FieldTypeDate,
	FieldTypeURL,
	FieldTypeJSON,
	FieldTypeSelect,
	FieldTypeMultiSelect,
}

// IsValid reports whether t is one of the declared field types.
func (t FieldType) IsValid() bool {
	for _, known := range FieldTypes {
		if t == known {
			return true
		}
	}
	return false
}

// FilterLogic controls the default (suffix-less) filter behavior for a field.
type FilterLogic string

const (
	FilterLogicLoose    FilterLogic = "loose"
	FilterLogicExact    FilterLogic = "exact"
	FilterLogicDisabled FilterLogic = "disabled"
)

// ReservedFieldNames are names that collide with built-in object attributes or
// payload container keys and therefore may not be used as a field key or slug.
var ReservedFieldNames = []string{
	"id",
	"name",
	"slug",
	"created",
	"last_updated",
	"custom_fields",
	"computed_fields",
}

// IsReservedFieldName reports whether name collides with a reserved term.
func IsReservedFieldName(name string) bool {
	for _, reserved := range ReservedFieldNames {
		if name == reserved {
			return true
		}
	}
	return false
}

// FieldDefinition is one administrator-defined typed attribute. Key, Slug and
// Type are immutable once the definition has been persisted; changing them
// would silently invalidate stored values across an unknown number of objects.
type FieldDefinition struct {
	ID       uuid.UUID `json:"id"`
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Slug     string    `json:"slug"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Default  any       `json:"default,omitempty"`

	FilterLogic FilterLogic `json:"filter_logic"`

	// Bounds apply to integer fields only, inclusive on both ends.
	ValidationMinimum *int64 `json:"validation_minimum,omitempty"`
	ValidationMaximum *int64 `json:"validation_maximum,omitempty"`

	// ValidationRegex applies to text, url, select and multiselect fields.
	ValidationRegex string `json:"validation_regex,omitempty"`

	// ValidationSchema optionally constrains json-kind values with a JSON
	// Schema document. Empty means any JSON-serializable value is accepted.
	ValidationSchema json.RawMessage `json:"validation_schema,omitempty"`

	Weight int `json:"weight"`

	// ObjectKinds holds the kind identifiers this field applies to.
	ObjectKinds []int16 `json:"object_kinds"`

	// Choices is populated for select/multiselect fields when loaded through
	// the registry, ordered by weight then value.
	Choices []FieldChoice `json:"choices,omitempty"`
}

// AppliesTo reports whether the definition is applicable to the given kind.
func (d *FieldDefinition) AppliesTo(kindID int16) bool {
	for _, id := range d.ObjectKinds {
		if id == kindID {
			return true
		}
	}
	return false
}

// ChoiceValues returns the declared choice values in display order.
func (d *FieldDefinition) ChoiceValues() []string {
	values := make([]string, 0, len(d.Choices))
	for _, c := range d.Choices {
		values = append(values, c.Value)
	}
	return values
}

// HasChoice reports whether value is one of the declared choices.
func (d *FieldDefinition) HasChoice(value string) bool {
	for _, c := range d.Choices {
		if c.Value == value {
			return true
		}
	}
	return false
}

// FieldChoice is one allowed value for a select/multiselect FieldDefinition.
type FieldChoice struct {
	ID      uuid.UUID `json:"id"`
	FieldID uuid.UUID `json:"field_id"`
	Value   string    `json:"value"`
	Weight  int       `json:"weight"`
}

// ComputedFieldDefinition is a read-only templated attribute bound to a single
// object kind. It is evaluated per request and never persisted.
type ComputedFieldDefinition struct {
	ID             uuid.UUID `json:"id"`
	KindID         int16     `json:"kind_id"`
	Slug           string    `json:"slug"`
	Label          string    `json:"label"`
	TemplateSource string    `json:"template"`
	FallbackValue  string    `json:"fallback_value"`
	Weight         int       `json:"weight"`
}

// ObjectKind is one entry in the object-kind registry.
type ObjectKind struct {
	ID   int16  `json:"id"`
	Name string `json:"name"`
}

// ObjectRecord is a custom-field-capable domain object (location, device,
// rack, ...). The concrete kind is identified by KindID; custom field values
// live in a single semi-structured blob keyed by field key.
type ObjectRecord struct {
	ID              uuid.UUID      `json:"id"`
	KindID          int16          `json:"kind_id"`
	Name            string         `json:"name"`
	Slug            string         `json:"slug"`
	CustomFieldData map[string]any `json:"custom_field_data"`
}

// CF returns the value container accessor for the object's custom field data.
// Mutations through the accessor are staged in memory only; validation happens
// in a separate explicit pass.
func (o *ObjectRecord) CF() *ValueContainer {
	if o.CustomFieldData == nil {
		o.CustomFieldData = make(map[string]any)
	}
	return &ValueContainer{data: o.CustomFieldData}
}

// ValueKind tags the typed payload carried by a TypedValue.
type ValueKind string

const (
	ValueKindNull        ValueKind = "null"
	ValueKindText        ValueKind = "text"
	ValueKindInteger     ValueKind = "integer"
	ValueKindBoolean     ValueKind = "boolean"
	ValueKindDate        ValueKind = "date"
	ValueKindJSON        ValueKind = "json"
	ValueKindChoice      ValueKind = "choice"
	ValueKindMultiChoice ValueKind = "multichoice"
)

// TypedValue is the tagged union produced by coercing a raw stored value
// against a field's declared type. Serialization boundaries (validation, CSV,
// table rendering) dispatch exhaustively on Kind instead of reflecting over
// the raw container value.
type TypedValue struct {
	Kind        ValueKind
	Text        string
	Integer     int64
	Boolean     bool
	Date        time.Time
	JSON        any
	Choice      string
	MultiChoice []string
}

// IsNull reports whether the value carries no payload.
func (v TypedValue) IsNull() bool {
	return v.Kind == ValueKindNull
}

// Coerce converts a raw container value into a TypedValue for the given field
// type. JSON decoding widens integers to float64, so the integer kind accepts
// float64, json.Number and integral strings; bound checks later operate on the
// coerced int64, never on string comparison.
func Coerce(fieldType FieldType, raw any) (TypedValue, error) {
	if raw == nil {
		return TypedValue{Kind: ValueKindNull}, nil
	}

	switch fieldType {
	case FieldTypeText, FieldTypeURL:
		s, ok := raw.(string)
		if !ok {
			return TypedValue{}, fmt.Errorf("value must be a string, got %T", raw)
		}
		return TypedValue{Kind: ValueKindText, Text: s}, nil

	case FieldTypeInteger:
		n, err := toInt64(raw)
		if err != nil {
			return TypedValue{}, err
		}
		return TypedValue{Kind: ValueKindInteger, Integer: n}, nil

	case FieldTypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return TypedValue{}, fmt.Errorf("value must be true or false, got %T", raw)
		}
		return TypedValue{Kind: ValueKindBoolean, Boolean: b}, nil

	case FieldTypeDate:
		s, ok := raw.(string)
		if !ok {
			return TypedValue{}, fmt.Errorf("date value must be a string, got %T", raw)
		}
		d, err := time.Parse(DateFormat, s)
		if err != nil {
			return TypedValue{}, fmt.Errorf("date value must be in YYYY-MM-DD format: %q", s)
		}
		return TypedValue{Kind: ValueKindDate, Date: d}, nil

	case FieldTypeJSON:
		// Any JSON-serializable value is accepted; null was handled above.
		if _, err := json.Marshal(raw); err != nil {
			return TypedValue{}, fmt.Errorf("value is not JSON-serializable: %v", err)
		}
		return TypedValue{Kind: ValueKindJSON, JSON: raw}, nil

	case FieldTypeSelect:
		s, ok := raw.(string)
		if !ok {
			return TypedValue{}, fmt.Errorf("selection value must be a string, got %T", raw)
		}
		return TypedValue{Kind: ValueKindChoice, Choice: s}, nil

	case FieldTypeMultiSelect:
		elements, err := toStringSlice(raw)
		if err != nil {
			return TypedValue{}, err
		}
		return TypedValue{Kind: ValueKindMultiChoice, MultiChoice: elements}, nil

	default:
		return TypedValue{}, fmt.Errorf("unsupported field type %q", fieldType)
	}
}

// Raw converts the typed value back into its container representation.
func (v TypedValue) Raw() any {
	switch v.Kind {
	case ValueKindNull:
		return nil
	case ValueKindText:
		return v.Text
	case ValueKindInteger:
		return v.Integer
	case ValueKindBoolean:
		return v.Boolean
	case ValueKindDate:
		return v.Date.Format(DateFormat)
	case ValueKindJSON:
		return v.JSON
	case ValueKindChoice:
		return v.Choice
	case ValueKindMultiChoice:
		elements := make([]any, len(v.MultiChoice))
		for i, e := range v.MultiChoice {
			elements[i] = e
		}
		return elements
	default:
		return nil
	}
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("value must be an integer, got %v", v)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value must be an integer, got %q", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("value must be an integer, got %T", value)
	}
}

func toStringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("list elements must be strings, got %T", e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value must be a list of strings, got %T", value)
	}
}
