package internal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fieldline/fieldline"
)

// FilterParamPrefix is the external prefix for custom field filter
// parameters, e.g. "cf_site_code__ic=DC".
const FilterParamPrefix = "cf_"

// filterSuffixSeparator splits the field key from the lookup suffix.
const filterSuffixSeparator = "__"

// nullLiteral is the special filter value meaning "key entirely absent".
const nullLiteral = "null"

var knownLookups = map[string]fieldline.FilterLookup{
	"n":    fieldline.LookupNegExact,
	"lte":  fieldline.LookupLTE,
	"lt":   fieldline.LookupLT,
	"gte":  fieldline.LookupGTE,
	"gt":   fieldline.LookupGT,
	"ic":   fieldline.LookupIContains,
	"nic":  fieldline.LookupNIContains,
	"iew":  fieldline.LookupIEndsWith,
	"niew": fieldline.LookupNIEndsWith,
	"isw":  fieldline.LookupIStartsWith,
	"nisw": fieldline.LookupNIStartsWith,
	"ie":   fieldline.LookupIExact,
	"nie":  fieldline.LookupNIExact,
	"re":   fieldline.LookupRegex,
	"nre":  fieldline.LookupNegRegex,
	"ire":  fieldline.LookupIRegex,
	"nire": fieldline.LookupNIRegex,
}

// ParseFilterParam parses an external query parameter name like
// "cf_site_code" or "cf_my_field__lte" into a Filter. Returns false when the
// parameter is not a custom field filter at all.
func ParseFilterParam(param string, value string) (fieldline.Filter, bool) {
	if !strings.HasPrefix(param, FilterParamPrefix) {
		return fieldline.Filter{}, false
	}
	rest := strings.TrimPrefix(param, FilterParamPrefix)
	if rest == "" {
		return fieldline.Filter{}, false
	}

	key := rest
	lookup := fieldline.LookupExact
	if idx := strings.LastIndex(rest, filterSuffixSeparator); idx > 0 {
		if mapped, ok := knownLookups[rest[idx+len(filterSuffixSeparator):]]; ok {
			key = rest[:idx]
			lookup = mapped
		}
	}

	if lookup == fieldline.LookupExact && value == nullLiteral {
		lookup = fieldline.LookupIsNull
	}

	return fieldline.Filter{Key: key, Lookup: lookup, Value: value}, true
}

// FilterTranslator builds SQL predicates over the per-object JSONB blob.
// Clauses are parameterized; paramIndex threads the placeholder numbering
// through composed clauses.
type FilterTranslator struct {
	// Column is the JSONB column holding custom field data.
	Column string
}

// NewFilterTranslator creates a translator for the given JSONB column.
func NewFilterTranslator(column string) *FilterTranslator {
	if column == "" {
		column = "custom_field_data"
	}
	return &FilterTranslator{Column: column}
}

// Translate produces one SQL clause for a filter against the given field
// definition. Negated lookups include rows where the key is entirely absent:
// absence never matches the positive condition, so it passes the negation.
func (t *FilterTranslator) Translate(
	def *fieldline.FieldDefinition,
	filter fieldline.Filter,
	paramIndex *int,
) (string, []any, error) {
	if def.FilterLogic == fieldline.FilterLogicDisabled {
		return "", nil, fieldline.NewInvalidFilterError(
			fmt.Sprintf("filtering is disabled for field '%s'", def.Key))
	}

	lookup := t.normalizeLookup(def, filter.Lookup)

	if lookup == fieldline.LookupIsNull {
		clause := fmt.Sprintf("(NOT (%s ? %s) OR %s -> %s = 'null'::jsonb)",
			t.Column, t.next(paramIndex), t.Column, t.next(paramIndex))
		return clause, []any{def.Key, def.Key}, nil
	}

	positive, args, negated, err := t.positiveClause(def, lookup, filter.Value, paramIndex)
	if err != nil {
		return "", nil, err
	}

	if negated {
		clause := fmt.Sprintf("(NOT (%s) OR NOT (%s ? %s))", positive, t.Column, t.next(paramIndex))
		args = append(args, def.Key)
		return clause, args, nil
	}
	return "(" + positive + ")", args, nil
}

// TranslateAll combines every filter with AND, resolving each key against the
// supplied definitions.
func (t *FilterTranslator) TranslateAll(
	defs []*fieldline.FieldDefinition,
	filters []fieldline.Filter,
	paramIndex *int,
) (string, []any, error) {
	byKey := make(map[string]*fieldline.FieldDefinition, len(defs))
	for _, def := range defs {
		byKey[def.Key] = def
	}

	clauses := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters)*2)
	for _, filter := range filters {
		def, ok := byKey[filter.Key]
		if !ok {
			return "", nil, fieldline.NewFieldNotFoundError(filter.Key)
		}
		clause, clauseArgs, err := t.Translate(def, filter, paramIndex)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, clauseArgs...)
	}

	if len(clauses) == 0 {
		return "TRUE", nil, nil
	}
	return strings.Join(clauses, " AND "), args, nil
}

// normalizeLookup resolves the bare (suffix-less) lookup per kind and filter
// logic: loose text defaults to case-insensitive contains, multiselect to
// element containment, everything else to exact match.
func (t *FilterTranslator) normalizeLookup(def *fieldline.FieldDefinition, lookup fieldline.FilterLookup) fieldline.FilterLookup {
	if lookup != fieldline.LookupExact && lookup != "" {
		return lookup
	}
	switch def.Type {
	case fieldline.FieldTypeText, fieldline.FieldTypeURL:
		if def.FilterLogic == fieldline.FilterLogicLoose {
			return fieldline.LookupIContains
		}
	case fieldline.FieldTypeMultiSelect:
		return fieldline.LookupContains
	}
	return fieldline.LookupExact
}

// positiveClause builds the non-negated predicate and reports whether the
// requested lookup wraps it in a negation.
func (t *FilterTranslator) positiveClause(
	def *fieldline.FieldDefinition,
	lookup fieldline.FilterLookup,
	value any,
	paramIndex *int,
) (clause string, args []any, negated bool, err error) {
	text := func() string {
		return fmt.Sprintf("%s ->> %s", t.Column, t.next(paramIndex))
	}

	switch lookup {
	case fieldline.LookupExact, fieldline.LookupNegExact:
		negated = lookup == fieldline.LookupNegExact
		clause, args, err = t.exactClause(def, value, paramIndex)
		return clause, args, negated, err

	case fieldline.LookupLTE, fieldline.LookupLT, fieldline.LookupGTE, fieldline.LookupGT:
		op := map[fieldline.FilterLookup]string{
			fieldline.LookupLTE: "<=",
			fieldline.LookupLT:  "<",
			fieldline.LookupGTE: ">=",
			fieldline.LookupGT:  ">",
		}[lookup]
		switch def.Type {
		case fieldline.FieldTypeInteger:
			n, convErr := toFilterInt(value)
			if convErr != nil {
				return "", nil, false, fieldline.NewInvalidFilterError(convErr.Error()).WithField(def.Key)
			}
			clause = fmt.Sprintf("(%s)::numeric %s %s", text(), op, t.next(paramIndex))
			return clause, []any{def.Key, n}, false, nil
		case fieldline.FieldTypeDate:
			clause = fmt.Sprintf("(%s)::date %s (%s)::date", text(), op, t.next(paramIndex))
			return clause, []any{def.Key, fmt.Sprint(value)}, false, nil
		default:
			return "", nil, false, fieldline.NewInvalidFilterError(
				fmt.Sprintf("range lookup %q is not supported for %s fields", lookup, def.Type)).WithField(def.Key)
		}

	case fieldline.LookupIContains, fieldline.LookupNIContains:
		negated = lookup == fieldline.LookupNIContains
		clause = fmt.Sprintf("%s ILIKE '%%' || %s || '%%'", text(), t.next(paramIndex))
		return clause, []any{def.Key, fmt.Sprint(value)}, negated, nil

	case fieldline.LookupIEndsWith, fieldline.LookupNIEndsWith:
		negated = lookup == fieldline.LookupNIEndsWith
		clause = fmt.Sprintf("%s ILIKE '%%' || %s", text(), t.next(paramIndex))
		return clause, []any{def.Key, fmt.Sprint(value)}, negated, nil

	case fieldline.LookupIStartsWith, fieldline.LookupNIStartsWith:
		negated = lookup == fieldline.LookupNIStartsWith
		clause = fmt.Sprintf("%s ILIKE %s || '%%'", text(), t.next(paramIndex))
		return clause, []any{def.Key, fmt.Sprint(value)}, negated, nil

	case fieldline.LookupIExact, fieldline.LookupNIExact:
		negated = lookup == fieldline.LookupNIExact
		clause = fmt.Sprintf("LOWER(%s) = LOWER(%s)", text(), t.next(paramIndex))
		return clause, []any{def.Key, fmt.Sprint(value)}, negated, nil

	case fieldline.LookupRegex, fieldline.LookupNegRegex:
		negated = lookup == fieldline.LookupNegRegex
		clause = fmt.Sprintf("%s ~ %s", text(), t.next(paramIndex))
		return clause, []any{def.Key, fmt.Sprint(value)}, negated, nil

	case fieldline.LookupIRegex, fieldline.LookupNIRegex:
		negated = lookup == fieldline.LookupNIRegex
		clause = fmt.Sprintf("%s ~* %s", text(), t.next(paramIndex))
		return clause, []any{def.Key, fmt.Sprint(value)}, negated, nil

	case fieldline.LookupContains:
		// Multiselect bare filter: "contains this element".
		clause = fmt.Sprintf("%s -> %s @> jsonb_build_array(%s::text)",
			t.Column, t.next(paramIndex), t.next(paramIndex))
		return clause, []any{def.Key, fmt.Sprint(value)}, false, nil

	default:
		return "", nil, false, fieldline.NewInvalidFilterError(
			fmt.Sprintf("unsupported lookup %q", lookup)).WithField(def.Key)
	}
}

// exactClause builds an exact-match predicate with the comparison typed per
// kind; integer and boolean comparisons never happen on the raw string.
func (t *FilterTranslator) exactClause(def *fieldline.FieldDefinition, value any, paramIndex *int) (string, []any, error) {
	switch def.Type {
	case fieldline.FieldTypeInteger:
		n, err := toFilterInt(value)
		if err != nil {
			return "", nil, fieldline.NewInvalidFilterError(err.Error()).WithField(def.Key)
		}
		clause := fmt.Sprintf("(%s ->> %s)::numeric = %s", t.Column, t.next(paramIndex), t.next(paramIndex))
		return clause, []any{def.Key, n}, nil

	case fieldline.FieldTypeBoolean:
		b, err := toFilterBool(value)
		if err != nil {
			return "", nil, fieldline.NewInvalidFilterError(err.Error()).WithField(def.Key)
		}
		clause := fmt.Sprintf("(%s ->> %s)::boolean = %s", t.Column, t.next(paramIndex), t.next(paramIndex))
		return clause, []any{def.Key, b}, nil

	case fieldline.FieldTypeDate:
		clause := fmt.Sprintf("(%s ->> %s)::date = (%s)::date", t.Column, t.next(paramIndex), t.next(paramIndex))
		return clause, []any{def.Key, fmt.Sprint(value)}, nil

	case fieldline.FieldTypeMultiSelect:
		clause := fmt.Sprintf("%s -> %s @> jsonb_build_array(%s::text)",
			t.Column, t.next(paramIndex), t.next(paramIndex))
		return clause, []any{def.Key, fmt.Sprint(value)}, nil

	default:
		clause := fmt.Sprintf("%s ->> %s = %s", t.Column, t.next(paramIndex), t.next(paramIndex))
		return clause, []any{def.Key, fmt.Sprint(value)}, nil
	}
}

// next yields the next SQL placeholder and advances the index.
func (t *FilterTranslator) next(paramIndex *int) string {
	placeholder := "$" + strconv.Itoa(*paramIndex)
	*paramIndex++
	return placeholder
}

func toFilterInt(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("filter value must be an integer, got %q", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("filter value must be an integer, got %T", value)
	}
}

func toFilterBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("filter value must be a boolean, got %q", v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("filter value must be a boolean, got %T", value)
	}
}
