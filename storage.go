package fieldline

import (
	"context"

	"github.com/google/uuid"
)

// FilterLookup is the normalized operator applied to one custom field key.
type FilterLookup string

const (
	LookupExact        FilterLookup = "exact"
	LookupNegExact     FilterLookup = "n"
	LookupLTE          FilterLookup = "lte"
	LookupLT           FilterLookup = "lt"
	LookupGTE          FilterLookup = "gte"
	LookupGT           FilterLookup = "gt"
	LookupIContains    FilterLookup = "ic"
	LookupNIContains   FilterLookup = "nic"
	LookupIEndsWith    FilterLookup = "iew"
	LookupNIEndsWith   FilterLookup = "niew"
	LookupIStartsWith  FilterLookup = "isw"
	LookupNIStartsWith FilterLookup = "nisw"
	LookupIExact       FilterLookup = "ie"
	LookupNIExact      FilterLookup = "nie"
	LookupRegex        FilterLookup = "re"
	LookupNegRegex     FilterLookup = "nre"
	LookupIRegex       FilterLookup = "ire"
	LookupNIRegex      FilterLookup = "nire"
	LookupContains     FilterLookup = "contains"
	LookupIsNull       FilterLookup = "isnull"
)

// Filter is one predicate over a custom field key.
type Filter struct {
	Key    string       `json:"key"`
	Lookup FilterLookup `json:"lookup"`
	Value  any          `json:"value"`
}

// ObjectQuery describes a filtered, paginated object listing.
type ObjectQuery struct {
	KindID   int16    `json:"kind_id"`
	Filters  []Filter `json:"filters,omitempty"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// ObjectQueryResult is one page of matching objects.
type ObjectQueryResult struct {
	Objects      []*ObjectRecord `json:"objects"`
	TotalRecords int64           `json:"total_records"`
	Page         int             `json:"page"`
	PageSize     int             `json:"page_size"`
}

// DefinitionManager owns the lifecycle of field definitions, choices and
// computed fields. Implementations enforce naming, immutability and
// referential protection rules and perform the cleanup fan-out on delete.
type DefinitionManager interface {
	CreateDefinition(ctx context.Context, def *FieldDefinition) error
	UpdateDefinition(ctx context.Context, def *FieldDefinition) error
	// DeleteDefinition removes the definition and its choices synchronously
	// and schedules the stored-value fan-out. The fan-out is idempotent.
	DeleteDefinition(ctx context.Context, id uuid.UUID) error
	GetDefinition(ctx context.Context, id uuid.UUID) (*FieldDefinition, error)
	ListDefinitions(ctx context.Context) ([]*FieldDefinition, error)

	CreateChoice(ctx context.Context, choice *FieldChoice) error
	// UpdateChoice renames a choice value and propagates the rename into
	// every object currently storing the old value.
	UpdateChoice(ctx context.Context, choice *FieldChoice) error
	// DeleteChoice fails with REFERENCE_PROTECTED while any stored value
	// still references the choice.
	DeleteChoice(ctx context.Context, id uuid.UUID) error
	ListChoices(ctx context.Context, fieldID uuid.UUID) ([]FieldChoice, error)

	CreateComputedField(ctx context.Context, cf *ComputedFieldDefinition) error
	UpdateComputedField(ctx context.Context, cf *ComputedFieldDefinition) error
	DeleteComputedField(ctx context.Context, id uuid.UUID) error
}

// ObjectManager owns custom-field-capable object records.
type ObjectManager interface {
	// Create applies create-only defaults for missing keys, validates, and
	// persists the object.
	Create(ctx context.Context, obj *ObjectRecord) error
	Get(ctx context.Context, id uuid.UUID) (*ObjectRecord, error)
	// Update validates staged custom field data and persists it. Defaults
	// are never re-applied on update.
	Update(ctx context.Context, obj *ObjectRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	Query(ctx context.Context, query *ObjectQuery) (*ObjectQueryResult, error)
	// BatchCreate creates many objects, reporting failures per row while
	// persisting the rows that validated.
	BatchCreate(ctx context.Context, objs []*ObjectRecord) (*BatchErrors, error)
}
