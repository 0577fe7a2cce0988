package fieldline

import "context"

// KindRegistry translates between concrete object kind names and the stable
// numeric identifiers used as the applicability key for field definitions.
type KindRegistry interface {
	// IdentifierFor returns the stable identifier for a kind name
	IdentifierFor(ctx context.Context, name string) (int16, error)
	// KindFor returns the kind name for a stable identifier
	KindFor(ctx context.Context, id int16) (string, error)
	// ListKinds returns every registered kind
	ListKinds(ctx context.Context) ([]ObjectKind, error)
}

// FieldRegistry provides field and computed-field definition lookups for one
// unit of work. Implementations must not cache results across requests: an
// administrator edit in another request must become visible on the next
// registry construction.
type FieldRegistry interface {
	// DefinitionsFor returns the definitions applicable to kindID, ordered by
	// weight ascending then key, with choices populated for select kinds.
	DefinitionsFor(ctx context.Context, kindID int16) ([]*FieldDefinition, error)

	// DefaultsFor returns a key->default mapping for every definition
	// applicable to kindID. Fields without a default map to nil.
	DefaultsFor(ctx context.Context, kindID int16) (map[string]any, error)

	// DefinitionByKey returns one definition by its immutable key.
	DefinitionByKey(ctx context.Context, key string) (*FieldDefinition, error)

	// ComputedFieldsFor returns the computed field definitions for kindID,
	// ordered by weight ascending.
	ComputedFieldsFor(ctx context.Context, kindID int16) ([]*ComputedFieldDefinition, error)
}
