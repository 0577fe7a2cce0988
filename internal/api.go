package internal

import (
	"github.com/fieldline/fieldline"
	"github.com/google/uuid"
)

// APIObject is the external JSON shape of an object. Custom fields are keyed
// by definition slug, not by storage key; computed fields are read-only and
// evaluated at render time.
type APIObject struct {
	ID             uuid.UUID         `json:"id"`
	Kind           string            `json:"kind"`
	Name           string            `json:"name"`
	Slug           string            `json:"slug"`
	CustomFields   map[string]any    `json:"custom_fields"`
	ComputedFields map[string]string `json:"computed_fields,omitempty"`
}

// APIAdapter converts objects between storage form and API form.
type APIAdapter struct {
	renderer *ComputedFieldRenderer
}

// NewAPIAdapter creates an adapter.
func NewAPIAdapter() *APIAdapter {
	return &APIAdapter{renderer: NewComputedFieldRenderer()}
}

// Present builds the API shape for one object. Every applicable definition
// appears in custom_fields; fields the object does not carry render as null
// so clients see the full schema, not just the populated subset.
func (a *APIAdapter) Present(
	kindName string,
	defs []*fieldline.FieldDefinition,
	computed []*fieldline.ComputedFieldDefinition,
	obj *fieldline.ObjectRecord,
) *APIObject {
	out := &APIObject{
		ID:           obj.ID,
		Kind:         kindName,
		Name:         obj.Name,
		Slug:         obj.Slug,
		CustomFields: make(map[string]any, len(defs)),
	}

	cf := obj.CF()
	for _, def := range defs {
		value, present := cf.Lookup(def.Key)
		if !present {
			out.CustomFields[def.Slug] = nil
			continue
		}
		out.CustomFields[def.Slug] = value
	}

	if len(computed) > 0 {
		out.ComputedFields = make(map[string]string, len(computed))
		for _, rendered := range a.renderer.RenderAll(computed, obj, false) {
			out.ComputedFields[rendered.Key] = rendered.Value
		}
	}
	return out
}

// ApplyCreate stages an API create payload onto a fresh object: slugs resolve
// to storage keys, then create-only defaults fill the keys the payload left
// out. A payload null counts as staged and suppresses the default.
func (a *APIAdapter) ApplyCreate(
	defs []*fieldline.FieldDefinition,
	obj *fieldline.ObjectRecord,
	customFields map[string]any,
) error {
	if err := a.stage(defs, obj, customFields); err != nil {
		return err
	}
	cf := obj.CF()
	for _, def := range defs {
		if def.Default == nil {
			continue
		}
		if _, present := cf.Lookup(def.Key); !present {
			cf.Set(def.Key, def.Default)
		}
	}
	return nil
}

// ApplyUpdate merges an API update payload into the object's existing data.
// Slugs absent from the payload keep their stored values; defaults are never
// re-applied on update.
func (a *APIAdapter) ApplyUpdate(
	defs []*fieldline.FieldDefinition,
	obj *fieldline.ObjectRecord,
	customFields map[string]any,
) error {
	return a.stage(defs, obj, customFields)
}

func (a *APIAdapter) stage(
	defs []*fieldline.FieldDefinition,
	obj *fieldline.ObjectRecord,
	customFields map[string]any,
) error {
	bySlug := make(map[string]*fieldline.FieldDefinition, len(defs))
	for _, def := range defs {
		bySlug[def.Slug] = def
	}

	cf := obj.CF()
	for slug, value := range customFields {
		def, ok := bySlug[slug]
		if !ok {
			return fieldline.NewFieldNotFoundError(slug)
		}
		cf.Set(def.Key, value)
	}
	return nil
}
