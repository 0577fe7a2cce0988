package internal

import (
	"testing"

	"github.com/fieldline/fieldline"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testObject() *fieldline.ObjectRecord {
	return &fieldline.ObjectRecord{
		ID:     uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		KindID: 1,
		Name:   "core-router-01",
		Slug:   "core-router-01",
		CustomFieldData: map[string]any{
			"site_code": "AMS01",
			"vlan":      float64(42),
		},
	}
}

func computedField(slug, source, fallback string) *fieldline.ComputedFieldDefinition {
	return &fieldline.ComputedFieldDefinition{
		ID:             uuid.Must(uuid.NewV7()),
		KindID:         1,
		Slug:           slug,
		Label:          slug,
		TemplateSource: source,
		FallbackValue:  fallback,
	}
}

func TestRenderObjectAttributes(t *testing.T) {
	r := NewComputedFieldRenderer()
	cf := computedField("display", "{{ .obj.name }} ({{ .obj.slug }})", "")
	assert.Equal(t, "core-router-01 (core-router-01)", r.Render(cf, testObject()))
}

func TestRenderCustomFieldValues(t *testing.T) {
	r := NewComputedFieldRenderer()
	cf := computedField("location", "site {{ .obj.cf.site_code }} vlan {{ .obj.cf.vlan }}", "")
	assert.Equal(t, "site AMS01 vlan 42", r.Render(cf, testObject()))
}

func TestRenderHelperFunctions(t *testing.T) {
	r := NewComputedFieldRenderer()

	cf := computedField("shout", "{{ upper .obj.cf.site_code }}", "")
	assert.Equal(t, "AMS01", r.Render(cf, testObject()))

	cf = computedField("quiet", "{{ lower .obj.name }}", "")
	assert.Equal(t, "core-router-01", r.Render(cf, testObject()))
}

func TestRenderParseErrorYieldsFallback(t *testing.T) {
	r := NewComputedFieldRenderer()
	cf := computedField("broken", "{{ .obj.name", "n/a")
	assert.Equal(t, "n/a", r.Render(cf, testObject()))
}

func TestRenderExecuteErrorYieldsFallback(t *testing.T) {
	r := NewComputedFieldRenderer()
	cf := computedField("broken", `{{ call .obj.name }}`, "fallback")
	assert.Equal(t, "fallback", r.Render(cf, testObject()))
}

func TestRenderAbsentAttributeRendersEmpty(t *testing.T) {
	// A missing custom field key is not an error; it renders as nothing.
	r := NewComputedFieldRenderer()
	cf := computedField("maybe", "[{{ .obj.cf.missing }}]", "fallback")
	assert.Equal(t, "[]", r.Render(cf, testObject()))
}

func TestRenderAllPreservesWeightOrder(t *testing.T) {
	r := NewComputedFieldRenderer()
	first := computedField("alpha", "a", "")
	first.Weight = 10
	second := computedField("beta", "b", "")
	second.Weight = 20

	out := r.RenderAll([]*fieldline.ComputedFieldDefinition{first, second}, testObject(), false)
	require.Len(t, out, 2)
	assert.Equal(t, "alpha", out[0].Key)
	assert.Equal(t, "a", out[0].Value)
	assert.Equal(t, "beta", out[1].Key)
}

func TestRenderAllSkipsOtherKinds(t *testing.T) {
	r := NewComputedFieldRenderer()
	other := computedField("other", "x", "")
	other.KindID = 2

	out := r.RenderAll([]*fieldline.ComputedFieldDefinition{other}, testObject(), false)
	assert.Empty(t, out)
}

func TestRenderAllLabelAsKey(t *testing.T) {
	r := NewComputedFieldRenderer()
	cf := computedField("display_name", "{{ .obj.name }}", "")
	cf.Label = "Display Name"

	out := r.RenderAll([]*fieldline.ComputedFieldDefinition{cf}, testObject(), true)
	require.Len(t, out, 1)
	assert.Equal(t, "Display Name", out[0].Key)
}
