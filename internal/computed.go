package internal

import (
	"strings"
	"text/template"

	"github.com/fieldline/fieldline"
	"go.uber.org/zap"
)

// templateObjectVar is the fixed variable name templates use to reach the
// bound object, e.g. {{ .obj.name }} or {{ .obj.cf.site_code }}.
const templateObjectVar = "obj"

// ComputedFieldRenderer evaluates computed field templates against objects.
// Rendering failures never propagate: a parse or execution error yields the
// definition's fallback value so one bad admin-authored template cannot break
// every page that renders the object.
type ComputedFieldRenderer struct {
	funcs template.FuncMap
}

// NewComputedFieldRenderer creates a renderer with the default helper set.
func NewComputedFieldRenderer() *ComputedFieldRenderer {
	return &ComputedFieldRenderer{
		funcs: template.FuncMap{
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"title": func(s string) string {
				words := strings.Fields(s)
				for i, word := range words {
					if len(word) > 0 {
						words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
					}
				}
				return strings.Join(words, " ")
			},
			"join": strings.Join,
			"default": func(def, val any) any {
				if val == nil || val == "" {
					return def
				}
				return val
			},
		},
	}
}

// Render evaluates one computed field against an object. The three outcomes:
// a rendered string, the fallback value on template errors, and an empty
// string where an attribute chain legitimately resolves to nothing.
func (r *ComputedFieldRenderer) Render(cf *fieldline.ComputedFieldDefinition, obj *fieldline.ObjectRecord) string {
	tpl, err := template.New(cf.Slug).Funcs(r.funcs).Parse(cf.TemplateSource)
	if err != nil {
		zap.S().Warnw("computed field template failed to parse",
			"computed_field", cf.Slug, "err", err)
		return cf.FallbackValue
	}

	var builder strings.Builder
	if err := tpl.Execute(&builder, r.bind(obj)); err != nil {
		zap.S().Warnw("computed field template failed to render",
			"computed_field", cf.Slug, "err", err)
		return cf.FallbackValue
	}

	// text/template prints "<no value>" for attribute chains that resolve to
	// nothing; those render as empty per the absent-value contract.
	return strings.ReplaceAll(builder.String(), "<no value>", "")
}

// RenderedField is one computed field evaluation result. RenderAll returns a
// slice rather than a map so weight ordering survives.
type RenderedField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RenderAll evaluates every computed field applicable to the object's kind.
// The input slice is expected in weight order (the registry contract) and the
// result preserves it. Keys are slugs unless labelAsKey is set.
func (r *ComputedFieldRenderer) RenderAll(
	fields []*fieldline.ComputedFieldDefinition,
	obj *fieldline.ObjectRecord,
	labelAsKey bool,
) []RenderedField {
	out := make([]RenderedField, 0, len(fields))
	for _, cf := range fields {
		if cf.KindID != obj.KindID {
			continue
		}
		key := cf.Slug
		if labelAsKey {
			key = cf.Label
		}
		out = append(out, RenderedField{Key: key, Value: r.Render(cf, obj)})
	}
	return out
}

// bind exposes the object to templates under the fixed variable name. Custom
// field values are reachable under .obj.cf by field key.
func (r *ComputedFieldRenderer) bind(obj *fieldline.ObjectRecord) map[string]any {
	return map[string]any{
		templateObjectVar: map[string]any{
			"id":   obj.ID.String(),
			"name": obj.Name,
			"slug": obj.Slug,
			"cf":   obj.CF().Raw(),
		},
	}
}
