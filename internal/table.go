package internal

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/fieldline/fieldline"
)

// emptyCellMarker renders for absent and null values in tabular views.
const emptyCellMarker = "&mdash;"

// TableRenderer turns stored custom field values into HTML table cells.
// Values pass through html escaping before any markup wraps them.
type TableRenderer struct{}

// NewTableRenderer creates a renderer.
func NewTableRenderer() *TableRenderer {
	return &TableRenderer{}
}

// RenderCell produces the HTML cell for one field value. Absent keys and
// stored nulls render as a dash placeholder.
func (t *TableRenderer) RenderCell(def *fieldline.FieldDefinition, raw any, present bool) string {
	if !present {
		return emptyCellMarker
	}
	value, err := fieldline.Coerce(def.Type, raw)
	if err != nil {
		// A stored value that no longer coerces is shown raw rather than
		// hidden; the validation layer owns rejecting it.
		return html.EscapeString(fmt.Sprint(raw))
	}

	switch value.Kind {
	case fieldline.ValueKindNull:
		return emptyCellMarker

	case fieldline.ValueKindText:
		if def.Type == fieldline.FieldTypeURL {
			return t.RenderURLCell(value.Text)
		}
		return html.EscapeString(value.Text)

	case fieldline.ValueKindInteger:
		return strconv.FormatInt(value.Integer, 10)

	case fieldline.ValueKindBoolean:
		if value.Boolean {
			return `<span class="text-success"><i class="mdi mdi-check-bold"></i></span>`
		}
		return `<span class="text-danger"><i class="mdi mdi-close-thick"></i></span>`

	case fieldline.ValueKindDate:
		return value.Date.Format(fieldline.DateFormat)

	case fieldline.ValueKindJSON:
		return fmt.Sprintf("<pre>%s</pre>", html.EscapeString(fmt.Sprint(value.JSON)))

	case fieldline.ValueKindChoice:
		return renderBadge(value.Choice)

	case fieldline.ValueKindMultiChoice:
		if len(value.MultiChoice) == 0 {
			return emptyCellMarker
		}
		badges := make([]string, 0, len(value.MultiChoice))
		for _, element := range value.MultiChoice {
			badges = append(badges, renderBadge(element))
		}
		return strings.Join(badges, " ")

	default:
		return emptyCellMarker
	}
}

// RenderURLCell renders a url-kind value as a link.
func (t *TableRenderer) RenderURLCell(raw string) string {
	escaped := html.EscapeString(raw)
	return fmt.Sprintf(`<a href="%s">%s</a>`, escaped, escaped)
}

func renderBadge(value string) string {
	return fmt.Sprintf(`<span class="badge">%s</span>`, html.EscapeString(value))
}
