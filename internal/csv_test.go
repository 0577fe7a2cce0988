package internal

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/fieldline/fieldline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func csvTestDefs() []*fieldline.FieldDefinition {
	return []*fieldline.FieldDefinition{
		{Key: "site_code", Slug: "site_code", Type: fieldline.FieldTypeText},
		{Key: "vlan", Slug: "vlan", Type: fieldline.FieldTypeInteger},
		{Key: "monitored", Slug: "monitored", Type: fieldline.FieldTypeBoolean},
		{Key: "installed", Slug: "installed", Type: fieldline.FieldTypeDate},
		{Key: "tags", Slug: "tags", Type: fieldline.FieldTypeMultiSelect,
			Choices: []fieldline.FieldChoice{{Value: "red"}, {Value: "blue"}}},
	}
}

func TestCSVHeader(t *testing.T) {
	codec := CSVCodec{}
	header := codec.Header(csvTestDefs())
	assert.Equal(t, []string{"name", "slug", "cf_site_code", "cf_vlan", "cf_monitored", "cf_installed", "cf_tags"}, header)
}

func TestEncodeCellAbsentAndNull(t *testing.T) {
	codec := CSVCodec{}
	def := csvTestDefs()[0]

	cell, err := codec.EncodeCell(def, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "", cell)

	cell, err = codec.EncodeCell(def, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "", cell)
}

func TestEncodeCellPerKind(t *testing.T) {
	codec := CSVCodec{}
	defs := csvTestDefs()

	cell, err := codec.EncodeCell(defs[1], float64(42), true)
	require.NoError(t, err)
	assert.Equal(t, "42", cell)

	cell, err = codec.EncodeCell(defs[2], true, true)
	require.NoError(t, err)
	assert.Equal(t, "true", cell)

	cell, err = codec.EncodeCell(defs[3], "2026-08-28", true)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-28", cell)

	cell, err = codec.EncodeCell(defs[4], []any{"red", "blue"}, true)
	require.NoError(t, err)
	assert.Equal(t, "red,blue", cell)
}

func TestDecodeCellEmptyMeansAbsent(t *testing.T) {
	codec := CSVCodec{}
	_, present, err := codec.DecodeCell(csvTestDefs()[0], "")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestDecodeCellPerKind(t *testing.T) {
	codec := CSVCodec{}
	defs := csvTestDefs()

	value, present, err := codec.DecodeCell(defs[1], "42")
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, int64(42), value)

	value, present, err = codec.DecodeCell(defs[2], "true")
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, true, value)

	value, present, err = codec.DecodeCell(defs[4], "red,blue")
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, []any{"red", "blue"}, value)
}

func TestDecodeCellRejectsBadShapes(t *testing.T) {
	codec := CSVCodec{}
	defs := csvTestDefs()

	_, _, err := codec.DecodeCell(defs[1], "forty-two")
	require.Error(t, err)

	_, _, err = codec.DecodeCell(defs[2], "maybe")
	require.Error(t, err)
}

func TestCSVRoundTrip(t *testing.T) {
	defs := csvTestDefs()
	objects := []*fieldline.ObjectRecord{
		{KindID: 1, Name: "router-a", Slug: "router-a", CustomFieldData: map[string]any{
			"site_code": "AMS01",
			"vlan":      float64(42),
			"monitored": true,
			"tags":      []any{"red"},
		}},
		// installed absent: must come back absent, not empty string
		{KindID: 1, Name: "router-b", Slug: "router-b", CustomFieldData: map[string]any{
			"site_code": "FRA02",
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, NewCSVExporter().Write(&buf, defs, objects))

	importer := NewCSVImporter(fieldline.DefaultTableNames(), 100)
	parsed, batch, err := importer.Parse(&buf, 1, defs)
	require.NoError(t, err)
	assert.False(t, batch.HasErrors())
	require.Len(t, parsed, 2)

	first := parsed[0].CF()
	v, ok := first.Lookup("vlan")
	require.True(t, ok)
	assert.Equal(t, int64(42), v)
	v, ok = first.Lookup("monitored")
	require.True(t, ok)
	assert.Equal(t, true, v)

	second := parsed[1].CF()
	_, ok = second.Lookup("installed")
	assert.False(t, ok, "absent value must stay absent after a round trip")
	_, ok = second.Lookup("vlan")
	assert.False(t, ok)
}

func TestParseRejectsUnknownColumn(t *testing.T) {
	importer := NewCSVImporter(fieldline.DefaultTableNames(), 100)
	input := "name,slug,cf_ghost\nrouter-a,router-a,x\n"
	_, _, err := importer.Parse(strings.NewReader(input), 1, csvTestDefs())
	require.Error(t, err)
	assert.True(t, fieldline.IsNotFoundError(err))
}

func TestParseCollectsPerRowFailures(t *testing.T) {
	importer := NewCSVImporter(fieldline.DefaultTableNames(), 100)
	input := "name,slug,cf_vlan\nrouter-a,router-a,42\nrouter-b,router-b,NaN\nrouter-c,router-c,7\n"

	objects, batch, err := importer.Parse(strings.NewReader(input), 1, csvTestDefs())
	require.NoError(t, err)
	assert.Len(t, objects, 2)
	require.True(t, batch.HasErrors())
	assert.Equal(t, 1, batch.Errors[0].Row)
	assert.Equal(t, 2, batch.SuccessCount)
	assert.Equal(t, 1, batch.FailureCount)
	assert.Equal(t, 3, batch.TotalCount)
	assert.True(t, batch.HasPartialSuccess())
}

func TestParseValidatesRows(t *testing.T) {
	defs := csvTestDefs()
	required := &fieldline.FieldDefinition{Key: "serial", Slug: "serial", Type: fieldline.FieldTypeText, Required: true}
	defs = append(defs, required)

	importer := NewCSVImporter(fieldline.DefaultTableNames(), 100)
	input := "name,slug,cf_serial\nrouter-a,router-a,ABC\nrouter-b,router-b,\n"

	objects, batch, err := importer.Parse(strings.NewReader(input), 1, defs)
	require.NoError(t, err)
	assert.Len(t, objects, 1)
	require.True(t, batch.HasErrors())
	assert.Equal(t, fieldline.ErrCodeRequiredFieldMissing, batch.Errors[0].Cause.Code)
}

func TestExportedCSVIsWellFormed(t *testing.T) {
	defs := csvTestDefs()
	objects := []*fieldline.ObjectRecord{
		{KindID: 1, Name: `router "quoted"`, Slug: "router-q", CustomFieldData: map[string]any{
			"site_code": "has,comma",
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, NewCSVExporter().Write(&buf, defs, objects))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, `router "quoted"`, records[1][0])
	assert.Equal(t, "has,comma", records[1][2])
}
