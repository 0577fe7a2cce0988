package internal

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fieldline/fieldline"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// CSVColumnPrefix marks custom field columns in exported and imported files,
// e.g. "cf_site_code". Columns without the prefix describe the object itself.
const CSVColumnPrefix = "cf_"

// multiValueSeparator joins multiselect elements inside one CSV cell.
const multiValueSeparator = ","

// CSVCodec converts custom field values to and from their flat CSV cell form.
// An empty cell always means "key absent", never "empty string value".
type CSVCodec struct{}

// Header returns the column list for a field set: the fixed object columns
// followed by one cf_ column per definition in display order.
func (CSVCodec) Header(defs []*fieldline.FieldDefinition) []string {
	header := []string{"name", "slug"}
	for _, def := range defs {
		header = append(header, CSVColumnPrefix+def.Key)
	}
	return header
}

// EncodeCell renders one stored value for CSV. Absent and null values render
// as the empty cell so a round trip restores absence, not an empty string.
func (CSVCodec) EncodeCell(def *fieldline.FieldDefinition, raw any, present bool) (string, error) {
	if !present {
		return "", nil
	}
	value, err := fieldline.Coerce(def.Type, raw)
	if err != nil {
		return "", fieldline.NewTypeMismatchError(def.Key, err.Error())
	}

	switch value.Kind {
	case fieldline.ValueKindNull:
		return "", nil
	case fieldline.ValueKindText:
		return value.Text, nil
	case fieldline.ValueKindInteger:
		return strconv.FormatInt(value.Integer, 10), nil
	case fieldline.ValueKindBoolean:
		return strconv.FormatBool(value.Boolean), nil
	case fieldline.ValueKindDate:
		return value.Date.Format(fieldline.DateFormat), nil
	case fieldline.ValueKindJSON:
		encoded, err := json.Marshal(value.JSON)
		if err != nil {
			return "", fieldline.NewInternalError("encode json cell", err)
		}
		return string(encoded), nil
	case fieldline.ValueKindChoice:
		return value.Choice, nil
	case fieldline.ValueKindMultiChoice:
		return strings.Join(value.MultiChoice, multiValueSeparator), nil
	default:
		return "", fieldline.NewInternalError(fmt.Sprintf("unhandled value kind %q", value.Kind), nil)
	}
}

// DecodeCell parses one CSV cell into the container representation for the
// field's type. The second return reports presence: an empty cell yields
// (nil, false) and the key must not be staged at all.
func (CSVCodec) DecodeCell(def *fieldline.FieldDefinition, cell string) (any, bool, error) {
	if cell == "" {
		return nil, false, nil
	}

	switch def.Type {
	case fieldline.FieldTypeText, fieldline.FieldTypeURL, fieldline.FieldTypeSelect, fieldline.FieldTypeDate:
		return cell, true, nil

	case fieldline.FieldTypeInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(cell), 10, 64)
		if err != nil {
			return nil, false, fieldline.NewTypeMismatchError(def.Key, fmt.Sprintf("cell %q is not an integer", cell))
		}
		return n, true, nil

	case fieldline.FieldTypeBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(cell))
		if err != nil {
			return nil, false, fieldline.NewTypeMismatchError(def.Key, fmt.Sprintf("cell %q is not a boolean", cell))
		}
		return b, true, nil

	case fieldline.FieldTypeJSON:
		var decoded any
		if err := json.Unmarshal([]byte(cell), &decoded); err != nil {
			return nil, false, fieldline.NewTypeMismatchError(def.Key, fmt.Sprintf("cell is not valid JSON: %v", err))
		}
		return decoded, true, nil

	case fieldline.FieldTypeMultiSelect:
		parts := strings.Split(cell, multiValueSeparator)
		elements := make([]any, 0, len(parts))
		for _, p := range parts {
			elements = append(elements, strings.TrimSpace(p))
		}
		return elements, true, nil

	default:
		return nil, false, fieldline.NewTypeMismatchError(def.Key, fmt.Sprintf("unsupported field type %q", def.Type))
	}
}

// CSVExporter streams object rows for one kind as CSV.
type CSVExporter struct {
	codec CSVCodec
}

// NewCSVExporter creates an exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Write emits the header and one row per object. Values a row does not carry
// render as empty cells.
func (e *CSVExporter) Write(w io.Writer, defs []*fieldline.FieldDefinition, objs []*fieldline.ObjectRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(e.codec.Header(defs)); err != nil {
		return fieldline.NewInternalError("write csv header", err)
	}

	for _, obj := range objs {
		row := []string{obj.Name, obj.Slug}
		cf := obj.CF()
		for _, def := range defs {
			raw, present := cf.Lookup(def.Key)
			cell, err := e.codec.EncodeCell(def, raw, present)
			if err != nil {
				return err
			}
			row = append(row, cell)
		}
		if err := cw.Write(row); err != nil {
			return fieldline.NewInternalError("write csv row", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fieldline.NewInternalError("flush csv output", err)
	}
	return nil
}

// CSVImporter parses CSV rows into object records and bulk-loads them with
// the COPY protocol. Validation runs per row before anything hits the wire so
// one bad row never poisons the batch.
type CSVImporter struct {
	codec     CSVCodec
	tables    fieldline.TableNames
	batchSize int
}

// NewCSVImporter creates an importer. batchSize bounds one COPY round trip.
func NewCSVImporter(tables fieldline.TableNames, batchSize int) *CSVImporter {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &CSVImporter{tables: tables, batchSize: batchSize}
}

// Parse reads the CSV stream into object records for kindID. Unknown cf_
// columns are rejected; per-row cell failures are collected in the returned
// BatchErrors while clean rows keep flowing.
func (im *CSVImporter) Parse(r io.Reader, kindID int16, defs []*fieldline.FieldDefinition) ([]*fieldline.ObjectRecord, *fieldline.BatchErrors, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fieldline.NewInternalError("read csv header", err)
	}

	byKey := make(map[string]*fieldline.FieldDefinition, len(defs))
	for _, def := range defs {
		byKey[def.Key] = def
	}

	// columns[i] is nil for object columns, otherwise the definition the
	// column feeds.
	type column struct {
		name string
		def  *fieldline.FieldDefinition
	}
	columns := make([]column, len(header))
	for i, name := range header {
		if !strings.HasPrefix(name, CSVColumnPrefix) {
			columns[i] = column{name: name}
			continue
		}
		key := strings.TrimPrefix(name, CSVColumnPrefix)
		def, ok := byKey[key]
		if !ok {
			return nil, nil, fieldline.NewFieldNotFoundError(key)
		}
		columns[i] = column{name: name, def: def}
	}

	batch := fieldline.NewBatchErrors()
	var objects []*fieldline.ObjectRecord
	rowIndex := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fieldline.NewInternalError("read csv row", err)
		}

		obj := &fieldline.ObjectRecord{KindID: kindID}
		cf := obj.CF()
		rowOK := true
		for i, cell := range record {
			if i >= len(columns) {
				break
			}
			col := columns[i]
			if col.def == nil {
				switch col.name {
				case "name":
					obj.Name = cell
				case "slug":
					obj.Slug = cell
				}
				continue
			}
			value, present, err := im.codec.DecodeCell(col.def, cell)
			if err != nil {
				batch.Add(rowIndex, err.(*fieldline.FieldError))
				rowOK = false
				break
			}
			if present {
				cf.Set(col.def.Key, value)
			}
		}

		if rowOK {
			if verrs := ValidateObject(defs, cf); verrs.HasErrors() {
				batch.Add(rowIndex, verrs.Errors[0])
			} else {
				objects = append(objects, obj)
			}
		}
		rowIndex++
	}

	batch.SetStatistics(len(objects), rowIndex-len(objects), rowIndex)
	return objects, batch, nil
}

// BulkLoad inserts parsed objects with pq's COPY support, batched.
func (im *CSVImporter) BulkLoad(db *sql.DB, objects []*fieldline.ObjectRecord) error {
	for start := 0; start < len(objects); start += im.batchSize {
		end := start + im.batchSize
		if end > len(objects) {
			end = len(objects)
		}
		if err := im.copyBatch(db, objects[start:end]); err != nil {
			return err
		}
	}
	zap.S().Infow("csv bulk load complete", "objects", len(objects))
	return nil
}

func (im *CSVImporter) copyBatch(db *sql.DB, objects []*fieldline.ObjectRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return fieldline.NewTransactionError("begin bulk load", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(im.tables.Objects, "id", "kind_id", "name", "slug", "custom_field_data"))
	if err != nil {
		return fieldline.NewQueryError("prepare copy", err)
	}

	for _, obj := range objects {
		if obj.ID == uuid.Nil {
			obj.ID = uuid.Must(uuid.NewV7())
		}
		blob, err := json.Marshal(obj.CustomFieldData)
		if err != nil {
			stmt.Close()
			return fieldline.NewInternalError("encode custom field data", err)
		}
		if _, err := stmt.Exec(obj.ID.String(), obj.KindID, obj.Name, obj.Slug, string(blob)); err != nil {
			stmt.Close()
			return fieldline.NewQueryError("copy object row", err)
		}
	}

	// Flush the COPY buffer.
	if _, err := stmt.Exec(); err != nil {
		stmt.Close()
		return fieldline.NewQueryError("flush copy buffer", err)
	}
	if err := stmt.Close(); err != nil {
		return fieldline.NewQueryError("close copy statement", err)
	}
	if err := tx.Commit(); err != nil {
		return fieldline.NewTransactionError("commit bulk load", err)
	}
	return nil
}
