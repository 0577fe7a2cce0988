package internal

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fieldline/fieldline"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// PostgresObjectRepository implements fieldline.ObjectManager over PostgreSQL.
// Custom field values live in one JSONB column per object row; filtering goes
// through FilterTranslator so every predicate targets the same column.
type PostgresObjectRepository struct {
	pool       dbPool
	tables     fieldline.TableNames
	fields     fieldline.FieldRegistry
	translator *FilterTranslator

	defaultPageSize int
	maxPageSize     int
}

// NewPostgresObjectRepository creates a repository over the given pool. The
// field registry supplies definitions for validation and filter translation.
func NewPostgresObjectRepository(pool dbPool, tables fieldline.TableNames, fields fieldline.FieldRegistry, query fieldline.QueryConfig) *PostgresObjectRepository {
	if query.DefaultPageSize <= 0 {
		query.DefaultPageSize = 50
	}
	if query.MaxPageSize <= 0 {
		query.MaxPageSize = 1000
	}
	return &PostgresObjectRepository{
		pool:            pool,
		tables:          tables,
		fields:          fields,
		translator:      NewFilterTranslator("custom_field_data"),
		defaultPageSize: query.DefaultPageSize,
		maxPageSize:     query.MaxPageSize,
	}
}

// Create applies create-only defaults for keys the caller did not stage, then
// validates and persists the object. Defaults never overwrite staged values,
// including staged nulls.
func (r *PostgresObjectRepository) Create(ctx context.Context, obj *fieldline.ObjectRecord) error {
	defs, err := r.fields.DefinitionsFor(ctx, obj.KindID)
	if err != nil {
		return err
	}
	if obj.ID == uuid.Nil {
		obj.ID = uuid.Must(uuid.NewV7())
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

	if verrs := ValidateObject(defs, cf); verrs.HasErrors() {
		EmitValidationFailures(ctx, strconv.Itoa(int(obj.KindID)), len(verrs.Errors))
		return verrs.ToError()
	}

	insert := fmt.Sprintf(`INSERT INTO %s (id, kind_id, name, slug, custom_field_data)
		VALUES ($1, $2, $3, $4, $5)`, sanitizeIdentifier(r.tables.Objects))
	if _, err := r.pool.Exec(ctx, insert, obj.ID, obj.KindID, obj.Name, obj.Slug, obj.CustomFieldData); err != nil {
		return fieldline.NewQueryError("insert object", err)
	}
	return nil
}

// Get loads one object by ID.
func (r *PostgresObjectRepository) Get(ctx context.Context, id uuid.UUID) (*fieldline.ObjectRecord, error) {
	query := fmt.Sprintf("SELECT id, kind_id, name, slug, custom_field_data FROM %s WHERE id = $1",
		sanitizeIdentifier(r.tables.Objects))
	obj := &fieldline.ObjectRecord{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&obj.ID, &obj.KindID, &obj.Name, &obj.Slug, &obj.CustomFieldData)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fieldline.NewObjectNotFoundError(id.String())
		}
		return nil, fieldline.NewQueryError("load object", err)
	}
	return obj, nil
}

// Update validates the staged custom field data and persists the row.
// Defaults are create-only and never re-applied here.
func (r *PostgresObjectRepository) Update(ctx context.Context, obj *fieldline.ObjectRecord) error {
	defs, err := r.fields.DefinitionsFor(ctx, obj.KindID)
	if err != nil {
		return err
	}
	if verrs := ValidateObject(defs, obj.CF()); verrs.HasErrors() {
		EmitValidationFailures(ctx, strconv.Itoa(int(obj.KindID)), len(verrs.Errors))
		return verrs.ToError()
	}

	update := fmt.Sprintf(`UPDATE %s SET name = $2, slug = $3, custom_field_data = $4 WHERE id = $1`,
		sanitizeIdentifier(r.tables.Objects))
	tag, err := r.pool.Exec(ctx, update, obj.ID, obj.Name, obj.Slug, obj.CustomFieldData)
	if err != nil {
		return fieldline.NewQueryError("update object", err)
	}
	if tag.RowsAffected() == 0 {
		return fieldline.NewObjectNotFoundError(obj.ID.String())
	}
	return nil
}

// Delete removes one object.
func (r *PostgresObjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	del := fmt.Sprintf("DELETE FROM %s WHERE id = $1", sanitizeIdentifier(r.tables.Objects))
	tag, err := r.pool.Exec(ctx, del, id)
	if err != nil {
		return fieldline.NewQueryError("delete object", err)
	}
	if tag.RowsAffected() == 0 {
		return fieldline.NewObjectNotFoundError(id.String())
	}
	return nil
}

// Query lists objects of one kind, applying custom field filters and
// pagination. Unknown filter keys fail the whole query rather than silently
// widening the result set.
func (r *PostgresObjectRepository) Query(ctx context.Context, query *fieldline.ObjectQuery) (*fieldline.ObjectQueryResult, error) {
	defs, err := r.fields.DefinitionsFor(ctx, query.KindID)
	if err != nil {
		return nil, err
	}

	paramIndex := 1
	kindPlaceholder := fmt.Sprintf("$%d", paramIndex)
	paramIndex++
	where, filterArgs, err := r.translator.TranslateAll(defs, query.Filters, &paramIndex)
	if err != nil {
		return nil, err
	}
	args := append([]any{query.KindID}, filterArgs...)

	objects := sanitizeIdentifier(r.tables.Objects)
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE kind_id = %s AND %s",
		objects, kindPlaceholder, where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fieldline.NewQueryError("count objects", err)
	}

	page, pageSize := r.normalizePage(query.Page, query.PageSize)
	listQuery := fmt.Sprintf(`SELECT id, kind_id, name, slug, custom_field_data FROM %s
		WHERE kind_id = %s AND %s
		ORDER BY name, id
		LIMIT $%d OFFSET $%d`,
		objects, kindPlaceholder, where, paramIndex, paramIndex+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, fieldline.NewQueryError("list objects", err)
	}
	defer rows.Close()

	result := &fieldline.ObjectQueryResult{
		TotalRecords: total,
		Page:         page,
		PageSize:     pageSize,
	}
	for rows.Next() {
		obj := &fieldline.ObjectRecord{}
		if err := rows.Scan(&obj.ID, &obj.KindID, &obj.Name, &obj.Slug, &obj.CustomFieldData); err != nil {
			return nil, fieldline.NewQueryError("scan object", err)
		}
		result.Objects = append(result.Objects, obj)
	}
	return result, rows.Err()
}

// BatchCreate validates and persists many objects, collecting per-row
// failures instead of aborting the batch. Rows that validate are committed
// even when sibling rows fail.
func (r *PostgresObjectRepository) BatchCreate(ctx context.Context, objs []*fieldline.ObjectRecord) (*fieldline.BatchErrors, error) {
	batch := fieldline.NewBatchErrors()
	created := 0
	for i, obj := range objs {
		if err := r.Create(ctx, obj); err != nil {
			batch.Add(i, rowCause(err))
			continue
		}
		created++
	}
	batch.SetStatistics(created, len(objs)-created, len(objs))
	if batch.HasErrors() {
		zap.S().Warnw("batch create finished with failures",
			"total", len(objs), "created", created, "failed", len(objs)-created)
	}
	return batch, nil
}

// rowCause flattens a create failure into one FieldError for batch reporting.
// Multi-field validation failures keep the first error and count the rest.
func rowCause(err error) *fieldline.FieldError {
	switch e := err.(type) {
	case *fieldline.FieldError:
		return e
	case *fieldline.ValidationErrors:
		if len(e.Errors) == 1 {
			return e.Errors[0]
		}
		if len(e.Errors) > 1 {
			return e.Errors[0].WithDetail("additional_errors", len(e.Errors)-1)
		}
	}
	return fieldline.NewInternalError("batch row failed", err)
}

func (r *PostgresObjectRepository) normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = r.defaultPageSize
	}
	if pageSize > r.maxPageSize {
		pageSize = r.maxPageSize
	}
	return page, pageSize
}
