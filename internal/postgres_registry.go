package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldline/fieldline"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// dbPool is the subset of pgxpool.Pool the repositories need. pgxmock
// satisfies it in unit tests.
type dbPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// cleanupBatchSize bounds one fan-out UPDATE when removing a deleted
// definition's key from stored values.
const cleanupBatchSize = 500

// PostgresDefinitionRepository implements fieldline.FieldRegistry,
// fieldline.KindRegistry and fieldline.DefinitionManager over PostgreSQL.
//
// Registry reads hit the database every call: definitions may change between
// requests and a stale snapshot must never outlive one unit of work.
type PostgresDefinitionRepository struct {
	pool   dbPool
	tables fieldline.TableNames

	// cleanupFn receives the key of a deleted definition. The default spawns
	// an asynchronous fan-out; tests substitute a synchronous call.
	cleanupFn func(fieldKey string)
}

// NewPostgresDefinitionRepository creates a repository over the given pool.
func NewPostgresDefinitionRepository(pool dbPool, tables fieldline.TableNames) *PostgresDefinitionRepository {
	r := &PostgresDefinitionRepository{pool: pool, tables: tables}
	r.cleanupFn = func(fieldKey string) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if err := r.RemoveStoredValues(ctx, fieldKey); err != nil {
				zap.S().Errorw("custom field cleanup fan-out failed; safe to retry",
					"field", fieldKey, "err", err)
			}
		}()
	}
	return r
}

const definitionColumns = `id, key, label, slug, type, required, default_value, filter_logic,
	validation_minimum, validation_maximum, validation_regex, validation_schema, weight`

// ============================================================================
// KindRegistry
// ============================================================================

// IdentifierFor returns the stable identifier for a kind name.
func (r *PostgresDefinitionRepository) IdentifierFor(ctx context.Context, name string) (int16, error) {
	query := fmt.Sprintf("SELECT id FROM %s WHERE name = $1", sanitizeIdentifier(r.tables.ObjectKinds))
	var id int16
	if err := r.pool.QueryRow(ctx, query, name).Scan(&id); err != nil {
		if err == pgx.ErrNoRows {
			return 0, fieldline.NewKindNotFoundError(name)
		}
		return 0, fieldline.NewQueryError("look up object kind", err)
	}
	return id, nil
}

// KindFor returns the kind name for a stable identifier.
func (r *PostgresDefinitionRepository) KindFor(ctx context.Context, id int16) (string, error) {
	query := fmt.Sprintf("SELECT name FROM %s WHERE id = $1", sanitizeIdentifier(r.tables.ObjectKinds))
	var name string
	if err := r.pool.QueryRow(ctx, query, id).Scan(&name); err != nil {
		if err == pgx.ErrNoRows {
			return "", fieldline.NewKindNotFoundError(fmt.Sprintf("id %d", id))
		}
		return "", fieldline.NewQueryError("look up object kind", err)
	}
	return name, nil
}

// ListKinds returns every registered kind ordered by name.
func (r *PostgresDefinitionRepository) ListKinds(ctx context.Context) ([]fieldline.ObjectKind, error) {
	query := fmt.Sprintf("SELECT id, name FROM %s ORDER BY name", sanitizeIdentifier(r.tables.ObjectKinds))
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fieldline.NewQueryError("list object kinds", err)
	}
	defer rows.Close()

	var kinds []fieldline.ObjectKind
	for rows.Next() {
		var k fieldline.ObjectKind
		if err := rows.Scan(&k.ID, &k.Name); err != nil {
			return nil, fieldline.NewQueryError("scan object kind", err)
		}
		kinds = append(kinds, k)
	}
	return kinds, rows.Err()
}

// RegisterKind inserts a kind if absent and returns its identifier.
func (r *PostgresDefinitionRepository) RegisterKind(ctx context.Context, name string) (int16, error) {
	query := fmt.Sprintf(`INSERT INTO %s (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, sanitizeIdentifier(r.tables.ObjectKinds))
	var id int16
	if err := r.pool.QueryRow(ctx, query, name).Scan(&id); err != nil {
		return 0, fieldline.NewQueryError("register object kind", err)
	}
	return id, nil
}

// ============================================================================
// FieldRegistry
// ============================================================================

// DefinitionsFor returns the definitions applicable to kindID ordered by
// weight then key, with kinds and choices populated.
func (r *PostgresDefinitionRepository) DefinitionsFor(ctx context.Context, kindID int16) ([]*fieldline.FieldDefinition, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s d
		WHERE EXISTS (SELECT 1 FROM %s dk WHERE dk.field_id = d.id AND dk.kind_id = $1)
		ORDER BY weight, key`,
		definitionColumns,
		sanitizeIdentifier(r.tables.FieldDefinitions),
		sanitizeIdentifier(r.tables.FieldDefinitionKinds))

	rows, err := r.pool.Query(ctx, query, kindID)
	if err != nil {
		return nil, fieldline.NewQueryError("list field definitions", err)
	}
	defs, err := scanDefinitions(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachRelations(ctx, defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// DefaultsFor returns a key->default mapping for every definition applicable
// to kindID. Fields without a default map to nil.
func (r *PostgresDefinitionRepository) DefaultsFor(ctx context.Context, kindID int16) (map[string]any, error) {
	defs, err := r.DefinitionsFor(ctx, kindID)
	if err != nil {
		return nil, err
	}
	defaults := make(map[string]any, len(defs))
	for _, def := range defs {
		defaults[def.Key] = def.Default
	}
	return defaults, nil
}

// DefinitionByKey returns one definition by its immutable key.
func (r *PostgresDefinitionRepository) DefinitionByKey(ctx context.Context, key string) (*fieldline.FieldDefinition, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE key = $1",
		definitionColumns, sanitizeIdentifier(r.tables.FieldDefinitions))
	def, err := r.queryOneDefinition(ctx, query, key)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fieldline.NewFieldNotFoundError(key)
		}
		return nil, err
	}
	return def, nil
}

// ComputedFieldsFor returns the computed fields for kindID ordered by weight.
func (r *PostgresDefinitionRepository) ComputedFieldsFor(ctx context.Context, kindID int16) ([]*fieldline.ComputedFieldDefinition, error) {
	query := fmt.Sprintf(`SELECT id, kind_id, slug, label, template, fallback_value, weight
		FROM %s WHERE kind_id = $1 ORDER BY weight, slug`,
		sanitizeIdentifier(r.tables.ComputedFields))

	rows, err := r.pool.Query(ctx, query, kindID)
	if err != nil {
		return nil, fieldline.NewQueryError("list computed fields", err)
	}
	defer rows.Close()

	var fields []*fieldline.ComputedFieldDefinition
	for rows.Next() {
		cf := &fieldline.ComputedFieldDefinition{}
		if err := rows.Scan(&cf.ID, &cf.KindID, &cf.Slug, &cf.Label, &cf.TemplateSource, &cf.FallbackValue, &cf.Weight); err != nil {
			return nil, fieldline.NewQueryError("scan computed field", err)
		}
		fields = append(fields, cf)
	}
	return fields, rows.Err()
}

// ============================================================================
// DefinitionManager: field definitions
// ============================================================================

// CreateDefinition validates and persists a new definition plus its
// applicability rows. Label and slug auto-populate from the key when empty.
func (r *PostgresDefinitionRepository) CreateDefinition(ctx context.Context, def *fieldline.FieldDefinition) error {
	if def.ID == uuid.Nil {
		def.ID = uuid.Must(uuid.NewV7())
	}
	if def.Label == "" {
		def.Label = def.Key
	}
	if def.Slug == "" {
		def.Slug = slugify(def.Key)
	}
	if err := r.validateDefinition(def); err != nil {
		return err
	}
	if err := r.checkNamingConflicts(ctx, def, uuid.Nil); err != nil {
		return err
	}

	defaultJSON, schemaJSON, err := marshalDefinitionBlobs(def)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fieldline.NewTransactionError("begin create definition", err)
	}
	defer tx.Rollback(ctx)

	insert := fmt.Sprintf(`INSERT INTO %s
		(id, key, label, slug, type, required, default_value, filter_logic,
		 validation_minimum, validation_maximum, validation_regex, validation_schema, weight)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		sanitizeIdentifier(r.tables.FieldDefinitions))
	if _, err := tx.Exec(ctx, insert,
		def.ID, def.Key, def.Label, def.Slug, string(def.Type), def.Required,
		defaultJSON, string(def.FilterLogic),
		def.ValidationMinimum, def.ValidationMaximum, def.ValidationRegex, schemaJSON, def.Weight); err != nil {
		return fieldline.NewQueryError("insert field definition", err)
	}

	if err := r.replaceKinds(ctx, tx, def.ID, def.ObjectKinds); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fieldline.NewTransactionError("commit create definition", err)
	}
	return nil
}

// UpdateDefinition persists mutable attributes. Key, slug and type are
// rejected if they differ from the stored row.
func (r *PostgresDefinitionRepository) UpdateDefinition(ctx context.Context, def *fieldline.FieldDefinition) error {
	existing, err := r.GetDefinition(ctx, def.ID)
	if err != nil {
		return err
	}
	if def.Key != existing.Key {
		return fieldline.NewImmutableFieldError("key", existing.Key)
	}
	if def.Slug != existing.Slug {
		return fieldline.NewImmutableFieldError("slug", existing.Key)
	}
	if def.Type != existing.Type {
		return fieldline.NewImmutableFieldError("type", existing.Key)
	}
	// Choices live in their own table; carry the stored set so default
	// validation sees it.
	def.Choices = existing.Choices
	if err := r.validateDefinition(def); err != nil {
		return err
	}

	defaultJSON, schemaJSON, err := marshalDefinitionBlobs(def)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fieldline.NewTransactionError("begin update definition", err)
	}
	defer tx.Rollback(ctx)

	update := fmt.Sprintf(`UPDATE %s SET label = $2, required = $3, default_value = $4,
		filter_logic = $5, validation_minimum = $6, validation_maximum = $7,
		validation_regex = $8, validation_schema = $9, weight = $10
		WHERE id = $1`,
		sanitizeIdentifier(r.tables.FieldDefinitions))
	if _, err := tx.Exec(ctx, update,
		def.ID, def.Label, def.Required, defaultJSON, string(def.FilterLogic),
		def.ValidationMinimum, def.ValidationMaximum, def.ValidationRegex, schemaJSON, def.Weight); err != nil {
		return fieldline.NewQueryError("update field definition", err)
	}

	if err := r.replaceKinds(ctx, tx, def.ID, def.ObjectKinds); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fieldline.NewTransactionError("commit update definition", err)
	}
	return nil
}

// DeleteDefinition removes the definition, its applicability rows and its
// choices in one transaction, then schedules the stored-value fan-out. The
// deleting transaction does not block on the fan-out.
func (r *PostgresDefinitionRepository) DeleteDefinition(ctx context.Context, id uuid.UUID) error {
	existing, err := r.GetDefinition(ctx, id)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fieldline.NewTransactionError("begin delete definition", err)
	}
	defer tx.Rollback(ctx)

	deleteChoices := fmt.Sprintf("DELETE FROM %s WHERE field_id = $1", sanitizeIdentifier(r.tables.FieldChoices))
	if _, err := tx.Exec(ctx, deleteChoices, id); err != nil {
		return fieldline.NewQueryError("delete field choices", err)
	}
	deleteKinds := fmt.Sprintf("DELETE FROM %s WHERE field_id = $1", sanitizeIdentifier(r.tables.FieldDefinitionKinds))
	if _, err := tx.Exec(ctx, deleteKinds, id); err != nil {
		return fieldline.NewQueryError("delete field applicability", err)
	}
	deleteDef := fmt.Sprintf("DELETE FROM %s WHERE id = $1", sanitizeIdentifier(r.tables.FieldDefinitions))
	if _, err := tx.Exec(ctx, deleteDef, id); err != nil {
		return fieldline.NewQueryError("delete field definition", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fieldline.NewTransactionError("commit delete definition", err)
	}

	r.cleanupFn(existing.Key)
	return nil
}

// RemoveStoredValues strips the given key from every object holding it, in
// bounded batches. Idempotent: retrying after a partial failure finishes the
// remaining rows.
func (r *PostgresDefinitionRepository) RemoveStoredValues(ctx context.Context, fieldKey string) error {
	query := fmt.Sprintf(`UPDATE %s o SET custom_field_data = o.custom_field_data - $1
		FROM (SELECT id FROM %s WHERE custom_field_data ? $1 LIMIT $2) batch
		WHERE o.id = batch.id`,
		sanitizeIdentifier(r.tables.Objects), sanitizeIdentifier(r.tables.Objects))

	var total int64
	for {
		tag, err := r.pool.Exec(ctx, query, fieldKey, cleanupBatchSize)
		if err != nil {
			return fieldline.NewQueryError("remove stored custom field values", err)
		}
		affected := tag.RowsAffected()
		total += affected
		EmitCleanupRows(ctx, fieldKey, affected)
		if affected < cleanupBatchSize {
			break
		}
	}
	zap.S().Infow("custom field cleanup fan-out complete", "field", fieldKey, "objects", total)
	return nil
}

// GetDefinition returns one definition by ID with kinds and choices loaded.
func (r *PostgresDefinitionRepository) GetDefinition(ctx context.Context, id uuid.UUID) (*fieldline.FieldDefinition, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1",
		definitionColumns, sanitizeIdentifier(r.tables.FieldDefinitions))
	def, err := r.queryOneDefinition(ctx, query, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fieldline.NewFieldNotFoundError(id.String())
		}
		return nil, err
	}
	return def, nil
}

// ListDefinitions returns every definition ordered by weight then key.
func (r *PostgresDefinitionRepository) ListDefinitions(ctx context.Context) ([]*fieldline.FieldDefinition, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY weight, key",
		definitionColumns, sanitizeIdentifier(r.tables.FieldDefinitions))
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fieldline.NewQueryError("list field definitions", err)
	}
	defs, err := scanDefinitions(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachRelations(ctx, defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// ============================================================================
// DefinitionManager: choices
// ============================================================================

// CreateChoice validates the value against the owning field's regex and
// persists it. Only select and multiselect fields may carry choices.
func (r *PostgresDefinitionRepository) CreateChoice(ctx context.Context, choice *fieldline.FieldChoice) error {
	def, err := r.GetDefinition(ctx, choice.FieldID)
	if err != nil {
		return err
	}
	if def.Type != fieldline.FieldTypeSelect && def.Type != fieldline.FieldTypeMultiSelect {
		return fieldline.NewFieldError(fieldline.ErrorTypeValidation, fieldline.ErrCodeInvalidDefinition,
			fmt.Sprintf("choices are not allowed on %s fields", def.Type)).WithField(def.Key)
	}
	if err := ValidateChoiceValue(def, choice.Value); err != nil {
		return err
	}
	if choice.ID == uuid.Nil {
		choice.ID = uuid.Must(uuid.NewV7())
	}

	insert := fmt.Sprintf("INSERT INTO %s (id, field_id, value, weight) VALUES ($1, $2, $3, $4)",
		sanitizeIdentifier(r.tables.FieldChoices))
	if _, err := r.pool.Exec(ctx, insert, choice.ID, choice.FieldID, choice.Value, choice.Weight); err != nil {
		return fieldline.NewQueryError("insert field choice", err)
	}
	return nil
}

// UpdateChoice persists a choice edit. A value rename rewrites every stored
// value holding the old value in the same transaction, so a concurrent reader
// sees either the old value everywhere or the new value everywhere.
func (r *PostgresDefinitionRepository) UpdateChoice(ctx context.Context, choice *fieldline.FieldChoice) error {
	existing, def, err := r.getChoice(ctx, choice.ID)
	if err != nil {
		return err
	}
	if err := ValidateChoiceValue(def, choice.Value); err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fieldline.NewTransactionError("begin update choice", err)
	}
	defer tx.Rollback(ctx)

	update := fmt.Sprintf("UPDATE %s SET value = $2, weight = $3 WHERE id = $1",
		sanitizeIdentifier(r.tables.FieldChoices))
	if _, err := tx.Exec(ctx, update, choice.ID, choice.Value, choice.Weight); err != nil {
		return fieldline.NewQueryError("update field choice", err)
	}

	if choice.Value != existing.Value {
		if err := r.propagateRename(ctx, tx, def, existing.Value, choice.Value); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fieldline.NewTransactionError("commit update choice", err)
	}
	return nil
}

// DeleteChoice removes a choice, refusing while any stored value references it.
func (r *PostgresDefinitionRepository) DeleteChoice(ctx context.Context, id uuid.UUID) error {
	existing, def, err := r.getChoice(ctx, id)
	if err != nil {
		return err
	}

	inUse, err := r.choiceInUse(ctx, def, existing.Value)
	if err != nil {
		return err
	}
	if inUse {
		return fieldline.NewReferenceProtectedError(def.Key, existing.Value)
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE id = $1", sanitizeIdentifier(r.tables.FieldChoices))
	if _, err := r.pool.Exec(ctx, del, id); err != nil {
		return fieldline.NewQueryError("delete field choice", err)
	}
	return nil
}

// ListChoices returns a field's choices in display order.
func (r *PostgresDefinitionRepository) ListChoices(ctx context.Context, fieldID uuid.UUID) ([]fieldline.FieldChoice, error) {
	query := fmt.Sprintf("SELECT id, field_id, value, weight FROM %s WHERE field_id = $1 ORDER BY weight, value",
		sanitizeIdentifier(r.tables.FieldChoices))
	rows, err := r.pool.Query(ctx, query, fieldID)
	if err != nil {
		return nil, fieldline.NewQueryError("list field choices", err)
	}
	defer rows.Close()

	var choices []fieldline.FieldChoice
	for rows.Next() {
		var c fieldline.FieldChoice
		if err := rows.Scan(&c.ID, &c.FieldID, &c.Value, &c.Weight); err != nil {
			return nil, fieldline.NewQueryError("scan field choice", err)
		}
		choices = append(choices, c)
	}
	return choices, rows.Err()
}

// ============================================================================
// DefinitionManager: computed fields
// ============================================================================

// CreateComputedField persists a computed field definition.
func (r *PostgresDefinitionRepository) CreateComputedField(ctx context.Context, cf *fieldline.ComputedFieldDefinition) error {
	if cf.ID == uuid.Nil {
		cf.ID = uuid.Must(uuid.NewV7())
	}
	if cf.Label == "" {
		cf.Label = cf.Slug
	}
	if fieldline.IsReservedFieldName(cf.Slug) {
		return fieldline.NewNamingConflictError(cf.Slug, "reserved name")
	}

	insert := fmt.Sprintf(`INSERT INTO %s (id, kind_id, slug, label, template, fallback_value, weight)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sanitizeIdentifier(r.tables.ComputedFields))
	if _, err := r.pool.Exec(ctx, insert,
		cf.ID, cf.KindID, cf.Slug, cf.Label, cf.TemplateSource, cf.FallbackValue, cf.Weight); err != nil {
		return fieldline.NewQueryError("insert computed field", err)
	}
	return nil
}

// UpdateComputedField persists computed field edits. The slug is identity and
// stays immutable like a custom field slug.
func (r *PostgresDefinitionRepository) UpdateComputedField(ctx context.Context, cf *fieldline.ComputedFieldDefinition) error {
	query := fmt.Sprintf("SELECT slug FROM %s WHERE id = $1", sanitizeIdentifier(r.tables.ComputedFields))
	var storedSlug string
	if err := r.pool.QueryRow(ctx, query, cf.ID).Scan(&storedSlug); err != nil {
		if err == pgx.ErrNoRows {
			return fieldline.NewFieldNotFoundError(cf.ID.String())
		}
		return fieldline.NewQueryError("look up computed field", err)
	}
	if cf.Slug != storedSlug {
		return fieldline.NewImmutableFieldError("slug", storedSlug)
	}

	update := fmt.Sprintf(`UPDATE %s SET label = $2, template = $3, fallback_value = $4, weight = $5
		WHERE id = $1`, sanitizeIdentifier(r.tables.ComputedFields))
	if _, err := r.pool.Exec(ctx, update, cf.ID, cf.Label, cf.TemplateSource, cf.FallbackValue, cf.Weight); err != nil {
		return fieldline.NewQueryError("update computed field", err)
	}
	return nil
}

// DeleteComputedField removes a computed field definition. Nothing persisted
// references computed values, so no fan-out is needed.
func (r *PostgresDefinitionRepository) DeleteComputedField(ctx context.Context, id uuid.UUID) error {
	del := fmt.Sprintf("DELETE FROM %s WHERE id = $1", sanitizeIdentifier(r.tables.ComputedFields))
	if _, err := r.pool.Exec(ctx, del, id); err != nil {
		return fieldline.NewQueryError("delete computed field", err)
	}
	return nil
}

// ============================================================================
// internals
// ============================================================================

func (r *PostgresDefinitionRepository) validateDefinition(def *fieldline.FieldDefinition) error {
	if def.Key == "" {
		return fieldline.NewFieldError(fieldline.ErrorTypeValidation, fieldline.ErrCodeInvalidDefinition,
			"field key must not be empty")
	}
	if !def.Type.IsValid() {
		return fieldline.NewFieldError(fieldline.ErrorTypeValidation, fieldline.ErrCodeInvalidDefinition,
			fmt.Sprintf("unknown field type %q", def.Type)).WithField(def.Key)
	}
	if fieldline.IsReservedFieldName(def.Key) {
		return fieldline.NewNamingConflictError(def.Key, "reserved name")
	}
	if fieldline.IsReservedFieldName(def.Slug) {
		return fieldline.NewNamingConflictError(def.Slug, "reserved name")
	}
	if def.FilterLogic == "" {
		def.FilterLogic = fieldline.FilterLogicLoose
	}
	if err := ValidateDefault(def); err != nil {
		return err
	}
	return nil
}

func (r *PostgresDefinitionRepository) checkNamingConflicts(ctx context.Context, def *fieldline.FieldDefinition, selfID uuid.UUID) error {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE (key = $1 OR slug = $2) AND id <> $3",
		sanitizeIdentifier(r.tables.FieldDefinitions))
	var count int64
	if err := r.pool.QueryRow(ctx, query, def.Key, def.Slug, selfID).Scan(&count); err != nil {
		return fieldline.NewQueryError("check naming conflicts", err)
	}
	if count > 0 {
		return fieldline.NewNamingConflictError(def.Key, "key or slug already in use")
	}
	return nil
}

func (r *PostgresDefinitionRepository) replaceKinds(ctx context.Context, tx pgx.Tx, fieldID uuid.UUID, kinds []int16) error {
	del := fmt.Sprintf("DELETE FROM %s WHERE field_id = $1", sanitizeIdentifier(r.tables.FieldDefinitionKinds))
	if _, err := tx.Exec(ctx, del, fieldID); err != nil {
		return fieldline.NewQueryError("clear field applicability", err)
	}
	insert := fmt.Sprintf("INSERT INTO %s (field_id, kind_id) VALUES ($1, $2)",
		sanitizeIdentifier(r.tables.FieldDefinitionKinds))
	for _, kindID := range kinds {
		if _, err := tx.Exec(ctx, insert, fieldID, kindID); err != nil {
			return fieldline.NewQueryError("insert field applicability", err)
		}
	}
	return nil
}

func (r *PostgresDefinitionRepository) getChoice(ctx context.Context, id uuid.UUID) (*fieldline.FieldChoice, *fieldline.FieldDefinition, error) {
	query := fmt.Sprintf("SELECT id, field_id, value, weight FROM %s WHERE id = $1",
		sanitizeIdentifier(r.tables.FieldChoices))
	var c fieldline.FieldChoice
	if err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.FieldID, &c.Value, &c.Weight); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, fieldline.NewFieldNotFoundError(id.String())
		}
		return nil, nil, fieldline.NewQueryError("look up field choice", err)
	}
	def, err := r.GetDefinition(ctx, c.FieldID)
	if err != nil {
		return nil, nil, err
	}
	return &c, def, nil
}

func (r *PostgresDefinitionRepository) choiceInUse(ctx context.Context, def *fieldline.FieldDefinition, value string) (bool, error) {
	var query string
	if def.Type == fieldline.FieldTypeMultiSelect {
		query = fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE custom_field_data -> $1 @> jsonb_build_array($2::text))",
			sanitizeIdentifier(r.tables.Objects))
	} else {
		query = fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE custom_field_data ->> $1 = $2)",
			sanitizeIdentifier(r.tables.Objects))
	}
	var inUse bool
	if err := r.pool.QueryRow(ctx, query, def.Key, value).Scan(&inUse); err != nil {
		return false, fieldline.NewQueryError("check choice references", err)
	}
	return inUse, nil
}

// propagateRename rewrites stored values after a choice value edit. Select
// fields replace the scalar; multiselect fields replace the matching list
// element in place.
func (r *PostgresDefinitionRepository) propagateRename(ctx context.Context, tx pgx.Tx, def *fieldline.FieldDefinition, oldValue, newValue string) error {
	objects := sanitizeIdentifier(r.tables.Objects)

	var query string
	if def.Type == fieldline.FieldTypeMultiSelect {
		query = fmt.Sprintf(`UPDATE %s SET custom_field_data = jsonb_set(custom_field_data, ARRAY[$1],
			(SELECT jsonb_agg(CASE WHEN elem = to_jsonb($2::text) THEN to_jsonb($3::text) ELSE elem END)
			 FROM jsonb_array_elements(custom_field_data -> $1) AS elem))
			WHERE custom_field_data -> $1 @> jsonb_build_array($2::text)`, objects)
	} else {
		query = fmt.Sprintf(`UPDATE %s SET custom_field_data = jsonb_set(custom_field_data, ARRAY[$1], to_jsonb($3::text))
			WHERE custom_field_data ->> $1 = $2`, objects)
	}

	tag, err := tx.Exec(ctx, query, def.Key, oldValue, newValue)
	if err != nil {
		return fieldline.NewQueryError("propagate choice rename", err)
	}
	EmitRenameRows(ctx, def.Key, tag.RowsAffected())
	return nil
}

func (r *PostgresDefinitionRepository) queryOneDefinition(ctx context.Context, query string, args ...any) (*fieldline.FieldDefinition, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fieldline.NewQueryError("query field definition", err)
	}
	defs, err := scanDefinitions(rows)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, pgx.ErrNoRows
	}
	if err := r.attachRelations(ctx, defs); err != nil {
		return nil, err
	}
	return defs[0], nil
}

// attachRelations loads applicability rows and choices for the given
// definitions.
func (r *PostgresDefinitionRepository) attachRelations(ctx context.Context, defs []*fieldline.FieldDefinition) error {
	if len(defs) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*fieldline.FieldDefinition, len(defs))
	ids := make([]uuid.UUID, 0, len(defs))
	for _, def := range defs {
		byID[def.ID] = def
		ids = append(ids, def.ID)
	}

	kindQuery := fmt.Sprintf("SELECT field_id, kind_id FROM %s WHERE field_id = ANY($1)",
		sanitizeIdentifier(r.tables.FieldDefinitionKinds))
	kindRows, err := r.pool.Query(ctx, kindQuery, ids)
	if err != nil {
		return fieldline.NewQueryError("load field applicability", err)
	}
	for kindRows.Next() {
		var fieldID uuid.UUID
		var kindID int16
		if err := kindRows.Scan(&fieldID, &kindID); err != nil {
			kindRows.Close()
			return fieldline.NewQueryError("scan field applicability", err)
		}
		if def, ok := byID[fieldID]; ok {
			def.ObjectKinds = append(def.ObjectKinds, kindID)
		}
	}
	kindRows.Close()
	if err := kindRows.Err(); err != nil {
		return fieldline.NewQueryError("iterate field applicability", err)
	}

	choiceQuery := fmt.Sprintf("SELECT id, field_id, value, weight FROM %s WHERE field_id = ANY($1) ORDER BY weight, value",
		sanitizeIdentifier(r.tables.FieldChoices))
	choiceRows, err := r.pool.Query(ctx, choiceQuery, ids)
	if err != nil {
		return fieldline.NewQueryError("load field choices", err)
	}
	for choiceRows.Next() {
		var c fieldline.FieldChoice
		if err := choiceRows.Scan(&c.ID, &c.FieldID, &c.Value, &c.Weight); err != nil {
			choiceRows.Close()
			return fieldline.NewQueryError("scan field choice", err)
		}
		if def, ok := byID[c.FieldID]; ok {
			def.Choices = append(def.Choices, c)
		}
	}
	choiceRows.Close()
	return choiceRows.Err()
}

func scanDefinitions(rows pgx.Rows) ([]*fieldline.FieldDefinition, error) {
	defer rows.Close()

	var defs []*fieldline.FieldDefinition
	for rows.Next() {
		def := &fieldline.FieldDefinition{}
		var typ, filterLogic string
		var defaultJSON, schemaJSON []byte
		if err := rows.Scan(&def.ID, &def.Key, &def.Label, &def.Slug, &typ, &def.Required,
			&defaultJSON, &filterLogic,
			&def.ValidationMinimum, &def.ValidationMaximum, &def.ValidationRegex, &schemaJSON, &def.Weight); err != nil {
			return nil, fieldline.NewQueryError("scan field definition", err)
		}
		def.Type = fieldline.FieldType(typ)
		def.FilterLogic = fieldline.FilterLogic(filterLogic)
		if len(defaultJSON) > 0 {
			if err := json.Unmarshal(defaultJSON, &def.Default); err != nil {
				return nil, fieldline.NewInternalError("decode stored default value", err)
			}
		}
		if len(schemaJSON) > 0 {
			def.ValidationSchema = json.RawMessage(schemaJSON)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// marshalDefinitionBlobs encodes the default value and validation schema for
// storage. A nil default persists as SQL NULL, distinct from JSON null.
func marshalDefinitionBlobs(def *fieldline.FieldDefinition) ([]byte, []byte, error) {
	var defaultJSON []byte
	if def.Default != nil {
		encoded, err := json.Marshal(def.Default)
		if err != nil {
			return nil, nil, fieldline.NewInternalError("encode default value", err)
		}
		defaultJSON = encoded
	}
	var schemaJSON []byte
	if len(def.ValidationSchema) > 0 {
		schemaJSON = []byte(def.ValidationSchema)
	}
	return defaultJSON, schemaJSON, nil
}
