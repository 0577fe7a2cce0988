package internal

import (
	"context"
	"testing"

	"github.com/fieldline/fieldline"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticFieldRegistry serves a fixed definition set so repository tests do not
// depend on the definitions tables.
type staticFieldRegistry struct {
	defs []*fieldline.FieldDefinition
}

func (s *staticFieldRegistry) DefinitionsFor(context.Context, int16) ([]*fieldline.FieldDefinition, error) {
	return s.defs, nil
}

func (s *staticFieldRegistry) DefaultsFor(context.Context, int16) (map[string]any, error) {
	defaults := make(map[string]any, len(s.defs))
	for _, def := range s.defs {
		defaults[def.Key] = def.Default
	}
	return defaults, nil
}

func (s *staticFieldRegistry) DefinitionByKey(_ context.Context, key string) (*fieldline.FieldDefinition, error) {
	for _, def := range s.defs {
		if def.Key == key {
			return def, nil
		}
	}
	return nil, fieldline.NewFieldNotFoundError(key)
}

func (s *staticFieldRegistry) ComputedFieldsFor(context.Context, int16) ([]*fieldline.ComputedFieldDefinition, error) {
	return nil, nil
}

func newMockObjectRepo(t *testing.T, defs ...*fieldline.FieldDefinition) (pgxmock.PgxPoolIface, *PostgresObjectRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	mock.MatchExpectationsInOrder(true)

	repo := NewPostgresObjectRepository(mock, fieldline.DefaultTableNames(),
		&staticFieldRegistry{defs: defs}, fieldline.QueryConfig{})
	return mock, repo
}

func TestCreateObjectAppliesDefaults(t *testing.T) {
	mock, repo := newMockObjectRepo(t,
		&fieldline.FieldDefinition{Key: "serial", Type: fieldline.FieldTypeText, Required: true},
		&fieldline.FieldDefinition{Key: "vlan", Type: fieldline.FieldTypeInteger, Default: float64(1)},
	)

	obj := &fieldline.ObjectRecord{
		ID:              uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		KindID:          1,
		Name:            "core-router-01",
		Slug:            "core-router-01",
		CustomFieldData: map[string]any{"serial": "abc"},
	}

	mock.ExpectExec(`(?s)^INSERT INTO "objects"`).
		WithArgs(obj.ID, int16(1), "core-router-01", "core-router-01",
			map[string]any{"serial": "abc", "vlan": float64(1)}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), obj)
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateObjectValidationFailureSkipsInsert(t *testing.T) {
	mock, repo := newMockObjectRepo(t,
		&fieldline.FieldDefinition{Key: "serial", Type: fieldline.FieldTypeText, Required: true},
	)

	obj := &fieldline.ObjectRecord{KindID: 1, Name: "core-router-01"}
	err := repo.Create(context.Background(), obj)
	require.Error(t, err)
	assert.True(t, fieldline.IsValidationError(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetObjectNotFound(t *testing.T) {
	mock, repo := newMockObjectRepo(t)

	id := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	mock.ExpectQuery(`^SELECT id, kind_id, name, slug, custom_field_data FROM "objects" WHERE id = \$1$`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "kind_id", "name", "slug", "custom_field_data"}))

	_, err := repo.Get(context.Background(), id)
	require.Error(t, err)
	assert.True(t, fieldline.IsNotFoundError(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateObjectMissingRow(t *testing.T) {
	mock, repo := newMockObjectRepo(t)

	obj := &fieldline.ObjectRecord{
		ID:              uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		KindID:          1,
		Name:            "gone",
		Slug:            "gone",
		CustomFieldData: map[string]any{},
	}

	mock.ExpectExec(`^UPDATE "objects" SET name = \$2, slug = \$3, custom_field_data = \$4 WHERE id = \$1$`).
		WithArgs(obj.ID, "gone", "gone", map[string]any{}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), obj)
	require.Error(t, err)
	assert.True(t, fieldline.IsNotFoundError(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteObject(t *testing.T) {
	mock, repo := newMockObjectRepo(t)

	id := uuid.MustParse("44444444-4444-4444-4444-444444444444")
	mock.ExpectExec(`^DELETE FROM "objects" WHERE id = \$1$`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, repo.Delete(context.Background(), id))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryObjectsWithMockPool(t *testing.T) {
	mock, repo := newMockObjectRepo(t)

	id := uuid.MustParse("55555555-5555-5555-5555-555555555555")
	mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM "objects" WHERE kind_id = \$1 AND TRUE$`).
		WithArgs(int16(1)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(`(?s)^SELECT id, kind_id, name, slug, custom_field_data FROM "objects"`).
		WithArgs(int16(1), 50, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "kind_id", "name", "slug", "custom_field_data"}).
			AddRow(id, int16(1), "core-router-01", "core-router-01", map[string]any{"serial": "abc"}))

	result, err := repo.Query(context.Background(), &fieldline.ObjectQuery{KindID: 1})
	require.NoError(t, err)
	require.Len(t, result.Objects, 1)
	assert.Equal(t, int64(1), result.TotalRecords)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 50, result.PageSize)
	assert.Equal(t, "abc", result.Objects[0].CustomFieldData["serial"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryObjectsClampsPageSize(t *testing.T) {
	mock, repo := newMockObjectRepo(t)

	mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM "objects" WHERE kind_id = \$1 AND TRUE$`).
		WithArgs(int16(1)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(`(?s)^SELECT id, kind_id, name, slug, custom_field_data FROM "objects"`).
		WithArgs(int16(1), 1000, 1000).
		WillReturnRows(pgxmock.NewRows([]string{"id", "kind_id", "name", "slug", "custom_field_data"}))

	result, err := repo.Query(context.Background(), &fieldline.ObjectQuery{
		KindID:   1,
		Page:     2,
		PageSize: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Page)
	assert.Equal(t, 1000, result.PageSize)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryObjectsUnknownFilterKey(t *testing.T) {
	mock, repo := newMockObjectRepo(t)

	_, err := repo.Query(context.Background(), &fieldline.ObjectQuery{
		KindID:  1,
		Filters: []fieldline.Filter{{Key: "ghost", Lookup: fieldline.LookupExact, Value: "x"}},
	})
	require.Error(t, err)
	assert.True(t, fieldline.IsNotFoundError(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchCreatePartialSuccess(t *testing.T) {
	mock, repo := newMockObjectRepo(t,
		&fieldline.FieldDefinition{Key: "serial", Type: fieldline.FieldTypeText, Required: true},
	)

	good := &fieldline.ObjectRecord{
		ID:              uuid.MustParse("66666666-6666-6666-6666-666666666666"),
		KindID:          1,
		Name:            "good",
		Slug:            "good",
		CustomFieldData: map[string]any{"serial": "abc"},
	}
	bad := &fieldline.ObjectRecord{KindID: 1, Name: "bad", Slug: "bad"}

	mock.ExpectExec(`(?s)^INSERT INTO "objects"`).
		WithArgs(good.ID, int16(1), "good", "good", map[string]any{"serial": "abc"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	batch, err := repo.BatchCreate(context.Background(), []*fieldline.ObjectRecord{good, bad})
	require.NoError(t, err)
	require.Len(t, batch.Errors, 1)
	assert.Equal(t, 1, batch.Errors[0].Row)
	assert.Equal(t, fieldline.ErrCodeRequiredFieldMissing, batch.Errors[0].Cause.Code)
	assert.Equal(t, 1, batch.SuccessCount)
	assert.Equal(t, 1, batch.FailureCount)
	assert.Equal(t, 2, batch.TotalCount)
	assert.True(t, batch.HasPartialSuccess())

	require.NoError(t, mock.ExpectationsWereMet())
}
