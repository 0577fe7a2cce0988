package e2e_harness

import (
	"context"
	"testing"

	"github.com/fieldline/fieldline"
	"github.com/fieldline/fieldline/internal"
	"github.com/google/uuid"
)

func TestCustomFieldLifecycleE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E harness in -short mode")
	}
	ctx := context.Background()
	h := &TestHarness{}

	if _, err := h.StartPostgres(ctx); err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	defer h.StopPostgres(ctx)

	if err := h.ApplySchema(ctx); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	tables := fieldline.DefaultTableNames()
	registry := internal.NewPostgresDefinitionRepository(h.Pool, tables)
	objects := internal.NewPostgresObjectRepository(h.Pool, tables, registry, fieldline.QueryConfig{})

	kindID, err := registry.RegisterKind(ctx, "device")
	if err != nil {
		t.Fatalf("register kind: %v", err)
	}

	def := &fieldline.FieldDefinition{
		Key:         "color",
		Type:        fieldline.FieldTypeSelect,
		ObjectKinds: []int16{kindID},
	}
	if err := registry.CreateDefinition(ctx, def); err != nil {
		t.Fatalf("create definition: %v", err)
	}
	red := &fieldline.FieldChoice{FieldID: def.ID, Value: "red", Weight: 10}
	if err := registry.CreateChoice(ctx, red); err != nil {
		t.Fatalf("create choice: %v", err)
	}
	if err := registry.CreateChoice(ctx, &fieldline.FieldChoice{FieldID: def.ID, Value: "blue", Weight: 20}); err != nil {
		t.Fatalf("create choice: %v", err)
	}

	obj := &fieldline.ObjectRecord{
		KindID:          kindID,
		Name:            "core-router-01",
		Slug:            "core-router-01",
		CustomFieldData: map[string]any{"color": "red"},
	}
	if err := objects.Create(ctx, obj); err != nil {
		t.Fatalf("create object: %v", err)
	}

	// An off-catalog value must be rejected.
	badObj := &fieldline.ObjectRecord{
		KindID:          kindID,
		Name:            "core-router-02",
		Slug:            "core-router-02",
		CustomFieldData: map[string]any{"color": "chartreuse"},
	}
	if err := objects.Create(ctx, badObj); err == nil {
		t.Fatal("expected invalid choice to fail validation")
	}

	result, err := objects.Query(ctx, &fieldline.ObjectQuery{
		KindID:  kindID,
		Filters: []fieldline.Filter{{Key: "color", Lookup: fieldline.LookupExact, Value: "red"}},
	})
	if err != nil {
		t.Fatalf("query objects: %v", err)
	}
	if len(result.Objects) != 1 || result.Objects[0].ID != obj.ID {
		t.Fatalf("expected the red object, got %d rows", len(result.Objects))
	}

	// Renaming a choice rewrites stored values in the same transaction.
	red.Value = "crimson"
	if err := registry.UpdateChoice(ctx, red); err != nil {
		t.Fatalf("rename choice: %v", err)
	}
	var stored string
	if err := h.Pool.QueryRow(ctx,
		`SELECT custom_field_data ->> 'color' FROM objects WHERE id = $1`, obj.ID).Scan(&stored); err != nil {
		t.Fatalf("read stored value: %v", err)
	}
	if stored != "crimson" {
		t.Fatalf("expected rename to propagate, got %q", stored)
	}

	// The in-use choice is protected; the unused one is not.
	if err := registry.DeleteChoice(ctx, red.ID); err == nil {
		t.Fatal("expected in-use choice delete to fail")
	}

	if err := registry.DeleteDefinition(ctx, def.ID); err != nil {
		t.Fatalf("delete definition: %v", err)
	}
	// The fan-out is asynchronous; run it synchronously here so the check
	// below does not race it.
	if err := registry.RemoveStoredValues(ctx, "color"); err != nil {
		t.Fatalf("remove stored values: %v", err)
	}
	var remaining int
	if err := h.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM objects WHERE custom_field_data ? 'color'`).Scan(&remaining); err != nil {
		t.Fatalf("count remaining keys: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected stored values to be stripped, %d rows still carry the key", remaining)
	}
}

func TestCSVExportToS3E2E(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E harness in -short mode")
	}
	ctx := context.Background()
	h := &TestHarness{}

	if _, err := h.StartS3(ctx); err != nil {
		t.Fatalf("start s3: %v", err)
	}
	defer h.StopS3(ctx)

	t.Setenv("S3_ACCESS_KEY", "minio")
	t.Setenv("S3_SECRET_KEY", "minio")

	exporter := internal.NewS3Exporter(fieldline.ExportConfig{
		S3Bucket: "fieldline-exports",
		S3Prefix: "e2e",
		S3Region: "us-east-1",
	})
	exporter.Endpoint = h.S3Endpoint

	defs := []*fieldline.FieldDefinition{
		{Key: "serial", Slug: "serial", Type: fieldline.FieldTypeText},
	}
	objs := []*fieldline.ObjectRecord{
		{
			ID:              uuid.Must(uuid.NewV7()),
			KindID:          1,
			Name:            "core-router-01",
			Slug:            "core-router-01",
			CustomFieldData: map[string]any{"serial": "abc"},
		},
	}

	key, err := exporter.Export(ctx, "device", defs, objs)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if key == "" {
		t.Fatal("expected a non-empty object key")
	}
}
