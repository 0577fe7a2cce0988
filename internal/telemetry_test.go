package internal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredEmitterReceivesCounters(t *testing.T) {
	type emission struct {
		name   string
		labels map[string]string
		value  any
	}
	var got []emission
	RegisterTelemetryEmitter(func(ctx context.Context, name string, labels map[string]string, value any) {
		got = append(got, emission{name, labels, value})
	})
	t.Cleanup(func() { RegisterTelemetryEmitter(nil) })

	ctx := context.Background()
	EmitCleanupRows(ctx, "serial", 500)
	EmitRenameRows(ctx, "color", 3)
	EmitValidationFailures(ctx, "1", 2)

	require.Len(t, got, 3)
	assert.Equal(t, "custom_field_cleanup_rows", got[0].name)
	assert.Equal(t, map[string]string{"field": "serial"}, got[0].labels)
	assert.Equal(t, int64(500), got[0].value)
	assert.Equal(t, "custom_field_choice_rename_rows", got[1].name)
	assert.Equal(t, int64(3), got[1].value)
	assert.Equal(t, "custom_field_validation_failures", got[2].name)
	assert.Equal(t, map[string]string{"kind": "1"}, got[2].labels)
	assert.Equal(t, 2, got[2].value)
}

func TestNilEmitterResetsToNoop(t *testing.T) {
	called := false
	RegisterTelemetryEmitter(func(ctx context.Context, name string, labels map[string]string, value any) {
		called = true
	})
	RegisterTelemetryEmitter(nil)

	EmitCleanupRows(context.Background(), "serial", 1)
	assert.False(t, called)
}
