package internal

import (
	"context"
	"sync"
)

// telemetry.go
// Lightweight telemetry hook layer. Callers may register a real emitter (or a
// test stub) via RegisterTelemetryEmitter; the default is a no-op, avoiding a
// hard dependency on any metrics SDK.

type telemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

var (
	teleMu   sync.Mutex
	teleImpl telemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {
		// noop by default
	}
)

// RegisterTelemetryEmitter registers a custom emitter function.
func RegisterTelemetryEmitter(fn telemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emit(ctx context.Context, name string, labels map[string]string, value any) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	fn(ctx, name, labels, value)
}

// EmitValidationFailures records the number of field errors from one
// validation pass, labeled by object kind.
func EmitValidationFailures(ctx context.Context, kind string, count int) {
	emit(ctx, "custom_field_validation_failures", map[string]string{"kind": kind}, count)
}

// EmitCleanupRows records rows touched by one definition-delete fan-out batch.
func EmitCleanupRows(ctx context.Context, fieldKey string, rows int64) {
	emit(ctx, "custom_field_cleanup_rows", map[string]string{"field": fieldKey}, rows)
}

// EmitRenameRows records stored values rewritten by a choice rename.
func EmitRenameRows(ctx context.Context, fieldKey string, rows int64) {
	emit(ctx, "custom_field_choice_rename_rows", map[string]string{"field": fieldKey}, rows)
}
