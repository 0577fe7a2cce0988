package e2e_harness

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestHarness holds lightweight runners for dependencies used by E2E tests.
type TestHarness struct {
	PGContainer testcontainers.Container
	PGDSN       string
	Pool        *pgxpool.Pool
	S3Container testcontainers.Container
	S3Endpoint  string
}

// StartPostgres starts a postgres container and returns a DSN. It waits until
// Postgres is reachable. Caller is responsible for calling StopPostgres.
func (h *TestHarness) StartPostgres(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", err
	}
	h.PGContainer = container

	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	mapped, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", err
	}
	dsn := fmt.Sprintf("postgres://postgres:password@%s:%s/postgres?sslmode=disable", host, mapped.Port())
	h.PGDSN = dsn

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return "", err
	}
	deadline := time.Now().Add(20 * time.Second)
	for {
		if err := pool.Ping(ctx); err == nil {
			h.Pool = pool
			return dsn, nil
		}
		if time.Now().After(deadline) {
			pool.Close()
			return "", fmt.Errorf("postgres did not become ready: %w", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// StopPostgres stops the Postgres container and closes the pool.
func (h *TestHarness) StopPostgres(ctx context.Context) error {
	if h.Pool != nil {
		h.Pool.Close()
		h.Pool = nil
	}
	if h.PGContainer != nil {
		if err := h.PGContainer.Terminate(ctx); err != nil {
			return err
		}
		h.PGContainer = nil
	}
	return nil
}

// StartS3 starts an S3-compatible container and returns its endpoint.
func (h *TestHarness) StartS3(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "rustfs/rustfs:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": "minio",
			"RUSTFS_SECRET_KEY": "minio",
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", err
	}
	h.S3Container = container

	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	mapped, err := container.MappedPort(ctx, "9000")
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("http://%s:%s", host, mapped.Port())
	h.S3Endpoint = endpoint
	return endpoint, nil
}

// StopS3 stops the S3 container.
func (h *TestHarness) StopS3(ctx context.Context) error {
	if h.S3Container != nil {
		if err := h.S3Container.Terminate(ctx); err != nil {
			return err
		}
		h.S3Container = nil
	}
	return nil
}

// schemaDDL mirrors the tables the init-db tool creates, under the default
// table names.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS object_kinds (
		id   SMALLINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		name TEXT UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS field_definitions (
		id                  UUID PRIMARY KEY,
		key                 TEXT UNIQUE NOT NULL,
		label               TEXT NOT NULL,
		slug                TEXT UNIQUE NOT NULL,
		type                TEXT NOT NULL,
		required            BOOLEAN NOT NULL DEFAULT FALSE,
		default_value       JSONB,
		filter_logic        TEXT NOT NULL DEFAULT 'loose',
		validation_minimum  BIGINT,
		validation_maximum  BIGINT,
		validation_regex    TEXT NOT NULL DEFAULT '',
		validation_schema   JSONB,
		weight              INTEGER NOT NULL DEFAULT 100
	)`,
	`CREATE TABLE IF NOT EXISTS field_definition_kinds (
		field_id UUID NOT NULL,
		kind_id  SMALLINT NOT NULL,
		PRIMARY KEY (field_id, kind_id)
	)`,
	`CREATE TABLE IF NOT EXISTS field_choices (
		id       UUID PRIMARY KEY,
		field_id UUID NOT NULL,
		value    TEXT NOT NULL,
		weight   INTEGER NOT NULL DEFAULT 100,
		UNIQUE (field_id, value)
	)`,
	`CREATE TABLE IF NOT EXISTS computed_fields (
		id             UUID PRIMARY KEY,
		kind_id        SMALLINT NOT NULL,
		slug           TEXT UNIQUE NOT NULL,
		label          TEXT NOT NULL,
		template       TEXT NOT NULL,
		fallback_value TEXT NOT NULL DEFAULT '',
		weight         INTEGER NOT NULL DEFAULT 100
	)`,
	`CREATE TABLE IF NOT EXISTS objects (
		id                UUID PRIMARY KEY,
		kind_id           SMALLINT NOT NULL,
		name              TEXT NOT NULL,
		slug              TEXT NOT NULL,
		custom_field_data JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS objects_custom_field_data_idx ON objects USING GIN (custom_field_data)`,
	`CREATE INDEX IF NOT EXISTS objects_kind_idx ON objects (kind_id, name)`,
}

// ApplySchema creates the default tables in the harness database.
func (h *TestHarness) ApplySchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := h.Pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
