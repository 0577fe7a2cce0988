package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type initDBOptions struct {
	host     string
	port     int
	database string
	user     string
	password string
	sslMode  string

	definitionsTable string
	kindsJoinTable   string
	choicesTable     string
	computedTable    string
	objectKindsTable string
	objectsTable     string

	kinds string
}

func runInitDB(args []string) error {
	flags := flag.NewFlagSet("init-db", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: fieldline-tools init-db [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := initDBOptions{}
	flags.StringVar(&opts.host, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flags.IntVar(&opts.port, "db-port", getenvDefaultInt("DB_PORT", 5432), "database port")
	flags.StringVar(&opts.database, "db-name", getenvDefault("DB_NAME", "fieldline"), "database name")
	flags.StringVar(&opts.user, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flags.StringVar(&opts.password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flags.StringVar(&opts.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "disable"), "database sslmode")
	flags.StringVar(&opts.definitionsTable, "definitions-table", getenvDefault("FIELD_DEFINITIONS_TABLE", "field_definitions"), "field definitions table name")
	flags.StringVar(&opts.kindsJoinTable, "definition-kinds-table", getenvDefault("FIELD_DEFINITION_KINDS_TABLE", "field_definition_kinds"), "field applicability table name")
	flags.StringVar(&opts.choicesTable, "choices-table", getenvDefault("FIELD_CHOICES_TABLE", "field_choices"), "field choices table name")
	flags.StringVar(&opts.computedTable, "computed-table", getenvDefault("COMPUTED_FIELDS_TABLE", "computed_fields"), "computed fields table name")
	flags.StringVar(&opts.objectKindsTable, "object-kinds-table", getenvDefault("OBJECT_KINDS_TABLE", "object_kinds"), "object kinds table name")
	flags.StringVar(&opts.objectsTable, "objects-table", getenvDefault("OBJECTS_TABLE", "objects"), "objects table name")
	flags.StringVar(&opts.kinds, "kinds", getenvDefault("OBJECT_KINDS", ""), "comma-separated object kind names to register (optional)")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	return initDatabase(opts)
}

func initDatabase(opts initDBOptions) error {
	ctx := context.Background()

	connString := buildConnString(opts)
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := withTx(ctx, conn, func(tx pgx.Tx) error {
		return ensureTables(ctx, tx, opts)
	}); err != nil {
		return err
	}

	fmt.Println("Database initialized successfully.")
	return nil
}

func buildConnString(opts initDBOptions) string {
	hostPort := fmt.Sprintf("%s:%d", opts.host, opts.port)

	var userInfo *url.Userinfo
	if opts.password != "" {
		userInfo = url.UserPassword(opts.user, opts.password)
	} else {
		userInfo = url.User(opts.user)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   hostPort,
		Path:   "/" + opts.database,
	}

	q := url.Values{}
	if opts.sslMode != "" {
		q.Set("sslmode", opts.sslMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func ensureTables(ctx context.Context, tx pgx.Tx, opts initDBOptions) error {
	definitions := quoteIdentifier(opts.definitionsTable)
	kindsJoin := quoteIdentifier(opts.kindsJoinTable)
	choices := quoteIdentifier(opts.choicesTable)
	computed := quoteIdentifier(opts.computedTable)
	objectKinds := quoteIdentifier(opts.objectKindsTable)
	objects := quoteIdentifier(opts.objectsTable)

	ddlKinds := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id   SMALLINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		name TEXT UNIQUE NOT NULL
	)`, objectKinds)
	if _, err := tx.Exec(ctx, ddlKinds); err != nil {
		return fmt.Errorf("ensure object kinds table: %w", err)
	}
	fmt.Printf("Created object kinds table: %s\n", opts.objectKindsTable)

	ddlDefinitions := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
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
	)`, definitions)
	if _, err := tx.Exec(ctx, ddlDefinitions); err != nil {
		return fmt.Errorf("ensure field definitions table: %w", err)
	}
	fmt.Printf("Created field definitions table: %s\n", opts.definitionsTable)

	ddlKindsJoin := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		field_id UUID NOT NULL,
		kind_id  SMALLINT NOT NULL,
		PRIMARY KEY (field_id, kind_id)
	)`, kindsJoin)
	if _, err := tx.Exec(ctx, ddlKindsJoin); err != nil {
		return fmt.Errorf("ensure field applicability table: %w", err)
	}
	fmt.Printf("Created field applicability table: %s\n", opts.kindsJoinTable)

	ddlChoices := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id       UUID PRIMARY KEY,
		field_id UUID NOT NULL,
		value    TEXT NOT NULL,
		weight   INTEGER NOT NULL DEFAULT 100,
		UNIQUE (field_id, value)
	)`, choices)
	if _, err := tx.Exec(ctx, ddlChoices); err != nil {
		return fmt.Errorf("ensure field choices table: %w", err)
	}
	fmt.Printf("Created field choices table: %s\n", opts.choicesTable)

	ddlComputed := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id             UUID PRIMARY KEY,
		kind_id        SMALLINT NOT NULL,
		slug           TEXT UNIQUE NOT NULL,
		label          TEXT NOT NULL,
		template       TEXT NOT NULL,
		fallback_value TEXT NOT NULL DEFAULT '',
		weight         INTEGER NOT NULL DEFAULT 100
	)`, computed)
	if _, err := tx.Exec(ctx, ddlComputed); err != nil {
		return fmt.Errorf("ensure computed fields table: %w", err)
	}
	fmt.Printf("Created computed fields table: %s\n", opts.computedTable)

	ddlObjects := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id                UUID PRIMARY KEY,
		kind_id           SMALLINT NOT NULL,
		name              TEXT NOT NULL,
		slug              TEXT NOT NULL,
		custom_field_data JSONB NOT NULL DEFAULT '{}'::jsonb
	)`, objects)
	if _, err := tx.Exec(ctx, ddlObjects); err != nil {
		return fmt.Errorf("ensure objects table: %w", err)
	}
	fmt.Printf("Created objects table: %s\n", opts.objectsTable)

	// GIN index makes key-existence and containment filters cheap.
	idxData := quoteIdentifier(makeIndexName(opts.objectsTable, "custom_field_data"))
	createIdxData := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (custom_field_data)`, idxData, objects)
	if _, err := tx.Exec(ctx, createIdxData); err != nil {
		return fmt.Errorf("create custom field data index: %w", err)
	}

	idxKind := quoteIdentifier(makeIndexName(opts.objectsTable, "kind"))
	createIdxKind := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (kind_id, name)`, idxKind, objects)
	if _, err := tx.Exec(ctx, createIdxKind); err != nil {
		return fmt.Errorf("create kind index: %w", err)
	}

	idxChoices := quoteIdentifier(makeIndexName(opts.choicesTable, "field"))
	createIdxChoices := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (field_id, weight)`, idxChoices, choices)
	if _, err := tx.Exec(ctx, createIdxChoices); err != nil {
		return fmt.Errorf("create choices index: %w", err)
	}

	if opts.kinds != "" {
		if err := registerKinds(ctx, tx, opts.objectKindsTable, opts.kinds); err != nil {
			return err
		}
	}

	return nil
}

// registerKinds inserts the requested kind names, skipping existing ones.
func registerKinds(ctx context.Context, tx pgx.Tx, kindsTable, kinds string) error {
	quotedTable := quoteIdentifier(kindsTable)
	insertSQL := fmt.Sprintf(
		`INSERT INTO %s (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
		quotedTable,
	)

	registered := 0
	for _, name := range strings.Split(kinds, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		result, err := tx.Exec(ctx, insertSQL, name)
		if err != nil {
			return fmt.Errorf("insert kind %s: %w", name, err)
		}
		if result.RowsAffected() > 0 {
			fmt.Printf("Registered object kind: %s\n", name)
			registered++
		} else {
			fmt.Printf("Object kind already exists: %s\n", name)
		}
	}

	fmt.Printf("Registered object kinds, count: %d\n", registered)
	return nil
}

func withTx(ctx context.Context, conn *pgxpool.Conn, fn func(pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func quoteIdentifier(name string) string {
	return pgx.Identifier(splitIdentifier(name)).Sanitize()
}

func splitIdentifier(name string) []string {
	parts := strings.Split(name, ".")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return []string{name}
	}
	return result
}

func makeIndexName(table string, suffix string) string {
	base := strings.ReplaceAll(table, ".", "_")
	base = strings.ReplaceAll(base, `"`, "")
	return fmt.Sprintf("%s_%s_idx", base, suffix)
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
