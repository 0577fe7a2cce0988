package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/fieldline/fieldline"
	"github.com/fieldline/fieldline/internal"
)

type importCSVOptions struct {
	host     string
	port     int
	database string
	user     string
	password string
	sslMode  string

	kind      string
	file      string
	batchSize int
	dryRun    bool
}

func runImportCSV(args []string) error {
	flags := flag.NewFlagSet("import-csv", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: fieldline-tools import-csv [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := importCSVOptions{}
	flags.StringVar(&opts.host, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flags.IntVar(&opts.port, "db-port", getenvDefaultInt("DB_PORT", 5432), "database port")
	flags.StringVar(&opts.database, "db-name", getenvDefault("DB_NAME", "fieldline"), "database name")
	flags.StringVar(&opts.user, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flags.StringVar(&opts.password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flags.StringVar(&opts.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "disable"), "database sslmode")
	flags.StringVar(&opts.kind, "kind", "", "object kind name to import into (required)")
	flags.StringVar(&opts.file, "file", "", "CSV file to import (required)")
	flags.IntVar(&opts.batchSize, "batch-size", getenvDefaultInt("IMPORT_BATCH_SIZE", 100), "rows per COPY batch")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "parse and validate without loading")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.kind == "" || opts.file == "" {
		flags.Usage()
		return fmt.Errorf("both -kind and -file are required")
	}

	return importCSV(opts)
}

func importCSV(opts importCSVOptions) error {
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, buildConnString(initDBOptions{
		host: opts.host, port: opts.port, database: opts.database,
		user: opts.user, password: opts.password, sslMode: opts.sslMode,
	}))
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	tables := fieldline.DefaultTableNames()
	repo := internal.NewPostgresDefinitionRepository(pool, tables)

	kindID, err := repo.IdentifierFor(ctx, opts.kind)
	if err != nil {
		return fmt.Errorf("resolve kind %q: %w", opts.kind, err)
	}
	defs, err := repo.DefinitionsFor(ctx, kindID)
	if err != nil {
		return fmt.Errorf("load field definitions: %w", err)
	}

	f, err := os.Open(opts.file)
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	importer := internal.NewCSVImporter(tables, opts.batchSize)
	objects, batch, err := importer.Parse(f, kindID, defs)
	if err != nil {
		return fmt.Errorf("parse csv: %w", err)
	}

	for _, rowErr := range batch.Errors {
		fmt.Printf("Row rejected: %s\n", rowErr.Error())
	}
	fmt.Printf("Parsed %d rows: %d valid, %d rejected\n",
		batch.TotalCount, batch.SuccessCount, batch.FailureCount)

	if opts.dryRun {
		fmt.Println("Dry run, nothing loaded.")
		return nil
	}
	if len(objects) == 0 {
		fmt.Println("No valid rows to load.")
		return nil
	}

	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		opts.host, opts.port, opts.user, opts.password, opts.database, opts.sslMode)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("open pg: %w", err)
	}
	defer db.Close()

	if err := importer.BulkLoad(db, objects); err != nil {
		return fmt.Errorf("bulk load: %w", err)
	}
	fmt.Printf("Loaded %d objects into kind %q.\n", len(objects), opts.kind)
	return nil
}
