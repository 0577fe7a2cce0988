package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/fieldline/fieldline/internal"
)

type preflightOptions struct {
	file string
}

func runPreflightCSV(args []string) error {
	flags := flag.NewFlagSet("preflight-csv", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: fieldline-tools preflight-csv -file <path>")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := preflightOptions{}
	flags.StringVar(&opts.file, "file", "", "CSV file to inspect (required)")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.file == "" {
		flags.Usage()
		return fmt.Errorf("-file is required")
	}

	return preflightCSV(opts)
}

// preflightCSV runs the file through DuckDB's CSV sniffer and prints per
// column statistics, so type mismatches surface before the real import.
func preflightCSV(opts preflightOptions) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close()

	var rowCount int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM read_csv_auto('%s')", escapeSQLString(opts.file))
	if err := db.QueryRowContext(ctx, countQuery).Scan(&rowCount); err != nil {
		return fmt.Errorf("count rows: %w", err)
	}

	summaryQuery := fmt.Sprintf(`SELECT column_name, column_type, approx_unique, null_percentage
		FROM (SUMMARIZE SELECT * FROM read_csv_auto('%s'))`, escapeSQLString(opts.file))
	rows, err := db.QueryContext(ctx, summaryQuery)
	if err != nil {
		return fmt.Errorf("summarize csv: %w", err)
	}
	defer rows.Close()

	fmt.Printf("File: %s\n", opts.file)
	fmt.Printf("Rows: %d\n", rowCount)
	fmt.Println("")
	fmt.Printf("%-32s %-12s %12s %8s\n", "COLUMN", "TYPE", "DISTINCT", "NULL%")

	customColumns := 0
	for rows.Next() {
		var name, colType string
		var approxUnique int64
		var nullPct sql.NullFloat64
		if err := rows.Scan(&name, &colType, &approxUnique, &nullPct); err != nil {
			return fmt.Errorf("scan summary row: %w", err)
		}
		marker := ""
		if strings.HasPrefix(name, internal.CSVColumnPrefix) {
			marker = " *"
			customColumns++
		}
		fmt.Printf("%-32s %-12s %12d %7.1f%s\n", name, colType, approxUnique, nullPct.Float64, marker)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate summary: %w", err)
	}

	fmt.Println("")
	fmt.Printf("Custom field columns (marked *): %d\n", customColumns)
	return nil
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
