package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init-db":
		if err := runInitDB(os.Args[2:]); err != nil {
			sugar.Fatalf("init-db: %v", err)
		}
	case "import-csv":
		if err := runImportCSV(os.Args[2:]); err != nil {
			sugar.Fatalf("import-csv: %v", err)
		}
	case "preflight-csv":
		if err := runPreflightCSV(os.Args[2:]); err != nil {
			sugar.Fatalf("preflight-csv: %v", err)
		}
	default:
		sugar.Errorf("unknown command %q", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	logger := zap.S()
	logger.Info("Usage: fieldline-tools <command> [options]")
	logger.Info("")
	logger.Info("Commands:")
	logger.Info("  init-db         Create PostgreSQL tables and indexes for Fieldline")
	logger.Info("  import-csv      Bulk-load objects of one kind from a CSV file")
	logger.Info("  preflight-csv   Inspect a CSV file and report column statistics before import")
}
