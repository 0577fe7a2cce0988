package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fieldline/fieldline"
	"github.com/fieldline/fieldline/internal"
)

// Server wires the HTTP surface to the definition and object repositories.
type Server struct {
	config  *fieldline.Config
	repo    *internal.PostgresDefinitionRepository
	objects fieldline.ObjectManager
	adapter *internal.APIAdapter
	// exporter is nil when no S3 bucket is configured.
	exporter *internal.S3Exporter
	mux      *http.ServeMux
}

// NewServer creates a new Server instance
func NewServer(cfg *fieldline.Config, repo *internal.PostgresDefinitionRepository, objects fieldline.ObjectManager) *Server {
	s := &Server{
		config:  cfg,
		repo:    repo,
		objects: objects,
		adapter: internal.NewAPIAdapter(),
		mux:     http.NewServeMux(),
	}
	if cfg.Export.S3Bucket != "" {
		s.exporter = internal.NewS3Exporter(cfg.Export)
	}
	return s
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	s.mux.HandleFunc("/api/v1/field-definitions", s.handleDefinitions)
	s.mux.HandleFunc("/api/v1/field-definitions/", s.handleDefinitionByID)
	s.mux.HandleFunc("/api/v1/choices/", s.handleChoiceByID)
	s.mux.HandleFunc("/api/v1/computed-fields", s.handleComputedFields)
	s.mux.HandleFunc("/api/v1/computed-fields/", s.handleComputedFieldByID)
	s.mux.HandleFunc("/api/v1/objects/", s.handleObjects)
}

// Start starts the HTTP server on the given port
func (s *Server) Start(port string) error {
	zap.S().Infow("starting server", "port", port)
	return http.ListenAndServe(":"+port, s.mux)
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	internal.RegisterTelemetryEmitter(func(ctx context.Context, name string, labels map[string]string, value any) {
		zap.S().Debugw("telemetry", "metric", name, "labels", labels, "value", value)
	})

	cfg := fieldline.DefaultConfig()
	cfg.Database = fieldline.DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		Database:        getEnv("DB_NAME", "fieldline"),
		Username:        getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		SSLMode:         getEnv("DB_SSL_MODE", "disable"),
		MaxConnections:  getEnvInt("DB_MAX_CONNECTIONS", 25),
		ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SECONDS", 3600)) * time.Second,
		ConnMaxIdleTime: time.Duration(getEnvInt("DB_CONN_MAX_IDLE_TIME_SECONDS", 300)) * time.Second,
		Timeout:         time.Duration(getEnvInt("DB_TIMEOUT_SECONDS", 30)) * time.Second,
		UseIAMAuth:      getEnv("DB_USE_IAM_AUTH", "") == "true",
		AWSRegion:       getEnv("AWS_REGION", ""),
		TableNames: fieldline.TableNames{
			FieldDefinitions:     getEnv("FIELD_DEFINITIONS_TABLE", "field_definitions"),
			FieldDefinitionKinds: getEnv("FIELD_DEFINITION_KINDS_TABLE", "field_definition_kinds"),
			FieldChoices:         getEnv("FIELD_CHOICES_TABLE", "field_choices"),
			ComputedFields:       getEnv("COMPUTED_FIELDS_TABLE", "computed_fields"),
			ObjectKinds:          getEnv("OBJECT_KINDS_TABLE", "object_kinds"),
			Objects:              getEnv("OBJECTS_TABLE", "objects"),
		},
	}
	cfg.Export = fieldline.ExportConfig{
		S3Bucket: getEnv("EXPORT_S3_BUCKET", ""),
		S3Prefix: getEnv("EXPORT_S3_PREFIX", "exports"),
		S3Region: getEnv("EXPORT_S3_REGION", getEnv("AWS_REGION", "us-east-1")),
	}

	pool, err := createDatabasePoolFromConfig(cfg.Database)
	if err != nil {
		sugar.Fatalf("failed to create database pool: %v", err)
	}
	defer pool.Close()

	repo := internal.NewPostgresDefinitionRepository(pool, cfg.Database.TableNames)
	objects := internal.NewPostgresObjectRepository(pool, cfg.Database.TableNames, repo, cfg.Query)

	server := NewServer(cfg, repo, objects)
	server.RegisterRoutes()

	port := getEnv("PORT", "8080")
	if err := server.Start(port); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

// createDatabasePoolFromConfig creates a PostgreSQL connection pool from config
func createDatabasePoolFromConfig(dbConfig fieldline.DatabaseConfig) (*pgxpool.Pool, error) {
	password := dbConfig.Password
	if dbConfig.UseIAMAuth {
		token, err := generateIAMToken(dbConfig)
		if err != nil {
			zap.S().Warnw("failed to generate IAM auth token; falling back to DB_PASSWORD", "err", err)
		} else {
			password = token
		}
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dbConfig.Username,
		password,
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.Database,
		dbConfig.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(dbConfig.MaxConnections)
	poolConfig.MaxConnLifetime = dbConfig.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = dbConfig.ConnMaxIdleTime
	poolConfig.ConnConfig.ConnectTimeout = dbConfig.Timeout

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// generateIAMToken builds a DSQL IAM connect token to use as the database
// password.
func generateIAMToken(dbConfig fieldline.DatabaseConfig) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}
	if dbConfig.AWSRegion != "" {
		awsCfg.Region = dbConfig.AWSRegion
	}

	endpoint := fmt.Sprintf("%s:%d", dbConfig.Host, dbConfig.Port)
	token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
	if err != nil {
		return "", fmt.Errorf("generate db connect token: %w", err)
	}
	zap.S().Infow("generated IAM auth token for database connection")
	return token, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
