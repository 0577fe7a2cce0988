package fieldline

import (
	"time"
)

// Config consolidates settings for the server and tools
type Config struct {
	Database DatabaseConfig `json:"database"`
	Query    QueryConfig    `json:"query"`
	Import   ImportConfig   `json:"import"`
	Export   ExportConfig   `json:"export"`
	Logging  LoggingConfig  `json:"logging"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Database        string        `json:"database"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"sslMode"`
	MaxConnections  int           `json:"maxConnections"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime"`
	Timeout         time.Duration `json:"timeout"`

	// UseIAMAuth switches the connection password to a generated DSQL IAM
	// token instead of Password.
	UseIAMAuth bool   `json:"useIAMAuth"`
	AWSRegion  string `json:"awsRegion"`

	TableNames TableNames `json:"tableNames"`
}

// TableNames configures the physical table names used by the repositories.
type TableNames struct {
	FieldDefinitions     string `json:"fieldDefinitions"`
	FieldDefinitionKinds string `json:"fieldDefinitionKinds"`
	FieldChoices         string `json:"fieldChoices"`
	ComputedFields       string `json:"computedFields"`
	ObjectKinds          string `json:"objectKinds"`
	Objects              string `json:"objects"`
}

// DefaultTableNames returns the production table layout.
func DefaultTableNames() TableNames {
	return TableNames{
		FieldDefinitions:     "field_definitions",
		FieldDefinitionKinds: "field_definition_kinds",
		FieldChoices:         "field_choices",
		ComputedFields:       "computed_fields",
		ObjectKinds:          "object_kinds",
		Objects:              "objects",
	}
}

// QueryConfig contains query execution settings
type QueryConfig struct {
	DefaultPageSize int `json:"defaultPageSize"`
	MaxPageSize     int `json:"maxPageSize"`
}

// ImportConfig contains CSV import settings
type ImportConfig struct {
	BatchSize int `json:"batchSize"`
}

// ExportConfig contains CSV export settings
type ExportConfig struct {
	S3Bucket string `json:"s3Bucket"`
	S3Prefix string `json:"s3Prefix"`
	S3Region string `json:"s3Region"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// DefaultConfig returns a configuration with sensible defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "fieldline",
			Username:        "postgres",
			SSLMode:         "disable",
			MaxConnections:  25,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         30 * time.Second,
			TableNames:      DefaultTableNames(),
		},
		Query: QueryConfig{
			DefaultPageSize: 50,
			MaxPageSize:     1000,
		},
		Import: ImportConfig{
			BatchSize: 100,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
