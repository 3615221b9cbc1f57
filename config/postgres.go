package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Parameter Store names read when running with environment "prod".
const (
	ssmProviderAPIKey = "PRICEFEED_PROVIDER_API_KEY"
	ssmDBHost         = "PRICEFEED_DB_HOST"
	ssmDBUser         = "PRICEFEED_DB_USER"
	ssmDBPassword     = "PRICEFEED_DB_PASSWORD"
)

// PostgresConfig defines the configuration for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN builds a libpq keyword/value connection string for the configured database.
func (cfg *PostgresConfig) DSN() string {
	return cfg.dsn(cfg.DBName)
}

// MaintenanceDSN points at the default "postgres" database, used to create DBName.
func (cfg *PostgresConfig) MaintenanceDSN() string {
	return cfg.dsn("postgres")
}

func (cfg *PostgresConfig) dsn(dbName string) string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, dbName, cfg.SSLMode,
	)

	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}

	return dsn
}

// resolveSecrets replaces credentials with values from AWS SSM Parameter Store.
// A parameter that cannot be read keeps the value from config or env.
func (c *Config) resolveSecrets() {
	if v := getParameterStoreValue(ssmProviderAPIKey, true); v != "" {
		c.Provider.APIKey = v
	}
	if v := getParameterStoreValue(ssmDBHost, true); v != "" {
		c.Postgres.Host = v
	}
	if v := getParameterStoreValue(ssmDBUser, true); v != "" {
		c.Postgres.User = v
	}
	if v := getParameterStoreValue(ssmDBPassword, true); v != "" {
		c.Postgres.Password = v
	}
}

func getParameterStoreValue(parameterName string, decrypt bool) string {
	baseCtx := context.Background()
	ctxWithTimeout, cancel := context.WithTimeout(baseCtx, 5*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctxWithTimeout)
	if err != nil {
		return ""
	}

	client := ssm.NewFromConfig(cfg)

	input := &ssm.GetParameterInput{
		Name:           &parameterName,
		WithDecryption: &decrypt,
	}

	result, err := client.GetParameter(ctxWithTimeout, input)
	if err != nil {
		return ""
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return ""
	}

	return *result.Parameter.Value
}
