package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnvVarsWithDefault(t *testing.T) {
	t.Setenv("SQL_SERVER", "")
	assert.Equal(t, "localhost", expandEnvVars("${SQL_SERVER:-localhost}"))

	t.Setenv("SQL_SERVER", "warehouse.internal")
	assert.Equal(t, "warehouse.internal", expandEnvVars("${SQL_SERVER:-localhost}"))
}

func TestExpandEnvVarsBracedAndSimple(t *testing.T) {
	t.Setenv("RPC_ANALYTICS_URL", "https://rpc.internal/analytics")
	assert.Equal(t, "https://rpc.internal/analytics/v1", expandEnvVars("${RPC_ANALYTICS_URL}/v1"))
	assert.Equal(t, "https://rpc.internal/analytics", expandEnvVars("$RPC_ANALYTICS_URL"))
}

func TestExpandEnvVarsNoDollarIsNoop(t *testing.T) {
	assert.Equal(t, "plain value", expandEnvVars("plain value"))
}

func TestGetBoolVariants(t *testing.T) {
	t.Setenv("DEMO_MODE", "true")
	assert.True(t, getBool("DEMO_MODE", false))

	t.Setenv("DEMO_MODE", "0")
	assert.False(t, getBool("DEMO_MODE", true))

	t.Setenv("DEMO_MODE", "not-a-bool")
	assert.True(t, getBool("DEMO_MODE", true), "unparseable value falls back to default")
}

func TestGetIntFallback(t *testing.T) {
	t.Setenv("KEEPALIVE_INTERVAL_SECONDS", "")
	assert.Equal(t, 15, getInt("KEEPALIVE_INTERVAL_SECONDS", 15))

	t.Setenv("KEEPALIVE_INTERVAL_SECONDS", "30")
	assert.Equal(t, 30, getInt("KEEPALIVE_INTERVAL_SECONDS", 15))
}

func TestDatabaseConfigDSN(t *testing.T) {
	pg := &DatabaseConfig{Driver: "postgres", Host: "db.internal", Port: 5432, Database: "analytics", Username: "svc", SSLMode: "disable"}
	assert.Equal(t, "host=db.internal port=5432 dbname=analytics user=svc sslmode=disable", pg.DSN())
	assert.Equal(t, "postgres", pg.DriverName())

	sqlite := &DatabaseConfig{Driver: "sqlite", Database: "history.db"}
	assert.Equal(t, "history.db", sqlite.DSN())
	assert.Equal(t, "sqlite3", sqlite.DriverName())

	override := &DatabaseConfig{Driver: "postgres", ConnectionString: "postgres://explicit"}
	assert.Equal(t, "postgres://explicit", override.DSN())
}

func TestDatabaseConfigValidate(t *testing.T) {
	missingDriver := &DatabaseConfig{Database: "x"}
	assert.Error(t, missingDriver.Validate())

	missingHost := &DatabaseConfig{Driver: "mysql", Database: "x"}
	assert.Error(t, missingHost.Validate())

	ok := &DatabaseConfig{Driver: "sqlite", Database: "x.db"}
	assert.NoError(t, ok.Validate())

	connStringOnly := &DatabaseConfig{Driver: "postgres", ConnectionString: "postgres://x"}
	assert.NoError(t, connStringOnly.Validate())
}

func TestSQLDatabaseConfigFromEnvAbsentWhenUnset(t *testing.T) {
	t.Setenv("SQL_CONNECTION_STRING", "")
	t.Setenv("SQL_SERVER", "")
	t.Setenv("SQL_DATABASE", "")
	_, ok := SQLDatabaseConfigFromEnv()
	assert.False(t, ok)
}

func TestSQLDatabaseConfigFromEnvPresent(t *testing.T) {
	t.Setenv("SQL_SERVER", "warehouse.internal")
	t.Setenv("SQL_DATABASE", "sales")
	cfg, ok := SQLDatabaseConfigFromEnv()
	assert.True(t, ok)
	assert.Equal(t, "warehouse.internal", cfg.Host)
	assert.Equal(t, "sales", cfg.Database)
}
