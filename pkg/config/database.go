package config

import "fmt"

// DatabaseConfig describes a SQL connection for either the SQL tool
// adapter's warehouse or the History Store, supporting postgres, mysql
// and sqlite.
type DatabaseConfig struct {
	Driver           string
	Host             string
	Port             int
	Database         string
	Username         string
	Password         string
	SSLMode          string
	ConnectionString string // when set, overrides the field-built DSN verbatim
	MaxConns         int
	MaxIdle          int
}

// SetDefaults applies sane pool sizes and per-driver defaults.
func (c *DatabaseConfig) SetDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 5
	}
	if c.Port == 0 {
		switch c.Driver {
		case "postgres":
			c.Port = 5432
		case "mysql":
			c.Port = 3306
		}
	}
	if c.Driver == "postgres" && c.SSLMode == "" {
		c.SSLMode = "disable"
	}
}

// Validate checks that the configuration is sufficient to open a pool.
func (c *DatabaseConfig) Validate() error {
	if c.Driver == "" {
		return fmt.Errorf("driver is required")
	}
	valid := map[string]bool{"postgres": true, "mysql": true, "sqlite": true, "sqlite3": true}
	if !valid[c.Driver] {
		return fmt.Errorf("invalid driver %q (valid: postgres, mysql, sqlite)", c.Driver)
	}
	if c.ConnectionString != "" {
		return nil
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Driver != "sqlite" && c.Driver != "sqlite3" && c.Host == "" {
		return fmt.Errorf("host is required for %s", c.Driver)
	}
	return nil
}

// DSN returns the connection string for sql.Open.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	switch c.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s", c.Host, c.Port, c.Database)
		if c.Username != "" {
			dsn += fmt.Sprintf(" user=%s", c.Username)
		}
		if c.Password != "" {
			dsn += fmt.Sprintf(" password=%s", c.Password)
		}
		if c.SSLMode != "" {
			dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
		}
		return dsn
	case "mysql":
		if c.Username != "" {
			return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", c.Username, c.Password, c.Host, c.Port, c.Database)
		}
		return fmt.Sprintf("tcp(%s:%d)/%s", c.Host, c.Port, c.Database)
	case "sqlite", "sqlite3":
		return c.Database
	default:
		return ""
	}
}

// DriverName returns the name registered with database/sql.
func (c *DatabaseConfig) DriverName() string {
	if c.Driver == "sqlite" {
		return "sqlite3"
	}
	return c.Driver
}

// SQLDatabaseConfigFromEnv builds the warehouse DatabaseConfig consumed by
// the SQL tool adapter, per spec.md §6.4: SQL_CONNECTION_STRING takes
// precedence over SQL_SERVER/SQL_DATABASE field assembly.
func SQLDatabaseConfigFromEnv() (*DatabaseConfig, bool) {
	connStr := getString("SQL_CONNECTION_STRING", "")
	server := getString("SQL_SERVER", "")
	database := getString("SQL_DATABASE", "")
	if connStr == "" && server == "" && database == "" {
		return nil, false
	}
	cfg := &DatabaseConfig{
		Driver:           getString("SQL_DRIVER", "postgres"),
		Host:             server,
		Database:         database,
		Username:         getString("SQL_USERNAME", ""),
		Password:         getString("SQL_PASSWORD", ""),
		ConnectionString: connStr,
	}
	cfg.SetDefaults()
	return cfg, true
}

// HistoryDatabaseConfigFromEnv builds the History Store's DatabaseConfig.
// It falls back to a local sqlite file so history works out of the box
// in demo deployments without a warehouse configured.
func HistoryDatabaseConfigFromEnv() *DatabaseConfig {
	cfg := &DatabaseConfig{
		Driver:           getString("HISTORY_DRIVER", "sqlite"),
		Host:             getString("HISTORY_SERVER", ""),
		Database:         getString("HISTORY_DATABASE", "analystd_history.db"),
		Username:         getString("HISTORY_USERNAME", ""),
		Password:         getString("HISTORY_PASSWORD", ""),
		ConnectionString: getString("HISTORY_CONNECTION_STRING", ""),
	}
	cfg.SetDefaults()
	return cfg
}
