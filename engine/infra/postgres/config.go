package postgres

import (
	"fmt"
	"net/url"
	"time"

	"github.com/compozy/blockgate/pkg/config"
)

// Config holds connection and pool settings. ConnString wins over the
// individual fields when set.
type Config struct {
	ConnString         string
	Host               string
	Port               string
	User               string
	Password           string
	DBName             string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	ConnectTimeout     time.Duration
	PingTimeout        time.Duration
	HealthCheckPeriod  time.Duration
	HealthCheckTimeout time.Duration
}

func ConfigFromApp(cfg *config.DatabaseConfig) *Config {
	return &Config{
		ConnString:   cfg.ConnString,
		Host:         cfg.Host,
		Port:         cfg.Port,
		User:         cfg.User,
		Password:     cfg.Password.Value(),
		DBName:       cfg.DBName,
		SSLMode:      cfg.SSLMode,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	}
}

// DSN returns the connection string used by the pool and by migrations.
func (c *Config) DSN() string {
	if c.ConnString != "" {
		return c.ConnString
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%s", c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}
	return u.String()
}
