package cache

import (
	"crypto/tls"
	"time"

	"github.com/compozy/blockgate/pkg/config"
	"github.com/redis/go-redis/v9"
)

const defaultPingTimeout = 5 * time.Second

type Config struct {
	URL          string
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	TLSEnabled   bool
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	PingTimeout  time.Duration
}

// FromAppConfig maps the application redis section. It returns nil when
// neither a URL nor an address is configured.
func FromAppConfig(cfg *config.RedisConfig) *Config {
	if cfg == nil || (cfg.URL == "" && cfg.Addr == "") {
		return nil
	}
	return &Config{
		URL:          cfg.URL,
		Addr:         cfg.Addr,
		Password:     cfg.Password.Value(),
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		TLSEnabled:   cfg.TLSEnabled,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		PingTimeout:  cfg.PingTimeout,
	}
}

// options resolves client options. A URL wins over Addr, and explicit
// fields override what the URL carries.
func (c *Config) options() (*redis.Options, error) {
	opt := &redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}
	if c.URL != "" {
		parsed, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, err
		}
		opt = parsed
		if c.Password != "" {
			opt.Password = c.Password
		}
	}
	setIfPositive(&opt.PoolSize, c.PoolSize)
	setIfPositive(&opt.DialTimeout, c.DialTimeout)
	setIfPositive(&opt.ReadTimeout, c.ReadTimeout)
	setIfPositive(&opt.WriteTimeout, c.WriteTimeout)
	if c.MaxRetries != 0 {
		opt.MaxRetries = c.MaxRetries
	}
	if c.TLSEnabled && opt.TLSConfig == nil {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opt, nil
}

func (c *Config) pingTimeout() time.Duration {
	if c.PingTimeout > 0 {
		return c.PingTimeout
	}
	return defaultPingTimeout
}

func setIfPositive[T int | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}
