package repository

import "time"

// PostgresOption configures OpenPostgres.
type PostgresOption func(*postgresConfig)

type postgresConfig struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

func defaultPostgresConfig() postgresConfig {
	return postgresConfig{maxOpen: 10, maxIdle: 5, maxLifetime: 5 * time.Minute}
}

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) PostgresOption {
	return func(c *postgresConfig) {
		if n > 0 {
			c.maxOpen = n
		}
	}
}

// WithMaxIdleConns sets the idle pool size.
func WithMaxIdleConns(n int) PostgresOption {
	return func(c *postgresConfig) {
		if n >= 0 {
			c.maxIdle = n
		}
	}
}

// WithConnMaxLifetime recycles connections older than d.
func WithConnMaxLifetime(d time.Duration) PostgresOption {
	return func(c *postgresConfig) {
		if d > 0 {
			c.maxLifetime = d
		}
	}
}
