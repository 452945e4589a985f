// Package simulate drives a running sentinel instance with scripted players
// and checks that the engine scores them the way their behaviour deserves.
package simulate

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Role describes how a simulated player behaves.
type Role string

const (
	RoleHonest     Role = "honest"
	RoleTeleporter Role = "teleporter"
	RoleSpammer    Role = "spammer"
)

// Config holds the simulation parameters.
type Config struct {
	BaseURL       string        `validate:"required,url"`
	Secret        string        `validate:"required"`
	Players       int           `validate:"gt=0,lte=10000"`
	Teleporters   int           `validate:"gte=0"`
	Spammers      int           `validate:"gte=0"`
	FirstPlayerID int           `validate:"gt=0"`
	Rounds        int           `validate:"gt=1"`
	RoundInterval time.Duration `validate:"gt=0"`
	SpamBurst     int           `validate:"gt=0"`
	Settle        time.Duration `validate:"gte=0"`
	Workers       int           `validate:"gt=0"`
	Timeout       time.Duration `validate:"gt=0"`
	Verbose       bool
}

// DefaultConfig returns parameters suited to a local instance with default
// thresholds.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "http://localhost:9080",
		Players:       20,
		Teleporters:   2,
		Spammers:      2,
		FirstPlayerID: 1,
		Rounds:        5,
		RoundInterval: 1500 * time.Millisecond,
		SpamBurst:     40,
		Settle:        2 * time.Second,
		Workers:       8,
		Timeout:       10 * time.Second,
	}
}

// Validate checks ranges and that the cheating roles fit in the roster.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Teleporters+c.Spammers > c.Players {
		return fmt.Errorf("%w: %d cheaters for %d players", ErrInvalidConfig, c.Teleporters+c.Spammers, c.Players)
	}
	return nil
}

// Stats summarises one run.
type Stats struct {
	Connected      int
	StatesPushed   int
	EventsSent     int
	EventsBlocked  int
	RequestsFailed int
	Flagged        int
	Disconnected   int
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}
