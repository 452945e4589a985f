// Package config defines service configuration structures and loading hooks.
//
// Every threshold has a built-in default. A missing, zero or negative value
// never disables a check: Load restores the default and records the key in
// Config.Fallbacks so the caller can log it once.
package config

import (
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogJSON switches log output to JSON lines.
	LogJSON bool `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	Token       TokenConfig                `koanf:"token"`
	Session     SessionConfig              `koanf:"session"`
	State       StateConfig                `koanf:"state"`
	Network     NetworkConfig              `koanf:"network"`
	Trust       TrustConfig                `koanf:"trust"`
	Detections  map[string]DetectionPolicy `koanf:"detections"`
	GameState   GameStateConfig            `koanf:"gamestate"`
	Persistence PersistenceConfig          `koanf:"persistence"`
	Alerts      AlertConfig                `koanf:"alerts"`
	Enforcement EnforcementConfig          `koanf:"enforcement"`
	Dispatch    DispatchConfig             `koanf:"dispatch"`

	// Fallbacks lists the keys that were absent or invalid and now hold defaults.
	Fallbacks []string `koanf:"-"`
}

// TokenConfig configures the token service.
type TokenConfig struct {
	Secret            string `koanf:"secret"`
	ValidityWindowSec int    `koanf:"validity_window_sec"`
	FutureSkewSec     int    `koanf:"future_skew_sec"`
	ReplayBufferSec   int    `koanf:"replay_buffer_sec"`
	PurgeIntervalSec  int    `koanf:"purge_interval_sec"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	HistoryLimit int `koanf:"history_limit"`
}

// StateConfig configures the state history tracker.
type StateConfig struct {
	HistoryDepth           int     `koanf:"history_depth"`
	MetricDepth            int     `koanf:"metric_depth"`
	SpeedLimit             float64 `koanf:"speed_limit"`
	VehicleSpeedMultiplier float64 `koanf:"vehicle_speed_multiplier"`
	HealthChangeRate       float64 `koanf:"health_change_rate"`
	ArmorChangeRate        float64 `koanf:"armor_change_rate"`
	WeaponSwitchMinMS      int     `koanf:"weapon_switch_min_ms"`
	VehicleTransitionMinMS int     `koanf:"vehicle_transition_min_ms"`
	CheckIntervalMS        int     `koanf:"check_interval_ms"`
	CleanupIntervalSec     int     `koanf:"cleanup_interval_sec"`
}

// NetworkConfig configures the network activity monitor.
type NetworkConfig struct {
	EventSpamLimit     int                 `koanf:"event_spam_limit"`
	PlayerEventLimit   int                 `koanf:"player_event_limit"`
	ResourceEventLimit int                 `koanf:"resource_event_limit"`
	WindowSec          int                 `koanf:"window_sec"`
	RecentDepth        int                 `koanf:"recent_depth"`
	WindowHistory      int                 `koanf:"window_history"`
	AnalyzeIntervalSec int                 `koanf:"analyze_interval_sec"`
	CleanupIntervalSec int                 `koanf:"cleanup_interval_sec"`
	MinPatternMatches  int                 `koanf:"min_pattern_matches"`
	Patterns           map[string][]string `koanf:"patterns"`
}

// TrustConfig holds the default escalation thresholds.
type TrustConfig struct {
	WarnThreshold    float64 `koanf:"warn_threshold"`
	KickThreshold    float64 `koanf:"kick_threshold"`
	BanThreshold     float64 `koanf:"ban_threshold"`
	DefaultImpact    float64 `koanf:"default_impact"`
	BanDurationSec   int     `koanf:"ban_duration_sec"`
	RaycastTimeoutMS int     `koanf:"raycast_timeout_ms"`
}

// DetectionPolicy is the per-type override read from detections.<Type>.
// Zero values inherit the type's default.
type DetectionPolicy struct {
	Disabled bool    `koanf:"disabled"`
	Impact   float64 `koanf:"impact"`
	Warn     float64 `koanf:"warn"`
	Kick     float64 `koanf:"kick"`
	Ban      float64 `koanf:"ban"`
}

// GameStateConfig configures the game-state boundary adapters.
type GameStateConfig struct {
	StaleAfterMS int    `koanf:"stale_after_ms"`
	RaycastURL   string `koanf:"raycast_url"`
}

// PersistenceConfig selects the persistence collaborator.
type PersistenceConfig struct {
	// Driver is one of none, jsonl, postgres.
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
	Path   string `koanf:"path"`
}

// AlertConfig configures alert delivery.
type AlertConfig struct {
	WebhookURL       string            `koanf:"webhook_url"`
	WebhookHeaders   map[string]string `koanf:"webhook_headers"`
	RateLimitPerMin  int               `koanf:"rate_limit_per_min"`
	WebsocketEnabled bool              `koanf:"websocket_enabled"`
}

// EnforcementConfig configures the enforcement collaborator.
type EnforcementConfig struct {
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	KeyPrefix     string `koanf:"key_prefix"`
	Channel       string `koanf:"channel"`
}

// DispatchConfig sizes the fire-and-forget collaborator pipeline.
type DispatchConfig struct {
	QueueSize int `koanf:"queue_size"`
	Workers   int `koanf:"workers"`
}

// New creates a Config holding every default.
func New() *Config {
	return &Config{
		LogLevel: "info",
		Addr:     ":9080",
		Token: TokenConfig{
			ValidityWindowSec: 60,
			FutureSkewSec:     10,
			ReplayBufferSec:   5,
			PurgeIntervalSec:  60,
		},
		Session: SessionConfig{HistoryLimit: 50},
		State: StateConfig{
			HistoryDepth:           10,
			MetricDepth:            20,
			SpeedLimit:             50,
			VehicleSpeedMultiplier: 3,
			HealthChangeRate:       10,
			ArmorChangeRate:        10,
			WeaponSwitchMinMS:      100,
			VehicleTransitionMinMS: 1000,
			CheckIntervalMS:        1000,
			CleanupIntervalSec:     60,
		},
		Network: NetworkConfig{
			EventSpamLimit:     30,
			PlayerEventLimit:   200,
			ResourceEventLimit: 100,
			WindowSec:          60,
			RecentDepth:        10,
			WindowHistory:      5,
			AnalyzeIntervalSec: 30,
			CleanupIntervalSec: 60,
			MinPatternMatches:  3,
		},
		Trust: TrustConfig{
			WarnThreshold:    75,
			KickThreshold:    50,
			BanThreshold:     25,
			DefaultImpact:    10,
			BanDurationSec:   86400,
			RaycastTimeoutMS: 2000,
		},
		Detections: map[string]DetectionPolicy{},
		GameState:  GameStateConfig{StaleAfterMS: 5000},
		Persistence: PersistenceConfig{
			Driver: "none",
			Path:   "sentinel-detections.jsonl",
		},
		Alerts: AlertConfig{RateLimitPerMin: 30, WebsocketEnabled: true},
		Enforcement: EnforcementConfig{
			KeyPrefix: "sentinel:ban:",
			Channel:   "sentinel:enforcement",
		},
		Dispatch: DispatchConfig{QueueSize: 10_000, Workers: 4},
	}
}

// Policy returns the override for a detection type, matched case-insensitively.
func (c *Config) Policy(detectionType string) (DetectionPolicy, bool) {
	p, ok := c.Detections[normalizeKey(detectionType)]
	return p, ok
}

// Seconds converts a whole-second setting.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Millis converts a millisecond setting.
func Millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }
