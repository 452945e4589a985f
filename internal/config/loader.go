package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "SENTINEL_"
	envFile   = "SENTINEL_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if SENTINEL_CONFIG is set
//  3. env (prefix SENTINEL_, "__" separates nested keys)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// SENTINEL_TOKEN__SECRET -> token.secret, SENTINEL_ADDR -> addr
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		if s == strings.TrimPrefix(envFile, envPrefix) {
			return ""
		}
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch cfg.Persistence.Driver {
	case "none", "jsonl", "postgres":
	default:
		return nil, fmt.Errorf("%w: unknown persistence driver %q", ErrInvalidConfig, cfg.Persistence.Driver)
	}
	if cfg.Persistence.Driver == "postgres" && cfg.Persistence.DSN == "" {
		return nil, fmt.Errorf("%w: persistence.dsn is required for postgres", ErrInvalidConfig)
	}

	cfg.normalize(base)
	return &cfg, nil
}

// normalize replaces non-positive thresholds with defaults and records the keys.
func (c *Config) normalize(d *Config) {
	ints := []struct {
		key string
		v   *int
		def int
	}{
		{"token.validity_window_sec", &c.Token.ValidityWindowSec, d.Token.ValidityWindowSec},
		{"token.future_skew_sec", &c.Token.FutureSkewSec, d.Token.FutureSkewSec},
		{"token.replay_buffer_sec", &c.Token.ReplayBufferSec, d.Token.ReplayBufferSec},
		{"token.purge_interval_sec", &c.Token.PurgeIntervalSec, d.Token.PurgeIntervalSec},
		{"session.history_limit", &c.Session.HistoryLimit, d.Session.HistoryLimit},
		{"state.history_depth", &c.State.HistoryDepth, d.State.HistoryDepth},
		{"state.metric_depth", &c.State.MetricDepth, d.State.MetricDepth},
		{"state.weapon_switch_min_ms", &c.State.WeaponSwitchMinMS, d.State.WeaponSwitchMinMS},
		{"state.vehicle_transition_min_ms", &c.State.VehicleTransitionMinMS, d.State.VehicleTransitionMinMS},
		{"state.check_interval_ms", &c.State.CheckIntervalMS, d.State.CheckIntervalMS},
		{"state.cleanup_interval_sec", &c.State.CleanupIntervalSec, d.State.CleanupIntervalSec},
		{"network.event_spam_limit", &c.Network.EventSpamLimit, d.Network.EventSpamLimit},
		{"network.player_event_limit", &c.Network.PlayerEventLimit, d.Network.PlayerEventLimit},
		{"network.resource_event_limit", &c.Network.ResourceEventLimit, d.Network.ResourceEventLimit},
		{"network.window_sec", &c.Network.WindowSec, d.Network.WindowSec},
		{"network.recent_depth", &c.Network.RecentDepth, d.Network.RecentDepth},
		{"network.window_history", &c.Network.WindowHistory, d.Network.WindowHistory},
		{"network.analyze_interval_sec", &c.Network.AnalyzeIntervalSec, d.Network.AnalyzeIntervalSec},
		{"network.cleanup_interval_sec", &c.Network.CleanupIntervalSec, d.Network.CleanupIntervalSec},
		{"network.min_pattern_matches", &c.Network.MinPatternMatches, d.Network.MinPatternMatches},
		{"trust.ban_duration_sec", &c.Trust.BanDurationSec, d.Trust.BanDurationSec},
		{"trust.raycast_timeout_ms", &c.Trust.RaycastTimeoutMS, d.Trust.RaycastTimeoutMS},
		{"gamestate.stale_after_ms", &c.GameState.StaleAfterMS, d.GameState.StaleAfterMS},
		{"alerts.rate_limit_per_min", &c.Alerts.RateLimitPerMin, d.Alerts.RateLimitPerMin},
		{"dispatch.queue_size", &c.Dispatch.QueueSize, d.Dispatch.QueueSize},
		{"dispatch.workers", &c.Dispatch.Workers, d.Dispatch.Workers},
	}
	for _, f := range ints {
		if *f.v <= 0 {
			*f.v = f.def
			c.Fallbacks = append(c.Fallbacks, f.key)
		}
	}

	floats := []struct {
		key string
		v   *float64
		def float64
	}{
		{"state.speed_limit", &c.State.SpeedLimit, d.State.SpeedLimit},
		{"state.vehicle_speed_multiplier", &c.State.VehicleSpeedMultiplier, d.State.VehicleSpeedMultiplier},
		{"state.health_change_rate", &c.State.HealthChangeRate, d.State.HealthChangeRate},
		{"state.armor_change_rate", &c.State.ArmorChangeRate, d.State.ArmorChangeRate},
		{"trust.default_impact", &c.Trust.DefaultImpact, d.Trust.DefaultImpact},
	}
	for _, f := range floats {
		if *f.v <= 0 {
			*f.v = f.def
			c.Fallbacks = append(c.Fallbacks, f.key)
		}
	}

	t := c.Trust
	if t.BanThreshold < 0 || t.KickThreshold <= t.BanThreshold || t.WarnThreshold <= t.KickThreshold || t.WarnThreshold > 100 {
		c.Trust.WarnThreshold = d.Trust.WarnThreshold
		c.Trust.KickThreshold = d.Trust.KickThreshold
		c.Trust.BanThreshold = d.Trust.BanThreshold
		c.Fallbacks = append(c.Fallbacks, "trust.warn_threshold", "trust.kick_threshold", "trust.ban_threshold")
	}

	if len(c.Detections) > 0 {
		policies := make(map[string]DetectionPolicy, len(c.Detections))
		for name, p := range c.Detections {
			key := normalizeKey(name)
			if !policyOrdered(p, c.Trust) {
				p.Warn, p.Kick, p.Ban = 0, 0, 0
				c.Fallbacks = append(c.Fallbacks, "detections."+key)
			}
			policies[key] = p
		}
		c.Detections = policies
	}
	if c.Enforcement.KeyPrefix == "" {
		c.Enforcement.KeyPrefix = d.Enforcement.KeyPrefix
	}
	if c.Enforcement.Channel == "" {
		c.Enforcement.Channel = d.Enforcement.Channel
	}
}

// policyOrdered checks a per-type override merged over the global thresholds.
func policyOrdered(p DetectionPolicy, t TrustConfig) bool {
	warn, kick, ban := t.WarnThreshold, t.KickThreshold, t.BanThreshold
	if p.Warn > 0 {
		warn = p.Warn
	}
	if p.Kick > 0 {
		kick = p.Kick
	}
	if p.Ban > 0 {
		ban = p.Ban
	}
	return ban >= 0 && kick > ban && warn > kick && warn <= 100
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
