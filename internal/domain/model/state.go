// Package model contains domain models passed between layers.
package model

import (
	"math"
	"time"
)

// Vector3 is a position or velocity in world units.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Length returns the Euclidean norm of v.
func (v Vector3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Distance returns the straight-line distance between v and o.
func (v Vector3) Distance(o Vector3) float64 {
	return Vector3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}.Length()
}

// StateFlags are the boolean movement and life states of a player entity.
type StateFlags struct {
	InVehicle bool `json:"in_vehicle"`
	Falling   bool `json:"falling"`
	Ragdoll   bool `json:"ragdoll"`
	Swimming  bool `json:"swimming"`
	Jumping   bool `json:"jumping"`
	Climbing  bool `json:"climbing"`
	Dead      bool `json:"dead"`
}

// PlayerState is what the game-state boundary reports for one entity.
type PlayerState struct {
	Position  Vector3    `json:"position"`
	Velocity  Vector3    `json:"velocity"`
	Health    float64    `json:"health"`
	MaxHealth float64    `json:"max_health"`
	Armor     float64    `json:"armor"`
	Weapon    string     `json:"weapon"`
	AmmoClip  int        `json:"ammo_clip"`
	Flags     StateFlags `json:"flags"`
}

// Observation is a player state stamped with the time the game server saw it.
type Observation struct {
	State      PlayerState
	ObservedAt time.Time
}

// Snapshot is one timestamped capture of a player's state. Never mutated
// after creation.
type Snapshot struct {
	PlayerState
	Speed      float64   `json:"speed"`
	CapturedAt time.Time `json:"captured_at"`
}

// NewSnapshot derives the speed from the velocity and stamps the observation time.
func NewSnapshot(st PlayerState, at time.Time) *Snapshot {
	return &Snapshot{PlayerState: st, Speed: st.Velocity.Length(), CapturedAt: at}
}

// MetricKind names a derived metric series.
type MetricKind string

// Metric series kept per player.
const (
	MetricHealthChange    MetricKind = "health_change"
	MetricArmorChange     MetricKind = "armor_change"
	MetricWeaponSwitch    MetricKind = "weapon_switch"
	MetricStateTransition MetricKind = "state_transition"
)

// MetricRecord is one derived measurement from a consecutive snapshot pair.
type MetricRecord struct {
	Delta float64   `json:"delta"`
	Rate  float64   `json:"rate"`
	At    time.Time `json:"at"`
}
