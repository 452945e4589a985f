package simulate

import (
	"github.com/okian/sentinel/internal/domain/model"
)

const (
	walkStep     = 1.0
	teleportJump = 5000.0
	gridSpacing  = 100.0
	spamEvent    = "explosionEvent"
	spamSource   = "sim"
)

var routineEvents = []string{"chatMessage", "playerSpawned", "weaponFired"}

// Player is one scripted participant.
type Player struct {
	ID   int
	Role Role
}

// Roster assigns roles: teleporters first, then spammers, the rest honest.
func Roster(cfg *Config) []Player {
	players := make([]Player, cfg.Players)
	for i := range players {
		role := RoleHonest
		switch {
		case i < cfg.Teleporters:
			role = RoleTeleporter
		case i < cfg.Teleporters+cfg.Spammers:
			role = RoleSpammer
		}
		players[i] = Player{ID: cfg.FirstPlayerID + i, Role: role}
	}
	return players
}

// StateAt returns the player's authoritative state for a round. Everyone
// walks one unit per round; a teleporter jumps across the map on every
// round after the first.
func (p Player) StateAt(round int) model.PlayerState {
	origin := model.Vector3{X: float64(p.ID) * gridSpacing}
	x := origin.X + float64(round)*walkStep
	if p.Role == RoleTeleporter && round > 0 && round%2 == 1 {
		x += teleportJump
	}
	return model.PlayerState{
		Position:  model.Vector3{X: x, Y: origin.Y, Z: origin.Z},
		Health:    100,
		MaxHealth: 100,
		Armor:     50,
		Weapon:    "pistol",
		AmmoClip:  12,
	}
}

// EventsAt returns the events the player sends in a round.
func (p Player) EventsAt(round int, burst int) []string {
	if p.Role == RoleSpammer {
		out := make([]string, burst)
		for i := range out {
			out[i] = spamEvent
		}
		return out
	}
	return []string{routineEvents[(p.ID+round)%len(routineEvents)]}
}

// Cheating reports whether the role should lose trust.
func (p Player) Cheating() bool { return p.Role != RoleHonest }
