package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DetectionType tags the kind of anomaly. The set below is the one the
// engine knows how to re-validate; other values are carried as unknown.
type DetectionType string

// Known detection types.
const (
	Teleport                DetectionType = "Teleport"
	SpeedHack               DetectionType = "SpeedHack"
	HealthRegen             DetectionType = "HealthRegen"
	GodMode                 DetectionType = "GodMode"
	ArmorChange             DetectionType = "ArmorChange"
	WeaponSwitch            DetectionType = "WeaponSwitch"
	VehicleTransition       DetectionType = "VehicleTransition"
	EventSpam               DetectionType = "EventSpam"
	TotalEventSpam          DetectionType = "TotalEventSpam"
	SuspiciousEventSequence DetectionType = "SuspiciousEventSequence"
	ResourceInjection       DetectionType = "ResourceInjection"
	MenuDetected            DetectionType = "MenuDetected"
)

// KnownTypes lists every built-in detection type.
func KnownTypes() []DetectionType {
	return []DetectionType{
		Teleport, SpeedHack, HealthRegen, GodMode, ArmorChange, WeaponSwitch,
		VehicleTransition, EventSpam, TotalEventSpam, SuspiciousEventSequence,
		ResourceInjection, MenuDetected,
	}
}

// Severity grades a detection.
type Severity int

// Severity levels, ordered.
const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by String.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSeverity parses a severity name, case-insensitive.
func ParseSeverity(v string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	}
	return SeverityLow, fmt.Errorf("unknown severity %q", v)
}

// Finding is a classifier verdict on one check. It carries no trust impact;
// the processor decides that.
type Finding struct {
	Type     DetectionType  `json:"type"`
	Severity Severity       `json:"severity"`
	Reason   string         `json:"reason"`
	Detail   map[string]any `json:"detail,omitempty"`
	// Evidence names the server observations the verdict rests on.
	Evidence string `json:"evidence,omitempty"`
}

// EvidenceKey names a piece of server-side evidence: the kind of check and
// the observation times it compared. Findings sharing a key describe one
// anomaly.
func EvidenceKey(kind string, at ...time.Time) string {
	var b strings.Builder
	b.WriteString(kind)
	for i, t := range at {
		if i == 0 {
			b.WriteByte('@')
		} else {
			b.WriteByte('-')
		}
		fmt.Fprintf(&b, "%d", t.UnixNano())
	}
	return b.String()
}

// Detection is a processed anomaly attached to a session's history.
type Detection struct {
	ID              string         `json:"id"`
	PlayerID        int            `json:"player_id"`
	Type            DetectionType  `json:"type"`
	Reason          string         `json:"reason"`
	Detail          map[string]any `json:"detail,omitempty"`
	Severity        Severity       `json:"severity"`
	ClientReported  bool           `json:"client_reported"`
	ServerValidated bool           `json:"server_validated"`
	TrustImpact     float64        `json:"trust_impact"`
	Evidence        string         `json:"evidence,omitempty"`
	At              time.Time      `json:"at"`
}

// NewDetectionID returns a fresh detection identifier.
func NewDetectionID() string {
	return uuid.NewString()
}

// Alert is what the alerting collaborator delivers to operators.
type Alert struct {
	PlayerID   int           `json:"player_id"`
	Type       DetectionType `json:"type,omitempty"`
	Severity   Severity      `json:"severity"`
	Message    string        `json:"message"`
	TrustScore float64       `json:"trust_score"`
	Action     string        `json:"action,omitempty"`
	At         time.Time     `json:"at"`
}
