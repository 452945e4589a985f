package netmonitor

import (
	"slices"
	"strings"
)

// Pattern is a named run of event names that scripted clients produce.
type Pattern struct {
	Name     string
	Sequence []string
}

// DefaultPatterns returns the built-in library.
func DefaultPatterns() map[string][]string {
	return map[string][]string{
		"entity_burst":      {"entityCreated", "entityCreated", "entityCreated"},
		"weapon_give_burst": {"giveWeapon", "giveWeapon"},
		"explosion_burst":   {"explosionEvent", "explosionEvent", "explosionEvent"},
		"task_clear_burst":  {"clearPedTasks", "clearPedTasks"},
		"weapon_swap":       {"removeWeapon", "giveWeapon"},
	}
}

// compilePatterns orders the library by name so scans are deterministic.
func compilePatterns(in map[string][]string) []Pattern {
	out := make([]Pattern, 0, len(in))
	for name, seq := range in {
		name = strings.TrimSpace(name)
		if name == "" || len(seq) == 0 {
			continue
		}
		out = append(out, Pattern{Name: name, Sequence: slices.Clone(seq)})
	}
	slices.SortFunc(out, func(a, b Pattern) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// occurrences counts contiguous matches of seq in events. Matches may overlap.
func occurrences(events, seq []string) int {
	if len(seq) == 0 || len(seq) > len(events) {
		return 0
	}
	n := 0
	for i := 0; i+len(seq) <= len(events); i++ {
		if slices.Equal(events[i:i+len(seq)], seq) {
			n++
		}
	}
	return n
}
