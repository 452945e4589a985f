package simulate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/okian/sentinel/internal/domain/session"
)

// Outcome pairs a player with the session view read at the end of a run.
type Outcome struct {
	Player  Player
	Session SessionReply
}

// Verify checks that every cheater lost trust and no honest player did.
func Verify(outcomes []Outcome) error {
	var problems []string
	for _, o := range outcomes {
		lost := o.Session.TrustScore < session.MaxTrust
		switch {
		case o.Player.Cheating() && !lost:
			problems = append(problems, fmt.Sprintf("player %d (%s) kept full trust", o.Player.ID, o.Player.Role))
		case !o.Player.Cheating() && lost:
			problems = append(problems, fmt.Sprintf("player %d (honest) dropped to %.1f", o.Player.ID, o.Session.TrustScore))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%w: %s", ErrVerification, strings.Join(problems, "; "))
}

// Flagged counts outcomes with reduced trust.
func Flagged(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Session.TrustScore < session.MaxTrust {
			n++
		}
	}
	return n
}
