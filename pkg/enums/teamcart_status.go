package enums

import "fmt"

// TeamCartStatus is the lifecycle state of a group cart.
type TeamCartStatus string

const (
	TeamCartStatusOpen      TeamCartStatus = "open"
	TeamCartStatusLocked    TeamCartStatus = "locked"
	TeamCartStatusConverted TeamCartStatus = "converted"
	TeamCartStatusExpired   TeamCartStatus = "expired"
	TeamCartStatusCancelled TeamCartStatus = "cancelled"
)

var validTeamCartStatuses = []TeamCartStatus{
	TeamCartStatusOpen,
	TeamCartStatusLocked,
	TeamCartStatusConverted,
	TeamCartStatusExpired,
	TeamCartStatusCancelled,
}

// String implements fmt.Stringer.
func (s TeamCartStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TeamCartStatus.
func (s TeamCartStatus) IsValid() bool {
	for _, candidate := range validTeamCartStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the cart can no longer change.
func (s TeamCartStatus) IsTerminal() bool {
	switch s {
	case TeamCartStatusConverted, TeamCartStatusExpired, TeamCartStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseTeamCartStatus converts raw input into a TeamCartStatus.
func ParseTeamCartStatus(value string) (TeamCartStatus, error) {
	for _, candidate := range validTeamCartStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid team cart status %q", value)
}
