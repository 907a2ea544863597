package domain

import "strings"

// System identifies one of the two external directory systems whose
// delegated groups this service tracks.
type System string

const (
	SystemJira       System = "jira"
	SystemConfluence System = "confluence"
)

// Systems lists all supported directory systems.
var Systems = []System{SystemJira, SystemConfluence}

// ParseSystem normalizes and validates a system name.
func ParseSystem(s string) (System, error) {
	switch System(strings.ToLower(strings.TrimSpace(s))) {
	case SystemJira:
		return SystemJira, nil
	case SystemConfluence:
		return SystemConfluence, nil
	default:
		return "", ErrValidation("system must be %q or %q, got %q", SystemJira, SystemConfluence, s)
	}
}
