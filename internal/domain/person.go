package domain

import (
	"strings"
	"time"
)

// Person is a deduplicated identity referenced by ownership grants.
// Identity is the normalized (lower_username, lower_email) pair; a missing
// email is a distinct, stable key per username rather than a wildcard.
type Person struct {
	ID            int64
	Username      string
	Email         string // empty when unknown
	LowerUsername string
	LowerEmail    *string // nil when Email is empty
	CreatedAt     time.Time
}

// NormalizeIdentity lowercases a (username, email) pair for lookups.
// An empty email normalizes to nil.
func NormalizeIdentity(username, email string) (lowerUsername string, lowerEmail *string) {
	lowerUsername = strings.ToLower(strings.TrimSpace(username))
	email = strings.TrimSpace(email)
	if email == "" {
		return lowerUsername, nil
	}
	le := strings.ToLower(email)
	return lowerUsername, &le
}

// NewPerson builds an unsaved Person with normalized lookup fields derived
// from the canonical-case values.
func NewPerson(username, email string) *Person {
	lu, le := NormalizeIdentity(username, email)
	return &Person{
		Username:      strings.TrimSpace(username),
		Email:         strings.TrimSpace(email),
		LowerUsername: lu,
		LowerEmail:    le,
	}
}
