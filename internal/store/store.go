package store

import "strings"

// IsUniqueViolation reports whether err is a sqlite UNIQUE constraint
// failure. The driver exposes no typed error for this, so the services that
// lean on unique indexes as their authoritative guard match on the message.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
