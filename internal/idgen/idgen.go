package idgen

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// New returns a UUIDv7 identifier string.
// If UUIDv7 generation fails, it falls back to a random UUIDv4.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

var chatIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)

// ValidateChatID checks a client-supplied chat identifier. Clients may mint
// their own IDs when importing a transcript, so the rules stay permissive:
// alphanumerics and dashes, no leading or trailing dash, max 64 characters.
func ValidateChatID(id string) error {
	if id == "" {
		return fmt.Errorf("chat id is required")
	}
	if len(id) > 64 {
		return fmt.Errorf("chat id too long (max 64 characters)")
	}
	if !chatIDPattern.MatchString(id) {
		return fmt.Errorf("chat id %q is invalid: must match %s", id, chatIDPattern.String())
	}
	return nil
}
