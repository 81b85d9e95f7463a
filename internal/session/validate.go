package session

import (
	"fmt"

	"github.com/matheus3301/chatsync/internal/config"
)

// ValidateName rejects names that cannot name a session directory.
func ValidateName(name string) error {
	if config.ValidateSessionName(name) != nil {
		return fmt.Errorf("invalid session name %q: use 1-64 characters from a-z, 0-9, '_' and '-'", name)
	}
	return nil
}
