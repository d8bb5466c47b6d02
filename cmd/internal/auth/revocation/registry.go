// Package revocation tracks access-token ids that must be refused before
// their natural expiry (logout, password change, account deletion).
//
// Entries live exactly as long as the token they block and are never deleted
// explicitly.
package revocation

import (
	"context"
	"time"
)

// KeyPrefix namespaces revocation entries in shared key-value stores.
const KeyPrefix = "bl:"

// Registry records and checks revoked token ids.
type Registry interface {
	// Revoke blocks tokenID for ttl. A non-positive ttl is a no-op: the token
	// has already expired and would be refused anyway.
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error

	// IsRevoked reports whether tokenID has an unexpired entry.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Key returns the store key for tokenID.
func Key(tokenID string) string {
	return KeyPrefix + tokenID
}
