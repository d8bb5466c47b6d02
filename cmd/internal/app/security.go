package app

import (
	"errors"
	"fmt"

	"tether/cmd/security/token"
)

// ValidateSecurityConfig enforces the refresh-token digest policy at startup
// and returns the Generator the service must use.
//
// A configured key is always used. With RequireTokenHMAC the key is mandatory.
func ValidateSecurityConfig(cfg Config) (token.Generator, error) {
	if cfg.RequireTokenHMAC && cfg.TokenHMACKey == "" {
		return token.Generator{}, fmt.Errorf("security policy: TETHER_REQUIRE_TOKEN_HMAC=true but TETHER_TOKEN_HMAC_KEY is missing: %w", token.ErrHMACKeyMissing)
	}

	gen, err := token.NewGenerator(cfg.TokenHMACKey)
	if err != nil {
		if errors.Is(err, token.ErrHMACKeyTooShort) {
			return token.Generator{}, errors.New("security policy: TETHER_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		}
		return token.Generator{}, err
	}

	// Extra hard assertion: hashing must be HMAC-enabled under the policy.
	if cfg.RequireTokenHMAC && !gen.HMACEnabled() {
		return token.Generator{}, errors.New("security policy: TETHER_REQUIRE_TOKEN_HMAC=true but token digests are not keyed")
	}
	return gen, nil
}
