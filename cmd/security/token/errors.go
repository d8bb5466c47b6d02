package token

import "errors"

// Key policy errors. Callers match them with errors.Is.
var (
	ErrHMACKeyMissing  = errors.New("token HMAC key missing")
	ErrHMACKeyTooShort = errors.New("token HMAC key too short")
)
