// Package token produces opaque refresh tokens, their storage digests and
// access-token identifiers.
//
// Raw refresh tokens are handed to clients once and never stored. Servers keep
// only Digest(raw), a deterministic 64-char hex value used as the lookup key:
//   - SHA-256(raw) when no digest key is configured.
//   - HMAC-SHA256(raw, key) when a key is configured (recommended in production).
package token
