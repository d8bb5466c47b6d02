// Package session issues access tokens and persists refresh sessions.
//
// Access tokens are HS256 JWTs signed with a shared secret and are short-lived.
// Refresh tokens are opaque random strings; only their digest is stored
// (SHA-256, or HMAC-SHA256 when TETHER_TOKEN_HMAC_KEY is set). A refresh
// session is single-use: rotation deletes it before its replacement exists.
package session
