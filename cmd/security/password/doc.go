// Package password is the credential hasher.
//
// New digests are bcrypt with a fixed work factor (DefaultCost). Verification
// also accepts Argon2id PHC strings so digests imported from older deployments
// keep working. Digests are untrusted input: Verify never fails loudly, it
// reports false for anything it cannot check.
//
// Policy holds the registration complexity rules applied by the HTTP layer.
package password
