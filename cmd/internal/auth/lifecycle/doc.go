// Package lifecycle orchestrates registration, login, refresh rotation,
// logout, password change and account deletion on top of the account store,
// the refresh-session store, the revocation registry, the credential hasher
// and the token issuer.
//
// Every operation is stateless per call and runs its I/O sequentially. The
// only atomicity relied on is the session store's delete-and-check, which
// makes a refresh token single-use under concurrent presentation.
package lifecycle
