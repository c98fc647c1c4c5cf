// Package auth implements authentication and authorization: Argon2id
// password hashing, access/refresh token issuance and verification,
// identity resolution and the login, refresh, registration and logout
// flows built on top of them.
//
// Access tokens are stateless and cannot be revoked; a user deactivated
// after issuance loses access when the gate reloads the user on the next
// request and on the next refresh. Refresh tokens rotate on every use and
// the exchanged token id is remembered in a UsedTokenSet until expiry.
package auth
