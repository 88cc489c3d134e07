// Package auth manages the authentication token lifecycle for SiteReport.
//
// A login verifies credentials, resolves the user's role graph into a
// permission snapshot and issues an HS256 access/refresh token pair that
// embeds it. Every live refresh token has a record in a SessionStore,
// indexed per user, and is single-use: Refresh revokes it before signing
// the replacement. Revoked token ids are blacklisted until their original
// expiry.
//
// Two SessionStore backends exist. RedisSessionStore is the shared store
// for multi-instance deployments; SQLiteSessionStore serves single-node
// installs. Both keep set membership changes atomic so concurrent logins
// and logouts for one user never lose updates.
//
// Permission lookup failures do not block sign-in. The tokens then carry
// no permissions and LoginResult.PermissionsDegraded is set.
//
// Passwords are argon2id PHC strings. Django pbkdf2_sha256 hashes imported
// from the reporting app are also accepted.
package auth
