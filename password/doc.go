// Package password provides pluggable one-way password hashers and a
// stateless password policy validator.
//
// # Hashers
//
// [Argon2] (Argon2id, PHC string output) and [Bcrypt] both satisfy [Hasher].
// Each also offers NeedsUpgrade so callers can re-hash after a successful
// login when the configured work factor has been raised.
//
// # Policy
//
// [Policy.Validate] checks length bounds, required character classes, the
// embedded common-password list and fragments of the account's own user data,
// and returns a coarse strength score alongside the verdict. Password history
// lives in the guard package.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Log plaintext passwords.
//   - Import any other portalauth package.
package password
