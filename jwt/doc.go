// Package jwt signs and verifies portal bearer tokens.
//
// Key material is a closed variant chosen at construction: [SymmetricKey]
// (HS256) or [AsymmetricKeyPair] (RS256 for RSA keys, EdDSA for Ed25519).
// Verification is split so callers can reject cheaply before touching
// cryptography: [Manager.Decode] reads claims unverified, [Manager.Expired]
// checks the expiry claim, and [Manager.Parse] performs full verification.
//
// # What this package must NOT do
//
//   - Consult blacklists or session state (the Engine does that).
//   - Accept a token signed with an algorithm other than the configured one.
package jwt
