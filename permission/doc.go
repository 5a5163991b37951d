// Package permission evaluates string permissions and scopes against the
// grants carried in a token, and expands role names into permission sets.
//
// # Matching
//
// A grant matches a requirement when the strings are equal, when the grant is
// the wildcard "*", or when the grant is a namespace wildcard such as
// "reports:*" and the requirement starts with "reports:".
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import portalauth, jwt, or session.
package permission
