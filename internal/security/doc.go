// Package security derives a configuration posture report: which defenses
// are active and which settings weaken them.
package security
