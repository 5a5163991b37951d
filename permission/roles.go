package permission

import (
	"errors"
	"sync"
)

// Roles maps role names to their default permission sets. It is filled during
// initialization, frozen, and then read concurrently.
type Roles struct {
	mu     sync.RWMutex
	roles  map[string][]string
	frozen bool
}

// NewRoles returns an empty, unfrozen role table.
func NewRoles() *Roles {
	return &Roles{roles: make(map[string][]string)}
}

// Register adds a role. Registering the same role twice is an error.
func (r *Roles) Register(role string, permissions []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.New("role table frozen")
	}
	if role == "" {
		return errors.New("role name empty")
	}
	if _, exists := r.roles[role]; exists {
		return errors.New("role already registered")
	}

	r.roles[role] = Normalize(permissions)
	return nil
}

// Freeze rejects further registrations.
func (r *Roles) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Expand returns the role's permissions merged with extra, normalized.
// Unknown roles contribute nothing.
func (r *Roles) Expand(role string, extra []string) []string {
	if r == nil {
		return Normalize(extra)
	}
	r.mu.RLock()
	base := r.roles[role]
	r.mu.RUnlock()

	merged := make([]string, 0, len(base)+len(extra))
	merged = append(merged, base...)
	merged = append(merged, extra...)
	return Normalize(merged)
}
