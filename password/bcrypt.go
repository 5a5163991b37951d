package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores input beyond 72 bytes; longer secrets are rejected instead
// of silently truncated.
const bcryptMaxBytes = 72

// Bcrypt hashes with bcrypt at a fixed cost.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher. Costs outside bcrypt's accepted range
// are clamped; zero selects bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	switch {
	case cost <= 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Bcrypt{cost: cost}
}

// Cost returns the effective work factor.
func (b *Bcrypt) Cost() int { return b.cost }

func (b *Bcrypt) Hash(password string) (string, error) {
	if err := checkInput(password, bcryptMaxBytes); err != nil {
		return "", err
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	if len(password) > bcryptMaxBytes {
		return false, ErrPasswordTooLong
	}
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}

// NeedsUpgrade reports whether encodedHash used a lower cost.
func (b *Bcrypt) NeedsUpgrade(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	return cost < b.cost, nil
}
