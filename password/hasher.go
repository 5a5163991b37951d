package password

import "errors"

// DefaultMaxPasswordBytes bounds the input accepted by the built-in hashers.
const DefaultMaxPasswordBytes = 1024

var (
	// ErrEmptyPassword is returned when hashing an empty secret.
	ErrEmptyPassword = errors.New("password empty")
	// ErrPasswordTooLong is returned when a secret exceeds the hasher's byte limit.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrMalformedHash is returned when a stored hash cannot be decoded.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Hasher is a one-way password hash with a configurable work factor.
// Verify reports a mismatch as (false, nil); errors mean the stored hash or
// the input is unusable.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

func checkInput(password string, limit int) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if len(password) > limit {
		return ErrPasswordTooLong
	}
	return nil
}
