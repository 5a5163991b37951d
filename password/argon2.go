package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2ID = "argon2id"

// Argon2Params are the Argon2id work factors. Memory is in KiB.
type Argon2Params struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// DefaultArgon2Params returns interactive-login parameters (64 MiB, 3 passes).
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:           64 * 1024,
		Time:             3,
		Parallelism:      2,
		SaltLength:       16,
		KeyLength:        32,
		MaxPasswordBytes: DefaultMaxPasswordBytes,
	}
}

// Validate rejects parameters below the accepted floor.
func (p Argon2Params) Validate() error {
	switch {
	case p.Memory < 8*1024:
		return errors.New("argon2 memory must be >= 8192 KiB")
	case p.Time < 1:
		return errors.New("argon2 time must be >= 1")
	case p.Parallelism < 1:
		return errors.New("argon2 parallelism must be >= 1")
	case p.SaltLength < 16:
		return errors.New("argon2 salt length must be >= 16")
	case p.KeyLength < 16:
		return errors.New("argon2 key length must be >= 16")
	case p.MaxPasswordBytes < 0:
		return errors.New("argon2 max password bytes must be >= 0")
	}
	return nil
}

// Argon2 hashes with Argon2id and encodes results in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Salt and hash use unpadded standard base64.
type Argon2 struct {
	params Argon2Params
}

// NewArgon2 validates params and returns a hasher. A zero MaxPasswordBytes
// selects [DefaultMaxPasswordBytes].
func NewArgon2(params Argon2Params) (*Argon2, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.MaxPasswordBytes == 0 {
		params.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{params: params}, nil
}

// Hash derives a key from password with a fresh random salt.
func (a *Argon2) Hash(password string) (string, error) {
	if err := checkInput(password, a.params.MaxPasswordBytes); err != nil {
		return "", err
	}

	salt := make([]byte, a.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2 salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, a.params.Time, a.params.Memory, a.params.Parallelism, a.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2ID, argon2.Version,
		a.params.Memory, a.params.Time, a.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the key with the parameters stored in encodedHash and
// compares in constant time.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if len(password) > a.params.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}

	stored, err := decodeArgon2(encodedHash)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(password), stored.salt, stored.params.Time, stored.params.Memory, stored.params.Parallelism, uint32(len(stored.key)))
	return subtle.ConstantTimeCompare(key, stored.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker or
// different parameters than this hasher uses.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	stored, err := decodeArgon2(encodedHash)
	if err != nil {
		return false, err
	}
	p := stored.params
	return a.params.Memory > p.Memory ||
		a.params.Time > p.Time ||
		a.params.Parallelism > p.Parallelism ||
		a.params.KeyLength != uint32(len(stored.key)), nil
}

type argon2Hash struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func decodeArgon2(encoded string) (*argon2Hash, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != argon2ID {
		return nil, fmt.Errorf("%w: not an argon2id PHC string", ErrMalformedHash)
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("%w: version", ErrMalformedHash)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported argon2 version %d", ErrMalformedHash, version)
	}

	var out argon2Hash
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &out.params.Memory, &out.params.Time, &out.params.Parallelism); err != nil {
		return nil, fmt.Errorf("%w: parameters", ErrMalformedHash)
	}
	if out.params.Memory < 8*1024 || out.params.Time < 1 || out.params.Parallelism < 1 {
		return nil, fmt.Errorf("%w: parameters below floor", ErrMalformedHash)
	}

	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil || len(out.salt) < 16 {
		return nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil || len(out.key) == 0 {
		return nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}

	return &out, nil
}
