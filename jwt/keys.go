package jwt

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// SigningKey is the closed set of key material a [Manager] signs with:
// [SymmetricKey] (HS256) or [AsymmetricKeyPair] (RS256 or EdDSA).
// The variant is fixed at construction; signing and verification dispatch
// on it instead of on an algorithm string.
type SigningKey interface {
	method() jwt.SigningMethod
	signKey() any
	verifyKey() any
	validate() error
}

// SymmetricKey signs with HMAC-SHA256 using a shared secret.
type SymmetricKey struct {
	Secret []byte
}

const minSecretBytes = 32

func (k SymmetricKey) method() jwt.SigningMethod { return jwt.SigningMethodHS256 }
func (k SymmetricKey) signKey() any              { return k.Secret }
func (k SymmetricKey) verifyKey() any            { return k.Secret }

func (k SymmetricKey) validate() error {
	if len(k.Secret) == 0 {
		return errors.New("hs256 requires a secret")
	}
	if len(k.Secret) < minSecretBytes {
		return errors.New("hs256 secret must be at least 32 bytes")
	}
	return nil
}

// AsymmetricKeyPair signs with a private key and verifies with the matching
// public key. RSA keys select RS256, Ed25519 keys select EdDSA.
type AsymmetricKeyPair struct {
	Private crypto.Signer
	Public  crypto.PublicKey
}

func (k AsymmetricKeyPair) method() jwt.SigningMethod {
	switch k.Private.(type) {
	case *rsa.PrivateKey:
		return jwt.SigningMethodRS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (k AsymmetricKeyPair) signKey() any   { return k.Private }
func (k AsymmetricKeyPair) verifyKey() any { return k.Public }

func (k AsymmetricKeyPair) validate() error {
	if k.Private == nil {
		return errors.New("asymmetric signing requires a private key")
	}
	if k.Public == nil {
		return errors.New("asymmetric signing requires a public key")
	}

	switch priv := k.Private.(type) {
	case *rsa.PrivateKey:
		pub, ok := k.Public.(*rsa.PublicKey)
		if !ok {
			return errors.New("rs256 public key must be *rsa.PublicKey")
		}
		if priv.N.BitLen() < 2048 {
			return errors.New("rs256 requires a key of at least 2048 bits")
		}
		if !priv.PublicKey.Equal(pub) {
			return errors.New("rs256 public key does not match private key")
		}
	case ed25519.PrivateKey:
		pub, ok := k.Public.(ed25519.PublicKey)
		if !ok {
			return errors.New("ed25519 public key must be ed25519.PublicKey")
		}
		if !pub.Equal(priv.Public()) {
			return errors.New("ed25519 public key does not match private key")
		}
	default:
		return errors.New("unsupported asymmetric private key type")
	}

	return nil
}

// ParseKeyPairPEM builds an [AsymmetricKeyPair] from PEM-encoded keys.
// RSA (PKCS#1 or PKCS#8) and Ed25519 (PKCS#8) are accepted.
func ParseKeyPairPEM(privatePEM, publicPEM []byte) (AsymmetricKeyPair, error) {
	if len(privatePEM) == 0 || len(publicPEM) == 0 {
		return AsymmetricKeyPair{}, errors.New("asymmetric signing requires private and public key PEM")
	}

	if priv, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM); err == nil {
		pub, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
		if err != nil {
			return AsymmetricKeyPair{}, errors.New("invalid rsa public key")
		}
		return AsymmetricKeyPair{Private: priv, Public: pub}, nil
	}

	parsed, err := jwt.ParseEdPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return AsymmetricKeyPair{}, errors.New("private key is neither rsa nor ed25519")
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return AsymmetricKeyPair{}, errors.New("invalid ed25519 private key type")
	}

	parsedPub, err := jwt.ParseEdPublicKeyFromPEM(publicPEM)
	if err != nil {
		return AsymmetricKeyPair{}, errors.New("invalid ed25519 public key")
	}
	pub, ok := parsedPub.(ed25519.PublicKey)
	if !ok {
		return AsymmetricKeyPair{}, errors.New("invalid ed25519 public key type")
	}

	return AsymmetricKeyPair{Private: priv, Public: pub}, nil
}

// LoadPrivateKeyPEM builds an [AsymmetricKeyPair] from a PEM-encoded private
// key alone; the public half is derived from it.
func LoadPrivateKeyPEM(privatePEM []byte) (AsymmetricKeyPair, error) {
	if len(privatePEM) == 0 {
		return AsymmetricKeyPair{}, errors.New("asymmetric signing requires private key PEM")
	}

	if priv, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM); err == nil {
		return AsymmetricKeyPair{Private: priv, Public: &priv.PublicKey}, nil
	}

	parsed, err := jwt.ParseEdPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return AsymmetricKeyPair{}, errors.New("private key is neither rsa nor ed25519")
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return AsymmetricKeyPair{}, errors.New("invalid ed25519 private key type")
	}
	return AsymmetricKeyPair{Private: priv, Public: priv.Public()}, nil
}
