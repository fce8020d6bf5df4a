package cryptoengine

import (
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"

	dErrors "medledger/pkg/domain-errors"
)

// KeySize is the symmetric key length in bytes.
const KeySize = 32

// SaltSize is the length of PBKDF2 salts.
const SaltSize = 16

// pbkdf2Iterations is fixed so a patient can re-derive the same record key
// from the same secret and salt on any device.
const pbkdf2Iterations = 4096

// Key256 is a 256-bit symmetric key.
type Key256 [KeySize]byte

// Bytes returns the key as a slice. The caller must not retain it past use.
func (k Key256) Bytes() []byte { return k[:] }

// Zero wipes the key in place. Callers defer this on every exit path so
// plaintext key material does not outlive the flow that needed it.
func (k *Key256) Zero() {
	for i := range k {
		k[i] = 0
	}
}

// NewSalt returns a fresh random salt. Salts are generated per derivation and
// persisted alongside whatever the derived key encrypts; they are never fixed.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeKeyDerivationFailed, "read random salt")
	}
	return salt, nil
}

// DeriveSymmetricKey stretches a user-chosen secret into a record-encryption
// key using PBKDF2-SHA256.
func DeriveSymmetricKey(secret string, salt []byte) (Key256, error) {
	var key Key256
	if secret == "" {
		return key, dErrors.New(dErrors.CodeKeyDerivationFailed, "secret must not be empty")
	}
	if len(salt) != SaltSize {
		return key, dErrors.New(dErrors.CodeKeyDerivationFailed, "salt must be 16 bytes")
	}
	copy(key[:], pbkdf2.Key([]byte(secret), salt, pbkdf2Iterations, KeySize, sha256.New))
	return key, nil
}

// NewRandomKey returns a fresh random 256-bit key.
func NewRandomKey() (Key256, error) {
	var key Key256
	if _, err := rand.Read(key[:]); err != nil {
		return key, dErrors.Wrap(err, dErrors.CodeKeyDerivationFailed, "read random key")
	}
	return key, nil
}
