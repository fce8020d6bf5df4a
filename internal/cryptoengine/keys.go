// Package cryptoengine implements the key derivation, key agreement, and
// record encryption primitives for the consent-gated sharing protocol. All
// functions are pure and safe for concurrent use; no key material is ever
// retained between calls.
package cryptoengine

import (
	"crypto/ecdh"
	"crypto/rand"

	dErrors "medledger/pkg/domain-errors"
)

// curve is the fixed curve for all long-term and ephemeral keypairs. Both
// sides of an exchange must agree on it, so it is not configurable.
var curve = ecdh.P256()

// KeyPair holds a principal's ECDH keypair. The private key is generated once
// at registration, surfaced to the user exactly once, and never persisted
// server-side.
type KeyPair struct {
	Private *ecdh.PrivateKey
	Public  *ecdh.PublicKey
}

// GenerateKeyPair creates a fresh keypair on the fixed curve.
func GenerateKeyPair() (KeyPair, error) {
	priv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, dErrors.Wrap(err, dErrors.CodeKeyDerivationFailed, "generate keypair")
	}
	return KeyPair{Private: priv, Public: priv.PublicKey()}, nil
}

// ParsePublicKey decodes an uncompressed public key as produced by
// PublicKeyBytes. Registered provider keys pass through the ledger in this
// form.
func ParsePublicKey(raw []byte) (*ecdh.PublicKey, error) {
	pub, err := curve.NewPublicKey(raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeKeyDerivationFailed, "invalid public key")
	}
	return pub, nil
}

// ParsePrivateKey decodes a private key as produced by PrivateKeyBytes.
func ParsePrivateKey(raw []byte) (*ecdh.PrivateKey, error) {
	priv, err := curve.NewPrivateKey(raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeKeyDerivationFailed, "invalid private key")
	}
	return priv, nil
}

// PublicKeyBytes returns the wire encoding of a public key.
func PublicKeyBytes(pub *ecdh.PublicKey) []byte { return pub.Bytes() }

// PrivateKeyBytes returns the wire encoding of a private key.
func PrivateKeyBytes(priv *ecdh.PrivateKey) []byte { return priv.Bytes() }

// SharedSecret computes the ECDH shared secret. It is symmetric:
// SharedSecret(a.Private, b.Public) == SharedSecret(b.Private, a.Public).
func SharedSecret(priv *ecdh.PrivateKey, pub *ecdh.PublicKey) ([]byte, error) {
	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeKeyDerivationFailed, "ecdh agreement failed")
	}
	return secret, nil
}
