package cryptoengine

import (
	"crypto/ecdh"
	"encoding/binary"

	dErrors "medledger/pkg/domain-errors"
)

const (
	wrapInfo    = "medledger-key-wrap-v1"
	contentInfo = "medledger-content-v1"
)

// WrappedKey is a record key encrypted for one specific recipient. A fresh
// ephemeral keypair is generated per wrap, so two approvals of the same key
// to the same recipient produce unrelated ciphertexts.
type WrappedKey struct {
	EphemeralPublicKey []byte
	IV                 []byte
	Ciphertext         []byte
	MAC                []byte
}

// WrapKey encrypts key for the holder of recipientPub. The ledger stores the
// result as opaque bytes; only the recipient's private key can open it.
func WrapKey(key Key256, recipientPub *ecdh.PublicKey) (WrappedKey, error) {
	ephemeral, err := GenerateKeyPair()
	if err != nil {
		return WrappedKey{}, err
	}
	shared, err := SharedSecret(ephemeral.Private, recipientPub)
	if err != nil {
		return WrappedKey{}, err
	}

	// The ephemeral public key doubles as the HKDF salt: it is unique per
	// wrap and travels with the ciphertext.
	encKey, macKey, err := expandKeys(shared, ephemeral.Public.Bytes(), wrapInfo)
	if err != nil {
		return WrappedKey{}, err
	}

	iv, ciphertext, mac, err := cbcEncrypt(encKey, macKey, key.Bytes())
	if err != nil {
		return WrappedKey{}, err
	}
	return WrappedKey{
		EphemeralPublicKey: ephemeral.Public.Bytes(),
		IV:                 iv,
		Ciphertext:         ciphertext,
		MAC:                mac,
	}, nil
}

// UnwrapKey recovers the record key using the recipient's long-term private
// key. A wrong key fails with CodeDecryptionFailed; it never returns a
// plausible-looking but wrong key.
func UnwrapKey(wrapped WrappedKey, priv *ecdh.PrivateKey) (Key256, error) {
	var key Key256
	ephPub, err := ParsePublicKey(wrapped.EphemeralPublicKey)
	if err != nil {
		return key, dErrors.Wrap(err, dErrors.CodeDecryptionFailed, "malformed ephemeral key")
	}
	shared, err := SharedSecret(priv, ephPub)
	if err != nil {
		return key, dErrors.Wrap(err, dErrors.CodeDecryptionFailed, "ecdh agreement failed")
	}
	encKey, macKey, err := expandKeys(shared, wrapped.EphemeralPublicKey, wrapInfo)
	if err != nil {
		return key, err
	}
	plaintext, err := cbcDecrypt(encKey, macKey, wrapped.IV, wrapped.Ciphertext, wrapped.MAC)
	if err != nil {
		return key, err
	}
	if len(plaintext) != KeySize {
		return key, dErrors.New(dErrors.CodeDecryptionFailed, "unwrapped key has wrong length")
	}
	copy(key[:], plaintext)
	return key, nil
}

// Marshal encodes the wrapped key for ledger storage. Layout:
// [2B ephPub len][ephPub][16B IV][32B MAC][ciphertext].
func (w WrappedKey) Marshal() []byte {
	out := make([]byte, 0, 2+len(w.EphemeralPublicKey)+len(w.IV)+len(w.MAC)+len(w.Ciphertext))
	out = binary.BigEndian.AppendUint16(out, uint16(len(w.EphemeralPublicKey)))
	out = append(out, w.EphemeralPublicKey...)
	out = append(out, w.IV...)
	out = append(out, w.MAC...)
	out = append(out, w.Ciphertext...)
	return out
}

// UnmarshalWrappedKey decodes bytes produced by Marshal.
func UnmarshalWrappedKey(raw []byte) (WrappedKey, error) {
	if len(raw) < 2 {
		return WrappedKey{}, dErrors.New(dErrors.CodeDecryptionFailed, "wrapped key too short")
	}
	ephLen := int(binary.BigEndian.Uint16(raw))
	rest := raw[2:]
	if len(rest) < ephLen+ivSize+macSize+1 {
		return WrappedKey{}, dErrors.New(dErrors.CodeDecryptionFailed, "wrapped key too short")
	}
	w := WrappedKey{
		EphemeralPublicKey: append([]byte(nil), rest[:ephLen]...),
		IV:                 append([]byte(nil), rest[ephLen:ephLen+ivSize]...),
		MAC:                append([]byte(nil), rest[ephLen+ivSize:ephLen+ivSize+macSize]...),
		Ciphertext:         append([]byte(nil), rest[ephLen+ivSize+macSize:]...),
	}
	return w, nil
}
