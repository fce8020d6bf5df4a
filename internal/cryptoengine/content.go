package cryptoengine

import (
	dErrors "medledger/pkg/domain-errors"
)

const macSize = 32

// EncryptContent encrypts a record payload under the patient's record key.
// The envelope is self-describing: [16B salt][16B IV][32B MAC][ciphertext],
// with a random salt and IV per call, so encrypting the same bytes twice
// yields different output.
//
// The content scheme is a separate HKDF instance from key wrapping: the
// wrapped artifact is the record key itself, so record encryption stays
// decoupled from any particular requester relationship.
func EncryptContent(plaintext []byte, key Key256) ([]byte, error) {
	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}
	encKey, macKey, err := expandKeys(key.Bytes(), salt, contentInfo)
	if err != nil {
		return nil, err
	}
	iv, ciphertext, mac, err := cbcEncrypt(encKey, macKey, plaintext)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, SaltSize+ivSize+macSize+len(ciphertext))
	out = append(out, salt...)
	out = append(out, iv...)
	out = append(out, mac...)
	out = append(out, ciphertext...)
	return out, nil
}

// DecryptContent opens an envelope produced by EncryptContent. Wrong keys and
// tampered envelopes fail with CodeDecryptionFailed.
func DecryptContent(blob []byte, key Key256) ([]byte, error) {
	if len(blob) < SaltSize+ivSize+macSize+1 {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "envelope too short")
	}
	salt := blob[:SaltSize]
	iv := blob[SaltSize : SaltSize+ivSize]
	mac := blob[SaltSize+ivSize : SaltSize+ivSize+macSize]
	ciphertext := blob[SaltSize+ivSize+macSize:]

	encKey, macKey, err := expandKeys(key.Bytes(), salt, contentInfo)
	if err != nil {
		return nil, err
	}
	return cbcDecrypt(encKey, macKey, iv, ciphertext, mac)
}
