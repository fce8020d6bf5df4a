package cryptoengine

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	dErrors "medledger/pkg/domain-errors"
)

const ivSize = aes.BlockSize

// expandKeys derives independent encryption and MAC keys from input keying
// material via HKDF-SHA256. The info string separates the key-wrapping and
// content-encryption scheme instances.
func expandKeys(ikm, salt []byte, info string) (encKey, macKey [KeySize]byte, err error) {
	r := hkdf.New(sha256.New, ikm, salt, []byte(info))
	if _, err = io.ReadFull(r, encKey[:]); err != nil {
		return encKey, macKey, dErrors.Wrap(err, dErrors.CodeKeyDerivationFailed, "hkdf expand")
	}
	if _, err = io.ReadFull(r, macKey[:]); err != nil {
		return encKey, macKey, dErrors.Wrap(err, dErrors.CodeKeyDerivationFailed, "hkdf expand")
	}
	return encKey, macKey, nil
}

// cbcEncrypt encrypts plaintext under AES-256-CBC with PKCS7 padding and a
// fresh random IV, then authenticates IV and ciphertext with HMAC-SHA256
// (encrypt-then-MAC).
func cbcEncrypt(encKey, macKey [KeySize]byte, plaintext []byte) (iv, ciphertext, mac []byte, err error) {
	block, err := aes.NewCipher(encKey[:])
	if err != nil {
		return nil, nil, nil, dErrors.Wrap(err, dErrors.CodeKeyDerivationFailed, "init cipher")
	}

	iv = make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, dErrors.Wrap(err, dErrors.CodeKeyDerivationFailed, "read random iv")
	}

	padded := pkcs7Pad(plaintext)
	ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	h := hmac.New(sha256.New, macKey[:])
	h.Write(iv)
	h.Write(ciphertext)
	mac = h.Sum(nil)
	return iv, ciphertext, mac, nil
}

// cbcDecrypt verifies the MAC before touching the ciphertext, then decrypts
// and strips padding. Any mismatch fails closed with CodeDecryptionFailed;
// garbled plaintext is never returned as if valid.
func cbcDecrypt(encKey, macKey [KeySize]byte, iv, ciphertext, mac []byte) ([]byte, error) {
	if len(iv) != ivSize || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "malformed ciphertext")
	}

	h := hmac.New(sha256.New, macKey[:])
	h.Write(iv)
	h.Write(ciphertext)
	if !hmac.Equal(h.Sum(nil), mac) {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "authentication failed")
	}

	block, err := aes.NewCipher(encKey[:])
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecryptionFailed, "init cipher")
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte) []byte {
	padLen := aes.BlockSize - len(data)%aes.BlockSize
	return append(data, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "invalid padding")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, dErrors.New(dErrors.CodeDecryptionFailed, "invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}
