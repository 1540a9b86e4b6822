// Package securetest builds encrypted scan payloads and auth tokens for tests.
package securetest

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zombor/cardscan/internal/secure"
)

// SealCBC encrypts plaintext the way CBCCipher expects and base64 encodes it
func SealCBC(plaintext, key []byte) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}
	ct, err := encryptCBC(key, iv, plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(append(iv, ct...)), nil
}

// SealPassphrase produces an OpenSSL "Salted__" envelope with an AES-128 key, base64 encoded
func SealPassphrase(plaintext, passphrase []byte) (string, error) {
	return SealPassphraseKeySize(plaintext, passphrase, 16)
}

// SealPassphraseKeySize is SealPassphrase with a derived key of keySize bytes
func SealPassphraseKeySize(plaintext, passphrase []byte, keySize int) (string, error) {
	salt := make([]byte, 8)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key, iv := secure.EVPBytesToKey(passphrase, salt, keySize, aes.BlockSize)
	ct, err := encryptCBC(key, iv, plaintext)
	if err != nil {
		return "", err
	}
	out := append([]byte("Salted__"), salt...)
	return base64.StdEncoding.EncodeToString(append(out, ct...)), nil
}

// Token returns an HS256 JWT carrying claims
func Token(claims map[string]interface{}, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims)).SignedString(secret)
}

// KeyToken returns a token with the encryption_key claim set to key
func KeyToken(key string, secret []byte) (string, error) {
	return Token(map[string]interface{}{
		secure.KeyClaim: key,
		"scan_id":       "S1",
	}, secret)
}

func encryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	n := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(append([]byte{}, plaintext...), bytes.Repeat([]byte{byte(n)}, n)...)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}
