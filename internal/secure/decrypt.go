package secure

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zombor/cardscan/internal/card"
)

// Decryptor turns an encrypted scan payload into a ScanResult
type Decryptor struct {
	cipher Cipher
}

// NewDecryptor creates a Decryptor. A nil cipher uses CBCCipher.
func NewDecryptor(c Cipher) *Decryptor {
	if c == nil {
		c = CBCCipher{}
	}
	return &Decryptor{cipher: c}
}

// NewCipher returns the cipher registered under name: "cbc" or "passphrase"
func NewCipher(name string) (Cipher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cbc":
		return CBCCipher{}, nil
	case "passphrase":
		return PassphraseCipher{}, nil
	default:
		return nil, fmt.Errorf("unknown cipher %q", name)
	}
}

// Decrypt decodes the base64 ciphertext, decrypts it with key and parses
// the JSON result. Every failure is a *DecryptionError.
func (d *Decryptor) Decrypt(ciphertext string, key []byte) (*card.ScanResult, error) {
	data, err := decodeBase64(ciphertext)
	if err != nil {
		return nil, &DecryptionError{Err: fmt.Errorf("decoding ciphertext: %w", err)}
	}

	plaintext, err := d.cipher.Decrypt(data, key)
	if err != nil {
		return nil, &DecryptionError{Err: err}
	}
	defer clear(plaintext) // wipe the decrypted buffer once parsed

	if !utf8.Valid(plaintext) {
		return nil, &DecryptionError{Err: errors.New("plaintext is not valid UTF-8")}
	}

	result, err := card.ParseResult(plaintext)
	if err != nil {
		return nil, &DecryptionError{Err: fmt.Errorf("parsing scan result: %w", err)}
	}
	return result, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, errors.New("empty ciphertext")
	}
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
