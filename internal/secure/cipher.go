package secure

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// Cipher decrypts a raw (already base64-decoded) payload with key material
type Cipher interface {
	Decrypt(data, key []byte) ([]byte, error)
}

// CBCCipher is AES-128-CBC with the IV prepended and PKCS#7 padding.
// Key material may be 16 raw bytes, 32 hex characters or base64 of 16 bytes.
type CBCCipher struct{}

// Decrypt implements Cipher
func (CBCCipher) Decrypt(data, key []byte) ([]byte, error) {
	k, err := AESKey(key)
	if err != nil {
		return nil, err
	}
	if len(data) < 2*aes.BlockSize {
		return nil, errors.New("ciphertext too short")
	}
	return decryptCBC(k, data[:aes.BlockSize], data[aes.BlockSize:])
}

// AESKey decodes key material into a 16-byte AES key
func AESKey(material []byte) ([]byte, error) {
	if len(material) == 16 {
		return material, nil
	}
	if len(material) == 32 {
		if k, err := hex.DecodeString(string(material)); err == nil {
			return k, nil
		}
	}
	if k, err := base64.StdEncoding.DecodeString(string(material)); err == nil && len(k) == 16 {
		return k, nil
	}
	return nil, fmt.Errorf("%w: got %d bytes of key material", ErrInvalidKeyLength, len(material))
}

const saltedPrefix = "Salted__"

// PassphraseCipher reads the OpenSSL "Salted__" envelope produced by
// browser crypto libraries given a string passphrase. Key and IV are
// derived with EVP_BytesToKey (MD5, one round).
type PassphraseCipher struct {
	// KeySize is the derived AES key length in bytes; 0 means 16 (AES-128)
	KeySize int
}

// Decrypt implements Cipher
func (p PassphraseCipher) Decrypt(data, passphrase []byte) ([]byte, error) {
	if len(data) < 16+aes.BlockSize || !bytes.HasPrefix(data, []byte(saltedPrefix)) {
		return nil, errors.New("missing salted envelope")
	}
	keySize := p.KeySize
	if keySize == 0 {
		keySize = 16
	}
	key, iv := EVPBytesToKey(passphrase, data[8:16], keySize, aes.BlockSize)
	return decryptCBC(key, iv, data[16:])
}

// EVPBytesToKey derives key and IV the way OpenSSL's EVP_BytesToKey does with MD5
func EVPBytesToKey(passphrase, salt []byte, keyLen, ivLen int) ([]byte, []byte) {
	var derived, block []byte
	for len(derived) < keyLen+ivLen {
		h := md5.New()
		h.Write(block)
		h.Write(passphrase)
		h.Write(salt)
		block = h.Sum(nil)
		derived = append(derived, block...)
	}
	return derived[:keyLen], derived[keyLen : keyLen+ivLen]
}

func decryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext is not a multiple of the block size")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	out, err := unpad(plaintext)
	if err != nil {
		clear(plaintext)
		return nil, err
	}
	return out, nil
}

func unpad(data []byte) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
