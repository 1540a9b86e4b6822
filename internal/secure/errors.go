package secure

import "errors"

// ErrInvalidKeyLength is returned when key material does not fit the cipher
var ErrInvalidKeyLength = errors.New("invalid key length")

// MissingKeyError is returned when the auth token carries no usable key claim
type MissingKeyError struct {
	Claim string
	Err   error
}

func (e *MissingKeyError) Error() string {
	if e.Err != nil {
		return "missing " + e.Claim + " claim: " + e.Err.Error()
	}
	return "missing " + e.Claim + " claim"
}

func (e *MissingKeyError) Unwrap() error {
	return e.Err
}

// DecryptionError covers cipher failures and undecodable plaintext.
// A wrong key, corrupted ciphertext or mode mismatch all end up here.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return "decrypting scan payload: " + e.Err.Error()
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}
