package secure

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// KeyClaim is the token claim holding the payload key
const KeyClaim = "encryption_key"

// KeyExtractor reads the payload decryption key from a session auth token
type KeyExtractor interface {
	ExtractKey(token string) ([]byte, error)
}

// UnverifiedExtractor reads the key claim without checking the signature.
// The token is trusted because it came straight from the issuing backend
// over TLS; use VerifiedExtractor once it crosses another boundary.
type UnverifiedExtractor struct {
	parser *jwt.Parser
}

// NewUnverifiedExtractor creates an UnverifiedExtractor
func NewUnverifiedExtractor() *UnverifiedExtractor {
	return &UnverifiedExtractor{parser: jwt.NewParser()}
}

// ExtractKey returns the raw key material from the token
func (u *UnverifiedExtractor) ExtractKey(token string) ([]byte, error) {
	claims := jwt.MapClaims{}
	if _, _, err := u.parser.ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		return nil, &MissingKeyError{Claim: KeyClaim, Err: fmt.Errorf("parsing token: %w", err)}
	}
	return keyFromClaims(claims)
}

// VerifiedExtractor requires an HMAC signature made with secret
type VerifiedExtractor struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifiedExtractor creates a VerifiedExtractor for HS256/384/512 tokens
func NewVerifiedExtractor(secret []byte) (*VerifiedExtractor, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	return &VerifiedExtractor{
		secret: secret,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})),
	}, nil
}

// ExtractKey verifies the token and returns the raw key material
func (v *VerifiedExtractor) ExtractKey(token string) ([]byte, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(strings.TrimSpace(token), claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, &MissingKeyError{Claim: KeyClaim, Err: fmt.Errorf("verifying token: %w", err)}
	}
	return keyFromClaims(claims)
}

func keyFromClaims(claims jwt.MapClaims) ([]byte, error) {
	raw, ok := claims[KeyClaim]
	if !ok {
		return nil, &MissingKeyError{Claim: KeyClaim}
	}
	key, ok := raw.(string)
	if !ok {
		return nil, &MissingKeyError{Claim: KeyClaim, Err: fmt.Errorf("claim is %T, not a string", raw)}
	}
	if key == "" {
		return nil, &MissingKeyError{Claim: KeyClaim, Err: errors.New("claim is empty")}
	}
	return []byte(key), nil
}
