package handoff

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// ErrInvalidToken is returned when a presented handoff token does not
// verify against the session it claims to belong to.
var ErrInvalidToken = errors.New("handoff: invalid token")

// TokenSigner issues and verifies the bearer token a widget receives
// when it opens a handoff. The token binds tenant, handoff and chat so
// it cannot be replayed against another session.
type TokenSigner struct {
	secret []byte
}

func NewTokenSigner(secret string) *TokenSigner {
	return &TokenSigner{secret: []byte(secret)}
}

func (s *TokenSigner) Sign(tenantID, handoffID, chatID string) string {
	payload := tenantID + ":" + handoffID + ":" + chatID
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + sig
}

// Decode verifies the signature and returns the identifiers the token
// was issued for. Widget endpoints use it to locate the session without
// any other credential.
func (s *TokenSigner) Decode(token string) (tenantID, handoffID, chatID string, err error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return "", "", "", ErrInvalidToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", "", "", ErrInvalidToken
	}
	fields := strings.SplitN(string(raw), ":", 3)
	if len(fields) != 3 {
		return "", "", "", ErrInvalidToken
	}

	expected := s.Sign(fields[0], fields[1], fields[2])
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return "", "", "", ErrInvalidToken
	}
	return fields[0], fields[1], fields[2], nil
}

func (s *TokenSigner) Verify(token, tenantID, handoffID string) error {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return ErrInvalidToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return ErrInvalidToken
	}
	fields := strings.SplitN(string(raw), ":", 3)
	if len(fields) != 3 || fields[0] != tenantID || fields[1] != handoffID {
		return ErrInvalidToken
	}

	expected := s.Sign(fields[0], fields[1], fields[2])
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return ErrInvalidToken
	}
	return nil
}
