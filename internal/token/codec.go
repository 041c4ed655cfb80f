package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront-auth/internal/model"
)

// Kind selects which credential a codec operation applies to. Access and
// refresh tokens are signed with independent secrets and lifetimes.
type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
)

type keyset struct {
	secret []byte
	ttl    time.Duration
}

// Codec mints and verifies the signed bearer tokens carried in session
// cookies. Validity is purely cryptographic plus expiry; nothing is
// persisted here.
type Codec struct {
	kinds map[Kind]keyset
}

func NewCodec(accessSecret string, accessTTL time.Duration, refreshSecret string, refreshTTL time.Duration) (*Codec, error) {
	if strings.TrimSpace(accessSecret) == "" || strings.TrimSpace(refreshSecret) == "" {
		return nil, errors.New("token secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}

	return &Codec{
		kinds: map[Kind]keyset{
			Access:  {secret: []byte(accessSecret), ttl: accessTTL},
			Refresh: {secret: []byte(refreshSecret), ttl: refreshTTL},
		},
	}, nil
}

// TTL reports the configured lifetime for a kind; the session issuer uses it
// for cookie max-age and the refresh store TTL.
func (c *Codec) TTL(kind Kind) time.Duration {
	return c.kinds[kind].ttl
}

func (c *Codec) Issue(kind Kind, subjectID string) (string, error) {
	ks, ok := c.kinds[kind]
	if !ok {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}
	if strings.TrimSpace(subjectID) == "" {
		return "", errors.New("subject id is required")
	}

	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   subjectID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ks.ttl)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ks.secret)
}

// Verify checks signature and expiry and returns the subject id.
// An expired token yields model.ErrTokenExpired; any other failure
// (bad signature, malformed, wrong kind's secret) yields
// model.ErrTokenInvalid.
func (c *Codec) Verify(kind Kind, tokenString string) (string, error) {
	ks, ok := c.kinds[kind]
	if !ok {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return ks.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", model.ErrTokenExpired
		}
		return "", model.ErrTokenInvalid
	}

	if !parsed.Valid || claims.Subject == "" {
		return "", model.ErrTokenInvalid
	}

	return claims.Subject, nil
}
