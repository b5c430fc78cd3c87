// Package urlsign issues and verifies short-lived download tokens for blob
// backends that cannot sign URLs themselves.
package urlsign

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var (
	ErrInvalidToken     = errors.New("invalid token format")
	ErrTokenExpired     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidIssuer    = errors.New("invalid issuer")
)

const Issuer = "transmute"

// Claims name one object and the filename to serve it under.
type Claims struct {
	jwt.Claims
	Bucket   string `json:"bkt"`
	Key      string `json:"key"`
	Filename string `json:"fn,omitempty"`
}

type Signer struct {
	secret    []byte
	clockSkew time.Duration
	now       func() time.Time
}

// New returns an HS256 signer. An empty secret gets a random one, so
// tokens stop verifying when the process restarts.
func New(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate signing secret: %w", err)
		}
	}
	return &Signer{secret: secret, clockSkew: 30 * time.Second, now: time.Now}, nil
}

// Sign issues a token for bucket/key valid for ttl.
func (s *Signer) Sign(bucket, key, filename string, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: s.secret}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}
	now := s.now()
	claims := Claims{
		Claims: jwt.Claims{
			Issuer:   Issuer,
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(ttl)),
		},
		Bucket:   bucket,
		Key:      key,
		Filename: filename,
	}
	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to create JWT: %w", err)
	}
	return token, nil
}

// Verify checks the signature, issuer and expiry of token.
func (s *Signer) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	tok, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{}
	if err := tok.Claims(s.secret, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	err = claims.Claims.ValidateWithLeeway(jwt.Expected{Issuer: Issuer, Time: s.now()}, s.clockSkew)
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrInvalidIssuer):
		return nil, ErrInvalidIssuer
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
