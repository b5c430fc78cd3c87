package blob

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"transmute/urlsign"
)

// FilesPath is the route prefix TokenSigner links point at.
const FilesPath = "/files/"

// TokenSigner gives a backend without native signing URLs of the form
// <base>/files/<bucket>/<key>?token=<jwt>, verified by the HTTP layer.
type TokenSigner struct {
	Store
	signer  *urlsign.Signer
	baseURL string
}

func NewTokenSigner(s Store, signer *urlsign.Signer, baseURL string) *TokenSigner {
	return &TokenSigner{Store: s, signer: signer, baseURL: strings.TrimRight(baseURL, "/")}
}

func (t *TokenSigner) SignedURL(_ context.Context, bucket, key string, ttl time.Duration, filename string) (string, error) {
	token, err := t.signer.Sign(bucket, key, filename, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to sign download token: %w", err)
	}
	return t.baseURL + FilesPath + url.PathEscape(bucket) + "/" + url.PathEscape(key) +
		"?token=" + url.QueryEscape(token), nil
}

// Verify checks token against bucket/key and returns its claims.
func (t *TokenSigner) Verify(token, bucket, key string) (*urlsign.Claims, error) {
	claims, err := t.signer.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Bucket != bucket || claims.Key != key {
		return nil, urlsign.ErrInvalidToken
	}
	return claims, nil
}
