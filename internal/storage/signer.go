package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrSignatureInvalid = errors.New("storage: invalid signature")
	ErrSignatureExpired = errors.New("storage: signed url expired")
)

// Signer issues and verifies time-limited URLs for stored objects, so results
// are neither public forever nor gated behind a session on every view.
type Signer struct {
	baseURL string
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewSigner builds a signer that serves keys below baseURL.
func NewSigner(baseURL, secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SignedURL returns a URL for key that stays valid for the signer's TTL.
func (s *Signer) SignedURL(key string) (string, error) {
	cleanKey, err := SanitizeKey(key)
	if err != nil {
		return "", err
	}
	expires := s.now().Add(s.ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.sign(cleanKey, expires))
	return fmt.Sprintf("%s/%s?%s", s.baseURL, escapeKey(cleanKey), q.Encode()), nil
}

// Verify checks the signature and expiry presented for key.
func (s *Signer) Verify(key, expires, sig string) error {
	cleanKey, err := SanitizeKey(key)
	if err != nil {
		return ErrSignatureInvalid
	}
	exp, err := strconv.ParseInt(strings.TrimSpace(expires), 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	expected := s.sign(cleanKey, exp)
	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(sig))) {
		return ErrSignatureInvalid
	}
	if s.now().Unix() > exp {
		return ErrSignatureExpired
	}
	return nil
}

func (s *Signer) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
