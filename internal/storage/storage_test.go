package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestFileStoreWriteRead(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	key, err := store.Write(context.Background(), "/user-1/./1700000000-enhanced.png", []byte("png"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if key != "user-1/1700000000-enhanced.png" {
		t.Fatalf("key = %q", key)
	}
	data, err := store.Read(context.Background(), key)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if string(data) != "png" {
		t.Fatalf("data = %q", data)
	}
	if _, err := store.Read(context.Background(), "user-1/missing.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read missing err = %v, want ErrNotFound", err)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "  ", "../etc/passwd", "a/../../b", ".."} {
		if _, err := SanitizeKey(key); err == nil {
			t.Fatalf("SanitizeKey(%q) expected error", key)
		}
	}
}

func TestSignerRoundTrip(t *testing.T) {
	s := NewSigner("https://cdn.example.com/v1/files/", "secret", time.Minute)
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	signed, err := s.SignedURL("user 1/1-enhanced.png")
	if err != nil {
		t.Fatalf("SignedURL error: %v", err)
	}
	if !strings.HasPrefix(signed, "https://cdn.example.com/v1/files/user%201/1-enhanced.png?") {
		t.Fatalf("unexpected url: %s", signed)
	}
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if err := s.Verify("user 1/1-enhanced.png", q.Get("expires"), q.Get("sig")); err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if err := s.Verify("user 2/1-enhanced.png", q.Get("expires"), q.Get("sig")); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("Verify other key err = %v, want ErrSignatureInvalid", err)
	}

	now = now.Add(2 * time.Minute)
	if err := s.Verify("user 1/1-enhanced.png", q.Get("expires"), q.Get("sig")); !errors.Is(err, ErrSignatureExpired) {
		t.Fatalf("Verify expired err = %v, want ErrSignatureExpired", err)
	}
}
