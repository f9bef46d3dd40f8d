package internal

import (
	"strings"
	"testing"
)

func TestSessionIDRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	s := sid.String()
	if len(s) != 22 {
		t.Fatalf("expected 22 char token, got %d (%q)", len(s), s)
	}
	parsed, err := ParseSessionID(s)
	if err != nil {
		t.Fatalf("ParseSessionID: %v", err)
	}
	if parsed != sid {
		t.Fatal("parsed session id differs from original")
	}
	if _, err := ParseSessionID("c2hvcnQ"); err == nil {
		t.Fatal("expected short id to be rejected")
	}
}

func TestRandomBase32(t *testing.T) {
	s, err := RandomBase32(20)
	if err != nil {
		t.Fatalf("RandomBase32: %v", err)
	}
	if len(s) != 32 {
		t.Fatalf("expected 32 chars, got %d", len(s))
	}
	if strings.ContainsAny(s, "=abcdefghijklmnopqrstuvwxyz") {
		t.Fatalf("unexpected characters in %q", s)
	}
	raw, err := DecodeBase32(strings.ToLower(s))
	if err != nil {
		t.Fatalf("DecodeBase32: %v", err)
	}
	if len(raw) != 20 {
		t.Fatalf("expected 20 bytes, got %d", len(raw))
	}
	if _, err := RandomBase32(0); err == nil {
		t.Fatal("expected zero size to be rejected")
	}
}
