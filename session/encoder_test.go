package session

import (
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodePreservesOrderingPrecision(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC)
	in := Session{
		Token:          "tok",
		Identity:       "alice",
		CreatedAt:      created,
		LastActivityAt: created.Add(time.Minute),
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.CreatedAt.Equal(created) {
		t.Fatalf("expected nanosecond precision, got %v", out.CreatedAt)
	}
}

func TestDecodeRejectsUnsupportedSchemaVersion(t *testing.T) {
	_, err := Decode([]byte(`{"v":99,"token":"t","identity":"a","created_at":1}`))
	if !errors.Is(err, ErrCorruptSession) {
		t.Fatalf("expected ErrCorruptSession, got %v", err)
	}
}

func TestEncodeRequiresTokenAndIdentity(t *testing.T) {
	if _, err := Encode(Session{Identity: "alice"}); err == nil {
		t.Fatal("expected missing token to be rejected")
	}
}

// FuzzSessionDecode feeds arbitrary blobs to Decode. It must never panic and
// anything it accepts must encode again.
func FuzzSessionDecode(f *testing.F) {
	seed, err := Encode(Session{Token: "tok", Identity: "alice", CreatedAt: time.Unix(1700000000, 0)})
	if err == nil {
		f.Add(seed)
		f.Add(seed[:len(seed)/2])
	}
	f.Add([]byte{})
	f.Add([]byte("null"))
	f.Add([]byte(`{"v":1}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		s, err := Decode(data)
		if err != nil {
			return
		}
		if _, err := Encode(s); err != nil {
			t.Fatalf("decoded session failed to encode: %v", err)
		}
	})
}
