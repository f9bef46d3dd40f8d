package internal

import (
	"testing"
)

// FuzzParseSessionID feeds arbitrary strings to the session token parser.
// Valid tokens must round-trip; everything else must fail without panicking.
func FuzzParseSessionID(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("AAAAAAAAAAAAAAAAAAAAAA")
	f.Add("!!!not-base64!!!")
	f.Add("aGVsbG8=")
	if sid, err := NewSessionID(); err == nil {
		f.Add(sid.String())
	}

	f.Fuzz(func(t *testing.T, s string) {
		sid, err := ParseSessionID(s)
		if err != nil {
			return
		}
		if sid.String() != s {
			t.Fatalf("round trip mismatch: %q -> %q", s, sid.String())
		}
	})
}
