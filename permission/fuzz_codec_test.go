package permission

import (
	"strings"
	"testing"
)

// FuzzParseRole feeds arbitrary names to the role parser.
// Goal: no panics; accepted names are canonical role names.
func FuzzParseRole(f *testing.F) {
	f.Add("admin")
	f.Add(" Guest ")
	f.Add("ANALYST")
	f.Add("")
	f.Add("root")
	f.Add("USER\x00")

	f.Fuzz(func(t *testing.T, name string) {
		r, ok := ParseRole(name)
		if !ok {
			if r != 0 {
				t.Fatalf("rejected name %q returned role %d", name, r)
			}
			return
		}
		if !r.Valid() {
			t.Fatalf("accepted name %q returned invalid role %d", name, r)
		}
		if r.String() != strings.ToUpper(strings.TrimSpace(name)) {
			t.Fatalf("role %s does not match input %q", r, name)
		}
	})
}

func FuzzParsePermission(f *testing.F) {
	f.Add("view_prediction")
	f.Add("ADMIN_ACCESS")
	f.Add("")
	f.Add("delete everything")

	f.Fuzz(func(t *testing.T, name string) {
		p, ok := ParsePermission(name)
		if !ok {
			return
		}
		if !p.Valid() {
			t.Fatalf("accepted name %q returned invalid permission %d", name, p)
		}
	})
}
