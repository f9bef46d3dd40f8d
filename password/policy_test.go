package password

import (
	"reflect"
	"testing"
)

func newPolicy(t *testing.T) *Policy {
	t.Helper()
	p, err := NewPolicy(PolicyConfig{})
	if err != nil {
		t.Fatalf("NewPolicy error: %v", err)
	}
	return p
}

func TestAssess(t *testing.T) {
	p := newPolicy(t)

	tests := []struct {
		name     string
		password string
		want     Assessment
	}{
		{
			name:     "strong",
			password: "Tr0ub4dor&3XQ!",
			want:     Assessment{true, true, true, true, true},
		},
		{
			name:     "common and simple",
			password: "password123",
			want:     Assessment{LengthOK: false, ComplexityOK: false, NoCommonPatterns: false, NoPersonalInfo: true},
		},
		{
			name:     "three classes is enough",
			password: "Horsebattery9staple",
			want:     Assessment{true, true, true, true, true},
		},
		{
			name:     "two classes",
			password: "horsebatterystaple",
			want:     Assessment{LengthOK: true, ComplexityOK: false, NoCommonPatterns: true, NoPersonalInfo: true},
		},
		{
			name:     "generic personal word",
			password: "MyEmailIsGr8!now",
			want:     Assessment{LengthOK: true, ComplexityOK: true, NoCommonPatterns: true, NoPersonalInfo: false},
		},
		{
			name:     "denylist is case insensitive",
			password: "QWERTYuiop#99x",
			want:     Assessment{LengthOK: true, ComplexityOK: true, NoCommonPatterns: false, NoPersonalInfo: true},
		},
		{
			name:     "empty",
			password: "",
			want:     Assessment{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Assess(tt.password)
			if got != tt.want {
				t.Fatalf("Assess(%q) = %+v, want %+v", tt.password, got, tt.want)
			}
		})
	}
}

func TestAssessLengthCountsCharacters(t *testing.T) {
	p := newPolicy(t)

	// 11 runes, more than 12 bytes.
	if p.Assess("Ünïcödé#9xy").LengthOK {
		t.Fatal("expected 11 characters to fail the length check")
	}
	if !p.Assess("Ünïcödé#9xyz").LengthOK {
		t.Fatal("expected 12 characters to pass the length check")
	}
}

func TestAssessForProfile(t *testing.T) {
	p := newPolicy(t)
	profile := Profile{
		Username:  "jdoe",
		Name:      "Jonathan Doe",
		Email:     "jon.doe@example.com",
		Phone:     "+1 (555) 010-9999",
		Birthdate: "1990-07-14",
	}

	base := "Tr0ub4dor&3XQ!"
	if got := p.AssessFor(base, profile); !got.Overall {
		t.Fatalf("expected unrelated password to pass, got %+v", got)
	}

	for _, pw := range []string{
		"Xx!JDOE4everyday",
		"Jonathan#Rules22",
		"Jon.doe!Secure77",
		"Born19900714!Zz",
		"Sunny1990!beach",
		"Call15550109999!a",
	} {
		got := p.AssessFor(pw, profile)
		if got.NoPersonalInfo || got.Overall {
			t.Fatalf("expected %q to be rejected as personal info, got %+v", pw, got)
		}
		if p.Assess(pw).NoPersonalInfo != true {
			t.Fatalf("generic check should not flag %q", pw)
		}
	}
}

func TestFeedback(t *testing.T) {
	p := newPolicy(t)

	if msgs := p.Feedback(p.Assess("Tr0ub4dor&3XQ!")); len(msgs) != 0 {
		t.Fatalf("expected no feedback for a strong password, got %v", msgs)
	}

	got := p.Feedback(p.Assess("password123"))
	want := []string{FeedbackLength, FeedbackComplexity, FeedbackCommonPatterns}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Feedback = %v, want %v", got, want)
	}

	got = p.Feedback(p.Assess(""))
	if len(got) != 4 {
		t.Fatalf("expected every message for an empty password, got %v", got)
	}
}

func TestNewPolicyRejectsInvalidConfig(t *testing.T) {
	if _, err := NewPolicy(PolicyConfig{MinClasses: 5}); err == nil {
		t.Fatal("expected min classes above 4 to be rejected")
	}
	if _, err := NewPolicy(PolicyConfig{MinLength: -1}); err == nil {
		t.Fatal("expected negative min length to be rejected")
	}
}
