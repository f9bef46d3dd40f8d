package password

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMinLength  = 12
	DefaultMinClasses = 3
	DefaultSymbols    = `!@#$%^&*(),.?":{}|<>`

	// Profile values shorter than this are not matched; two-letter
	// initials would reject too many passwords.
	minProfileTokenLen = 3
)

// Feedback messages, one per failed criterion.
const (
	FeedbackLength         = "Password should be at least 12 characters long"
	FeedbackComplexity     = "Include a mix of uppercase, lowercase, numbers, and special characters"
	FeedbackCommonPatterns = "Avoid using common patterns or simple sequences"
	FeedbackPersonalInfo   = "Avoid using personal information in your password"
)

var (
	defaultCommonPatterns = []string{
		"123", "abc", "qwerty", "password", "letmein",
		"admin", "welcome", "login", "111", "000",
	}
	defaultPersonalWords = []string{
		"birthday", "birthdate", "name", "username",
		"email", "phone", "address",
	}
)

// PolicyConfig tunes the strength checks. Empty fields take their defaults.
type PolicyConfig struct {
	MinLength      int      `yaml:"min_length"`
	MinClasses     int      `yaml:"min_classes"`
	Symbols        string   `yaml:"symbols"`
	CommonPatterns []string `yaml:"common_patterns"`
	PersonalWords  []string `yaml:"personal_words"`
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MinLength:      DefaultMinLength,
		MinClasses:     DefaultMinClasses,
		Symbols:        DefaultSymbols,
		CommonPatterns: append([]string(nil), defaultCommonPatterns...),
		PersonalWords:  append([]string(nil), defaultPersonalWords...),
	}
}

// Assessment is the per-criterion result of a strength check. Overall is
// the conjunction of the four criteria.
type Assessment struct {
	LengthOK         bool `json:"length_ok"`
	ComplexityOK     bool `json:"complexity_ok"`
	NoCommonPatterns bool `json:"no_common_patterns"`
	NoPersonalInfo   bool `json:"no_personal_info"`
	Overall          bool `json:"overall"`
}

// Profile carries the account data a password must not contain.
type Profile struct {
	Username  string
	Name      string
	Email     string
	Phone     string
	Address   string
	Birthdate string
}

// Tokens returns the lower-cased fragments of p worth matching against a
// password: whole values, name parts, the e-mail local part, phone and
// birthdate digits, and the birth year.
func (p Profile) Tokens() []string {
	var out []string
	add := func(v string) {
		v = strings.ToLower(strings.TrimSpace(v))
		if utf8.RuneCountInString(v) >= minProfileTokenLen {
			out = append(out, v)
		}
	}

	add(p.Username)
	add(p.Name)
	for _, part := range strings.Fields(p.Name) {
		add(part)
	}
	add(p.Email)
	if at := strings.IndexByte(p.Email, '@'); at > 0 {
		add(p.Email[:at])
	}
	add(digitsOnly(p.Phone))
	for _, part := range strings.FieldsFunc(p.Address, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	}) {
		add(part)
	}
	if d := digitsOnly(p.Birthdate); d != "" {
		add(d)
		if len(d) >= 4 {
			add(d[:4])
		}
	}
	return out
}

// Policy evaluates password strength. Assess never fails; it always returns
// a structured result so callers can render per-criterion feedback.
type Policy struct {
	minLength  int
	minClasses int
	symbols    string
	common     []string
	personal   []string
}

func NewPolicy(cfg PolicyConfig) (*Policy, error) {
	def := DefaultPolicyConfig()
	if cfg.MinLength == 0 {
		cfg.MinLength = def.MinLength
	}
	if cfg.MinClasses == 0 {
		cfg.MinClasses = def.MinClasses
	}
	if cfg.Symbols == "" {
		cfg.Symbols = def.Symbols
	}
	if cfg.CommonPatterns == nil {
		cfg.CommonPatterns = def.CommonPatterns
	}
	if cfg.PersonalWords == nil {
		cfg.PersonalWords = def.PersonalWords
	}

	if cfg.MinLength < 1 {
		return nil, errors.New("password policy min length must be >= 1")
	}
	if cfg.MinClasses < 1 || cfg.MinClasses > 4 {
		return nil, errors.New("password policy min classes must be in [1,4]")
	}

	return &Policy{
		minLength:  cfg.MinLength,
		minClasses: cfg.MinClasses,
		symbols:    cfg.Symbols,
		common:     lowerAll(cfg.CommonPatterns),
		personal:   lowerAll(cfg.PersonalWords),
	}, nil
}

// Assess runs the generic checks. The personal-info criterion only matches
// a fixed wordlist ("email", "name", ...); use AssessFor to compare against
// a real profile. An empty password fails every criterion.
func (p *Policy) Assess(password string) Assessment {
	if password == "" {
		return Assessment{}
	}

	lower := strings.ToLower(password)
	a := Assessment{
		LengthOK:         utf8.RuneCountInString(password) >= p.minLength,
		ComplexityOK:     p.classes(password) >= p.minClasses,
		NoCommonPatterns: !containsAny(lower, p.common),
		NoPersonalInfo:   !containsAny(lower, p.personal),
	}
	a.Overall = a.LengthOK && a.ComplexityOK && a.NoCommonPatterns && a.NoPersonalInfo
	return a
}

// AssessFor is Assess plus a check against the caller's own profile values.
func (p *Policy) AssessFor(password string, profile Profile) Assessment {
	a := p.Assess(password)
	if password == "" {
		return a
	}
	if containsAny(strings.ToLower(password), profile.Tokens()) {
		a.NoPersonalInfo = false
		a.Overall = false
	}
	return a
}

// Feedback returns one remediation message per failed criterion, in a
// stable order. A passing assessment yields no messages.
func (p *Policy) Feedback(a Assessment) []string {
	var out []string
	if !a.LengthOK {
		out = append(out, FeedbackLength)
	}
	if !a.ComplexityOK {
		out = append(out, FeedbackComplexity)
	}
	if !a.NoCommonPatterns {
		out = append(out, FeedbackCommonPatterns)
	}
	if !a.NoPersonalInfo {
		out = append(out, FeedbackPersonalInfo)
	}
	return out
}

func (p *Policy) classes(password string) int {
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(p.symbols, r):
			symbol = true
		}
	}

	n := 0
	for _, ok := range []bool{upper, lower, digit, symbol} {
		if ok {
			n++
		}
	}
	return n
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, strings.ToLower(v))
	}
	return out
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
