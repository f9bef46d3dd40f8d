package session

import "time"

// Session is one authenticated login. Token is the opaque lookup key handed
// to the client; it carries no information of its own.
type Session struct {
	Token          string
	Identity       string
	CreatedAt      time.Time
	LastActivityAt time.Time
	Metadata       map[string]string
}

// ExpiresAt is CreatedAt plus timeout. Activity never extends it.
func (s Session) ExpiresAt(timeout time.Duration) time.Time {
	return s.CreatedAt.Add(timeout)
}

// Expired reports whether the session is older than timeout at now. A
// session exactly timeout old is still live.
func (s Session) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.CreatedAt) > timeout
}

func (s Session) clone() Session {
	out := s
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
