package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CurrentSchemaVersion is written into every encoded session.
const CurrentSchemaVersion = 1

// ErrCorruptSession is returned by Decode for blobs that are not a valid
// encoded session.
var ErrCorruptSession = errors.New("session: corrupt blob")

type wireSession struct {
	Version        int               `json:"v"`
	Token          string            `json:"token"`
	Identity       string            `json:"identity"`
	CreatedAt      int64             `json:"created_at"`
	LastActivityAt int64             `json:"last_activity_at"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Encode serializes sess for the durable mirror. Times are stored with
// nanosecond precision so eviction order survives a restore.
func Encode(sess Session) ([]byte, error) {
	if sess.Token == "" || sess.Identity == "" {
		return nil, errors.New("session: token and identity are required")
	}
	return json.Marshal(wireSession{
		Version:        CurrentSchemaVersion,
		Token:          sess.Token,
		Identity:       sess.Identity,
		CreatedAt:      sess.CreatedAt.UnixNano(),
		LastActivityAt: sess.LastActivityAt.UnixNano(),
		Metadata:       sess.Metadata,
	})
}

// Decode parses a blob written by Encode.
func Decode(data []byte) (Session, error) {
	var w wireSession
	if err := json.Unmarshal(data, &w); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if w.Version != CurrentSchemaVersion {
		return Session{}, fmt.Errorf("%w: unsupported session schema version %d", ErrCorruptSession, w.Version)
	}
	if w.Token == "" || w.Identity == "" || w.CreatedAt <= 0 {
		return Session{}, fmt.Errorf("%w: missing fields", ErrCorruptSession)
	}
	return Session{
		Token:          w.Token,
		Identity:       w.Identity,
		CreatedAt:      time.Unix(0, w.CreatedAt).UTC(),
		LastActivityAt: time.Unix(0, w.LastActivityAt).UTC(),
		Metadata:       w.Metadata,
	}, nil
}
