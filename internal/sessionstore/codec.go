// Package sessionstore provides the durable session.Store backings: SQLite
// for a single node and Redis for instances that share sessions.
package sessionstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tonimelisma/irdrive/internal/session"
)

func encodeSession(s *session.Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: encoding session: %w", err)
	}

	return data, nil
}

func decodeSession(data []byte) (*session.Session, error) {
	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("sessionstore: decoding session: %w", err)
	}

	return &s, nil
}

func encodeFlow(f *session.Flow) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: encoding flow: %w", err)
	}

	return data, nil
}

func decodeFlow(data []byte) (*session.Flow, error) {
	var f session.Flow
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("sessionstore: decoding flow: %w", err)
	}

	return &f, nil
}

// unixNano maps a zero time to 0 ("never").
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}
