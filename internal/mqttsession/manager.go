package mqttsession

import "fmt"

// ErrAlreadyConnected is returned when a CONNECT arrives for a client ID
// that already has an active connection and the new CONNECT is not
// clean-session: spec.md §7 rejects it with IdentifierRejected rather
// than evicting the existing connection.
var ErrAlreadyConnected = fmt.Errorf("mqttsession: client ID already connected")

// Manager owns the table of live sessions, keyed by client ID. It takes
// no lock of its own: the broker calls Manager's methods with its
// session-table lock (Broker.mu) held. The topic router and retained
// store are guarded by a separate lock in topic.Table, not by Broker.mu.
type Manager struct {
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Register installs sess as the session for its client ID, returning the
// previous session for that ID if one was still present (the broker must
// force-close it, since a client ID may be registered to at most one
// session at a time).
func (m *Manager) Register(sess *Session) *Session {
	prev := m.sessions[sess.ClientID]
	m.sessions[sess.ClientID] = sess
	return prev
}

// Get returns the session for clientID, if any.
func (m *Manager) Get(clientID string) (*Session, bool) {
	sess, ok := m.sessions[clientID]
	return sess, ok
}

// Remove deletes clientID's session from the table. It is a no-op if the
// stored session differs from sess, which guards against a newer
// connection's removal racing a stale cleanup.
func (m *Manager) Remove(clientID string, sess *Session) {
	if current, ok := m.sessions[clientID]; ok && current == sess {
		delete(m.sessions, clientID)
	}
}

// All returns a snapshot slice of every live session. The reaper scans it
// for expired sessions while holding the broker's session-table lock.
func (m *Manager) All() []*Session {
	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return len(m.sessions)
}
