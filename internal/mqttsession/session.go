// Package mqttsession implements the per-client session state machine:
// New -> Active -> Closed, keep-alive bookkeeping, will messages, and the
// subscription set a session owns. The session table itself lives under
// the broker's session-table lock (Broker.mu), so Session exposes plain
// fields and unsynchronized methods; the broker serializes all access.
// The topic router is guarded by a separate lock in topic.Table.
package mqttsession

import (
	"time"

	"github.com/nas-panel/panel-server/internal/mqttcodec"
)

// State is a session's position in its New -> Active -> Closed lifecycle.
type State byte

const (
	StateNew State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Will is the message the broker publishes on behalf of a client whose
// connection drops uncleanly.
type Will struct {
	Topic   string
	Payload []byte
	QoS     mqttcodec.QoS
	Retain  bool
}

// Session is one client's connection state. KeepAlive is the value the
// client negotiated in CONNECT; the broker tears the session down once
// 1.5x that interval elapses with no packet from the client (spec.md
// §4.2).
type Session struct {
	ClientID     string
	State        State
	CleanSession bool
	KeepAlive    uint16
	ConnectedAt  time.Time
	LastSeen     time.Time

	Will     *Will
	Username string
	HasAuth  bool

	// Subscriptions maps topic filter to the granted QoS.
	Subscriptions map[string]mqttcodec.QoS
}

// New creates a session in StateNew. The broker transitions it to
// StateActive when it accepts the CONNECT, before queuing the CONNACK.
func New(clientID string, cleanSession bool, keepAlive uint16, will *Will) *Session {
	now := time.Now()
	return &Session{
		ClientID:      clientID,
		State:         StateNew,
		CleanSession:  cleanSession,
		KeepAlive:     keepAlive,
		ConnectedAt:   now,
		LastSeen:      now,
		Will:          will,
		Subscriptions: make(map[string]mqttcodec.QoS),
	}
}

// Activate transitions a StateNew session to StateActive.
func (s *Session) Activate() {
	s.State = StateActive
	s.LastSeen = time.Now()
}

// Close transitions a session to StateClosed. Closed sessions are removed
// from the session table; there is no persistent/resumable session state
// in this broker (spec.md Non-goals).
func (s *Session) Close() {
	s.State = StateClosed
}

// Touch records that a packet was received from the client, resetting the
// keep-alive deadline.
func (s *Session) Touch() {
	s.LastSeen = time.Now()
}

// KeepAliveDeadline returns the instant by which the next client packet
// must arrive, using the 1.5x negotiated keep-alive grace period MQTT
// 3.1.1 specifies. A KeepAlive of 0 disables the deadline (returns the
// zero Time).
func (s *Session) KeepAliveDeadline() time.Time {
	if s.KeepAlive == 0 {
		return time.Time{}
	}
	grace := time.Duration(float64(s.KeepAlive) * 1.5 * float64(time.Second))
	return s.LastSeen.Add(grace)
}

// Expired reports whether the keep-alive deadline has passed as of now.
func (s *Session) Expired(now time.Time) bool {
	deadline := s.KeepAliveDeadline()
	if deadline.IsZero() {
		return false
	}
	return now.After(deadline)
}

// Subscribe records a granted subscription.
func (s *Session) Subscribe(filter string, qos mqttcodec.QoS) {
	s.Subscriptions[filter] = qos
}

// Unsubscribe removes a subscription, reporting whether it existed.
func (s *Session) Unsubscribe(filter string) bool {
	if _, ok := s.Subscriptions[filter]; !ok {
		return false
	}
	delete(s.Subscriptions, filter)
	return true
}
