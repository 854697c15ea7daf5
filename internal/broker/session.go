package broker

import "sync"

// Session is per-client broker-side state: identity, keep-alive, and
// the set of subscriptions this client owns. Sessions are keyed by
// client id (spec.md §9's session-identity Open Question, resolved in
// SPEC_FULL.md §4.5) so that a reconnect with CleanSession=false can
// be reattached to prior state instead of starting over.
type Session struct {
	mu sync.Mutex

	ClientID     string
	KeepAlive    uint16
	CleanSession bool
	Connected    bool
	Conn         Connection

	subscriptions map[string]byte // topic filter -> granted QoS
}

func newSession(clientID string, conn Connection) *Session {
	return &Session{
		ClientID:      clientID,
		Conn:          conn,
		subscriptions: make(map[string]byte),
	}
}

func (s *Session) addSubscription(pattern string, qos byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[pattern] = qos
}

func (s *Session) removeSubscription(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, pattern)
}

// Subscriptions returns a snapshot of this session's owned (pattern,
// qos) pairs.
func (s *Session) Subscriptions() map[string]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]byte, len(s.subscriptions))
	for k, v := range s.subscriptions {
		out[k] = v
	}
	return out
}

// Patterns returns the topic filters this session currently owns.
func (s *Session) Patterns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subscriptions))
	for k := range s.subscriptions {
		out = append(out, k)
	}
	return out
}
