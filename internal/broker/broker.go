package broker

import (
	"log"
	"sync"

	"github.com/dsilvera/mqttbroker/internal/metrics"
	"github.com/dsilvera/mqttbroker/internal/mqtt"
	"github.com/dsilvera/mqttbroker/internal/store"
)

// Broker is the central per-shard object: the subscription trie, the
// table of active sessions, and an optional payload cache. Dispatch is
// called from every connection's own goroutine; mu serializes each
// change to the trie and the session table, so one shard behaves as a
// single event loop (spec.md §5).
type Broker struct {
	mu       sync.Mutex
	trie     *Trie
	sessions map[string]*Session // keyed by ClientID

	cache *PayloadCache // nil when the payload cache is disabled
	store store.Store   // nil when no persistence backend is configured
}

// New creates a Broker. cacheEnabled turns on the payload cache
// (spec.md §3 PayloadCache); st may be nil to disable warm-state
// session persistence across reconnects (SPEC_FULL.md §4.5).
func New(cacheEnabled bool, st store.Store) *Broker {
	b := &Broker{
		trie:     NewTrie(),
		sessions: make(map[string]*Session),
		store:    st,
	}
	if cacheEnabled {
		b.cache = NewPayloadCache()
	}
	return b
}

// handleConnect creates or reattaches a session for a CONNECT packet
// and writes the CONNACK. Session identity is the client id: a
// CleanSession=false reconnect with a known client id reattaches to
// that client's existing live session (swapping in the new
// connection) or, failing that, restores subscriptions from the store.
func (b *Broker) handleConnect(conn Connection, cp *mqtt.ConnectPacket) (*Session, error) {
	b.mu.Lock()
	existing, hadLive := b.sessions[cp.ClientID]
	var sess *Session
	sessionPresent := false

	switch {
	case cp.CleanSession:
		if hadLive {
			b.teardownLocked(existing)
		}
		sess = newSession(cp.ClientID, conn)
		sess.CleanSession = true
		if b.store != nil {
			_ = b.store.DeleteSession(cp.ClientID)
		}

	case hadLive:
		existing.mu.Lock()
		existing.Conn = conn
		existing.Connected = true
		existing.CleanSession = false
		existing.mu.Unlock()
		sess = existing
		sessionPresent = true

	default:
		sess = newSession(cp.ClientID, conn)
		sess.CleanSession = false
		if b.store != nil {
			if stored, err := b.store.LoadSession(cp.ClientID); err == nil && stored != nil {
				for _, sub := range stored.Subscriptions {
					if err := b.trie.Subscribe(sub.Topic, sub.QoS, sess); err == nil {
						sess.addSubscription(sub.Topic, sub.QoS)
					}
				}
				sessionPresent = true
			}
		}
	}

	sess.KeepAlive = cp.KeepAlive
	sess.Connected = true
	b.sessions[cp.ClientID] = sess
	b.mu.Unlock()

	metrics.ClientsConnected.Inc()
	metrics.ConnectionsTotal.Inc()
	metrics.MessagesReceived.WithLabelValues("CONNECT").Inc()

	ack := &mqtt.ConnackPacket{SessionPresent: sessionPresent, ReturnCode: mqtt.Accepted}
	data, err := ack.Encode()
	if err != nil {
		return sess, err
	}
	if err := conn.Write(data); err != nil {
		return sess, err
	}
	metrics.MessagesSent.WithLabelValues("CONNACK").Inc()
	return sess, nil
}

// Disconnect tears a session down on an unexpected connection drop
// (spec.md §4.5 "Unexpected close"). Graceful DISCONNECT goes through
// the same path via dispatchDisconnect.
func (b *Broker) Disconnect(session *Session) {
	if session == nil {
		return
	}
	b.mu.Lock()
	b.teardownLocked(session)
	b.mu.Unlock()
	metrics.ClientsConnected.Dec()
}

// teardownLocked removes session's subscriptions from the trie and
// its entry from the session table, persisting a warm-state snapshot
// first when the session is not clean. b.mu must be held.
func (b *Broker) teardownLocked(session *Session) {
	for _, pattern := range session.Patterns() {
		b.trie.Unsubscribe(pattern, session)
		metrics.SubscriptionsActive.Dec()
	}

	if b.store != nil {
		if session.CleanSession {
			_ = b.store.DeleteSession(session.ClientID)
		} else {
			subs := session.Subscriptions()
			snap := &store.Session{
				ClientID:     session.ClientID,
				CleanSession: false,
				Subscriptions: make([]store.Subscription, 0, len(subs)),
			}
			for topic, qos := range subs {
				snap.Subscriptions = append(snap.Subscriptions, store.Subscription{Topic: topic, QoS: qos})
			}
			if err := b.store.SaveSession(session.ClientID, snap); err != nil {
				log.Printf("broker: failed to persist session for %s: %v", session.ClientID, err)
			}
		}
	}

	if cur, ok := b.sessions[session.ClientID]; ok && cur == session {
		delete(b.sessions, session.ClientID)
	}
	session.Connected = false
}
