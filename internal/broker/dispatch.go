package broker

import (
	"log"

	"github.com/dsilvera/mqttbroker/internal/metrics"
	"github.com/dsilvera/mqttbroker/internal/mqtt"
)

// Dispatch is the single polymorphic entry point for an inbound
// message, matching on its concrete type (spec.md §9's preferred
// tagged-variant dispatch over a virtual handle method). session is
// nil until CONNECT succeeds; the caller (internal/server) should
// store the returned *Session and pass it back in on the next call.
// A non-nil error means the caller must close the connection with no
// response (spec.md §7).
func (b *Broker) Dispatch(conn Connection, session *Session, msg mqtt.Message) (*Session, error) {
	if cp, ok := msg.(*mqtt.ConnectPacket); ok {
		if session != nil {
			return session, ErrProtocolViolation
		}
		return b.handleConnect(conn, cp)
	}

	if session == nil {
		return nil, ErrProtocolViolation
	}

	switch m := msg.(type) {
	case *mqtt.PublishPacket:
		b.mu.Lock()
		b.dispatchPublish(session, m)
		b.mu.Unlock()
	case *mqtt.PubackPacket:
		// No persistent in-flight store (spec.md §1 Non-goals) — the
		// broker has nothing to reconcile on receipt.
	case *mqtt.SubscribePacket:
		b.mu.Lock()
		b.dispatchSubscribe(session, m)
		b.mu.Unlock()
	case *mqtt.UnsubscribePacket:
		b.mu.Lock()
		b.dispatchUnsubscribe(session, m)
		b.mu.Unlock()
	case *mqtt.PingreqPacket:
		b.dispatchPingreq(session)
	case *mqtt.DisconnectPacket:
		b.dispatchDisconnect(session)
	}
	return session, nil
}

func (b *Broker) dispatchPublish(session *Session, pub *mqtt.PublishPacket) {
	metrics.MessagesReceived.WithLabelValues("PUBLISH").Inc()

	if b.cache != nil {
		b.cache.BeginPublish(pub.Topic)
	}

	for _, match := range b.trie.Publish(pub.Topic) {
		qos := pub.QoS
		if match.QoS < qos {
			qos = match.QoS
		}

		data := b.encodeOutboundPublish(pub, qos)
		if data == nil {
			continue
		}
		if err := match.Session.Conn.Write(data); err != nil {
			// Backpressure / dead subscriber: drop delivery for this
			// publish rather than block the broker loop (spec.md §5).
			log.Printf("broker: dropping PUBLISH to %s: %v", match.Session.ClientID, err)
			continue
		}
		metrics.MessagesSent.WithLabelValues("PUBLISH").Inc()
	}

	if pub.QoS == 1 {
		ack := &mqtt.PubackPacket{PacketID: pub.PacketID}
		if data, err := ack.Encode(); err == nil {
			if err := session.Conn.Write(data); err == nil {
				metrics.MessagesSent.WithLabelValues("PUBACK").Inc()
			}
		}
	}
}

// encodeOutboundPublish returns the wire bytes for republishing pub at
// the given effective qos, serving them from the payload cache when
// available (spec.md §4.5) instead of re-encoding for every matched
// subscriber at the same qos. dup and retain are always cleared on
// outbound — this broker does not implement retained messages.
func (b *Broker) encodeOutboundPublish(pub *mqtt.PublishPacket, qos byte) []byte {
	if b.cache != nil {
		if cached, ok := b.cache.Get(pub.Topic, qos); ok {
			metrics.CachePayloadHits.Inc()
			return cached
		}
	}

	out := &mqtt.PublishPacket{
		QoS:      qos,
		Topic:    pub.Topic,
		PacketID: pub.PacketID,
		Payload:  pub.Payload,
	}
	data, err := out.Encode()
	if err != nil {
		log.Printf("broker: failed to encode PUBLISH for %s: %v", pub.Topic, err)
		return nil
	}
	if b.cache != nil {
		b.cache.Put(pub.Topic, qos, data)
	}
	return data
}

func (b *Broker) dispatchSubscribe(session *Session, sub *mqtt.SubscribePacket) {
	metrics.MessagesReceived.WithLabelValues("SUBSCRIBE").Inc()

	codes := make([]byte, len(sub.Filters))
	for i, f := range sub.Filters {
		qos := f.QoS
		if qos > 2 {
			qos = 2
		}
		if err := b.trie.Subscribe(f.Topic, qos, session); err != nil {
			codes[i] = mqtt.SubackFailure
			continue
		}
		session.addSubscription(f.Topic, qos)
		codes[i] = qos
		metrics.SubscriptionsActive.Inc()
	}

	ack := &mqtt.SubackPacket{PacketID: sub.PacketID, ReturnCodes: codes}
	data, err := ack.Encode()
	if err != nil {
		log.Printf("broker: failed to encode SUBACK for %s: %v", session.ClientID, err)
		return
	}
	if err := session.Conn.Write(data); err == nil {
		metrics.MessagesSent.WithLabelValues("SUBACK").Inc()
	}
}

func (b *Broker) dispatchUnsubscribe(session *Session, unsub *mqtt.UnsubscribePacket) {
	metrics.MessagesReceived.WithLabelValues("UNSUBSCRIBE").Inc()

	for _, topic := range unsub.Topics {
		b.trie.Unsubscribe(topic, session)
		session.removeSubscription(topic)
		metrics.SubscriptionsActive.Dec()
	}

	ack := &mqtt.UnsubackPacket{PacketID: unsub.PacketID}
	data, err := ack.Encode()
	if err != nil {
		log.Printf("broker: failed to encode UNSUBACK for %s: %v", session.ClientID, err)
		return
	}
	if err := session.Conn.Write(data); err == nil {
		metrics.MessagesSent.WithLabelValues("UNSUBACK").Inc()
	}
}

func (b *Broker) dispatchPingreq(session *Session) {
	metrics.MessagesReceived.WithLabelValues("PINGREQ").Inc()
	resp := &mqtt.PingrespPacket{}
	data, err := resp.Encode()
	if err != nil {
		return
	}
	if err := session.Conn.Write(data); err == nil {
		metrics.MessagesSent.WithLabelValues("PINGRESP").Inc()
	}
}

func (b *Broker) dispatchDisconnect(session *Session) {
	metrics.MessagesReceived.WithLabelValues("DISCONNECT").Inc()
	b.mu.Lock()
	b.teardownLocked(session)
	b.mu.Unlock()
	metrics.ClientsConnected.Dec()
}
