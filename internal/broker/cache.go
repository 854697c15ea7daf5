package broker

import "sync"

// PayloadCache short-circuits re-encoding a PUBLISH when the same
// topic is republished to multiple subscribers in the same fanout.
// It is keyed by (topic, effective QoS) since the QoS byte is part of
// the encoded bytes; BeginPublish evicts a topic's entries up front so
// that stale bytes from a previous publish on the same topic are never
// served (spec.md §4.5: "overwrite on publish", unbounded entry
// count).
type PayloadCache struct {
	mu      sync.Mutex
	entries map[string]map[byte][]byte
}

// NewPayloadCache returns an empty cache.
func NewPayloadCache() *PayloadCache {
	return &PayloadCache{entries: make(map[string]map[byte][]byte)}
}

// BeginPublish invalidates any cached encodings for topic. Call it
// once per PUBLISH before consulting Get/Put for that topic's fanout.
func (c *PayloadCache) BeginPublish(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, topic)
}

// Get returns the cached encoded bytes for (topic, qos), if present.
func (c *PayloadCache) Get(topic string, qos byte) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byQoS, ok := c.entries[topic]
	if !ok {
		return nil, false
	}
	b, ok := byQoS[qos]
	return b, ok
}

// Put stores the encoded bytes for (topic, qos).
func (c *PayloadCache) Put(topic string, qos byte, encoded []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byQoS, ok := c.entries[topic]
	if !ok {
		byQoS = make(map[byte][]byte)
		c.entries[topic] = byQoS
	}
	byQoS[qos] = encoded
}
