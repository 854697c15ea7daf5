package broker

import "errors"

var (
	// ErrBadTopicFilter is returned by Trie.Subscribe for a malformed
	// pattern; the broker reports it inline as a SUBACK failure code
	// rather than closing the connection (spec.md §7).
	ErrBadTopicFilter = errors.New("broker: invalid topic filter")

	// ErrProtocolViolation is returned when a connection's first
	// packet is not CONNECT, or a second CONNECT arrives on an
	// already-connected session.
	ErrProtocolViolation = errors.New("broker: protocol violation")
)
