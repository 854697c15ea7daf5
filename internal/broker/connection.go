package broker

// Connection is everything the broker requires of a connected peer.
// It never reads from the socket directly — the Connection's own
// client-supplied read path delivers bytes into an internal/mqtt.Stream
// and the result is handed to Dispatch (spec.md §4.6).
type Connection interface {
	// Write sends bytes to the peer, buffered and best-effort in
	// order. A full outbound buffer (spec.md §5 backpressure) should
	// return an error rather than block the broker's event loop.
	Write(b []byte) error

	// Close terminates the connection.
	Close() error

	// RemoteID is a stable identity suitable for use as a map key and
	// for log lines (not necessarily the client id).
	RemoteID() string
}
