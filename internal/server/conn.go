package server

import (
	"net"
	"sync"
	"time"

	"github.com/dsilvera/mqttbroker/internal/metrics"
)

// tcpConn adapts a net.Conn to broker.Connection, serializing writes
// and applying the configured write timeout to each one.
type tcpConn struct {
	conn         net.Conn
	mu           sync.Mutex
	writeTimeout time.Duration
}

func newTCPConn(conn net.Conn, writeTimeout time.Duration) *tcpConn {
	return &tcpConn{conn: conn, writeTimeout: writeTimeout}
}

func (t *tcpConn) Write(b []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	n, err := t.conn.Write(b)
	if err != nil {
		return err
	}
	metrics.BytesSent.Add(float64(n))
	return nil
}

func (t *tcpConn) Close() error {
	return t.conn.Close()
}

func (t *tcpConn) RemoteID() string {
	return t.conn.RemoteAddr().String()
}
