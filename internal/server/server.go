package server

import (
	"fmt"
	"hash/fnv"
	"log"
	"net"
	"sync"
	"time"

	"github.com/dsilvera/mqttbroker/internal/broker"
	"github.com/dsilvera/mqttbroker/internal/config"
	"github.com/dsilvera/mqttbroker/internal/metrics"
	"github.com/dsilvera/mqttbroker/internal/mqtt"
	"github.com/dsilvera/mqttbroker/internal/store"
)

// Server accepts MQTT connections and dispatches their messages onto
// one of several broker shards, hashed by connection remote address
// (spec.md §5: "Implementations may shard brokers by connection hash
// for multi-core scaling"). The connection accept loop, framing, and
// graceful shutdown live here; session state, routing and dispatch are
// entirely internal/broker's concern.
type Server struct {
	config   *config.Config
	listener net.Listener
	shards   []*broker.Broker

	mu      sync.Mutex
	running bool
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
}

// New creates a server bound to the default host/port, with a single
// broker shard and no persistence backend. Kept for callers (and
// tests) that only need a minimal broker instance.
func New() (*Server, error) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:             "127.0.0.1",
			Port:             1883,
			WriteTimeout:     10 * time.Second,
			ReadTimeout:      30 * time.Second,
			StreamBufferSize: 1024,
			Shards:           1,
		},
	}
	return NewWithConfig(cfg, nil)
}

// NewWithConfig creates a server from a loaded configuration and an
// optional persistence backend (nil disables warm-state session
// persistence).
func NewWithConfig(cfg *config.Config, st store.Store) (*Server, error) {
	shardCount := cfg.Server.Shards
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([]*broker.Broker, shardCount)
	for i := range shards {
		shards[i] = broker.New(cfg.Limits.PayloadCacheEnabled, st)
	}
	return &Server{
		config: cfg,
		shards: shards,
		conns:  make(map[net.Conn]struct{}),
	}, nil
}

// Start begins listening for MQTT connections. It blocks until Stop
// is called or the listener fails.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}
	s.listener = listener

	log.Printf("MQTT broker listening on %s (%d shard(s))", addr, len(s.shards))

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if !running {
				return nil
			}
			log.Printf("Error accepting connection: %v", err)
			continue
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// Stop gracefully shuts down the server: the acceptor stops taking new
// connections and all open connections are closed (spec.md §6).
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false

	var listenErr error
	if s.listener != nil {
		listenErr = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if listenErr != nil {
		return fmt.Errorf("error closing listener: %w", listenErr)
	}
	return nil
}

func (s *Server) shardFor(key string) *broker.Broker {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[int(h.Sum32())%len(s.shards)]
}

// handleConnection owns one connection's read loop: it feeds raw bytes
// into a framing Stream, decodes each whole packet, and dispatches it
// onto the connection's shard. Only this goroutine ever advances the
// Stream (spec.md §4.3: single-reader).
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	tc := newTCPConn(conn, s.config.Server.WriteTimeout)
	shard := s.shardFor(conn.RemoteAddr().String())
	stream := mqtt.NewStream(s.config.Server.StreamBufferSize)

	var session *broker.Session
	graceful := false
	readBuf := make([]byte, 4096)

readLoop:
	for {
		if s.config.Server.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.config.Server.ReadTimeout))
		}
		n, readErr := conn.Read(readBuf)
		if n > 0 {
			metrics.BytesReceived.Add(float64(n))
			if pushErr := stream.Push(readBuf[:n]); pushErr != nil {
				log.Printf("server: %s: %v", tc.RemoteID(), pushErr)
				break readLoop
			}
		}

		for {
			raw, ok := stream.Next()
			if !ok {
				break
			}
			msg, decodeErr := mqtt.Decode(raw)
			if decodeErr != nil {
				if decodeErr == mqtt.ErrUnknownPacketType {
					log.Printf("server: %s: dropping unhandled packet", tc.RemoteID())
					continue
				}
				log.Printf("server: %s: malformed packet: %v", tc.RemoteID(), decodeErr)
				break readLoop
			}

			next, dispatchErr := shard.Dispatch(tc, session, msg)
			if dispatchErr != nil {
				log.Printf("server: %s: %v", tc.RemoteID(), dispatchErr)
				break readLoop
			}
			session = next

			if _, isDisconnect := msg.(*mqtt.DisconnectPacket); isDisconnect {
				// dispatchDisconnect already tore the session down;
				// the trailing shard.Disconnect below must not run
				// again for this exit path.
				graceful = true
				break readLoop
			}
		}

		if stream.Err() != nil {
			log.Printf("server: %s: %v", tc.RemoteID(), stream.Err())
			break readLoop
		}
		if readErr != nil {
			break readLoop
		}
	}

	if session != nil && !graceful {
		shard.Disconnect(session)
	}
}
