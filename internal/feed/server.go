// Package feed accepts publisher price updates over WebSocket and hands
// them to the oracle daemon as a stream of validated updates.
package feed

import (
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"price-oracle-lab/internal/observability"
)

// ServerConfig configures feed server behavior.
type ServerConfig struct {
	// ReadTimeout is the per-message read deadline.
	ReadTimeout time.Duration
	// WriteTimeout is the per-ack write deadline.
	WriteTimeout time.Duration
	// UpdateBuffer is the capacity of the outgoing update channel.
	UpdateBuffer int
}

// DefaultServerConfig returns default feed server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		UpdateBuffer: 1024,
	}
}

// Server upgrades publisher connections and streams their updates.
type Server struct {
	config   ServerConfig
	upgrader websocket.Upgrader
	updates  chan Update

	connsMu sync.Mutex
	conns   map[*websocket.Conn]struct{}

	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewServer creates a feed server.
func NewServer(config *ServerConfig) *Server {
	cfg := DefaultServerConfig()
	if config != nil {
		cfg = *config
	}
	return &Server{
		config: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		updates: make(chan Update, cfg.UpdateBuffer),
		conns:   make(map[*websocket.Conn]struct{}),
		done:    make(chan struct{}),
	}
}

// Updates returns the stream of validated publisher updates. The channel is
// closed when the server shuts down.
func (s *Server) Updates() <-chan Update {
	return s.updates
}

// ServeHTTP upgrades the request and reads updates until the connection or
// the server closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.closed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[feed] upgrade failed: %v", err)
		return
	}

	// Re-check under connsMu: Close swaps the flag while holding it, so a
	// registration either lands before the sweep or sees closed here.
	s.connsMu.Lock()
	if s.closed.Load() {
		s.connsMu.Unlock()
		conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.connsMu.Unlock()
	observability.UpdatePublishersConnected(1)

	go s.readLoop(conn)
}

func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.wg.Done()
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		observability.UpdatePublishersConnected(-1)
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		var msg UpdateMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			log.Printf("[feed] read failed: %v", err)
			return
		}

		upd, err := decode(msg)
		if err != nil {
			observability.RecordFeedMessage("rejected")
			s.writeAck(conn, AckMessage{Status: "error", Error: err.Error()})
			continue
		}

		select {
		case s.updates <- upd:
			observability.RecordFeedMessage("accepted")
			s.writeAck(conn, AckMessage{Status: "ok"})
		case <-s.done:
			return
		}
	}
}

func (s *Server) writeAck(conn *websocket.Conn, ack AckMessage) {
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := conn.WriteJSON(ack); err != nil {
		log.Printf("[feed] write ack failed: %v", err)
	}
}

// Close shuts the server down: every publisher connection is closed and the
// update channel is drained and closed.
func (s *Server) Close() error {
	s.connsMu.Lock()
	if s.closed.Swap(true) {
		s.connsMu.Unlock()
		return nil
	}
	close(s.done)
	for conn := range s.conns {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	close(s.updates)
	return nil
}
