package orchestrator

import (
	"log/slog"
	"sync"
)

// ConnectionManager tracks the live client connections and fans frames out
// to them. Broadcast snapshots the set under a read lock so a slow or dying
// client cannot block registration.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[*ClientConnection]struct{}

	metrics *Metrics
}

func NewConnectionManager(metrics *Metrics) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[*ClientConnection]struct{}),
		metrics:     metrics,
	}
}

func (m *ConnectionManager) Connect(c *ClientConnection) {
	m.mu.Lock()
	m.connections[c] = struct{}{}
	total := len(m.connections)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveConnections.Set(float64(total))
	}
	slog.Info("ws: client connected", "client_id", c.ClientID(), "session_id", c.SessionID(), "total", total)
}

func (m *ConnectionManager) Disconnect(c *ClientConnection) {
	m.mu.Lock()
	delete(m.connections, c)
	total := len(m.connections)
	m.mu.Unlock()

	c.Close(1000, "")
	if m.metrics != nil {
		m.metrics.ActiveConnections.Set(float64(total))
	}
	slog.Info("ws: client disconnected", "client_id", c.ClientID(), "session_id", c.SessionID(), "total", total)
}

// DisconnectSession closes every connection belonging to a session.
func (m *ConnectionManager) DisconnectSession(sessionID string, code int, reason string) {
	for _, c := range m.snapshot() {
		if c.SessionID() == sessionID {
			c.Close(code, reason)
			m.Disconnect(c)
		}
	}
}

// Broadcast enqueues a frame on every live connection.
func (m *ConnectionManager) Broadcast(data []byte) {
	conns := m.snapshot()
	if len(conns) == 0 {
		return
	}
	if m.metrics != nil {
		m.metrics.Broadcasts.Inc()
	}
	for _, c := range conns {
		if !c.Closed() {
			c.Enqueue(data)
		}
	}
}

func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *ConnectionManager) snapshot() []*ClientConnection {
	m.mu.RLock()
	conns := make([]*ClientConnection, 0, len(m.connections))
	for c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()
	return conns
}
