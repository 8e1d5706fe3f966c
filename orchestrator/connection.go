package orchestrator

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mockpilot/mesh/shared/protocol"
)

const writeTimeout = 10 * time.Second

// maxQueueFullDrops is how many dropped messages a client gets before it is
// disconnected for persistent backpressure.
const maxQueueFullDrops = 3

// ClientConnection is one client WebSocket with its bounded outgoing queue.
// Slow consumers drop messages rather than stalling the fan-out; persistent
// drops close the connection with 1011 "backpressure".
type ClientConnection struct {
	conn      *websocket.Conn
	sessionID string
	clientID  string

	queue          chan []byte
	queueFullCount atomic.Int32

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// lazily dialed audio forward socket to the STT service
	sttMu   sync.Mutex
	sttConn *websocket.Conn
	sttURL  string

	metrics *Metrics
}

func NewClientConnection(conn *websocket.Conn, sessionID, sttURL string, queueSize int, metrics *Metrics) *ClientConnection {
	return &ClientConnection{
		conn:      conn,
		sessionID: sessionID,
		clientID:  conn.RemoteAddr().String(),
		queue:     make(chan []byte, queueSize),
		closed:    make(chan struct{}),
		sttURL:    sttURL,
		metrics:   metrics,
	}
}

func (c *ClientConnection) SessionID() string { return c.sessionID }
func (c *ClientConnection) ClientID() string { return c.clientID }

// Enqueue queues an outbound frame without blocking. A full queue drops the
// frame and counts against the backpressure limit. A queue with no capacity
// drops every frame, even when the sender is parked in receive.
func (c *ClientConnection) Enqueue(data []byte) {
	select {
	case <-c.closed:
		return
	default:
	}

	if cap(c.queue) > 0 {
		select {
		case c.queue <- data:
			return
		default:
		}
	}
	c.dropFrame()
}

func (c *ClientConnection) dropFrame() {
	count := c.queueFullCount.Add(1)
	if c.metrics != nil {
		c.metrics.QueueDrops.Inc()
	}
	slog.Warn("ws: outgoing queue full, message dropped",
		"client_id", c.clientID, "session_id", c.sessionID, "drops", count)
	if count > maxQueueFullDrops {
		slog.Error("ws: disconnecting client due to persistent backpressure",
			"client_id", c.clientID, "session_id", c.sessionID)
		if c.metrics != nil {
			c.metrics.BackpressureCloses.Inc()
		}
		go c.Close(websocket.CloseInternalServerErr, "backpressure")
	}
}

// Close shuts the connection down once: close frame, underlying socket, and
// the forward socket to the STT service.
func (c *ClientConnection) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		slog.Info("ws: closing connection",
			"client_id", c.clientID, "session_id", c.sessionID, "code", code, "reason", reason)
		close(c.closed)

		msg := websocket.FormatCloseMessage(code, reason)
		deadline := time.Now().Add(writeTimeout)
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			slog.Debug("ws: close frame write failed", "client_id", c.clientID, "error", err)
		}
		_ = c.conn.Close()

		c.sttMu.Lock()
		if c.sttConn != nil {
			_ = c.sttConn.Close()
			c.sttConn = nil
		}
		c.sttMu.Unlock()
	})
}

func (c *ClientConnection) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// StartSender runs the queue drain loop until the connection closes.
func (c *ClientConnection) StartSender() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.closed:
				return
			case data := <-c.queue:
				c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					slog.Warn("ws: send error", "client_id", c.clientID, "error", err)
					c.Close(websocket.CloseNormalClosure, "send error")
					return
				}
			}
		}
	}()
}

// Wait blocks until the sender loop has finished.
func (c *ClientConnection) Wait() {
	c.wg.Wait()
}

// SendError queues an error frame describing a rejected client message.
func (c *ClientConnection) SendError(message, detail, code string) {
	frame, err := protocol.EncodeFrame(protocol.KindError, protocol.WSError{
		Message:   message,
		Detail:    detail,
		ErrorCode: code,
	})
	if err != nil {
		slog.Error("ws: encode error frame failed", "error", err)
		return
	}
	c.Enqueue(frame)
}

// SendServiceStatus queues a service_status frame from the orchestrator.
func (c *ClientConnection) SendServiceStatus(message string) {
	frame, err := protocol.EncodeFrame(protocol.KindServiceStatus, protocol.ServiceStatusMsg{
		ServiceName: "orchestrator",
		Status:      protocol.StatusUp,
		Message:     message,
	})
	if err != nil {
		slog.Error("ws: encode service status error", "error", err)
		return
	}
	c.Enqueue(frame)
}

// ForwardAudio decodes a client audio chunk and relays the raw PCM to the
// STT ingress socket for this session, dialing it on first use. Replies from
// the STT service (partials, finals, slow signals) stream back onto the
// client queue.
func (c *ClientConnection) ForwardAudio(chunk *protocol.AudioChunk) error {
	audio, err := base64.StdEncoding.DecodeString(chunk.DataB64)
	if err != nil {
		return fmt.Errorf("decode audio chunk: %w", err)
	}

	c.sttMu.Lock()
	defer c.sttMu.Unlock()

	if c.sttConn == nil {
		url := c.sttURL + "/" + c.sessionID
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return fmt.Errorf("dial stt service: %w", err)
		}
		c.sttConn = conn
		go c.relaySTTReplies(conn)
		slog.Info("ws: stt forward connected", "client_id", c.clientID, "url", url)
	}

	c.sttConn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.sttConn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		_ = c.sttConn.Close()
		c.sttConn = nil
		return fmt.Errorf("forward audio to stt: %w", err)
	}
	return nil
}

func (c *ClientConnection) relaySTTReplies(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.Closed() {
				slog.Debug("ws: stt reply stream ended", "client_id", c.clientID, "error", err)
			}
			return
		}
		c.Enqueue(data)
	}
}
