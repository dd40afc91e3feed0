package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-context/internal/anomaly"
	"github.com/kubilitics/kubilitics-context/internal/engine"
	"github.com/kubilitics/kubilitics-context/internal/metrics"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024

	subscriptionBuffer = 128
)

// WebSocket message types
const (
	MessageTypeHello   = "hello"
	MessageTypeUpdate  = "update"
	MessageTypeAnomaly = "anomaly"
)

// WSMessage is pushed to WebSocket clients.
type WSMessage struct {
	Type      string           `json:"type"`
	ClientID  string           `json:"clientId,omitempty"`
	Kind      string           `json:"kind,omitempty"`
	Anomaly   *anomaly.Anomaly `json:"anomaly,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

type wsClient struct {
	id     string
	conn   *websocket.Conn
	sub    *engine.Subscription
	logger *zap.Logger
}

// handleWebSocket streams engine notifications to the client. Incoming
// messages are read only to service control frames.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{
		id:     uuid.New().String(),
		conn:   conn,
		sub:    s.engine.Subscribe(subscriptionBuffer),
		logger: s.logger,
	}
	metrics.WebSocketConnections.Inc()
	s.logger.Info("WebSocket client connected", zap.String("client_id", c.id))

	ctx, cancel := context.WithCancel(r.Context())
	go func() {
		c.readPump()
		cancel()
	}()
	c.writePump(ctx)

	s.engine.Unsubscribe(c.sub)
	conn.Close()
	metrics.WebSocketConnections.Dec()
	s.logger.Info("WebSocket client disconnected", zap.String("client_id", c.id))
}

func (c *wsClient) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("WebSocket read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
	}
}

func (c *wsClient) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := c.write(WSMessage{Type: MessageTypeHello, ClientID: c.id, Timestamp: time.Now()}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return

		case kind, ok := <-c.sub.Updates:
			if !ok {
				return
			}
			if err := c.write(WSMessage{Type: MessageTypeUpdate, Kind: kind, Timestamp: time.Now()}); err != nil {
				return
			}

		case a, ok := <-c.sub.Anomalies:
			if !ok {
				return
			}
			if err := c.write(WSMessage{Type: MessageTypeAnomaly, Kind: a.Resource.Kind, Anomaly: &a, Timestamp: time.Now()}); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) write(msg WSMessage) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("WebSocket write failed", zap.String("client_id", c.id), zap.Error(err))
		return err
	}
	return nil
}
