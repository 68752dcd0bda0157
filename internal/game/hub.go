package game

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vaywinar/cerdas-cermat/internal/domain"
)

// sendBuffer bounds the per-connection outbox. A consumer that falls this
// far behind starts losing frames rather than stalling broadcasts.
const sendBuffer = 64

// Connection is one live client. Role and PlayerID are owned by the
// engine's event loop; the transport only drains the outbox.
type Connection struct {
	ID        string
	SessionID string
	Role      domain.Role
	PlayerID  int

	send   chan []byte
	closed bool
}

// Outbox returns the channel of serialized frames to write to the client.
// It is closed when the connection is removed from the hub.
func (c *Connection) Outbox() <-chan []byte { return c.send }

// Hub tracks every live connection and fans messages out to them.
// Messages are serialized once and the same bytes reused for every
// recipient.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*Connection)}
}

// NewConnection creates an unregistered spectator connection. An empty
// sessionID falls back to the generated connection id, so clients that
// do not ask for a sticky identity still work.
func (h *Hub) NewConnection(sessionID string) *Connection {
	id := uuid.NewString()
	if sessionID == "" {
		sessionID = id
	}
	return &Connection{
		ID:        id,
		SessionID: sessionID,
		Role:      domain.RoleSpectator,
		send:      make(chan []byte, sendBuffer),
	}
}

// Add registers the connection for broadcasts.
func (h *Hub) Add(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID] = c
}

// Remove unregisters the connection and closes its outbox.
func (h *Hub) Remove(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.ID]; !ok {
		return
	}
	delete(h.conns, c.ID)
	c.closed = true
	close(c.send)
}

// ByPlayer finds the connection bound to a player id. Linear scan: the
// roster is small.
func (h *Hub) ByPlayer(playerID int) (*Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		if c.PlayerID == playerID {
			return c, true
		}
	}
	return nil, false
}

// Len reports the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// BroadcastAll sends one message to every live connection.
func (h *Hub) BroadcastAll(msgType string, data any) {
	frame, err := encodeFrame(msgType, data)
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("encode broadcast")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		c.push(frame)
	}
}

// BroadcastRole sends one message to every connection holding the role.
func (h *Hub) BroadcastRole(role domain.Role, msgType string, data any) {
	frame, err := encodeFrame(msgType, data)
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("encode broadcast")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		if c.Role == role {
			c.push(frame)
		}
	}
}

// SendTo sends one message to a single connection.
func (h *Hub) SendTo(c *Connection, msgType string, data any) {
	frame, err := encodeFrame(msgType, data)
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("encode message")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c.push(frame)
}

// SendError sends an error reply to a single connection.
func (h *Hub) SendError(c *Connection, msg, details string) {
	frame, err := json.Marshal(Envelope{Type: EvtError, Error: msg, Details: details})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c.push(frame)
}

// BroadcastErrorRole reports a failure to every connection with the role,
// used for errors with no originating connection (timer callbacks).
func (h *Hub) BroadcastErrorRole(role domain.Role, msg string) {
	frame, err := json.Marshal(Envelope{Type: EvtError, Error: msg})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		if c.Role == role {
			c.push(frame)
		}
	}
}

// push is non-blocking: a full or closed outbox drops the frame so one
// dead client never stalls the rest of the broadcast. Callers hold at
// least the hub read lock, which excludes Remove closing the channel
// mid-send.
func (c *Connection) push(frame []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Warn().Str("conn", c.ID).Msg("outbox full, dropping frame")
	}
}

func encodeFrame(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Data: raw})
}
