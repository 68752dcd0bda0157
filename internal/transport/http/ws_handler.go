package http

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vaywinar/cerdas-cermat/internal/game"
)

// WSHandler upgrades HTTP requests to websockets and wires them into the
// game engine.
type WSHandler struct {
	engine   *game.Engine
	hub      *game.Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *game.Engine, hub *game.Hub) *WSHandler {
	return &WSHandler{
		engine: engine,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS handles one client for the lifetime of its connection. The
// optional sessionId query parameter lets a reconnecting player reclaim
// their identity and score.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer ws.Close()

	conn := h.hub.NewConnection(r.URL.Query().Get("sessionId"))
	h.engine.Connect(conn)

	log.Info().Str("conn", conn.ID).Msg("client connected")

	// One writer goroutine per connection; gorilla allows a single
	// concurrent writer. The outbox is closed on Disconnect.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for frame := range conn.Outbox() {
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Str("conn", conn.ID).Msg("ws write error")
				return
			}
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			break
		}
		h.engine.Dispatch(conn, raw)
	}

	log.Info().Str("conn", conn.ID).Msg("client disconnected")
	h.engine.Disconnect(conn)
	<-writerDone
}
