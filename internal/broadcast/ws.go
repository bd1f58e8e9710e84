package broadcast

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// kiosks and registers are served from other origins on the LAN
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades the request and streams events scoped to laneID until the
// peer disconnects.  It blocks for the lifetime of the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, laneID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &Client{ID: uuid.NewString(), Lane: laneID, Send: make(chan []byte, 32)}
	h.Register(c)
	h.log.Debug().Str("client_id", c.ID).Str("lane_id", laneID).Msg("observer connected")

	go h.writePump(conn, c)
	h.readPump(conn, c)
	return nil
}

// readPump handles subscribe messages and pongs.  When the peer goes away it
// unregisters the client, which in turn stops writePump.
func (h *Hub) readPump(conn *websocket.Conn, c *Client) {
	defer func() {
		h.Unregister(c)
		_ = conn.Close()
		h.log.Debug().Str("client_id", c.ID).Msg("observer disconnected")
	}()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, ok := ParseSubscribe(data)
		if !ok {
			continue
		}
		if msg.Action == "unsubscribe" {
			h.Subscribe(c, "")
		} else {
			h.Subscribe(c, msg.LaneID)
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
