package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phenobot/carousel/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The page is served from the device itself or from a bench laptop on
	// the same network.
	CheckOrigin: func(*http.Request) bool { return true },
}

type client struct {
	conn    *websocket.Conn
	sendMsg chan interface{}
	once    sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.sendMsg)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("WebSocket upgrade failed", logger.FieldError, err)
		return
	}

	c := &client{conn: conn, sendMsg: make(chan interface{}, clientSendSize)}

	s.mu.Lock()
	s.clients[c] = true
	last := s.lastReport
	s.mu.Unlock()

	s.logger.Infow("WebSocket client connected", logger.FieldAddress, r.RemoteAddr)

	// New clients immediately get the current picture.
	c.sendMsg <- s.statusMessage(last)

	s.wg.Add(2)
	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	if s.clients[c] {
		delete(s.clients, c)
		c.close()
	}
	s.mu.Unlock()
	c.conn.Close()
}

// readPump discards inbound frames; the feed is one-way. It exists to
// surface disconnects and answer pings.
func (s *Server) readPump(c *client) {
	defer s.wg.Done()
	defer s.removeClient(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	defer s.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.removeClient(c)

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-c.sendMsg:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
