package remotesim

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const heartbeatPongWait = 60 * time.Second

// heartbeat keeps a socket open for as long as the client stays; tills treat
// an open socket as "online".
func (s *Server) heartbeat(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("heartbeat upgrade", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.sockets[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sockets, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(heartbeatPongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(heartbeatPongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// DropHeartbeats closes every open heartbeat socket, as a network cut would.
func (s *Server) DropHeartbeats() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.sockets))
	for conn := range s.sockets {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

// HeartbeatClients reports how many heartbeat sockets are open.
func (s *Server) HeartbeatClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sockets)
}
