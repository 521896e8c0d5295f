// Package ws serves the push channel UI clients use to follow runs and logs.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/oddrm/pse25/internal/config"
	"github.com/oddrm/pse25/internal/hub"
	"github.com/oddrm/pse25/internal/protocol"
	"github.com/oddrm/pse25/internal/service"
)

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	svc      *service.Service
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, svc *service.Service, logger zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		hub:    h,
		svc:    svc,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// the UI is served from a different origin during development
				return true
			},
		},
	}
}

// SnapshotFunc builds the greeting sent to every new connection: plugins,
// active runs and the whole log.
func SnapshotFunc(svc *service.Service) func() ([]byte, error) {
	return func() ([]byte, error) {
		plugins := svc.ListPlugins()
		states := make([]protocol.PluginState, len(plugins))
		for i, p := range plugins {
			states[i] = protocol.PluginState{PluginDefinition: p.PluginDefinition, Enabled: p.Enabled}
		}
		return json.Marshal(protocol.SnapshotMessage{
			BaseMessage: protocol.NewBase(protocol.TypeSnapshot, ""),
			Plugins:     states,
			Runs:        svc.ListRuns(),
			Logs:        svc.Logs(0, 0),
		})
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to upgrade websocket")
		return err
	}

	conn := s.hub.NewConnection(ws)
	ws.SetReadLimit(s.cfg.MaxMessageSize)
	s.hub.Register(conn)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Str("conn_id", conn.ID).Msg("websocket read failed")
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn().Err(err).Str("conn_id", conn.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var baseMsg protocol.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch baseMsg.Type {
	case protocol.TypeHello:
		s.handleHello(conn, baseMsg)
	case protocol.TypeStartRun:
		s.handleStartRun(conn, data)
	default:
		s.sendError(conn, baseMsg.RequestID, protocol.ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
	}
}

func (s *Server) handleHello(conn *hub.Connection, base protocol.BaseMessage) {
	ack := protocol.HelloAckMessage{
		BaseMessage:  protocol.NewBase(protocol.TypeHelloAck, base.RequestID),
		ConnectionID: conn.ID,
	}
	s.hub.SendJSONToConnection(conn, ack)
}

func (s *Server) handleStartRun(conn *hub.Connection, data []byte) {
	var msg protocol.StartRunMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid start_run message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := s.svc.StartRun(ctx, msg.PluginID, msg.EntryName)

	s.hub.SendJSONToConnection(conn, protocol.StartResultMessage{
		BaseMessage: protocol.NewBase(protocol.TypeStartResult, msg.RequestID),
		Started:     res.Started,
		Reason:      res.Reason,
		Run:         res.Run,
	})
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *hub.Connection, requestID, code, message string) {
	s.hub.SendJSONToConnection(conn, protocol.ErrorMessage{
		BaseMessage: protocol.NewBase(protocol.TypeError, requestID),
		Code:        code,
		Message:     message,
	})
}
