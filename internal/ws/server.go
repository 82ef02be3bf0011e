// Package ws provides the WebSocket endpoint for live crew events.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/kdkiss/CrewAI-Command-Center/internal/domain"
	"github.com/kdkiss/CrewAI-Command-Center/internal/hub"
	"github.com/kdkiss/CrewAI-Command-Center/internal/service"
)

const (
	maxMessageSize = 64 * 1024
	readTimeout    = 60 * time.Second
	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
	startTimeout   = 30 * time.Second
)

// Message is the client-to-server command format.
type Message struct {
	Type   string         `json:"type"`
	CrewID string         `json:"crew_id"`
	Inputs map[string]any `json:"inputs"`
}

// Server handles WebSocket connections.
type Server struct {
	hub      *hub.Hub
	service  *service.Service
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(h *hub.Hub, svc *service.Service) *Server {
	return &Server{
		hub:     h,
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(maxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	s.sendInitialState(conn)
	return nil
}

// sendInitialState pushes the current crews list and activity history to a
// freshly connected client.
func (s *Server) sendInitialState(conn *hub.Connection) {
	if err := s.hub.EmitToConnection(conn, "crews_updated", s.service.ListCrews()); err != nil {
		log.Printf("Error sending initial crews data: %v", err)
	}
	if history := s.service.ActivityEvents(); len(history) > 0 {
		if err := s.hub.EmitToConnection(conn, "activity_history", history); err != nil {
			log.Printf("Error sending activity history: %v", err)
		}
	}
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "invalid JSON message")
		return
	}

	switch msg.Type {
	case "start_crew":
		s.handleStartCrew(conn, msg)
	case "stop_crew":
		s.handleStopCrew(conn, msg)
	default:
		s.sendError(conn, "unknown message type: "+msg.Type)
	}
}

// handleStartCrew launches a crew and acknowledges the origin connection.
// Lifecycle events for all other subscribers come from the runtime.
func (s *Server) handleStartCrew(conn *hub.Connection, msg Message) {
	if msg.CrewID == "" {
		s.sendError(conn, "Missing crew_id")
		return
	}

	log.Printf("Starting crew %s with inputs: %v", msg.CrewID, msg.Inputs)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()

		processID, err := s.service.StartCrew(ctx, msg.CrewID, msg.Inputs)
		if err != nil {
			// StartCrew already broadcast crew_error to all subscribers.
			log.Printf("Error starting crew %s: %v", msg.CrewID, err)
			return
		}

		ack := map[string]any{
			"crew_id":    msg.CrewID,
			"process_id": processID,
			"status":     "starting",
		}
		s.service.RecordActivity(string(domain.EventTypeCrewStartAck), ack)
		if err := s.hub.EmitToConnection(conn, string(domain.EventTypeCrewStartAck), ack); err != nil {
			log.Printf("Error sending crew_start_ack for %s: %v", msg.CrewID, err)
		}
	}()
}

// handleStopCrew requests crew termination; the stop_requested ack is
// broadcast by the facade.
func (s *Server) handleStopCrew(conn *hub.Connection, msg Message) {
	if msg.CrewID == "" {
		s.sendError(conn, "Missing crew_id")
		return
	}

	log.Printf("Stopping crew %s", msg.CrewID)
	s.service.StopCrew(msg.CrewID)
}

// sendError sends an error event to a single connection.
func (s *Server) sendError(conn *hub.Connection, message string) {
	if err := s.hub.EmitToConnection(conn, "error", map[string]any{"message": message}); err != nil {
		log.Printf("Error sending error message: %v", err)
	}
}
