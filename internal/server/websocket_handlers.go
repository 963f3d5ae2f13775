package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/birdseye/internal/pipeline"
)

const (
	streamReadTimeout  = 60 * time.Second
	streamPingInterval = 30 * time.Second
	streamWriteTimeout = 10 * time.Second
)

// StreamEvent is a control message sent over the frame stream. Processed
// frames are answered with a plain FrameResult instead.
type StreamEvent struct {
	Type      string `json:"type"` // "reset" or "error"
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// streamHandler streams frames of one session over a WebSocket.
//
// Binary messages are encoded images; each is answered with the JSON
// FrameResult. The text message "reset" resets the session.
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket stream established", "session", e.sess.ID, "remote_addr", r.RemoteAddr)
	s.handleStream(r.Context(), conn, e)
}

// handleStream reads messages until the client disconnects.
func (s *Server) handleStream(ctx context.Context, conn *websocket.Conn, e *sessionEntry) {
	conn.SetReadLimit(s.maxUploadMB * 1024 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(streamPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "session", e.sess.ID, "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))

		switch messageType {
		case websocket.BinaryMessage:
			s.handleStreamFrame(ctx, conn, e, data)
		case websocket.TextMessage:
			s.handleStreamCommand(conn, e, strings.TrimSpace(string(data)))
		}
	}
}

func (s *Server) handleStreamFrame(ctx context.Context, conn WebSocketConnWriter, e *sessionEntry, data []byte) {
	img, err := decodeFrame(data)
	if err != nil {
		s.sendStreamError(conn, "invalid_frame", fmt.Sprintf("Failed to decode frame: %v", err))
		return
	}

	res, err := s.processFrame(ctx, e, pipeline.Frame{Image: img}, sourceWebSocket)
	if err != nil {
		s.sendStreamError(conn, "processing_error", fmt.Sprintf("Frame processing failed: %v", err))
		return
	}
	s.sendStreamMessage(conn, res)
}

func (s *Server) handleStreamCommand(conn WebSocketConnWriter, e *sessionEntry, cmd string) {
	switch cmd {
	case "reset":
		e.mu.Lock()
		e.sess.Reset()
		e.mu.Unlock()
		s.sendStreamMessage(conn, StreamEvent{Type: "reset", SessionID: e.sess.ID})
	default:
		s.sendStreamError(conn, "invalid_request", "Unsupported command: "+cmd)
	}
}

// sendStreamMessage sends v as a JSON text message.
func (s *Server) sendStreamMessage(conn WebSocketConnWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal WebSocket message", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendStreamError sends an error event over the stream.
func (s *Server) sendStreamError(conn WebSocketConnWriter, errorType, message string) {
	s.sendStreamMessage(conn, StreamEvent{
		Type:      "error",
		Error:     message,
		ErrorType: errorType,
	})
}
