package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	"github.com/MeKo-Tech/evalocr/internal/pipeline"
	"github.com/MeKo-Tech/evalocr/internal/progress"
	"github.com/gorilla/websocket"
)

const (
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 10 * time.Second
)

// WebSocket message types sent by the server.
const (
	wsTypeAccepted = "accepted"
	wsTypeProgress = "progress"
	wsTypeResult   = "result"
	wsTypeError    = "error"
)

// WebSocketOCRRequest is a recognition request sent over WebSocket. ID is
// echoed on every message that belongs to the request.
type WebSocketOCRRequest struct {
	ID string `json:"id,omitempty"`
	ImagePayload
}

// WebSocketOCRResponse is one server message: an acknowledgement, a
// progress event, the final result or an error.
type WebSocketOCRResponse struct {
	Type     string           `json:"type"`
	ID       string           `json:"id,omitempty"`
	Progress *progress.Event  `json:"progress,omitempty"`
	Result   *pipeline.Result `json:"result,omitempty"`
	Error    *OCRResponse     `json:"error,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// lockedWriter serializes writes from the progress callback and the
// request loop.
type lockedWriter struct {
	mu   sync.Mutex
	conn WebSocketConnWriter
}

func (l *lockedWriter) WriteMessage(messageType int, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteMessage(messageType, data)
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return s.corsOrigin == "*" || origin == "" || strings.EqualFold(origin, s.corsOrigin)
		},
	}
}

// ocrWebSocketHandler streams progress events for recognition requests.
func (s *Server) ocrWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.logger.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	// Base64 inflates payloads by a third.
	conn.SetReadLimit(s.maxUploadBytes()*4/3 + 4096)
	_ = conn.SetReadDeadline(time.Now().Add(s.wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.wsPongWait))
	})

	// The hijacked request context outlives the client, so recognitions
	// run on a context that ends with the read loop.
	ctx, cancel := context.WithCancel(r.Context())
	var inflight sync.WaitGroup
	defer inflight.Wait()
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	out := &lockedWriter{conn: conn}
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			inflight.Go(func() {
				s.handleWebSocketMessage(r.WithContext(ctx), out, data)
			})
		}
	}
}

// handleWebSocketMessage runs one recognition and streams its progress. It
// runs off the read loop so pongs and further requests keep being read.
func (s *Server) handleWebSocketMessage(r *http.Request, conn WebSocketConnWriter, data []byte) {
	var msg WebSocketOCRRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendWebSocketError(conn, "", ocrerr.InvalidRequest("failed to parse request: %v", err))
		return
	}

	req, err := msg.toRequest()
	if err != nil {
		s.sendWebSocketError(conn, msg.ID, err)
		return
	}
	if size := req.Image.Size(); size > s.maxUploadBytes() {
		s.sendWebSocketError(conn, msg.ID, ocrerr.PayloadTooLarge(size, s.maxUploadBytes()))
		return
	}
	uploadSizeBytes.Observe(float64(req.Image.Size()))

	s.sendWebSocketResponse(conn, WebSocketOCRResponse{Type: wsTypeAccepted, ID: msg.ID})

	release, err := s.acquireSlot(r)
	if err != nil {
		s.sendWebSocketError(conn, msg.ID, err)
		return
	}
	defer release()

	req.OnProgress = func(ev progress.Event) {
		s.sendWebSocketResponse(conn, WebSocketOCRResponse{Type: wsTypeProgress, ID: msg.ID, Progress: &ev})
	}

	start := time.Now()
	res, err := s.pipeline.Recognize(r.Context(), req)
	ocrProcessingDuration.WithLabelValues("websocket").Observe(time.Since(start).Seconds())
	if err != nil {
		ocrRequestsTotal.WithLabelValues("websocket", "error").Inc()
		s.sendWebSocketError(conn, msg.ID, err)
		return
	}
	ocrRequestsTotal.WithLabelValues("websocket", "success").Inc()
	s.sendWebSocketResponse(conn, WebSocketOCRResponse{Type: wsTypeResult, ID: msg.ID, Result: res})
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketOCRResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("Failed to marshal WebSocket response", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("Failed to send WebSocket message", "error", fmt.Errorf("%s: %w", response.Type, err))
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, id string, err error) {
	resp := errorResponse(err)
	s.sendWebSocketResponse(conn, WebSocketOCRResponse{Type: wsTypeError, ID: id, Error: &resp})
}
