package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/onboard/internal/onboarding"
)

const (
	wsReadLimit = maxRequestBytes
	wsPongWait  = 60 * time.Second
	wsWriteWait = 10 * time.Second
)

// wsRequest is one client frame. A frame with user_id and no
// session_id starts a session; any other frame answers one.
type wsRequest struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Answer    string `json:"answer,omitempty"`
}

// wsError is the frame sent back for a failed request. The connection
// stays open.
type wsError struct {
	ErrorResponse
	Status int `json:"status"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// One writer at a time: the pinger and the request loop share conn.
	writes := make(chan any)
	done := make(chan struct{})
	go s.wsWriter(ctx, conn, writes, done)
	defer func() {
		cancel()
		<-done
	}()

	s.logger.Debug("websocket connected", "remote", r.RemoteAddr)
	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket closed normally")
			} else {
				s.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		// Pongs are not read while a provider call runs, so the
		// deadline restarts once the frame is handled.
		frame := s.wsHandle(ctx, req)
		conn.SetReadDeadline(time.Now().Add(s.pongWait))
		select {
		case writes <- frame:
		case <-done:
			return
		}
	}
}

// wsHandle runs one frame against the service and returns the reply
// frame.
func (s *Server) wsHandle(ctx context.Context, req wsRequest) any {
	var (
		reply *onboarding.Reply
		err   error
	)
	if req.SessionID == "" && req.UserID != "" {
		reply, err = s.svc.Start(ctx, req.UserID)
	} else {
		reply, err = s.svc.Answer(ctx, req.SessionID, req.Answer)
	}
	if err != nil {
		code := errorStatus(err)
		msg := err.Error()
		if code == http.StatusInternalServerError {
			s.logger.Error("websocket request failed", "error", err)
			msg = "internal server error"
		}
		return wsError{ErrorResponse: ErrorResponse{Error: msg}, Status: code}
	}
	return s.envelope(reply)
}

// wsWriter owns all writes to conn until ctx is cancelled.
func (s *Server) wsWriter(ctx context.Context, conn *websocket.Conn, frames <-chan any, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.pongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-frames:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(frame); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}
