package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/recorder"
)

const liveWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleLive streams a live session over a websocket: first a snapshot of
// the current state, then every event as it is recorded. Events are JSON
// text frames, or binary codec frames with ?format=binary. The socket is
// closed normally when the session stops.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !sess.ctl.IsStarted() {
		writeError(w, recorder.ErrNotStarted)
		return
	}
	binary := r.URL.Query().Get("format") == "binary"

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("api: websocket upgrade", "session", id, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	snap, sub := sess.ctl.Follow(ctx, event.IsClose)
	defer sub.Unsubscribe()

	// Reading is only for noticing the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log := s.logger.With("session", id, "subscription", sub.ID)
	log.Info("api: live tail opened")
	if err := writeEvent(conn, snap, binary); err != nil {
		log.Debug("api: live write", "error", err)
		return
	}
	for e := range sub.C {
		if err := writeEvent(conn, e, binary); err != nil {
			log.Debug("api: live write", "error", err)
			return
		}
	}

	reason := "recording closed"
	if err := sub.Err(); err != nil {
		reason = err.Error()
	}
	conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	log.Info("api: live tail closed", "reason", reason)
}

func writeEvent(conn *websocket.Conn, e event.SourceEvent, binary bool) error {
	var (
		data []byte
		err  error
		kind = websocket.TextMessage
	)
	if binary {
		data, err = event.Codec.Encode(e)
		kind = websocket.BinaryMessage
	} else {
		data, err = json.Marshal(e)
	}
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	return conn.WriteMessage(kind, data)
}
