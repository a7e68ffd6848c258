package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-santa/internal/server"
	"github.com/sirupsen/logrus"
)

// roomEvents streams the room's events as server-sent events until the
// client disconnects or the room is deleted.
func (s *SantaApp) roomEvents(w http.ResponseWriter, r *http.Request) {
	roomId, userId, err := roomAndUser(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	log := s.log.WithFields(logrus.Fields{"room_id": roomId, "user_id": userId})
	sink := server.NewStreamSink(w, log)
	connId, err := s.rooms.Subscribe(r.Context(), roomId, userId, sink)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer s.rooms.Unsubscribe(roomId, connId)

	if err := sink.Start(); err != nil {
		log.WithError(err).Error("start event stream")
		return
	}

	if err := sink.Stream(r.Context()); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Warn("event stream ended")
	}
}

// serveWs carries the same events as roomEvents over a websocket. Errors
// after the upgrade are reported in the close frame.
func (s *SantaApp) serveWs(w http.ResponseWriter, r *http.Request) {
	roomId, userId, err := roomAndUser(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("error upgrading connection")
		return
	}

	log := s.log.WithFields(logrus.Fields{"room_id": roomId, "user_id": userId})
	client := server.NewClient(conn, log)
	connId, err := s.rooms.Subscribe(r.Context(), roomId, userId, client)
	if err != nil {
		errResp := NewApiError(err)
		if errResp.StatusCode >= http.StatusInternalServerError {
			log.WithError(err).Error("subscribe")
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode(errResp), errResp.Message))
		conn.Close()
		return
	}

	go client.Write()
	go client.Read(func() { s.rooms.Unsubscribe(roomId, connId) })
}

func closeCode(e *ApiError) int {
	if e.StatusCode >= http.StatusInternalServerError {
		return websocket.CloseInternalServerErr
	}
	return websocket.ClosePolicyViolation
}
