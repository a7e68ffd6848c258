package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/npezzotti/go-santa/internal/server"
	"github.com/npezzotti/go-santa/internal/types"
)

const maxBodyBytes = 1 << 20

type LeaveRoomRequest struct {
	RoomId int `json:"roomId"`
	UserId int `json:"userId"`
}

type UserRequest struct {
	UserId int `json:"userId"`
}

type SelectLetterRequest struct {
	UserId   int `json:"userId"`
	LetterId int `json:"letterId"`
}

type LeaveRoomResponse struct {
	RoomDeleted bool `json:"roomDeleted"`
}

type SelectLetterResponse struct {
	Ok bool `json:"ok"`
}

type ToggleReadyResponse struct {
	IsReady bool `json:"isReady"`
	types.Snapshot
}

type DrawResponse struct {
	Results []types.DrawResult `json:"results"`
}

type DrawResultResponse struct {
	HasResult bool              `json:"hasResult"`
	Result    *types.DrawResult `json:"result,omitempty"`
}

func (s *SantaApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("json encode")
	}
}

func (s *SantaApp) writeError(w http.ResponseWriter, r *http.Request, err error) {
	errResp := NewApiError(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func decodeJson(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return NewBadRequestError("request body is empty")
		}
		return NewBadRequestError("malformed JSON body")
	}
	return nil
}

func pathId(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(r.PathValue(name))
	if err != nil || id < 1 {
		return 0, NewBadRequestError(fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}

func queryUserId(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("userId")
	if raw == "" {
		return 0, NewBadRequestError("userId is required")
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, NewBadRequestError("invalid userId")
	}
	return id, nil
}

// roomAndUser reads the room id from the path and the user id from the query.
func roomAndUser(r *http.Request) (int, int, error) {
	roomId, err := pathId(r, "roomId")
	if err != nil {
		return 0, 0, err
	}
	userId, err := queryUserId(r)
	if err != nil {
		return 0, 0, err
	}
	return roomId, userId, nil
}

func (s *SantaApp) badRequest(w http.ResponseWriter, err error) {
	var errResp *ApiError
	if !errors.As(err, &errResp) {
		errResp = NewBadRequestError(err.Error())
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *SantaApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.WithError(err).Error("health check")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *SantaApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var req server.CreateRoomParams
	if err := decodeJson(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	room, err := s.rooms.CreateRoom(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusCreated, room)
}

func (s *SantaApp) listRooms(w http.ResponseWriter, r *http.Request) {
	userId, err := queryUserId(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	rooms, err := s.rooms.ListRooms(r.Context(), userId)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *SantaApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req server.JoinRoomParams
	if err := decodeJson(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	room, _, err := s.rooms.JoinRoom(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *SantaApp) leaveRoom(w http.ResponseWriter, r *http.Request) {
	var req LeaveRoomRequest
	if err := decodeJson(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	deleted, err := s.rooms.LeaveRoom(r.Context(), req.RoomId, req.UserId)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, LeaveRoomResponse{RoomDeleted: deleted})
}

func (s *SantaApp) getRoom(w http.ResponseWriter, r *http.Request) {
	roomId, userId, err := roomAndUser(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	snap, err := s.rooms.GetRoomSnapshot(r.Context(), roomId, userId)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, snap)
}

func (s *SantaApp) deleteRoom(w http.ResponseWriter, r *http.Request) {
	roomId, err := pathId(r, "roomId")
	if err != nil {
		s.badRequest(w, err)
		return
	}

	var req UserRequest
	if err := decodeJson(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	if err := s.rooms.DeleteRoom(r.Context(), roomId, req.UserId); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *SantaApp) selectLetter(w http.ResponseWriter, r *http.Request) {
	roomId, err := pathId(r, "roomId")
	if err != nil {
		s.badRequest(w, err)
		return
	}

	var req SelectLetterRequest
	if err := decodeJson(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	if err := s.rooms.SelectLetter(r.Context(), roomId, req.UserId, req.LetterId); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, SelectLetterResponse{Ok: true})
}

func (s *SantaApp) toggleReady(w http.ResponseWriter, r *http.Request) {
	roomId, err := pathId(r, "roomId")
	if err != nil {
		s.badRequest(w, err)
		return
	}

	var req UserRequest
	if err := decodeJson(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	res, err := s.rooms.ToggleReady(r.Context(), roomId, req.UserId)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, ToggleReadyResponse{IsReady: res.IsReady, Snapshot: res.Snapshot})
}

func (s *SantaApp) startDraw(w http.ResponseWriter, r *http.Request) {
	roomId, err := pathId(r, "roomId")
	if err != nil {
		s.badRequest(w, err)
		return
	}

	var req UserRequest
	if err := decodeJson(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	results, err := s.rooms.StartDraw(r.Context(), roomId, req.UserId)
	if err != nil {
		var e *server.Error
		if errors.As(err, &e) && e.Retryable() {
			w.Header().Set("Retry-After", "1")
		}
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, DrawResponse{Results: results})
}

func (s *SantaApp) getDrawResult(w http.ResponseWriter, r *http.Request) {
	roomId, userId, err := roomAndUser(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	result, ok, err := s.rooms.GetDrawResult(r.Context(), roomId, userId)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := DrawResultResponse{HasResult: ok}
	if ok {
		resp.Result = &result
	}
	s.writeJson(w, http.StatusOK, resp)
}

func (s *SantaApp) inviteCode(w http.ResponseWriter, r *http.Request) {
	roomId, userId, err := roomAndUser(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	png, err := s.rooms.InviteCode(r.Context(), roomId, userId)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (s *SantaApp) listLetters(w http.ResponseWriter, r *http.Request) {
	userId, err := queryUserId(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	letters, err := s.rooms.ListAvailableLetters(r.Context(), userId)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, letters)
}

func (s *SantaApp) listDraws(w http.ResponseWriter, r *http.Request) {
	userId, err := queryUserId(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	results, err := s.rooms.ListGiverHistory(r.Context(), userId)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, results)
}
