package server

import (
	"encoding/json"
	"time"

	"github.com/npezzotti/go-santa/internal/types"
)

type EventType string

const (
	EventConnected          EventType = "connected"
	EventParticipantJoined  EventType = "participant_joined"
	EventParticipantLeft    EventType = "participant_left"
	EventLetterSelected     EventType = "letter_selected"
	EventReadyStatusChanged EventType = "ready_status_changed"
	EventDrawCompleted      EventType = "draw_completed"
	EventRoomDeleted        EventType = "room_deleted"
)

// Event is implemented only by the event types in this file.
type Event interface {
	Type() EventType
	isEvent()
}

type eventHeader struct {
	Kind      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (h eventHeader) Type() EventType { return h.Kind }

func (eventHeader) isEvent() {}

func newHeader(kind EventType) eventHeader {
	return eventHeader{Kind: kind, Timestamp: Now()}
}

// Now returns the current UTC time truncated to milliseconds.
func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

type Connected struct {
	eventHeader
	RoomId       int    `json:"roomId"`
	ConnectionId string `json:"connectionId"`
	Message      string `json:"message"`
}

// RoomChanged is the payload shared by every event that follows a change to
// the participant set or their state. The snapshot fields are inlined.
type RoomChanged struct {
	eventHeader
	RoomId int `json:"roomId"`
	UserId int `json:"userId"`
	types.Snapshot
}

type ParticipantJoined struct {
	RoomChanged
}

type ParticipantLeft struct {
	RoomChanged
}

type LetterSelected struct {
	RoomChanged
}

type ReadyStatusChanged struct {
	RoomChanged
	IsReady bool `json:"isReady"`
}

type DrawCompleted struct {
	eventHeader
	RoomId  int                `json:"roomId"`
	Results []types.DrawResult `json:"results"`
}

type RoomDeleted struct {
	eventHeader
	RoomId  int    `json:"roomId"`
	Message string `json:"message"`
}

func NewConnected(roomId int, connId string) *Connected {
	return &Connected{
		eventHeader:  newHeader(EventConnected),
		RoomId:       roomId,
		ConnectionId: connId,
		Message:      "subscribed to room events",
	}
}

func roomChanged(kind EventType, roomId, userId int, snap types.Snapshot) RoomChanged {
	return RoomChanged{
		eventHeader: newHeader(kind),
		RoomId:      roomId,
		UserId:      userId,
		Snapshot:    snap,
	}
}

func NewParticipantJoined(roomId, userId int, snap types.Snapshot) *ParticipantJoined {
	return &ParticipantJoined{roomChanged(EventParticipantJoined, roomId, userId, snap)}
}

func NewParticipantLeft(roomId, userId int, snap types.Snapshot) *ParticipantLeft {
	return &ParticipantLeft{roomChanged(EventParticipantLeft, roomId, userId, snap)}
}

func NewLetterSelected(roomId, userId int, snap types.Snapshot) *LetterSelected {
	return &LetterSelected{roomChanged(EventLetterSelected, roomId, userId, snap)}
}

func NewReadyStatusChanged(roomId, userId int, isReady bool, snap types.Snapshot) *ReadyStatusChanged {
	return &ReadyStatusChanged{
		RoomChanged: roomChanged(EventReadyStatusChanged, roomId, userId, snap),
		IsReady:     isReady,
	}
}

func NewDrawCompleted(roomId int, results []types.DrawResult) *DrawCompleted {
	return &DrawCompleted{
		eventHeader: newHeader(EventDrawCompleted),
		RoomId:      roomId,
		Results:     results,
	}
}

func NewRoomDeleted(roomId int) *RoomDeleted {
	return &RoomDeleted{
		eventHeader: newHeader(EventRoomDeleted),
		RoomId:      roomId,
		Message:     "the room has been deleted",
	}
}

func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}
