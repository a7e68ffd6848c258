package types

import (
	"time"
)

type Room struct {
	Id        int       `json:"id"`
	Name      string    `json:"name"`
	OwnerId   int       `json:"ownerId"`
	OwnerName string    `json:"ownerName"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

type RoomSummary struct {
	Id               int       `json:"id"`
	Name             string    `json:"name"`
	OwnerId          int       `json:"ownerId"`
	OwnerName        string    `json:"ownerName"`
	ParticipantCount int       `json:"participantCount"`
	IsJoined         bool      `json:"isJoined"`
	CreatedAt        time.Time `json:"createdAt,omitempty"`
}

type Participant struct {
	UserId           int       `json:"userId"`
	Username         string    `json:"username"`
	Name             string    `json:"name"`
	IsReady          bool      `json:"isReady"`
	SelectedLetterId *int      `json:"selectedLetterId"`
	LetterHeading    string    `json:"letterHeading,omitempty"`
	IsOwner          bool      `json:"isOwner"`
	IsViewer         bool      `json:"isViewer"`
	JoinedAt         time.Time `json:"joinedAt"`
}

// Snapshot is the state of a room as shown to its participants.
type Snapshot struct {
	Room              Room          `json:"room"`
	Participants      []Participant `json:"participants"`
	ReadyCount        int           `json:"readyCount"`
	TotalParticipants int           `json:"totalParticipants"`
	LastUpdated       time.Time     `json:"lastUpdated"`
}

type Letter struct {
	Id        int       `json:"id"`
	Heading   string    `json:"heading"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

type DrawResult struct {
	DrawId        string    `json:"drawId"`
	RoomId        int       `json:"roomId"`
	RoomName      string    `json:"roomName,omitempty"`
	GiverId       int       `json:"giverId"`
	GiverName     string    `json:"giverName"`
	ReceiverId    int       `json:"receiverId"`
	ReceiverName  string    `json:"receiverName"`
	LetterId      int       `json:"letterId"`
	LetterHeading string    `json:"letterHeading"`
	LetterMessage string    `json:"letterMessage"`
	DrawnAt       time.Time `json:"drawnAt"`
}
