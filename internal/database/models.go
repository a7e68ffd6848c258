package database

import "time"

type Room struct {
	Id        int
	Name      string
	Secret    string
	OwnerId   int
	OwnerName string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoomSummary is a room as it appears in the room listing.
type RoomSummary struct {
	Id               int
	Name             string
	OwnerId          int
	OwnerName        string
	ParticipantCount int
	IsJoined         bool
	CreatedAt        time.Time
}

type User struct {
	Id        int
	Username  string
	Name      string
	CreatedAt time.Time
}

type Participant struct {
	RoomId           int
	UserId           int
	Username         string
	Name             string
	SelectedLetterId *int
	LetterHeading    string
	LetterInUse      bool
	IsReady          bool
	JoinedAt         time.Time
}

func (p Participant) HasLetter() bool {
	return p.SelectedLetterId != nil
}

type Letter struct {
	Id        int
	OwnerId   int
	Heading   string
	Message   string
	InUse     bool
	CreatedAt time.Time
}

type DrawResult struct {
	Id            int
	DrawId        string
	RoomId        int
	RoomName      string
	GiverId       int
	GiverName     string
	ReceiverId    int
	ReceiverName  string
	LetterId      int
	LetterHeading string
	LetterMessage string
	DrawnAt       time.Time
}

type CreateRoomParams struct {
	Name    string
	Secret  string
	OwnerId int
}

// Assignment pairs a giver with the receiver whose letter they get.
type Assignment struct {
	GiverId    int
	ReceiverId int
	LetterId   int
}

type SaveDrawParams struct {
	RoomId int
	DrawId string
	// Participants is the set of user ids the draw was computed over. The
	// store rejects the draw with ErrDrawStale if the room no longer matches.
	Participants []int
	Assignments  []Assignment
	// ReplaceExisting clears prior results for the room. When false an
	// existing result set makes the save fail with ErrDrawExists.
	ReplaceExisting bool
	DrawnAt         time.Time
}
