package database

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrLetterUnavailable = errors.New("letter is not owned by user or already in use")
	ErrDrawStale         = errors.New("room changed since draw was computed")
	ErrDrawExists        = errors.New("room already has draw results")
)

// RoomStore holds rooms, participants and draw results. Every mutating
// method runs in a single transaction.
type RoomStore interface {
	Ping(ctx context.Context) error
	CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error)
	GetRoom(ctx context.Context, roomId int) (Room, error)
	ListRooms(ctx context.Context, viewerId int) ([]RoomSummary, error)
	DeleteRoom(ctx context.Context, roomId int, purgeResults bool) error
	ListParticipants(ctx context.Context, roomId int) ([]Participant, error)
	// AddParticipant reports false when the user was already a participant.
	AddParticipant(ctx context.Context, roomId, userId int) (bool, error)
	RemoveParticipant(ctx context.Context, roomId, userId int) error
	SelectLetter(ctx context.Context, roomId, userId, letterId int) error
	ToggleReady(ctx context.Context, roomId, userId int) (bool, error)
	HasDrawResults(ctx context.Context, roomId int) (bool, error)
	SaveDraw(ctx context.Context, params SaveDrawParams) ([]DrawResult, error)
	GetDrawResult(ctx context.Context, roomId, giverId int) (DrawResult, error)
	ListGiverResults(ctx context.Context, giverId int) ([]DrawResult, error)
}

type LetterStore interface {
	GetLetter(ctx context.Context, letterId int) (Letter, error)
	ListAvailableLetters(ctx context.Context, ownerId int) ([]Letter, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, userId int) (User, error)
}

type Repository interface {
	RoomStore
	LetterStore
	UserDirectory
	Close() error
}
