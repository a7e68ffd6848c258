package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) GetUser(ctx context.Context, userId int) (User, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetLetter(ctx context.Context, letterId int) (Letter, error) {
	args := m.Called(ctx, letterId)
	return args.Get(0).(Letter), args.Error(1)
}
func (m *MockRepository) ListAvailableLetters(ctx context.Context, ownerId int) ([]Letter, error) {
	args := m.Called(ctx, ownerId)
	return args.Get(0).([]Letter), args.Error(1)
}
func (m *MockRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) GetRoom(ctx context.Context, roomId int) (Room, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) ListRooms(ctx context.Context, viewerId int) ([]RoomSummary, error) {
	args := m.Called(ctx, viewerId)
	return args.Get(0).([]RoomSummary), args.Error(1)
}
func (m *MockRepository) DeleteRoom(ctx context.Context, roomId int, purgeResults bool) error {
	args := m.Called(ctx, roomId, purgeResults)
	return args.Error(0)
}
func (m *MockRepository) ListParticipants(ctx context.Context, roomId int) ([]Participant, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).([]Participant), args.Error(1)
}
func (m *MockRepository) AddParticipant(ctx context.Context, roomId, userId int) (bool, error) {
	args := m.Called(ctx, roomId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) RemoveParticipant(ctx context.Context, roomId, userId int) error {
	args := m.Called(ctx, roomId, userId)
	return args.Error(0)
}
func (m *MockRepository) SelectLetter(ctx context.Context, roomId, userId, letterId int) error {
	args := m.Called(ctx, roomId, userId, letterId)
	return args.Error(0)
}
func (m *MockRepository) ToggleReady(ctx context.Context, roomId, userId int) (bool, error) {
	args := m.Called(ctx, roomId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) HasDrawResults(ctx context.Context, roomId int) (bool, error) {
	args := m.Called(ctx, roomId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) SaveDraw(ctx context.Context, params SaveDrawParams) ([]DrawResult, error) {
	args := m.Called(ctx, params)
	if results, ok := args.Get(0).([]DrawResult); ok {
		return results, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) GetDrawResult(ctx context.Context, roomId, giverId int) (DrawResult, error) {
	args := m.Called(ctx, roomId, giverId)
	return args.Get(0).(DrawResult), args.Error(1)
}
func (m *MockRepository) ListGiverResults(ctx context.Context, giverId int) ([]DrawResult, error) {
	args := m.Called(ctx, giverId)
	return args.Get(0).([]DrawResult), args.Error(1)
}
