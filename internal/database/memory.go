package database

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

type memParticipant struct {
	userId   int
	letterId *int
	ready    bool
	joinedAt time.Time
	seq      int
}

// MemoryRepository is a process-local Repository. Each method holds a single
// lock for its duration, which gives it the same all-or-nothing behavior as
// the transactions of PgRepository.
type MemoryRepository struct {
	mu           sync.Mutex
	users        map[int]User
	letters      map[int]Letter
	rooms        map[int]Room
	participants map[int]map[int]*memParticipant
	results      []DrawResult
	nextId       int
	seq          int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:        make(map[int]User),
		letters:      make(map[int]Letter),
		rooms:        make(map[int]Room),
		participants: make(map[int]map[int]*memParticipant),
	}
}

func (m *MemoryRepository) id() int {
	m.nextId++
	return m.nextId
}

// AddUser registers a user and returns it with its assigned id.
func (m *MemoryRepository) AddUser(username, name string) User {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := User{Id: m.id(), Username: username, Name: name, CreatedAt: time.Now().UTC()}
	m.users[u.Id] = u
	return u
}

// AddLetter stores an unused letter owned by ownerId.
func (m *MemoryRepository) AddLetter(ownerId int, heading, message string) Letter {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := Letter{Id: m.id(), OwnerId: ownerId, Heading: heading, Message: message, CreatedAt: time.Now().UTC()}
	m.letters[l.Id] = l
	return l
}

func (m *MemoryRepository) Ping(context.Context) error { return nil }

func (m *MemoryRepository) Close() error { return nil }

func (m *MemoryRepository) GetUser(_ context.Context, userId int) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userId]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryRepository) GetLetter(_ context.Context, letterId int) (Letter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.letters[letterId]
	if !ok {
		return Letter{}, ErrNotFound
	}
	return l, nil
}

func (m *MemoryRepository) ListAvailableLetters(_ context.Context, ownerId int) ([]Letter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	letters := make([]Letter, 0)
	for _, l := range m.letters {
		if l.OwnerId == ownerId && !l.InUse {
			letters = append(letters, l)
		}
	}
	sort.Slice(letters, func(i, j int) bool { return letters[i].Id > letters[j].Id })

	return letters, nil
}

func (m *MemoryRepository) CreateRoom(_ context.Context, params CreateRoomParams) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, ok := m.users[params.OwnerId]
	if !ok {
		return Room{}, ErrNotFound
	}

	now := time.Now().UTC()
	room := Room{
		Id:        m.id(),
		Name:      params.Name,
		Secret:    params.Secret,
		OwnerId:   owner.Id,
		OwnerName: owner.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.rooms[room.Id] = room
	m.participants[room.Id] = make(map[int]*memParticipant)
	m.addParticipant(room.Id, owner.Id, now)

	return room, nil
}

func (m *MemoryRepository) addParticipant(roomId, userId int, now time.Time) {
	m.seq++
	m.participants[roomId][userId] = &memParticipant{userId: userId, joinedAt: now, seq: m.seq}
}

func (m *MemoryRepository) GetRoom(_ context.Context, roomId int) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomId]
	if !ok {
		return Room{}, ErrNotFound
	}
	return room, nil
}

func (m *MemoryRepository) ListRooms(_ context.Context, viewerId int) ([]RoomSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := make([]RoomSummary, 0, len(m.rooms))
	for _, r := range m.rooms {
		_, joined := m.participants[r.Id][viewerId]
		rooms = append(rooms, RoomSummary{
			Id:               r.Id,
			Name:             r.Name,
			OwnerId:          r.OwnerId,
			OwnerName:        r.OwnerName,
			ParticipantCount: len(m.participants[r.Id]),
			IsJoined:         joined,
			CreatedAt:        r.CreatedAt,
		})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Id > rooms[j].Id })

	return rooms, nil
}

func (m *MemoryRepository) DeleteRoom(_ context.Context, roomId int, purgeResults bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[roomId]; !ok {
		return ErrNotFound
	}

	delete(m.rooms, roomId)
	delete(m.participants, roomId)
	if purgeResults {
		m.results = slices.DeleteFunc(m.results, func(d DrawResult) bool { return d.RoomId == roomId })
	}

	return nil
}

func (m *MemoryRepository) ListParticipants(_ context.Context, roomId int) ([]Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.listParticipants(roomId), nil
}

func (m *MemoryRepository) listParticipants(roomId int) []Participant {
	members := make([]*memParticipant, 0, len(m.participants[roomId]))
	for _, p := range m.participants[roomId] {
		members = append(members, p)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].seq < members[j].seq })

	participants := make([]Participant, 0, len(members))
	for _, mp := range members {
		u := m.users[mp.userId]
		p := Participant{
			RoomId:   roomId,
			UserId:   mp.userId,
			Username: u.Username,
			Name:     u.Name,
			IsReady:  mp.ready,
			JoinedAt: mp.joinedAt,
		}
		if mp.letterId != nil {
			id := *mp.letterId
			p.SelectedLetterId = &id
			p.LetterHeading = m.letters[id].Heading
			p.LetterInUse = m.letters[id].InUse
		}
		participants = append(participants, p)
	}

	return participants
}

func (m *MemoryRepository) AddParticipant(_ context.Context, roomId, userId int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.participants[roomId]
	if !ok {
		return false, ErrNotFound
	}
	if _, ok := m.users[userId]; !ok {
		return false, ErrNotFound
	}
	if _, ok := members[userId]; ok {
		return false, nil
	}

	m.addParticipant(roomId, userId, time.Now().UTC())
	return true, nil
}

func (m *MemoryRepository) RemoveParticipant(_ context.Context, roomId, userId int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.participants[roomId][userId]; !ok {
		return ErrNotFound
	}

	delete(m.participants[roomId], userId)
	return nil
}

func (m *MemoryRepository) SelectLetter(_ context.Context, roomId, userId, letterId int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[roomId][userId]
	if !ok {
		return ErrNotFound
	}

	l, ok := m.letters[letterId]
	if !ok || l.OwnerId != userId || l.InUse {
		return ErrLetterUnavailable
	}

	p.letterId = &l.Id
	return nil
}

func (m *MemoryRepository) ToggleReady(_ context.Context, roomId, userId int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[roomId][userId]
	if !ok || p.letterId == nil {
		return false, ErrNotFound
	}

	p.ready = !p.ready
	return p.ready, nil
}

func (m *MemoryRepository) HasDrawResults(_ context.Context, roomId int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.hasResults(roomId), nil
}

func (m *MemoryRepository) hasResults(roomId int) bool {
	return slices.ContainsFunc(m.results, func(d DrawResult) bool { return d.RoomId == roomId })
}

func (m *MemoryRepository) SaveDraw(_ context.Context, params SaveDrawParams) ([]DrawResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[params.RoomId]
	if !ok {
		return nil, ErrNotFound
	}

	letters := make(map[int]int)
	for _, p := range m.participants[params.RoomId] {
		letters[p.userId] = 0
		if p.ready && p.letterId != nil && !m.letters[*p.letterId].InUse {
			letters[p.userId] = *p.letterId
		}
	}
	if !matchesDraw(letters, params) {
		return nil, ErrDrawStale
	}

	if m.hasResults(params.RoomId) {
		if !params.ReplaceExisting {
			return nil, ErrDrawExists
		}
		m.results = slices.DeleteFunc(m.results, func(d DrawResult) bool { return d.RoomId == params.RoomId })
	}

	results := make([]DrawResult, 0, len(params.Assignments))
	for _, a := range params.Assignments {
		l := m.letters[a.LetterId]
		l.InUse = true
		m.letters[a.LetterId] = l

		d := DrawResult{
			Id:            m.id(),
			DrawId:        params.DrawId,
			RoomId:        room.Id,
			RoomName:      room.Name,
			GiverId:       a.GiverId,
			GiverName:     m.users[a.GiverId].Name,
			ReceiverId:    a.ReceiverId,
			ReceiverName:  m.users[a.ReceiverId].Name,
			LetterId:      a.LetterId,
			LetterHeading: l.Heading,
			LetterMessage: l.Message,
			DrawnAt:       params.DrawnAt,
		}
		m.results = append(m.results, d)
		results = append(results, d)
	}

	return results, nil
}

func (m *MemoryRepository) GetDrawResult(_ context.Context, roomId, giverId int) (DrawResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.results {
		if d.RoomId == roomId && d.GiverId == giverId {
			return d, nil
		}
	}
	return DrawResult{}, ErrNotFound
}

func (m *MemoryRepository) ListGiverResults(_ context.Context, giverId int) ([]DrawResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]DrawResult, 0)
	for _, d := range m.results {
		if d.GiverId == giverId {
			results = append(results, d)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].DrawnAt.Equal(results[j].DrawnAt) {
			return results[i].Id > results[j].Id
		}
		return results[i].DrawnAt.After(results[j].DrawnAt)
	})

	return results, nil
}
