package server

import (
	"sync"

	"github.com/npezzotti/go-santa/internal/stats"
	"github.com/sirupsen/logrus"
)

type subscription struct {
	userId int
	sink   Sink
}

// Registry tracks the live subscriptions of every room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[int]map[string]subscription
	log   logrus.FieldLogger
	stats stats.StatsProvider
}

func NewRegistry(logger logrus.FieldLogger, st stats.StatsProvider) *Registry {
	return &Registry{
		rooms: make(map[int]map[string]subscription),
		log:   logger,
		stats: st,
	}
}

// Register adds sink as connection connId of userId in the room, replacing
// any connection with the same id.
func (r *Registry) Register(roomId int, connId string, userId int, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.rooms[roomId]
	if !ok {
		conns = make(map[string]subscription)
		r.rooms[roomId] = conns
	}
	if old, ok := conns[connId]; ok {
		old.sink.Close()
	} else {
		r.stats.Incr(stats.ActiveConnections)
	}
	conns[connId] = subscription{userId: userId, sink: sink}

	r.log.WithFields(logrus.Fields{"room_id": roomId, "conn_id": connId, "user_id": userId, "count": len(conns)}).
		Debug("registered connection")
}

// Unregister removes and closes a connection. It reports whether the
// connection was still registered.
func (r *Registry) Unregister(roomId int, connId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.rooms[roomId]
	if !ok {
		return false
	}
	sub, ok := conns[connId]
	if !ok {
		return false
	}

	delete(conns, connId)
	if len(conns) == 0 {
		delete(r.rooms, roomId)
	}
	sub.sink.Close()
	r.stats.Decr(stats.ActiveConnections)

	r.log.WithFields(logrus.Fields{"room_id": roomId, "conn_id": connId}).Debug("unregistered connection")
	return true
}

// Sinks returns a copy of the room's connections.
func (r *Registry) Sinks(roomId int) map[string]Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make(map[string]Sink, len(r.rooms[roomId]))
	for id, sub := range r.rooms[roomId] {
		conns[id] = sub.sink
	}
	return conns
}

func (r *Registry) Count(roomId int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[roomId])
}

// CloseUser closes and forgets every connection userId holds in the room
// and returns how many there were.
func (r *Registry) CloseUser(roomId, userId int) int {
	r.mu.Lock()
	var closed []Sink
	for id, sub := range r.rooms[roomId] {
		if sub.userId == userId {
			closed = append(closed, sub.sink)
			delete(r.rooms[roomId], id)
		}
	}
	if len(r.rooms[roomId]) == 0 {
		delete(r.rooms, roomId)
	}
	r.mu.Unlock()

	for _, s := range closed {
		s.Close()
		r.stats.Decr(stats.ActiveConnections)
	}

	if len(closed) > 0 {
		r.log.WithFields(logrus.Fields{"room_id": roomId, "user_id": userId, "count": len(closed)}).
			Debug("closed user connections")
	}
	return len(closed)
}

// CloseRoom closes and forgets every connection of the room and returns how
// many there were.
func (r *Registry) CloseRoom(roomId int) int {
	r.mu.Lock()
	conns := r.rooms[roomId]
	delete(r.rooms, roomId)
	r.mu.Unlock()

	for range conns {
		r.stats.Decr(stats.ActiveConnections)
	}
	for _, sub := range conns {
		sub.sink.Close()
	}

	if len(conns) > 0 {
		r.log.WithFields(logrus.Fields{"room_id": roomId, "count": len(conns)}).Info("closed room connections")
	}
	return len(conns)
}

// Shutdown closes every connection of every room.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	rooms := r.rooms
	r.rooms = make(map[int]map[string]subscription)
	r.mu.Unlock()

	for _, conns := range rooms {
		for _, sub := range conns {
			sub.sink.Close()
			r.stats.Decr(stats.ActiveConnections)
		}
	}
}
