package server

import (
	"errors"
	"sync"
)

const sendBufferSize = 256

var (
	ErrSinkClosed = errors.New("sink closed")
	ErrSinkFull   = errors.New("sink buffer full")
)

// Sink receives encoded events for one subscriber. Send must not block.
type Sink interface {
	Send(data []byte) error
	Close()
}

// queue is the buffered channel behind every Sink in this package. Frames
// queued before Close are still handed to the writer.
type queue struct {
	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newQueue(size int) *queue {
	return &queue{send: make(chan []byte, size)}
}

func (q *queue) Send(data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrSinkClosed
	}

	select {
	case q.send <- data:
		return nil
	default:
		return ErrSinkFull
	}
}

func (q *queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.send)
	}
}
