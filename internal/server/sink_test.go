package server

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/npezzotti/go-santa/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink keeps every frame it is sent.
type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	err    error
}

func (s *recordingSink) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	if s.closed {
		return ErrSinkClosed
	}
	s.frames = append(s.frames, data)
	return nil
}

func (s *recordingSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// events decodes the frames received so far.
func (s *recordingSink) events(t *testing.T) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]map[string]any, 0, len(s.frames))
	for _, f := range s.frames {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(f, &ev), "expected frame to be valid JSON")
		events = append(events, ev)
	}
	return events
}

func (s *recordingSink) types(t *testing.T) []string {
	t.Helper()
	var kinds []string
	for _, ev := range s.events(t) {
		kinds = append(kinds, ev["type"].(string))
	}
	return kinds
}

func newTestStats() *stats.MockStatsUpdater {
	return stats.NewPermissiveMock()
}

func TestQueue(t *testing.T) {
	t.Run("send and close", func(t *testing.T) {
		q := newQueue(2)
		assert.NoError(t, q.Send([]byte("a")))
		assert.NoError(t, q.Send([]byte("b")))
		assert.ErrorIs(t, q.Send([]byte("c")), ErrSinkFull, "expected full buffer to reject the frame")

		q.Close()
		assert.NotPanics(t, q.Close, "expected Close to be idempotent")
		assert.ErrorIs(t, q.Send([]byte("d")), ErrSinkClosed)

		var got []string
		for data := range q.send {
			got = append(got, string(data))
		}
		assert.Equal(t, []string{"a", "b"}, got, "expected frames queued before Close to be drained")
	})

	t.Run("concurrent send and close", func(t *testing.T) {
		q := newQueue(sendBufferSize)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				q.Send([]byte("x"))
			}()
		}
		q.Close()
		wg.Wait()
	})
}
