package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// StreamSink writes queued events to an HTTP response as server-sent events.
type StreamSink struct {
	*queue
	w   http.ResponseWriter
	rc  *http.ResponseController
	log logrus.FieldLogger
}

func NewStreamSink(w http.ResponseWriter, logger logrus.FieldLogger) *StreamSink {
	return &StreamSink{
		queue: newQueue(sendBufferSize),
		w:     w,
		rc:    http.NewResponseController(w),
		log:   logger,
	}
}

// Start writes the stream headers. It must be called before Stream.
func (s *StreamSink) Start() error {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)

	return s.rc.Flush()
}

// Stream writes frames until the sink is closed or ctx is done. It returns
// nil when the sink was closed and ctx.Err() when the client went away.
func (s *StreamSink) Stream(ctx context.Context) error {
	for {
		select {
		case data, ok := <-s.send:
			if !ok {
				return nil
			}
			if _, err := s.w.Write(frame(data)); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
			if err := s.rc.Flush(); err != nil {
				return fmt.Errorf("flush event: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func frame(data []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(data) + 8)
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes()
}
