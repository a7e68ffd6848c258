package server

import (
	"github.com/npezzotti/go-santa/internal/stats"
	"github.com/sirupsen/logrus"
)

// EventBus fans events out to the sinks registered for a room.
type EventBus struct {
	registry *Registry
	log      logrus.FieldLogger
	stats    stats.StatsProvider
}

func NewEventBus(registry *Registry, logger logrus.FieldLogger, st stats.StatsProvider) *EventBus {
	return &EventBus{
		registry: registry,
		log:      logger,
		stats:    st,
	}
}

// Publish encodes e once and delivers it to every connection of the room.
// A connection that fails to accept the frame is unregistered; delivery
// failures are logged and never returned.
func (b *EventBus) Publish(roomId int, e Event) int {
	data, err := Encode(e)
	if err != nil {
		b.log.WithError(err).WithField("event", e.Type()).Error("failed to encode event")
		return 0
	}

	delivered := 0
	for connId, sink := range b.registry.Sinks(roomId) {
		if err := sink.Send(data); err != nil {
			b.stats.Incr(stats.DeliveryFailures)
			b.log.WithError(err).WithFields(logrus.Fields{
				"room_id": roomId,
				"conn_id": connId,
				"event":   e.Type(),
			}).Warn("dropping connection after failed delivery")
			b.registry.Unregister(roomId, connId)
			continue
		}
		delivered++
	}

	b.stats.Incr(stats.EventsPublished)
	b.log.WithFields(logrus.Fields{"room_id": roomId, "event": e.Type(), "delivered": delivered}).
		Debug("published event")

	return delivered
}

// Deliver sends e to a single sink.
func (b *EventBus) Deliver(sink Sink, e Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	return sink.Send(data)
}
