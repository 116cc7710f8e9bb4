package relay

import (
	"sync"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/piper/pkg/api"
)

// Hub fans a session's stream events out to any number of subscribers.
// The topic retains its entries, so a subscriber that attaches mid-stream
// still receives the session's earlier events before the live ones.
type Hub struct {
	events    topic.Topic[*api.StreamEvent]
	prod      topic.Producer[*api.StreamEvent]
	closeOnce sync.Once
}

func newHub() *Hub {
	events := caravan.NewTopic[*api.StreamEvent]()
	return &Hub{
		events: events,
		prod:   events.NewProducer(),
	}
}

// Publish delivers an event to all current subscribers
func (h *Hub) Publish(ev *api.StreamEvent) {
	h.prod.Send() <- ev
}

// Subscribe returns a consumer of the session's remaining events. The
// caller owns the consumer and must Close it when done.
func (h *Hub) Subscribe() topic.Consumer[*api.StreamEvent] {
	return h.events.NewConsumer()
}

// Close ends publication. Consumers are not torn down by this; they
// stop on the session's terminal event and close themselves.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.prod.Close()
	})
}
