// Package events carries the tracker's in-process notifications: journal
// writes, quote refreshes, recomputed summaries and billing state changes.
// The portfolio service publishes, the websocket layer subscribes.
package events

import "sync"

// Event names a notification topic.
type Event string

const (
	// EventTradeRecorded fires after an option or stock trade is written
	// or deleted.
	EventTradeRecorded Event = "trade_recorded"
	// EventCashFlowRecorded fires after a deposit or withdrawal is written.
	EventCashFlowRecorded Event = "cash_flow_recorded"
	// EventQuoteUpdated carries a db.Quote whenever a mark price changes.
	EventQuoteUpdated Event = "quote_updated"
	// EventSummaryUpdated carries a portfolio.SummaryUpdate after a
	// dashboard recompute.
	EventSummaryUpdated Event = "summary_updated"
	// EventSubscriptionUpdated fires when a billing webhook changes a
	// user's subscription status.
	EventSubscriptionUpdated Event = "subscription_updated"
)

// Bus fans payloads out to per-topic channel subscribers. Delivery is
// best-effort: a subscriber that has fallen behind its buffer misses the
// payload rather than stalling the publisher.
type Bus struct {
	mu     sync.Mutex
	nextID int
	topics map[Event]map[int]chan any
}

func NewBus() *Bus {
	return &Bus{topics: make(map[Event]map[int]chan any)}
}

// Subscribe returns a receive channel for the topic and a cancel function.
// The cancel function closes the channel; callers must stop reading after
// cancelling. Buffer sizes the channel, so it bounds how far a reader may
// lag before payloads are dropped.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan any, buffer)
	if b.topics[e] == nil {
		b.topics[e] = make(map[int]chan any)
	}
	b.topics[e][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.topics[e][id]; ok {
			delete(b.topics[e], id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers payload to every current subscriber of the topic without
// blocking. Full channels are skipped.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.topics[e] {
		select {
		case ch <- payload:
		default:
		}
	}
}
