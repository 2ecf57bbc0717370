package sink

import (
	"net/netip"
	"sync"
	"time"
)

// EventType represents the type of scan event
type EventType string

const (
	EventPortOpen   EventType = "port.open"
	EventPortClosed EventType = "port.closed"
	EventWarning    EventType = "scan.warning"
)

// Event is one scan outcome delivered to broker subscribers
type Event struct {
	Type      EventType
	Addr      netip.Addr
	Port      uint16
	Message   string
	Timestamp time.Time
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans scan events out to subscribers.  It lets an embedding
// program (a UI, an aggregator) watch a scan without touching the driver:
// the broker is itself a Sink and composes through Multi.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[Subscriber]bool)}
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

func (b *Broker) publish(event *Event) {
	event.Timestamp = time.Now()

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// subscriber buffer full, skip
		}
	}
}

func (b *Broker) OnOpen(ip netip.Addr, port uint16) {
	b.publish(&Event{Type: EventPortOpen, Addr: ip, Port: port})
}

func (b *Broker) OnClosed(ip netip.Addr, port uint16) {
	b.publish(&Event{Type: EventPortClosed, Addr: ip, Port: port})
}

func (b *Broker) OnWarning(text string) {
	b.publish(&Event{Type: EventWarning, Message: text})
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
