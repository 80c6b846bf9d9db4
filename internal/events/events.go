package events

import (
	"context"
	"strings"
	"sync"
)

// TopicGlobal receives every published activity event regardless of entity.
const TopicGlobal = "global"

type ActivityEvent struct {
	ID         string `json:"id"`
	EventType  string `json:"event_type"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Payload    string `json:"payload"`
	Summary    string `json:"summary"`
	CreatedAt  string `json:"created_at"`
}

type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan ActivityEvent]struct{}
}

func NormalizeTopic(topic string) string {
	normalized := strings.TrimSpace(strings.ToLower(topic))
	if normalized == "" {
		return TopicGlobal
	}
	return normalized
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: map[string]map[chan ActivityEvent]struct{}{},
	}
}

func (b *Broker) Subscribe(ctx context.Context, topic string) <-chan ActivityEvent {
	topic = NormalizeTopic(topic)
	ch := make(chan ActivityEvent, 16)

	b.mu.Lock()
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = map[chan ActivityEvent]struct{}{}
	}
	b.subscribers[topic][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if b.subscribers[topic] != nil {
			delete(b.subscribers[topic], ch)
			if len(b.subscribers[topic]) == 0 {
				delete(b.subscribers, topic)
			}
		}
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish fans the event out to the entity-type topic and the global topic.
// Slow subscribers are skipped rather than blocking the publisher.
func (b *Broker) Publish(event ActivityEvent) {
	b.mu.RLock()
	chans := make([]chan ActivityEvent, 0)
	for ch := range b.subscribers[NormalizeTopic(event.EntityType)] {
		chans = append(chans, ch)
	}
	for ch := range b.subscribers[TopicGlobal] {
		chans = append(chans, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chans {
		select {
		case ch <- event:
		default:
		}
	}
}
