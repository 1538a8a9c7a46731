package services

import (
	"log"
	"sync"
	"time"
)

const (
	EventParticipationUpdated = "participation.updated"
	EventQuestionAdvanced     = "question.advanced"
	EventRescueWindows        = "rescue.windows"
	EventRescueUsed           = "rescue.used"
	EventSupportAnswer        = "rescue.support_answer"
)

// Event is pushed to live viewers after a change has been committed.
type Event struct {
	Type          string      `json:"type"`
	MatchID       uint        `json:"match_id"`
	ContestantIDs []uint      `json:"contestant_ids,omitempty"`
	Status        string      `json:"status,omitempty"`
	RescueID      uint        `json:"rescue_id,omitempty"`
	QuestionOrder int         `json:"question_order"`
	Payload       interface{} `json:"payload,omitempty"`
	At            time.Time   `json:"at"`
}

// Notifier receives committed engine events.
type Notifier interface {
	Publish(ev Event)
}

// Broadcaster fans events out to per-match subscribers. Slow subscribers lose events
// rather than block the engine.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[uint]map[chan Event]struct{}
	buffer int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint]map[chan Event]struct{}), buffer: 32}
}

func (b *Broadcaster) Subscribe(matchID uint) (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	if b.subs[matchID] == nil {
		b.subs[matchID] = make(map[chan Event]struct{})
	}
	b.subs[matchID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[matchID], ch)
			if len(b.subs[matchID]) == 0 {
				delete(b.subs, matchID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[ev.MatchID] {
		select {
		case ch <- ev:
		default:
			log.Printf("[Broadcast] dropping %s for match %d: subscriber is full", ev.Type, ev.MatchID)
		}
	}
}

// Subscribers returns how many viewers are attached to a match.
func (b *Broadcaster) Subscribers(matchID uint) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[matchID])
}

func publish(n Notifier, ev Event) {
	if n != nil {
		n.Publish(ev)
	}
}
