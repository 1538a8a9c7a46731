package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_DeliversPerMatch(t *testing.T) {
	b := NewBroadcaster()
	one, cancelOne := b.Subscribe(1)
	two, cancelTwo := b.Subscribe(2)
	defer cancelTwo()

	b.Publish(Event{Type: EventRescueUsed, MatchID: 1, RescueID: 4})

	ev := <-one
	assert.Equal(t, EventRescueUsed, ev.Type)
	assert.Equal(t, uint(4), ev.RescueID)
	assert.False(t, ev.At.IsZero())
	assert.Len(t, two, 0)

	assert.Equal(t, 1, b.Subscribers(1))
	cancelOne()
	cancelOne()
	assert.Equal(t, 0, b.Subscribers(1))
	_, open := <-one
	assert.False(t, open)
}

func TestBroadcaster_DropsForFullSubscriber(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	for i := 0; i < b.buffer+5; i++ {
		b.Publish(Event{Type: EventQuestionAdvanced, MatchID: 1, QuestionOrder: i})
	}
	require.Len(t, ch, b.buffer)
	first := <-ch
	assert.Equal(t, 0, first.QuestionOrder)
}

func TestPublish_NilNotifier(t *testing.T) {
	assert.NotPanics(t, func() { publish(nil, Event{MatchID: 1}) })
}
