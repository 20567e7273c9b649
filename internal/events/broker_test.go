package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestBroker_TypedSubscription(t *testing.T) {
	b := NewBroker()
	notices := b.Subscribe(NoticeEvent)

	b.Publish(New(RequestIssuedEvent, "doc", RequestPayload{RequestID: "r1"}))
	b.Publish(New(NoticeEvent, "doc", Notice{Level: NoticeWarn, Message: "transport failed"}))

	ev := receive(t, notices)
	assert.Equal(t, NoticeEvent, ev.Type)
	assert.Equal(t, "doc", ev.DocID)
	assert.Equal(t, "transport failed", ev.Payload.(Notice).Message)
	assert.Len(t, notices, 0)
}

func TestBroker_Wildcard(t *testing.T) {
	b := NewBroker()
	all := b.Subscribe()

	b.Publish(New(DocumentAttachedEvent, "a", nil))
	b.Publish(New(StateChangedEvent, "a", StatePayload{From: "idle", To: "debouncing"}))

	assert.Equal(t, DocumentAttachedEvent, receive(t, all).Type)
	assert.Equal(t, StateChangedEvent, receive(t, all).Type)
}

func TestBroker_FullChannelDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(NoticeEvent)

	for i := 0; i < b.bufferSize+10; i++ {
		b.Publish(New(NoticeEvent, "doc", nil))
	}
	assert.Len(t, ch, b.bufferSize)
}

func TestBroker_UnsubscribeClosesOnce(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(NoticeEvent, StateChangedEvent)

	b.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)

	// Publishing afterwards must not panic on the closed channel.
	b.Publish(New(NoticeEvent, "doc", nil))
}

func TestBroker_Clear(t *testing.T) {
	b := NewBroker()
	one := b.Subscribe(NoticeEvent, StateChangedEvent)
	two := b.Subscribe()

	b.Clear()

	_, ok := <-one
	assert.False(t, ok)
	_, ok = <-two
	assert.False(t, ok)
}
