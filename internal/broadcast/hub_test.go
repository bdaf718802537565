package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshwatch/sshwatch/internal/models"
)

func recvWithTimeout(t *testing.T, ch <-chan models.StreamMessage) models.StreamMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed before message arrived")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return models.StreamMessage{}
	}
}

func eventMsg(id int64) models.StreamMessage {
	return models.StreamMessage{
		Type:  models.StreamTypeEvent,
		Event: &models.Event{ID: id},
	}
}

func TestSubscribe_ConnectedFrameFirst(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()

	sub := hub.Subscribe(TopicEvents)
	defer sub.Close()

	// The connected acknowledgment must precede any published event, even
	// when a publish races the subscription.
	hub.Publish(TopicEvents, eventMsg(1))

	first := recvWithTimeout(t, sub.C())
	assert.Equal(t, models.StreamTypeConnected, first.Type)

	second := recvWithTimeout(t, sub.C())
	assert.Equal(t, models.StreamTypeEvent, second.Type)
	assert.Equal(t, int64(1), second.Event.ID)
}

func TestPublish_PreservesOrderPerSubscriber(t *testing.T) {
	hub := NewHub(16)
	defer hub.Close()

	sub := hub.Subscribe(TopicEvents)
	defer sub.Close()
	recvWithTimeout(t, sub.C()) // connected

	for i := int64(1); i <= 10; i++ {
		hub.Publish(TopicEvents, eventMsg(i))
	}

	for i := int64(1); i <= 10; i++ {
		msg := recvWithTimeout(t, sub.C())
		assert.Equal(t, i, msg.Event.ID)
	}
}

func TestPublish_TopicIsolation(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()

	events := hub.Subscribe(TopicEvents)
	defer events.Close()
	suspicious := hub.Subscribe(TopicSuspicious)
	defer suspicious.Close()
	recvWithTimeout(t, events.C())
	recvWithTimeout(t, suspicious.C())

	hub.Publish(TopicEvents, eventMsg(1))

	msg := recvWithTimeout(t, events.C())
	assert.Equal(t, int64(1), msg.Event.ID)

	select {
	case msg := <-suspicious.C():
		t.Fatalf("suspicious subscriber received events-topic message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublish_DropsOldestOnOverflow(t *testing.T) {
	hub := NewHub(2)
	defer hub.Close()

	sub := hub.Subscribe(TopicEvents)
	defer sub.Close()

	// Mailbox holds the connected frame plus one event. Publishing three
	// events without draining must evict from the front, never block.
	hub.Publish(TopicEvents, eventMsg(1))
	hub.Publish(TopicEvents, eventMsg(2))
	hub.Publish(TopicEvents, eventMsg(3))

	first := recvWithTimeout(t, sub.C())
	assert.Equal(t, models.StreamTypeEvent, first.Type)
	assert.Equal(t, int64(2), first.Event.ID)

	second := recvWithTimeout(t, sub.C())
	assert.Equal(t, int64(3), second.Event.ID)
}

func TestPublish_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(1)
	defer hub.Close()

	slow := hub.Subscribe(TopicEvents)
	defer slow.Close()
	fast := hub.Subscribe(TopicEvents)
	defer fast.Close()
	recvWithTimeout(t, fast.C())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(1); i <= 100; i++ {
			hub.Publish(TopicEvents, eventMsg(i))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestUnsubscribe(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()

	sub := hub.Subscribe(TopicEvents)
	require.Equal(t, 1, hub.SubscriberCount(TopicEvents))

	sub.Close()
	assert.Equal(t, 0, hub.SubscriberCount(TopicEvents))

	// Channel is closed after unsubscribe.
	recvWithTimeout(t, sub.C()) // connected frame was queued before close
	_, ok := <-sub.C()
	assert.False(t, ok)

	// Idempotent.
	sub.Close()

	// Publishing after unsubscribe must not panic or deliver.
	hub.Publish(TopicEvents, eventMsg(1))
}

func TestUnsubscribe_ConcurrentWithPublish(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		sub := hub.Subscribe(TopicEvents)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range sub.C() {
			}
		}()
		go func() {
			defer wg.Done()
			sub.Close()
		}()
	}

	for i := int64(0); i < 100; i++ {
		hub.Publish(TopicEvents, eventMsg(i))
	}
	wg.Wait()
	assert.Equal(t, 0, hub.SubscriberCount(TopicEvents))
}

func TestClose(t *testing.T) {
	hub := NewHub(4)

	sub := hub.Subscribe(TopicEvents)
	hub.Close()

	// Drain: connected frame then closed channel.
	recvWithTimeout(t, sub.C())
	_, ok := <-sub.C()
	assert.False(t, ok)

	// Publish after close is a no-op.
	hub.Publish(TopicEvents, eventMsg(1))

	// Subscribe after close hands back an already-closed channel.
	late := hub.Subscribe(TopicEvents)
	_, ok = <-late.C()
	assert.False(t, ok)

	// Close is idempotent.
	hub.Close()
}
