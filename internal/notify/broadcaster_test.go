// ABOUTME: Tests for the storage event Broadcaster
// ABOUTME: Covers key isolation, originator exclusion, cleanup, and concurrency

package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEvent(key, source string) StorageEvent {
	v := `{"n":1}`
	return NewStorageEvent("test", key, source, nil, &v)
}

func receive(t *testing.T, ch <-chan StorageEvent) StorageEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return StorageEvent{}
	}
}

func assertNothing(t *testing.T, ch <-chan StorageEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event for key %q", ev.Key)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroadcaster_DeliversToOtherContexts(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "settings", "tab-b")

	ev := makeEvent("settings", "tab-a")
	b.Publish(ev)

	got := receive(t, ch)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, "tab-a", got.Source)
}

func TestBroadcaster_SkipsOriginatingContext(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	own, _ := b.Subscribe(t.Context(), "settings", "tab-a")
	other, _ := b.Subscribe(t.Context(), "settings", "tab-b")

	b.Publish(makeEvent("settings", "tab-a"))

	receive(t, other)
	assertNothing(t, own)
}

func TestBroadcaster_EmptyContextReceivesEverything(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "settings", "")
	b.Publish(makeEvent("settings", "tab-a"))

	receive(t, ch)
}

func TestBroadcaster_KeysAreIsolated(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	settings, _ := b.Subscribe(t.Context(), "settings", "tab-b")
	history, _ := b.Subscribe(t.Context(), "history", "tab-b")

	b.Publish(makeEvent("settings", "tab-a"))

	receive(t, settings)
	assertNothing(t, history)
}

func TestBroadcaster_AllKeysSubscriber(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	all, _ := b.Subscribe(t.Context(), AllKeys, "")

	b.Publish(makeEvent("settings", "tab-a"))
	b.Publish(makeEvent("history", "tab-a"))

	assert.Equal(t, "settings", receive(t, all).Key)
	assert.Equal(t, "history", receive(t, all).Key)
}

func TestBroadcaster_SlowConsumerDoesNotBlockPublisher(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	_, _ = b.Subscribe(t.Context(), "k", "slow")
	fast, _ := b.Subscribe(t.Context(), "k", "fast")

	done := make(chan struct{})
	go func() {
		for range subscriberBufferSize * 2 {
			b.Publish(makeEvent("k", "writer"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}

	receive(t, fast)
}

func TestBroadcaster_ContextCancellationCleansUp(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "k", "tab")
	assert.Equal(t, 1, b.SubscriberCount("k"))

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after context cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
	assert.Equal(t, 0, b.SubscriberCount("k"))
}

func TestBroadcaster_UnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(t.Context(), "k", "tab")

	b.Unsubscribe("k", subID)
	b.Unsubscribe("k", subID)

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after unsubscribe should not panic
	b.Publish(makeEvent("k", "other"))
}

func TestBroadcaster_CloseClosesAllSubscriptions(t *testing.T) {
	b := NewBroadcaster(nil)

	ch1, _ := b.Subscribe(t.Context(), "a", "tab")
	ch2, _ := b.Subscribe(t.Context(), AllKeys, "tab")

	b.Close()

	for i, ch := range []<-chan StorageEvent{ch1, ch2} {
		select {
		case _, ok := <-ch:
			assert.False(t, ok, "channel %d should be closed after Close()", i)
		case <-time.After(time.Second):
			t.Fatalf("channel %d not closed after Close()", i)
		}
	}
}

func TestBroadcaster_ConcurrentPublishSubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	ctx := t.Context()

	for range 10 {
		wg.Go(func() {
			ch, _ := b.Subscribe(ctx, "k", "reader")
			for range 5 {
				select {
				case <-ch:
				case <-time.After(500 * time.Millisecond):
					return
				}
			}
		})
	}

	for range 10 {
		wg.Go(func() {
			for range 10 {
				b.Publish(makeEvent("k", "writer"))
			}
		})
	}

	wg.Wait()
}

func TestBroadcaster_SubscribeReturnsUniqueIDs(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	_, id1 := b.Subscribe(t.Context(), "k", "a")
	_, id2 := b.Subscribe(t.Context(), "k", "a")

	require.NotEqual(t, id1, id2)
}

func TestStorageEvent_IsRemoval(t *testing.T) {
	removed := NewStorageEvent("o", "k", "s", nil, nil)
	assert.True(t, removed.IsRemoval())
	assert.NotEmpty(t, removed.ID)

	assert.False(t, makeEvent("k", "s").IsRemoval())
}
