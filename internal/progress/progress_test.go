package progress_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/progress"
)

func recvEvent(t *testing.T, ch <-chan schemas.ProgressEvent) schemas.ProgressEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscriber channel closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a progress event")
		return schemas.ProgressEvent{}
	}
}

func assertClosed(t *testing.T, ch <-chan schemas.ProgressEvent) {
	t.Helper()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "expected the channel to be closed")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the channel to close")
	}
}

func TestHub_BroadcastsToAllSubscribers(t *testing.T) {
	hub := progress.NewHub(zaptest.NewLogger(t), 0)
	defer hub.Close()

	first, unsubFirst := hub.Subscribe()
	defer unsubFirst()
	second, unsubSecond := hub.Subscribe()
	defer unsubSecond()

	for _, msg := range []string{"parsing", "drafting", "scoring"} {
		hub.Publish(schemas.ProgressEvent{
			RunID:   "run-1",
			Phase:   schemas.PhaseGeneration,
			Status:  schemas.StatusInProgress,
			Message: msg,
		})
	}

	for _, ch := range []<-chan schemas.ProgressEvent{first, second} {
		for i, want := range []string{"parsing", "drafting", "scoring"} {
			ev := recvEvent(t, ch)
			assert.Equal(t, uint64(i+1), ev.Seq, "sequence numbers are assigned at publish")
			assert.Equal(t, want, ev.Message)
			assert.Equal(t, "run-1", ev.RunID)
			assert.False(t, ev.Timestamp.IsZero(), "the hub stamps unset timestamps")
		}
	}
}

func TestHub_PreservesPresetTimestamp(t *testing.T) {
	hub := progress.NewHub(zaptest.NewLogger(t), 0)
	defer hub.Close()

	ch, unsub := hub.Subscribe()
	defer unsub()

	stamped := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	hub.Publish(schemas.ProgressEvent{Message: "prestamped", Timestamp: stamped})

	assert.Equal(t, stamped, recvEvent(t, ch).Timestamp)
}

func TestHub_DropOldestKeepsMostRecentWindow(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	hub := progress.NewHub(zap.New(core), 2)
	defer hub.Close()

	ch, unsub := hub.Subscribe()
	defer unsub()

	// Nothing drains the channel, so events three through five each evict
	// the oldest queued event.
	for _, msg := range []string{"e1", "e2", "e3", "e4", "e5"} {
		hub.Publish(schemas.ProgressEvent{Message: msg})
	}

	got := recvEvent(t, ch)
	assert.Equal(t, "e4", got.Message)
	assert.Equal(t, uint64(4), got.Seq, "the sequence gap exposes the dropped prefix")

	got = recvEvent(t, ch)
	assert.Equal(t, "e5", got.Message)
	assert.Equal(t, uint64(5), got.Seq)

	assert.Equal(t, 3, logs.FilterMessage("Subscriber buffer full, dropped oldest event").Len())
}

func TestHub_PublishNeverBlocksOnStalledSubscriber(t *testing.T) {
	hub := progress.NewHub(zaptest.NewLogger(t), 4)
	defer hub.Close()

	_, unsub := hub.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			hub.Publish(schemas.ProgressEvent{Message: "flood"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a subscriber that never reads")
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := progress.NewHub(zaptest.NewLogger(t), 0)
	defer hub.Close()

	gone, unsubGone := hub.Subscribe()
	stays, unsubStays := hub.Subscribe()
	defer unsubStays()

	unsubGone()
	unsubGone() // second call is a no-op

	assertClosed(t, gone)

	hub.Publish(schemas.ProgressEvent{Message: "after unsubscribe"})
	assert.Equal(t, "after unsubscribe", recvEvent(t, stays).Message)
}

func TestHub_CloseIsIdempotent(t *testing.T) {
	hub := progress.NewHub(zaptest.NewLogger(t), 0)

	ch, unsub := hub.Subscribe()

	hub.Close()
	hub.Close()

	assertClosed(t, ch)
	unsub() // unsubscribing after close must not double-close

	// Publishing into a closed hub is a silent no-op.
	hub.Publish(schemas.ProgressEvent{Message: "ignored"})

	// A late subscriber gets an already-closed channel.
	late, lateUnsub := hub.Subscribe()
	assertClosed(t, late)
	lateUnsub()
}

func TestHub_ConcurrentSubscribeUnsubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := progress.NewHub(zaptest.NewLogger(t), 8)

	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		for i := 0; i < 500; i++ {
			hub.Publish(schemas.ProgressEvent{Message: "tick"})
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				ch, unsub := hub.Subscribe()
				select {
				case <-ch:
				default:
				}
				unsub()
			}
		}()
	}

	wg.Wait()
	<-producerDone
	hub.Close()
}
