package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradevault/marketpulse/internal/cache"
	"github.com/tradevault/marketpulse/pkg/models"
)

func newLocalRedistributor() *Redistributor {
	hot := cache.NewHotCache(nil, zap.NewNop())
	return New(nil, hot, nil, zap.NewNop())
}

func TestPublishUpdate_DeliversToSubscribers(t *testing.T) {
	r := newLocalRedistributor()
	defer r.Close()

	got := make(chan models.StreamMessage, 1)
	unsub, err := r.SubscribeToUpdates([]string{"SPY"}, func(msg models.StreamMessage) {
		got <- msg
	})
	require.NoError(t, err)
	defer unsub()

	err = r.PublishUpdate(context.Background(), models.StreamMessage{
		Type: models.MessageQuote, Symbol: "SPY", Price: 500.5,
	})
	require.NoError(t, err)

	select {
	case msg := <-got:
		assert.Equal(t, "SPY", msg.Symbol)
		assert.Equal(t, 500.5, msg.Price)
	case <-time.After(time.Second):
		t.Fatal("handler never received the message")
	}
}

func TestPublishUpdate_SymbolIsolation(t *testing.T) {
	r := newLocalRedistributor()
	defer r.Close()

	got := make(chan models.StreamMessage, 4)
	unsub, err := r.SubscribeToUpdates([]string{"SPY"}, func(msg models.StreamMessage) {
		got <- msg
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, r.PublishUpdate(context.Background(), models.StreamMessage{
		Type: models.MessageTrade, Symbol: "QQQ", Price: 430,
	}))

	select {
	case msg := <-got:
		t.Fatalf("received message for unsubscribed symbol: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishUpdate_WritesHotCache(t *testing.T) {
	hot := cache.NewHotCache(nil, zap.NewNop())
	r := New(nil, hot, nil, zap.NewNop())
	defer r.Close()

	require.NoError(t, r.PublishUpdate(context.Background(), models.StreamMessage{
		Type: models.MessageQuote, Symbol: "SPY", Price: 499.9,
	}))

	q, ok := hot.Get(context.Background(), "SPY")
	require.True(t, ok, "quote messages must populate the hot cache")
	assert.Equal(t, 499.9, q.Price)

	// info messages must not touch the hot cache
	require.NoError(t, r.PublishUpdate(context.Background(), models.StreamMessage{
		Type: models.MessageInfo, Symbol: "TLT",
	}))
	_, ok = hot.Get(context.Background(), "TLT")
	assert.False(t, ok)
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	r := newLocalRedistributor()
	defer r.Close()

	delivered := 0
	unsub, err := r.SubscribeToUpdates([]string{"SPY"}, func(models.StreamMessage) {
		delivered++
	})
	require.NoError(t, err)

	unsub()
	unsub() // second call is a no-op

	require.NoError(t, r.PublishUpdate(context.Background(), models.StreamMessage{
		Type: models.MessageQuote, Symbol: "SPY", Price: 1,
	}))
	assert.Equal(t, 0, delivered)
}

func TestHandlerPanicContained(t *testing.T) {
	r := newLocalRedistributor()
	defer r.Close()

	got := make(chan struct{}, 1)
	_, err := r.SubscribeToUpdates([]string{"SPY"}, func(models.StreamMessage) {
		panic("bad handler")
	})
	require.NoError(t, err)
	_, err = r.SubscribeToUpdates([]string{"SPY"}, func(models.StreamMessage) {
		got <- struct{}{}
	})
	require.NoError(t, err)

	require.NoError(t, r.PublishUpdate(context.Background(), models.StreamMessage{
		Type: models.MessageQuote, Symbol: "SPY", Price: 2,
	}))

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("panicking handler stopped delivery to its peers")
	}
}

func TestClose_TerminalAndIdempotent(t *testing.T) {
	r := newLocalRedistributor()

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, StateClosed, r.State())

	_, err := r.SubscribeToUpdates([]string{"SPY"}, func(models.StreamMessage) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReconnectDelay_EscalatesToCap(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, reconnectDelay(0))
	assert.Equal(t, time.Second, reconnectDelay(1))
	assert.Equal(t, 16*time.Second, reconnectDelay(5))
	assert.Equal(t, maxReconnectDelay, reconnectDelay(6)) // 32s capped
	assert.Equal(t, maxReconnectDelay, reconnectDelay(maxReconnectAttempts-1))
}

func TestScheduleReconnect_AttemptsAccumulateAcrossDrops(t *testing.T) {
	r := newLocalRedistributor()
	defer r.Close()

	// repeated drops without a healthy delivery in between must keep
	// escalating until the attempt bound is hit
	for i := 0; i < maxReconnectAttempts; i++ {
		r.mu.Lock()
		before := r.attempts
		r.scheduleReconnectLocked()
		assert.Equal(t, before+1, r.attempts)
		require.NotNil(t, r.retryTimer)
		r.retryTimer.Stop()
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.retryTimer = nil
	r.scheduleReconnectLocked()
	assert.Equal(t, maxReconnectAttempts, r.attempts, "exhausted counter must not grow")
	assert.Nil(t, r.retryTimer, "no timer armed after giving up")
	r.mu.Unlock()
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "closed", StateClosed.String())
}
