package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tradevault/marketpulse/internal/cache"
	"github.com/tradevault/marketpulse/pkg/metrics"
	"github.com/tradevault/marketpulse/pkg/models"
)

const channelPrefix = "mp:stream:"

// ConnState is the authoritative subscriber connection state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateReady
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

const (
	baseReconnectDelay   = 500 * time.Millisecond
	maxReconnectDelay    = 30 * time.Second
	maxReconnectAttempts = 10
)

// Handler receives messages for a subscribed symbol. Handler panics are
// contained by the dispatch loop.
type Handler func(models.StreamMessage)

// Redistributor is the single per-process ingestion path: ticks are
// published once to per-symbol channels and fanned out to every subscriber,
// with the hot cache written as a side effect so cache readers share the
// same ingestion cost. Without a Redis backend it degrades to in-process
// fan-out to local handlers.
type Redistributor struct {
	rdb    redis.UniversalClient // nil in degraded mode
	hot    *cache.HotCache
	mirror *KafkaMirror // optional audit/replay sink
	logger *zap.Logger

	mu         sync.Mutex
	state      ConnState
	pubsub     *redis.PubSub
	handlers   map[string]map[string]Handler // symbol -> handler id -> handler
	subscribed map[string]bool               // channels with an active redis subscription
	attempts   int
	retryTimer *time.Timer
}

// New creates a redistributor. rdb, hot, and mirror may be nil.
func New(rdb redis.UniversalClient, hot *cache.HotCache, mirror *KafkaMirror, logger *zap.Logger) *Redistributor {
	return &Redistributor{
		rdb:        rdb,
		hot:        hot,
		mirror:     mirror,
		logger:     logger,
		state:      StateDisconnected,
		handlers:   make(map[string]map[string]Handler),
		subscribed: make(map[string]bool),
	}
}

// State returns the current connection state.
func (r *Redistributor) State() ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func channelFor(symbol string) string {
	return channelPrefix + strings.ToUpper(symbol)
}

// PublishUpdate publishes one message to the symbol's channel. Quote, trade,
// and bar messages also write the hot cache; this is the single ingestion
// write path every cache reader relies on. Publish failures surface to the
// caller, hot-cache and mirror failures never do.
func (r *Redistributor) PublishUpdate(ctx context.Context, msg models.StreamMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	switch msg.Type {
	case models.MessageQuote, models.MessageTrade, models.MessageBar:
		if r.hot == nil {
			break
		}
		price := msg.Price
		if price == 0 && msg.Bar != nil {
			price = msg.Bar.Close
		}
		r.hot.Put(ctx, models.CachedQuote{
			Symbol:    msg.Symbol,
			Price:     price,
			Volume:    msg.Volume,
			Timestamp: msg.Timestamp,
		})
	}

	if r.mirror != nil {
		r.mirror.Publish(ctx, msg)
	}

	metrics.StreamPublished.WithLabelValues(string(msg.Type)).Inc()

	if r.rdb == nil {
		r.dispatchLocal(msg)
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, channelFor(msg.Symbol), data).Err()
}

// SubscribeToUpdates registers a handler for each symbol, lazily opening the
// shared subscriber connection and subscribing any channels not already
// covered. The returned closure unsubscribes: it deregisters the handler
// and drops each channel subscription once its last handler leaves. Calling
// it more than once is a no-op.
func (r *Redistributor) SubscribeToUpdates(symbols []string, handler Handler) (func(), error) {
	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		return nil, ErrClosed
	}

	id := uuid.NewString()
	var newChannels []string
	for _, s := range symbols {
		sym := strings.ToUpper(s)
		if r.handlers[sym] == nil {
			r.handlers[sym] = make(map[string]Handler)
		}
		r.handlers[sym][id] = handler
		ch := channelFor(sym)
		if !r.subscribed[ch] {
			r.subscribed[ch] = true
			newChannels = append(newChannels, ch)
		}
	}

	if r.rdb != nil && r.state == StateDisconnected {
		r.connectLocked()
	}
	ps := r.pubsub
	r.mu.Unlock()

	// network subscribe happens outside the lock
	if ps != nil && len(newChannels) > 0 {
		if err := ps.Subscribe(context.Background(), newChannels...); err != nil {
			r.logger.Warn("channel subscribe failed", zap.Strings("channels", newChannels), zap.Error(err))
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.unsubscribe(id, symbols) })
	}, nil
}

func (r *Redistributor) unsubscribe(id string, symbols []string) {
	r.mu.Lock()
	var drop []string
	for _, s := range symbols {
		sym := strings.ToUpper(s)
		if hs, ok := r.handlers[sym]; ok {
			delete(hs, id)
			if len(hs) == 0 {
				delete(r.handlers, sym)
				ch := channelFor(sym)
				if r.subscribed[ch] {
					delete(r.subscribed, ch)
					drop = append(drop, ch)
				}
			}
		}
	}
	ps := r.pubsub
	r.mu.Unlock()

	if ps != nil && len(drop) > 0 {
		if err := ps.Unsubscribe(context.Background(), drop...); err != nil {
			r.logger.Debug("channel unsubscribe failed", zap.Strings("channels", drop), zap.Error(err))
		}
	}
}

// connectLocked opens the shared pub/sub connection. Caller holds r.mu.
func (r *Redistributor) connectLocked() {
	r.state = StateConnecting
	r.pubsub = r.rdb.Subscribe(context.Background())
	r.state = StateReady
	r.attempts = 0
	go r.dispatchLoop(r.pubsub)
}

// dispatchLoop delivers messages until the connection drops, then schedules
// a reconnect. The backoff counter resets on the first delivered message,
// not on connect, so a link that dies right after dialing keeps escalating.
// One bad payload or one panicking handler never stops delivery to the rest.
func (r *Redistributor) dispatchLoop(ps *redis.PubSub) {
	healthy := false
	for m := range ps.Channel() {
		if !healthy {
			healthy = true
			r.mu.Lock()
			if r.pubsub == ps {
				r.attempts = 0
			}
			r.mu.Unlock()
		}
		var msg models.StreamMessage
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			r.logger.Warn("dropping unparseable stream message",
				zap.String("channel", m.Channel), zap.Error(err))
			continue
		}
		if msg.Symbol == "" {
			msg.Symbol = strings.TrimPrefix(m.Channel, channelPrefix)
		}
		r.dispatchLocal(msg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed || r.pubsub != ps {
		return
	}
	r.state = StateDisconnected
	r.scheduleReconnectLocked()
}

// dispatchLocal fans one message out to the symbol's handlers.
func (r *Redistributor) dispatchLocal(msg models.StreamMessage) {
	sym := strings.ToUpper(msg.Symbol)
	r.mu.Lock()
	hs := make([]Handler, 0, len(r.handlers[sym]))
	for _, h := range r.handlers[sym] {
		hs = append(hs, h)
	}
	r.mu.Unlock()

	for _, h := range hs {
		r.safeInvoke(h, msg)
	}
}

func (r *Redistributor) safeInvoke(h Handler, msg models.StreamMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.StreamHandlerErrors.Inc()
			r.logger.Error("stream handler panic contained",
				zap.String("symbol", msg.Symbol), zap.Any("panic", rec))
		}
	}()
	h(msg)
}

// reconnectDelay doubles per attempt from the base, capped at the max.
func reconnectDelay(attempt int) time.Duration {
	delay := baseReconnectDelay << attempt
	if delay > maxReconnectDelay || delay <= 0 {
		delay = maxReconnectDelay
	}
	return delay
}

// scheduleReconnectLocked arms the backoff timer. Caller holds r.mu.
func (r *Redistributor) scheduleReconnectLocked() {
	if r.attempts >= maxReconnectAttempts {
		r.logger.Error("giving up on stream reconnect",
			zap.Int("attempts", r.attempts))
		return
	}
	delay := reconnectDelay(r.attempts)
	r.attempts++
	r.state = StateConnecting
	metrics.StreamReconnects.Inc()
	r.logger.Info("scheduling stream reconnect",
		zap.Int("attempt", r.attempts), zap.Duration("delay", delay))

	r.retryTimer = time.AfterFunc(delay, r.reconnect)
}

// reconnect reopens the connection and restores every channel that still has
// active handlers.
func (r *Redistributor) reconnect() {
	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		return
	}
	old := r.pubsub
	ps := r.rdb.Subscribe(context.Background())
	r.pubsub = ps
	channels := make([]string, 0, len(r.subscribed))
	for ch := range r.subscribed {
		channels = append(channels, ch)
	}
	r.state = StateReady
	r.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	if len(channels) > 0 {
		if err := ps.Subscribe(context.Background(), channels...); err != nil {
			r.logger.Warn("resubscribe failed", zap.Error(err))
		}
	}
	go r.dispatchLoop(ps)
}

// Close shuts the redistributor down: cancels any pending reconnect, closes
// the subscriber connection and the mirror. Terminal and idempotent.
func (r *Redistributor) Close() error {
	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		return nil
	}
	r.state = StateClosed
	if r.retryTimer != nil {
		r.retryTimer.Stop()
		r.retryTimer = nil
	}
	ps := r.pubsub
	r.pubsub = nil
	r.mu.Unlock()

	if ps != nil {
		_ = ps.Close()
	}
	if r.mirror != nil {
		return r.mirror.Close()
	}
	return nil
}
