package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageHandler receives one normalized telemetry message.
type MessageHandler func(msg Message)

type subEntry struct {
	id string
	fn MessageHandler
}

// subscriptionRegistry multiplexes normalized messages to subscribers.
// Each subscription gets a uuid identity so the returned unsubscribe func
// removes exactly that callback, and removal on panic targets only the
// offender.
type subscriptionRegistry struct {
	mu   sync.RWMutex
	subs map[string]map[string]MessageHandler // message type → subscription id → callback
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		subs: make(map[string]map[string]MessageHandler),
	}
}

// subscribe registers fn for msgType (or TypeAll) and returns its unsubscribe
// function. Invalid input yields a no-op unsubscribe rather than an error.
// Unsubscribing twice is safe.
func (r *subscriptionRegistry) subscribe(msgType string, fn MessageHandler) func() {
	if msgType == "" || fn == nil {
		return func() {}
	}

	id := uuid.New().String()
	r.mu.Lock()
	set, ok := r.subs[msgType]
	if !ok {
		set = make(map[string]MessageHandler)
		r.subs[msgType] = set
	}
	set[id] = fn
	r.mu.Unlock()

	return func() { r.remove(msgType, id) }
}

func (r *subscriptionRegistry) remove(msgType, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[msgType]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.subs, msgType)
	}
}

// dispatch delivers msg to its exact-type subscribers; wildcard subscribers
// see it only when no exact subscriber exists. A panicking callback is
// unsubscribed and reported through onError, and the remaining callbacks of
// the same message are still invoked.
func (r *subscriptionRegistry) dispatch(msg Message, onError ErrorHandler) {
	r.mu.RLock()
	key := msg.Type
	set := r.subs[key]
	if len(set) == 0 {
		key = TypeAll
		set = r.subs[key]
	}
	entries := make([]subEntry, 0, len(set))
	for id, fn := range set {
		entries = append(entries, subEntry{id: id, fn: fn})
	}
	r.mu.RUnlock()

	for _, e := range entries {
		r.invoke(key, e, msg, onError)
	}
}

func (r *subscriptionRegistry) invoke(key string, e subEntry, msg Message, onError ErrorHandler) {
	defer func() {
		if rec := recover(); rec != nil {
			r.remove(key, e.id)
			onError(ClientError{
				Kind:      ErrSubscriberPanic,
				MsgType:   msg.Type,
				Cause:     fmt.Errorf("subscriber panic: %v", rec),
				Timestamp: time.Now(),
			})
		}
	}()
	e.fn(msg)
}
