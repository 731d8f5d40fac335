// Package notify delivers balance-changed events after the ledger commits.
//
// Hub fans events out to in-process subscribers (server-sent events),
// Dispatcher forwards them to external sinks (redis, kafka) from a worker pool.
// Publishing never blocks the ledger: slow receivers lose events.
package notify

import (
	"sync"

	"github.com/nkiryanov/pointledger/internal/logger"
	"github.com/nkiryanov/pointledger/internal/models"
)

const defaultSubscriberBuffer = 16

type Publisher interface {
	Publish(ev models.BalanceEvent)
}

// Fanout publishes event to every publisher in order
type Fanout []Publisher

func (f Fanout) Publish(ev models.BalanceEvent) {
	for _, p := range f {
		p.Publish(ev)
	}
}

type subscriber struct {
	ch chan models.BalanceEvent
}

type Hub struct {
	mu   sync.RWMutex
	subs map[models.BalanceKey]map[*subscriber]struct{}

	buffer int
	logger logger.Logger
}

func NewHub(logger logger.Logger) *Hub {
	return &Hub{
		subs:   make(map[models.BalanceKey]map[*subscriber]struct{}),
		buffer: defaultSubscriberBuffer,
		logger: logger,
	}
}

// Subscribe returns channel with events of the balance
// Channel is closed after cancel is called
func (h *Hub) Subscribe(key models.BalanceKey) (events <-chan models.BalanceEvent, cancel func()) {
	sub := &subscriber{ch: make(chan models.BalanceEvent, h.buffer)}

	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*subscriber]struct{})
	}
	h.subs[key][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			delete(h.subs[key], sub)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
			close(sub.ch)
		})
	}
}

func (h *Hub) Publish(ev models.BalanceEvent) {
	key := ev.Balance.Key()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[key] {
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("Subscriber is too slow, event dropped", "key", key.String(), "transaction", ev.Transaction.ID)
		}
	}
}

// Subscribers returns number of active subscriptions for the key
func (h *Hub) Subscribers(key models.BalanceKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}
