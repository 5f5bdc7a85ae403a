package topic

import (
	"sync"

	"github.com/nas-panel/panel-server/internal/mqttcodec"
)

// Table is the thread-safe front door onto Router: one coarse mutex
// guards the subscription trie and the retained store together as a
// single unit (spec.md §5), separate from the broker's own session-table
// lock.
type Table struct {
	mu     sync.Mutex
	router *Router
}

func NewTable() *Table {
	return &Table{router: NewRouter()}
}

// Subscribe registers clientID's interest in filter and returns the
// retained topics that now immediately match it.
func (t *Table) Subscribe(filter, clientID string, qos mqttcodec.QoS) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.router.Subscribe(filter, clientID, qos)
}

// RetainedPayload returns the stored retained message for topic, if any.
func (t *Table) RetainedPayload(topic string) (*Retained, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.router.Retained.Get(topic)
}

func (t *Table) Unsubscribe(filter, clientID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.router.Unsubscribe(filter, clientID)
}

func (t *Table) UnsubscribeAll(clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.router.UnsubscribeAll(clientID)
}

// Publish stores topicName as retained when retain is set and returns the
// current matching subscribers.
func (t *Table) Publish(topicName string, payload []byte, qos byte, retain bool) []Subscriber {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.router.Publish(topicName, payload, qos, retain)
}

func (t *Table) SubscriptionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.router.Subs.Count()
}

func (t *Table) RetainedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.router.Retained.Count()
}
