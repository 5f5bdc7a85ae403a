package topic

import "github.com/nas-panel/panel-server/internal/mqttcodec"

// Router bundles the live subscription trie with the retained message
// store. None of its methods take a lock of their own; Table serializes
// access to it with a single mutex, separate from the broker's
// session-table lock.
type Router struct {
	Subs     *Trie
	Retained *RetainedStore
}

func NewRouter() *Router {
	return &Router{Subs: NewTrie(), Retained: NewRetainedStore()}
}

// Subscribe registers clientID's interest in filter at the requested QoS
// and returns the list of retained topics that immediately match, so the
// broker can replay them to the new subscriber with the retain flag set.
func (r *Router) Subscribe(filter, clientID string, qos mqttcodec.QoS) ([]string, error) {
	if err := r.Subs.Subscribe(filter, clientID, qos); err != nil {
		return nil, err
	}
	return r.Retained.Match(filter), nil
}

// Unsubscribe removes clientID's subscription on filter.
func (r *Router) Unsubscribe(filter, clientID string) bool {
	return r.Subs.Unsubscribe(filter, clientID)
}

// UnsubscribeAll drops every subscription owned by clientID, used when a
// session closes.
func (r *Router) UnsubscribeAll(clientID string) {
	r.Subs.UnsubscribeAll(clientID)
}

// Publish records topic as retained (or clears it) when retain is set,
// and returns the subscribers that should receive the message now.
func (r *Router) Publish(topicName string, payload []byte, qos byte, retain bool) []Subscriber {
	if retain {
		r.Retained.Set(topicName, payload, qos)
	}
	return r.Subs.Match(topicName)
}
