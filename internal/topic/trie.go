package topic

import "github.com/nas-panel/panel-server/internal/mqttcodec"

// Subscriber is one client's interest in a topic filter.
type Subscriber struct {
	ClientID string
	QoS      mqttcodec.QoS
}

type trieNode struct {
	children    map[string]*trieNode
	subscribers []Subscriber
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

// Trie is a subscription trie keyed by topic level. It is not safe for
// concurrent use on its own; callers serialize access through Table's
// mutex.
type Trie struct {
	root *trieNode
}

func NewTrie() *Trie {
	return &Trie{root: newTrieNode()}
}

// Subscribe records that clientID wants filter at the given QoS. If
// clientID already has a subscription on this exact filter it is replaced,
// matching MQTT 3.1.1's "a new subscription overrides the old one" rule.
func (t *Trie) Subscribe(filter, clientID string, qos mqttcodec.QoS) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}

	node := t.root
	for _, level := range splitLevels(filter) {
		child := node.children[level]
		if child == nil {
			child = newTrieNode()
			node.children[level] = child
		}
		node = child
	}

	for i := range node.subscribers {
		if node.subscribers[i].ClientID == clientID {
			node.subscribers[i].QoS = qos
			return nil
		}
	}
	node.subscribers = append(node.subscribers, Subscriber{ClientID: clientID, QoS: qos})
	return nil
}

// Unsubscribe removes clientID's subscription on filter, if any, pruning
// now-empty trie nodes. Returns whether a subscription was removed.
func (t *Trie) Unsubscribe(filter, clientID string) bool {
	levels := splitLevels(filter)
	return t.unsubscribe(t.root, levels, clientID, 0)
}

func (t *Trie) unsubscribe(node *trieNode, levels []string, clientID string, depth int) bool {
	if depth == len(levels) {
		for i, sub := range node.subscribers {
			if sub.ClientID == clientID {
				node.subscribers = append(node.subscribers[:i], node.subscribers[i+1:]...)
				return true
			}
		}
		return false
	}

	level := levels[depth]
	child := node.children[level]
	if child == nil {
		return false
	}
	removed := t.unsubscribe(child, levels, clientID, depth+1)
	if removed && len(child.subscribers) == 0 && len(child.children) == 0 {
		delete(node.children, level)
	}
	return removed
}

// UnsubscribeAll removes every subscription belonging to clientID, used
// when a session closes. It walks the whole trie since the client's
// filters are not indexed separately from the trie itself.
func (t *Trie) UnsubscribeAll(clientID string) {
	removeClientRecursive(t.root, clientID)
}

func removeClientRecursive(node *trieNode, clientID string) {
	for i := 0; i < len(node.subscribers); {
		if node.subscribers[i].ClientID == clientID {
			node.subscribers = append(node.subscribers[:i], node.subscribers[i+1:]...)
			continue
		}
		i++
	}
	for level, child := range node.children {
		removeClientRecursive(child, clientID)
		if len(child.subscribers) == 0 && len(child.children) == 0 {
			delete(node.children, level)
		}
	}
}

// Match returns every subscriber whose filter matches topicName, following
// the '+' and '#' wildcard rules. A leading '$' level in topicName is only
// matchable by an exact filter level, never by '+' or '#' at that
// position — this keeps system-style topics (e.g. "$SYS/...") out of
// broad wildcard subscriptions, mirroring how the retained store treats
// them.
func (t *Trie) Match(topicName string) []Subscriber {
	levels := splitLevels(topicName)
	var out []Subscriber
	matchRecursive(t.root, levels, 0, &out)
	return out
}

func matchRecursive(node *trieNode, levels []string, depth int, out *[]Subscriber) {
	if multi := node.children["#"]; multi != nil {
		if depth != 0 || !startsWithDollar(levels, depth) {
			*out = append(*out, multi.subscribers...)
		}
	}

	if depth == len(levels) {
		*out = append(*out, node.subscribers...)
		return
	}

	level := levels[depth]
	if exact := node.children[level]; exact != nil {
		matchRecursive(exact, levels, depth+1, out)
	}

	if plus := node.children["+"]; plus != nil {
		if depth != 0 || !startsWithDollar(levels, depth) {
			matchRecursive(plus, levels, depth+1, out)
		}
	}
}

func startsWithDollar(levels []string, depth int) bool {
	return depth < len(levels) && len(levels[depth]) > 0 && levels[depth][0] == '$'
}

// Count returns the total number of individual subscriptions in the trie.
func (t *Trie) Count() int {
	return countRecursive(t.root)
}

func countRecursive(node *trieNode) int {
	n := len(node.subscribers)
	for _, child := range node.children {
		n += countRecursive(child)
	}
	return n
}
