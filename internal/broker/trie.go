package broker

import "strings"

type subscriber struct {
	session *Session
	qos     byte
}

// node is one path segment of the subscription trie. children holds
// literal-part edges; plus holds the single edge for a "+" part;
// hashSubs holds subscribers whose pattern ends "<this node's path>/#";
// subs holds subscribers whose pattern ends exactly at this node.
type node struct {
	children map[string]*node
	plus     *node
	subs     []subscriber
	hashSubs []subscriber
}

func isEmptyNode(n *node) bool {
	return n != nil && len(n.subs) == 0 && len(n.hashSubs) == 0 && n.plus == nil && len(n.children) == 0
}

// Trie is the global topic-filter routing structure: subscribe,
// unsubscribe, and publish-time matching with MQTT wildcard semantics.
type Trie struct {
	root *node
}

// NewTrie returns an empty subscription trie.
func NewTrie() *Trie {
	return &Trie{root: &node{}}
}

func splitTopic(topic string) []string {
	return strings.Split(topic, "/")
}

// validateFilter enforces spec.md §4.4: '#' must be the last part and
// must occupy a whole part; '+' must occupy a whole part.
func validateFilter(parts []string) bool {
	for i, p := range parts {
		if strings.Contains(p, "#") && p != "#" {
			return false
		}
		if p == "#" && i != len(parts)-1 {
			return false
		}
		if strings.Contains(p, "+") && p != "+" {
			return false
		}
	}
	return true
}

// Subscribe installs (pattern, qos, session) into the trie. A
// re-subscribe of the same pattern by the same session replaces the
// previously granted QoS rather than duplicating the entry. Returns
// ErrBadTopicFilter for a malformed pattern; the caller (broker
// dispatch) reports that inline as a SUBACK failure code, per
// spec.md §7.
func (t *Trie) Subscribe(pattern string, qos byte, session *Session) error {
	parts := splitTopic(pattern)
	if !validateFilter(parts) {
		return ErrBadTopicFilter
	}

	n := t.root
	for i, p := range parts {
		if p == "#" {
			n.hashSubs = upsertSubscriber(n.hashSubs, session, qos)
			return nil
		}
		if p == "+" {
			if n.plus == nil {
				n.plus = &node{}
			}
			n = n.plus
		} else {
			if n.children == nil {
				n.children = make(map[string]*node)
			}
			child, ok := n.children[p]
			if !ok {
				child = &node{}
				n.children[p] = child
			}
			n = child
		}
		if i == len(parts)-1 {
			n.subs = upsertSubscriber(n.subs, session, qos)
		}
	}
	return nil
}

func upsertSubscriber(subs []subscriber, session *Session, qos byte) []subscriber {
	for i := range subs {
		if subs[i].session == session {
			subs[i].qos = qos
			return subs
		}
	}
	return append(subs, subscriber{session: session, qos: qos})
}

func removeSubscriber(subs []subscriber, session *Session) []subscriber {
	out := subs[:0]
	for _, s := range subs {
		if s.session != session {
			out = append(out, s)
		}
	}
	return out
}

// Unsubscribe removes session's subscription to pattern, pruning any
// branch left with no subscribers and no descendants.
func (t *Trie) Unsubscribe(pattern string, session *Session) {
	removeFromNode(t.root, splitTopic(pattern), 0, session)
}

func removeFromNode(n *node, parts []string, i int, session *Session) {
	if n == nil {
		return
	}
	if i == len(parts) {
		n.subs = removeSubscriber(n.subs, session)
		return
	}
	switch parts[i] {
	case "#":
		n.hashSubs = removeSubscriber(n.hashSubs, session)
	case "+":
		if n.plus != nil {
			removeFromNode(n.plus, parts, i+1, session)
			if isEmptyNode(n.plus) {
				n.plus = nil
			}
		}
	default:
		if child, ok := n.children[parts[i]]; ok {
			removeFromNode(child, parts, i+1, session)
			if isEmptyNode(child) {
				delete(n.children, parts[i])
			}
		}
	}
}

// Match is one (session, granted-qos) routing result for a publish.
type Match struct {
	Session *Session
	QoS     byte
}

// Publish walks every trie path that matches topic and returns the
// deduplicated set of matching sessions, each at the maximum QoS
// granted across its matching patterns (spec.md §4.4 tie-break).
// Topics beginning with "$" never match a root-level "+" or "#",
// per MQTT convention.
func (t *Trie) Publish(topic string) []Match {
	parts := splitTopic(topic)
	isSysTopic := strings.HasPrefix(topic, "$")

	best := make(map[*Session]byte)
	walkPublish(t.root, parts, 0, isSysTopic, best)

	matches := make([]Match, 0, len(best))
	for s, q := range best {
		matches = append(matches, Match{Session: s, QoS: q})
	}
	return matches
}

func walkPublish(n *node, parts []string, depth int, isSysTopic bool, best map[*Session]byte) {
	if n == nil {
		return
	}
	if !(depth == 0 && isSysTopic) {
		for _, s := range n.hashSubs {
			recordMax(best, s.session, s.qos)
		}
	}
	if depth == len(parts) {
		for _, s := range n.subs {
			recordMax(best, s.session, s.qos)
		}
		return
	}

	part := parts[depth]
	if child, ok := n.children[part]; ok {
		walkPublish(child, parts, depth+1, isSysTopic, best)
	}
	if !(depth == 0 && isSysTopic) && n.plus != nil {
		walkPublish(n.plus, parts, depth+1, isSysTopic, best)
	}
}

func recordMax(best map[*Session]byte, session *Session, qos byte) {
	if cur, ok := best[session]; !ok || qos > cur {
		best[session] = qos
	}
}
