package broker

import "testing"

func matchSet(matches []Match) map[*Session]byte {
	out := make(map[*Session]byte, len(matches))
	for _, m := range matches {
		out[m.Session] = m.QoS
	}
	return out
}

func TestTrieLiteralMatch(t *testing.T) {
	trie := NewTrie()
	s := newSession("c1", nil)
	if err := trie.Subscribe("a/b/c", 1, s); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	matches := matchSet(trie.Publish("a/b/c"))
	if matches[s] != 1 {
		t.Errorf("expected literal match at QoS 1, got %v", matches)
	}
	if got := trie.Publish("a/b/d"); len(got) != 0 {
		t.Errorf("expected no match, got %v", got)
	}
}

func TestTriePlusWildcard(t *testing.T) {
	trie := NewTrie()
	s := newSession("c1", nil)
	if err := trie.Subscribe("a/+/c", 0, s); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if matches := trie.Publish("a/b/c"); len(matches) != 1 {
		t.Errorf("expected a/+/c to match a/b/c, got %v", matches)
	}
	if matches := trie.Publish("a/b/x/c"); len(matches) != 0 {
		t.Errorf("+ must match exactly one segment, got %v", matches)
	}
	if matches := trie.Publish("a/c"); len(matches) != 0 {
		t.Errorf("+ must not match a missing segment, got %v", matches)
	}
}

func TestTrieHashWildcard(t *testing.T) {
	trie := NewTrie()
	s := newSession("c1", nil)
	if err := trie.Subscribe("a/#", 2, s); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for _, topic := range []string{"a", "a/b", "a/b/c", "a/b/c/d"} {
		if matches := trie.Publish(topic); len(matches) != 1 {
			t.Errorf("expected a/# to match %s, got %v", topic, matches)
		}
	}
	if matches := trie.Publish("x/y"); len(matches) != 0 {
		t.Errorf("a/# must not match x/y, got %v", matches)
	}
}

func TestTrieRootHashMatchesEverythingExceptDollar(t *testing.T) {
	trie := NewTrie()
	s := newSession("c1", nil)
	if err := trie.Subscribe("#", 0, s); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if matches := trie.Publish("anything/at/all"); len(matches) != 1 {
		t.Errorf("expected root # to match, got %v", matches)
	}
	if matches := trie.Publish("$SYS/broker/uptime"); len(matches) != 0 {
		t.Errorf("root # must not match a $-prefixed topic, got %v", matches)
	}
}

func TestTrieRootPlusExcludesDollarTopics(t *testing.T) {
	trie := NewTrie()
	s := newSession("c1", nil)
	if err := trie.Subscribe("+/status", 0, s); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if matches := trie.Publish("device/status"); len(matches) != 1 {
		t.Errorf("expected +/status to match device/status, got %v", matches)
	}
	if matches := trie.Publish("$SYS/status"); len(matches) != 0 {
		t.Errorf("root + must not match a $-prefixed topic, got %v", matches)
	}
}

func TestTrieDedupAtMaxQoS(t *testing.T) {
	trie := NewTrie()
	s := newSession("c1", nil)
	if err := trie.Subscribe("a/b", 0, s); err != nil {
		t.Fatalf("Subscribe literal: %v", err)
	}
	if err := trie.Subscribe("a/+", 2, s); err != nil {
		t.Fatalf("Subscribe wildcard: %v", err)
	}

	matches := trie.Publish("a/b")
	if len(matches) != 1 {
		t.Fatalf("expected one deduplicated match, got %d: %v", len(matches), matches)
	}
	if matches[0].QoS != 2 {
		t.Errorf("expected max granted QoS 2, got %d", matches[0].QoS)
	}
}

func TestTrieResubscribeReplacesQoS(t *testing.T) {
	trie := NewTrie()
	s := newSession("c1", nil)
	if err := trie.Subscribe("a/b", 0, s); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := trie.Subscribe("a/b", 2, s); err != nil {
		t.Fatalf("re-Subscribe: %v", err)
	}

	matches := trie.Publish("a/b")
	if len(matches) != 1 || matches[0].QoS != 2 {
		t.Fatalf("expected single subscriber at QoS 2, got %v", matches)
	}
}

func TestTrieUnsubscribePrunesEmptyBranches(t *testing.T) {
	trie := NewTrie()
	s := newSession("c1", nil)
	if err := trie.Subscribe("a/b/c", 0, s); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	trie.Unsubscribe("a/b/c", s)

	if matches := trie.Publish("a/b/c"); len(matches) != 0 {
		t.Errorf("expected no matches after unsubscribe, got %v", matches)
	}
	if len(trie.root.children) != 0 {
		t.Errorf("expected the a/b/c branch to be fully pruned from the root, root=%+v", trie.root)
	}
}

func TestTrieUnsubscribeLeavesOtherSubscribersIntact(t *testing.T) {
	trie := NewTrie()
	s1 := newSession("c1", nil)
	s2 := newSession("c2", nil)
	trie.Subscribe("a/b", 0, s1)
	trie.Subscribe("a/b", 1, s2)

	trie.Unsubscribe("a/b", s1)

	matches := matchSet(trie.Publish("a/b"))
	if len(matches) != 1 {
		t.Fatalf("expected one remaining subscriber, got %v", matches)
	}
	if matches[s2] != 1 {
		t.Errorf("expected s2 to remain at QoS 1, got %v", matches)
	}
}

func TestValidateFilterRejectsMalformedPatterns(t *testing.T) {
	cases := []struct {
		filter string
		valid  bool
	}{
		{"a/b/c", true},
		{"a/+/c", true},
		{"a/#", true},
		{"#", true},
		{"a/b#", false},
		{"a/#/c", false},
		{"a+/b", false},
		{"+", true},
	}

	for _, c := range cases {
		trie := NewTrie()
		err := trie.Subscribe(c.filter, 0, newSession("x", nil))
		if c.valid && err != nil {
			t.Errorf("filter %q: expected valid, got error %v", c.filter, err)
		}
		if !c.valid && err != ErrBadTopicFilter {
			t.Errorf("filter %q: expected ErrBadTopicFilter, got %v", c.filter, err)
		}
	}
}
