package hushwire

import "sync"

// typingSet tracks which peers are currently typing. In-memory only.
type typingSet struct {
	mu    sync.Mutex
	peers map[int64]struct{}
}

func newTypingSet() *typingSet {
	return &typingSet{peers: make(map[int64]struct{})}
}

// set adds or removes a peer and reports whether membership changed.
func (t *typingSet) set(peerID int64, typing bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, present := t.peers[peerID]
	if typing == present {
		return false
	}
	if typing {
		t.peers[peerID] = struct{}{}
	} else {
		delete(t.peers, peerID)
	}
	return true
}

// snapshot returns the current typing peer ids.
func (t *typingSet) snapshot() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]int64, 0, len(t.peers))
	for id := range t.peers {
		ids = append(ids, id)
	}
	return ids
}
