package broadcast

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	id     string
	mu     sync.Mutex
	got    []Message
	closed bool
	busy   bool
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Deliver(msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPeerClosed
	}
	if p.busy {
		return ErrPeerBusy
	}
	p.got = append(p.got, msg)
	return nil
}

func (p *fakePeer) received() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.got...)
}

type fakeView struct {
	mu     sync.Mutex
	rooms  map[string][]*fakePeer
	pruned []string
}

func (v *fakeView) Peers(roomID, excludeID string) []Peer {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := []Peer{}
	for _, p := range v.rooms[roomID] {
		if p.id != excludeID {
			out = append(out, p)
		}
	}
	return out
}

func (v *fakeView) Prune(roomID, peerID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pruned = append(v.pruned, peerID)
	kept := v.rooms[roomID][:0]
	for _, p := range v.rooms[roomID] {
		if p.id != peerID {
			kept = append(kept, p)
		}
	}
	v.rooms[roomID] = kept
}

func TestPublish_ExcludesSender(t *testing.T) {
	a, b, c := &fakePeer{id: "A"}, &fakePeer{id: "B"}, &fakePeer{id: "C"}
	view := &fakeView{rooms: map[string][]*fakePeer{"doc1": {a, b, c}}}
	r := NewRouter(view)

	n := r.Publish("doc1", "A", Message{Kind: KindEdit, Frame: []byte(`{}`), Content: "hello"})
	require.Equal(t, 2, n)
	require.Empty(t, a.received())
	require.Len(t, b.received(), 1)
	require.Len(t, c.received(), 1)
	require.Equal(t, "doc1", b.received()[0].Room)
	require.Equal(t, "hello", c.received()[0].Content)
}

func TestPublish_EmptySenderReachesEveryone(t *testing.T) {
	a, b := &fakePeer{id: "A"}, &fakePeer{id: "B"}
	r := NewRouter(&fakeView{rooms: map[string][]*fakePeer{"doc1": {a, b}}})
	require.Equal(t, 2, r.Publish("doc1", "", Message{Kind: KindEdit}))
}

func TestPublish_OtherRoomsUntouched(t *testing.T) {
	a, b := &fakePeer{id: "A"}, &fakePeer{id: "B"}
	r := NewRouter(&fakeView{rooms: map[string][]*fakePeer{"doc1": {a}, "doc2": {b}}})
	r.Publish("doc1", "", Message{Kind: KindCursor})
	require.Empty(t, b.received())
}

func TestPublish_PrunesClosedAndSkipsBusyPeers(t *testing.T) {
	a := &fakePeer{id: "A"}
	dead := &fakePeer{id: "dead", closed: true}
	slow := &fakePeer{id: "slow", busy: true}
	view := &fakeView{rooms: map[string][]*fakePeer{"doc1": {a, dead, slow}}}
	r := NewRouter(view)

	n := r.Publish("doc1", "A", Message{Kind: KindEdit})
	require.Equal(t, 0, n)
	require.Equal(t, []string{"dead"}, view.pruned)
	require.Len(t, view.rooms["doc1"], 2, "busy peers stay members")
}
