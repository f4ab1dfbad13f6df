package broadcast

import (
	"errors"

	"github.com/gogotex/gogotex/backend/collab-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/metrics"
)

var (
	ErrPeerClosed = errors.New("peer closed")
	ErrPeerBusy   = errors.New("peer send buffer full")
)

// Kind tags a payload so receivers can treat edits and presence differently.
type Kind string

const (
	KindEdit     Kind = "edit"
	KindCursor   Kind = "cursor"
	KindPresence Kind = "presence"
	// KindControl frames are addressed to a single session (errors, acks)
	// and never fanned out.
	KindControl Kind = "control"
)

// Message is one fan-out unit. Frame is the encoded wire frame written to
// peers as is; Content carries the full document body for KindEdit.
type Message struct {
	Room    string
	Kind    Kind
	Frame   []byte
	Content string
}

// Peer is a room member able to accept a message without blocking.
type Peer interface {
	ID() string
	Deliver(msg Message) error
}

// Membership is the router's view of room membership.
type Membership interface {
	// Peers snapshots the members of roomID other than excludeID.
	Peers(roomID, excludeID string) []Peer
	// Prune removes a member found closed during fan-out.
	Prune(roomID, peerID string)
}

// Router fans a message out to room peers. Delivery is best-effort and
// at-most-once; it never waits on a slow peer.
type Router struct {
	view Membership
}

func NewRouter(view Membership) *Router {
	return &Router{view: view}
}

// Publish delivers msg to every member of roomID except senderID (an empty
// senderID excludes nobody) and returns how many peers accepted it.
func (r *Router) Publish(roomID, senderID string, msg Message) int {
	msg.Room = roomID
	delivered := 0
	for _, p := range r.view.Peers(roomID, senderID) {
		switch err := p.Deliver(msg); {
		case err == nil:
			delivered++
			metrics.BroadcastDelivered.WithLabelValues(string(msg.Kind)).Inc()
		case errors.Is(err, ErrPeerClosed):
			metrics.BroadcastDropped.WithLabelValues("closed").Inc()
			r.view.Prune(roomID, p.ID())
		default:
			metrics.BroadcastDropped.WithLabelValues("full").Inc()
			logger.Debugf("broadcast: dropped %s for slow peer %s in room %s", msg.Kind, p.ID(), roomID)
		}
	}
	return delivered
}
