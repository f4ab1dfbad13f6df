package docsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/broadcast"
	"github.com/gogotex/gogotex/backend/collab-service/internal/document"
	"github.com/gogotex/gogotex/backend/collab-service/internal/models"
	"github.com/gogotex/gogotex/backend/collab-service/internal/protocol"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/metrics"
)

var ErrClosed = errors.New("sync controller closed")

const (
	DefaultWindow  = time.Second
	persistTimeout = 10 * time.Second
)

// State of one (session, document) pair.
type State int

const (
	Idle State = iota
	LocallyEditing
	Persisting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LocallyEditing:
		return "locally_editing"
	case Persisting:
		return "persisting"
	}
	return "unknown"
}

// Publisher fans a message out to a room (broadcast.Router).
type Publisher interface {
	Publish(roomID, senderID string, msg broadcast.Message) int
}

// Store is the slice of the document service the controller needs.
type Store interface {
	Authorize(ctx context.Context, docID, userID string) (*document.Document, error)
	Commit(ctx context.Context, docID, content, author string) (int, error)
	Revert(ctx context.Context, docID, userID string, version int) (*document.Document, error)
}

// Notifier receives the outcome of background persists.
type Notifier interface {
	Persisted(docID string, version int)
	PersistFailed(docID string, err error)
}

type docState struct {
	content    string
	state      State
	timer      *time.Timer
	gen        uint64
	authorized bool

	// held for the duration of a store write so one session's commits for a
	// document never overtake each other
	persistMu sync.Mutex
}

// Controller owns the editing state of one connection across the documents it
// has open. Local edits are published immediately and persisted after a
// quiet window; remote edits are only applied while the document is Idle.
type Controller struct {
	sessionID string
	user      models.Identity
	pub       Publisher
	store     Store
	window    time.Duration
	notify    Notifier

	mu     sync.Mutex
	docs   map[string]*docState
	closed bool
}

func New(sessionID string, user models.Identity, pub Publisher, store Store, window time.Duration, notify Notifier) *Controller {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Controller{
		sessionID: sessionID,
		user:      user,
		pub:       pub,
		store:     store,
		window:    window,
		notify:    notify,
		docs:      make(map[string]*docState),
	}
}

func (c *Controller) stateFor(docID string) *docState {
	st, ok := c.docs[docID]
	if !ok {
		st = &docState{}
		c.docs[docID] = st
	}
	return st
}

// LocalEdit records content typed by this session's user, publishes it to the
// room and restarts the persist debounce. The first edit of a document checks
// that it exists and that the user may edit it.
func (c *Controller) LocalEdit(ctx context.Context, docID, content string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	authorized := c.docs[docID] != nil && c.docs[docID].authorized
	c.mu.Unlock()

	if !authorized {
		if _, err := c.store.Authorize(ctx, docID, c.user.ID); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	st := c.stateFor(docID)
	st.authorized = true
	st.content = content
	st.state = LocallyEditing
	st.gen++
	c.armLocked(docID, st)
	c.mu.Unlock()

	c.pub.Publish(docID, c.sessionID, broadcast.Message{
		Kind:    broadcast.KindEdit,
		Frame:   protocol.Encode(protocol.Edit(docID, content)),
		Content: content,
	})
	return nil
}

// armLocked (re)starts the debounce timer for st's current generation.
func (c *Controller) armLocked(docID string, st *docState) {
	if st.timer != nil {
		st.timer.Stop()
	}
	gen := st.gen
	st.timer = time.AfterFunc(c.window, func() { c.persist(docID, gen) })
}

// persist commits the content of generation gen. Callbacks for a superseded
// generation do nothing.
func (c *Controller) persist(docID string, gen uint64) {
	c.mu.Lock()
	st, ok := c.docs[docID]
	c.mu.Unlock()
	if !ok {
		return
	}
	st.persistMu.Lock()
	defer st.persistMu.Unlock()

	c.mu.Lock()
	if st.gen != gen || st.state != LocallyEditing {
		c.mu.Unlock()
		return
	}
	st.state = Persisting
	st.timer = nil
	content := st.content
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	version, err := c.store.Commit(ctx, docID, content, c.user.ID)
	cancel()

	retry := err != nil && errors.Is(err, document.ErrPersistence)
	c.mu.Lock()
	if st.gen == gen {
		switch {
		case retry:
			st.state = LocallyEditing
			if !c.closed {
				c.armLocked(docID, st)
			}
		case err != nil:
			// the document is gone or no longer editable; the next edit
			// checks again
			st.state = Idle
			st.authorized = false
		default:
			st.state = Idle
		}
	}
	c.mu.Unlock()

	log := logger.WithFields(logger.Fields{"session": c.sessionID, "doc": docID})
	if err != nil {
		if retry {
			log.Warnf("persist failed, will retry: %v", err)
		} else {
			log.Infof("persist refused: %v", err)
		}
		if c.notify != nil {
			c.notify.PersistFailed(docID, err)
		}
		return
	}
	log.Debugf("persisted v%d", version)
	if c.notify != nil {
		c.notify.Persisted(docID, version)
	}
}

// RemoteEdit applies content received from a peer. It returns false, leaving
// local content untouched, when this session is editing or persisting the
// document.
func (c *Controller) RemoteEdit(docID, content string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	st := c.stateFor(docID)
	if st.state != Idle {
		metrics.RemoteEditsDiscarded.Inc()
		return false
	}
	st.content = content
	return true
}

// Revert restores snapshot version as the document's current content and
// sends it to every room member, this session included. A pending persist
// of this session's local edits is cancelled.
func (c *Controller) Revert(ctx context.Context, docID string, version int) (*document.Document, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	st := c.stateFor(docID)
	c.mu.Unlock()

	// wait out an in-flight commit so it cannot land after the revert
	st.persistMu.Lock()
	defer st.persistMu.Unlock()

	d, err := c.store.Revert(ctx, docID, c.user.ID, version)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.gen++
	st.state = Idle
	st.authorized = true
	st.content = d.Content
	c.mu.Unlock()

	PublishRevert(c.pub, docID, version, d.Content)
	return d, nil
}

// PublishRevert broadcasts reverted content to every member of the room. It
// travels as an edit so receivers apply the usual remote-edit rules.
func PublishRevert(pub Publisher, docID string, version int, content string) int {
	return pub.Publish(docID, "", broadcast.Message{
		Kind:    broadcast.KindEdit,
		Frame:   protocol.Encode(protocol.Reverted(docID, version, content)),
		Content: content,
	})
}

// Snapshot returns the last known content and state for docID.
func (c *Controller) Snapshot(docID string) (string, State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.docs[docID]
	if !ok {
		return "", Idle
	}
	return st.content, st.state
}

// Forget drops the state of a document the session left. A pending persist
// is flushed first.
func (c *Controller) Forget(docID string) {
	c.mu.Lock()
	st, ok := c.docs[docID]
	var gen uint64
	pending := ok && st.state == LocallyEditing
	if pending {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		gen = st.gen
	}
	c.mu.Unlock()
	if pending {
		c.persist(docID, gen)
	}
	c.mu.Lock()
	if cur, ok := c.docs[docID]; ok && cur == st && cur.state != LocallyEditing {
		delete(c.docs, docID)
	}
	c.mu.Unlock()
}

// Close stops accepting edits and synchronously persists every document that
// still has unsaved local edits.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	type pending struct {
		docID string
		gen   uint64
	}
	var flush []pending
	for docID, st := range c.docs {
		if st.state == LocallyEditing {
			if st.timer != nil {
				st.timer.Stop()
				st.timer = nil
			}
			flush = append(flush, pending{docID, st.gen})
		}
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range flush {
		wg.Add(1)
		go func(p pending) {
			defer wg.Done()
			c.persist(p.docID, p.gen)
		}(p)
	}
	wg.Wait()
}
