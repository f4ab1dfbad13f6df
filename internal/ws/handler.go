// Package ws serves the collaboration websocket: one reader and one writer
// goroutine per connection, joined to rooms through the session registry.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/auth"
	"github.com/gogotex/gogotex/backend/collab-service/internal/broadcast"
	"github.com/gogotex/gogotex/backend/collab-service/internal/config"
	"github.com/gogotex/gogotex/backend/collab-service/internal/docsync"
	"github.com/gogotex/gogotex/backend/collab-service/internal/document"
	"github.com/gogotex/gogotex/backend/collab-service/internal/models"
	"github.com/gogotex/gogotex/backend/collab-service/internal/protocol"
	"github.com/gogotex/gogotex/backend/collab-service/internal/sessions"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/metrics"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Handler upgrades authenticated requests to collaboration sessions.
type Handler struct {
	gate     *auth.Gate
	registry *sessions.Registry
	router   *broadcast.Router
	store    docsync.Store
	cfg      config.SyncConfig
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closing bool
	live    sync.WaitGroup
}

func NewHandler(gate *auth.Gate, registry *sessions.Registry, router *broadcast.Router, store docsync.Store, cfg config.SyncConfig) *Handler {
	return &Handler{
		gate:     gate,
		registry: registry,
		router:   router,
		store:    store,
		cfg:      cfg,
		clients:  make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// credentials travel in the request, not in cookies
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP authenticates before upgrading; a refused credential never gets a
// session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := auth.CredentialFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	user, err := h.gate.Authenticate(r.Context(), raw)
	if err != nil {
		logger.Debugf("ws: refused connection from %s: %v", r.RemoteAddr, err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("ws: upgrade failed: %v", err)
		return
	}
	sess, err := h.registry.Register("", user)
	if err != nil {
		logger.Errorf("ws: register session: %v", err)
		conn.Close()
		return
	}
	c := &client{h: h, conn: conn, sess: sess, user: user}
	c.ctrl = docsync.New(sess.ID(), user, h.router, h.store, h.cfg.Debounce, c)
	c.log = logger.WithFields(logger.Fields{"session": sess.ID(), "user": user.ID})
	if !h.track(c) {
		h.registry.DropSession(sess.ID())
		conn.Close()
		return
	}
	defer h.untrack(c)
	c.log.Infof("connected")
	c.run()
}

func (h *Handler) track(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.clients[c] = struct{}{}
	h.live.Add(1)
	return true
}

func (h *Handler) untrack(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.live.Done()
}

// Close refuses new connections, closes every live one and waits until each
// has flushed its unsaved edits, or until ctx is done.
func (h *Handler) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	for c := range h.clients {
		c.conn.Close()
	}
	h.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		h.live.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type client struct {
	h    *Handler
	conn *websocket.Conn
	sess *sessions.Session
	user models.Identity
	ctrl *docsync.Controller
	log  *logrus.Entry
}

func (c *client) run() {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	c.readLoop()

	// leave every room before telling peers, so nothing more is routed here
	rooms := c.sess.Rooms()
	if _, ok := c.h.registry.DropSession(c.sess.ID()); ok {
		for _, doc := range rooms {
			c.publishPresence(doc, protocol.UserLeft(doc, c.user, c.sess.ID()))
		}
	}
	<-writerDone
	c.conn.Close()
	c.ctrl.Close()
	c.log.Infof("disconnected")
}

func (c *client) readLoop() {
	maxBytes := c.h.cfg.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = 4 << 20
	}
	c.conn.SetReadLimit(maxBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limit := rate.Inf
	if c.h.cfg.MessageRPS > 0 {
		limit = rate.Limit(c.h.cfg.MessageRPS)
	}
	burst := c.h.cfg.MessageBurst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debugf("read: %v", err)
			}
			return
		}
		if !limiter.Allow() {
			metrics.RateLimitRejected.WithLabelValues("websocket").Inc()
			c.sendControl(protocol.Error("", protocol.CodeRateLimited, "too many messages"))
			continue
		}
		f, err := protocol.Decode(data)
		if err != nil {
			c.sendControl(protocol.Error(f.DocumentID, protocol.CodeBadRequest, err.Error()))
			continue
		}
		c.handle(f)
	}
}

func (c *client) handle(f protocol.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	doc := f.DocumentID

	switch f.Type {
	case protocol.TypeJoin:
		if err := c.h.gate.AuthorizeJoin(c.user, doc); err != nil {
			c.sendControl(protocol.Error(doc, protocol.CodeBadRequest, err.Error()))
			return
		}
		if !c.h.registry.Join(c.sess, doc) {
			return
		}
		var present []models.Identity
		for _, m := range c.h.registry.Members(doc) {
			if m.ID() != c.sess.ID() {
				present = append(present, m.User())
			}
		}
		c.sendControl(protocol.Presence(doc, present))
		c.publishPresence(doc, protocol.UserJoined(doc, c.user, c.sess.ID()))

	case protocol.TypeLeave:
		if c.h.registry.Leave(c.sess, doc) {
			c.publishPresence(doc, protocol.UserLeft(doc, c.user, c.sess.ID()))
			c.ctrl.Forget(doc)
		}

	case protocol.TypeEdit:
		if !c.joined(doc) {
			return
		}
		if err := c.ctrl.LocalEdit(ctx, doc, f.Text()); err != nil {
			c.sendError(doc, err)
		}

	case protocol.TypeCursor:
		if !c.joined(doc) {
			return
		}
		c.h.router.Publish(doc, c.sess.ID(), broadcast.Message{
			Kind:  broadcast.KindCursor,
			Frame: protocol.Encode(protocol.Cursor(doc, f.Position, c.user, c.sess.ID())),
		})

	case protocol.TypeRevert:
		if !c.joined(doc) {
			return
		}
		if _, err := c.ctrl.Revert(ctx, doc, f.Version); err != nil {
			c.sendError(doc, err)
		}
	}
}

func (c *client) joined(doc string) bool {
	if c.sess.InRoom(doc) {
		return true
	}
	c.sendControl(protocol.Error(doc, protocol.CodeBadRequest, "join the document first"))
	return false
}

func (c *client) publishPresence(doc string, f protocol.Frame) {
	c.h.router.Publish(doc, c.sess.ID(), broadcast.Message{Kind: broadcast.KindPresence, Frame: protocol.Encode(f)})
}

// sendControl queues a frame for this connection only. Like any delivery it
// is dropped when the outbound queue is full.
func (c *client) sendControl(f protocol.Frame) {
	if err := c.sess.Deliver(broadcast.Message{Room: f.DocumentID, Kind: broadcast.KindControl, Frame: protocol.Encode(f)}); err != nil {
		c.log.Debugf("control frame %s dropped: %v", f.Type, err)
	}
}

func (c *client) sendError(doc string, err error) {
	c.sendControl(protocol.Error(doc, errorCode(err), err.Error()))
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, document.ErrNotFound):
		return protocol.CodeNotFound
	case errors.Is(err, document.ErrAccessDenied):
		return protocol.CodeAccessDenied
	case errors.Is(err, docsync.ErrClosed):
		return protocol.CodeBadRequest
	default:
		return protocol.CodePersistence
	}
}

// Persisted implements docsync.Notifier.
func (c *client) Persisted(docID string, version int) {
	c.sendControl(protocol.Saved(docID, version))
}

// PersistFailed implements docsync.Notifier.
func (c *client) PersistFailed(docID string, err error) {
	c.sendError(docID, err)
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg := <-c.sess.Outbound():
			if msg.Kind != broadcast.KindControl && !c.sess.InRoom(msg.Room) {
				continue
			}
			if msg.Kind == broadcast.KindEdit && !c.ctrl.RemoteEdit(msg.Room, msg.Content) {
				continue
			}
			if err := c.write(websocket.TextMessage, msg.Frame); err != nil {
				c.log.Debugf("write: %v", err)
				c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		case <-c.sess.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		}
	}
}

func (c *client) write(kind int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}
