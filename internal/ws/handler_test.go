package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/auth"
	"github.com/gogotex/gogotex/backend/collab-service/internal/broadcast"
	"github.com/gogotex/gogotex/backend/collab-service/internal/config"
	"github.com/gogotex/gogotex/backend/collab-service/internal/document/service"
	"github.com/gogotex/gogotex/backend/collab-service/internal/models"
	"github.com/gogotex/gogotex/backend/collab-service/internal/protocol"
	"github.com/gogotex/gogotex/backend/collab-service/internal/sessions"
	"github.com/gogotex/gogotex/backend/collab-service/internal/tokens"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const secret = "ws-test-secret-32-bytes-xxxxxxxxxxx"

type harness struct {
	h   *Handler
	srv *httptest.Server
	svc *service.Service
	reg *sessions.Registry
}

func newHarness(t *testing.T, cfg config.SyncConfig) *harness {
	t.Helper()
	v, err := tokens.NewVerifier(secret)
	require.NoError(t, err)
	gate := auth.NewGate(v, nil)
	svc := service.NewMemoryService()
	reg := sessions.NewRegistry(cfg.SendBuffer)
	h := NewHandler(gate, reg, broadcast.NewRouter(reg), svc, cfg)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &harness{h: h, srv: srv, svc: svc, reg: reg}
}

func syncConfig() config.SyncConfig {
	return config.SyncConfig{Debounce: 50 * time.Millisecond, SendBuffer: 32, MessageRPS: 100, MessageBurst: 100, MaxMessageBytes: 1 << 20}
}

func (h *harness) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	cfg := &config.Config{}
	cfg.JWT.Secret = secret
	tok, err := tokens.GenerateAccessToken(cfg, &models.User{Sub: user, Name: strings.ToUpper(user[:1]) + user[1:]}, time.Minute)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, f protocol.Frame) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, protocol.Encode(f)))
}

func join(docID string) protocol.Frame { return protocol.Frame{Type: protocol.TypeJoin, DocumentID: docID} }

// next returns the next frame, skipping save acknowledgements.
func next(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		f, err := decodeServerFrame(data)
		require.NoError(t, err)
		if f.Type != protocol.TypeSaved {
			return f
		}
	}
}

// await reads until a frame of type typ arrives.
func await(t *testing.T, conn *websocket.Conn, typ string) protocol.Frame {
	t.Helper()
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		f, err := decodeServerFrame(data)
		require.NoError(t, err)
		if f.Type == typ {
			return f
		}
	}
}

func TestServe_RefusesMissingOrInvalidCredential(t *testing.T) {
	h := newHarness(t, syncConfig())
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=forged", nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 0, h.reg.SessionCount())
}

func TestServe_EditScenario(t *testing.T) {
	h := newHarness(t, syncConfig())
	ctx := context.Background()
	d, err := h.svc.Create(ctx, "alice", "doc1")
	require.NoError(t, err)
	_, err = h.svc.AddCollaborator(ctx, d.ID, "alice", "bob")
	require.NoError(t, err)

	a := h.dial(t, "alice")
	send(t, a, join(d.ID))
	p := next(t, a)
	require.Equal(t, protocol.TypePresence, p.Type)
	require.Empty(t, p.Users)

	send(t, a, protocol.Edit(d.ID, "hello"))
	saved := await(t, a, protocol.TypeSaved)
	require.Equal(t, 1, saved.Version)

	versions, err := h.svc.ListVersions(ctx, d.ID, "alice", 0)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "hello", versions[0].Content)

	b := h.dial(t, "bob")
	send(t, b, join(d.ID))
	p = next(t, b)
	require.Equal(t, protocol.TypePresence, p.Type)
	require.Len(t, p.Users, 1)
	require.Equal(t, "alice", p.Users[0].ID)

	joined := next(t, a)
	require.Equal(t, protocol.TypeUserJoined, joined.Type)
	require.Equal(t, "bob", joined.User.ID)

	send(t, a, protocol.Edit(d.ID, "hello world"))
	// no replay of "hello" on join: the first content B sees is the new edit
	e := next(t, b)
	require.Equal(t, protocol.TypeEdit, e.Type)
	require.Equal(t, "hello world", e.Text())

	// cursor metadata carries the origin session and user
	send(t, b, protocol.Frame{Type: protocol.TypeCursor, DocumentID: d.ID, Position: []byte(`5`)})
	cur := next(t, a)
	require.Equal(t, protocol.TypeCursor, cur.Type)
	require.Equal(t, "bob", cur.User.ID)
	require.NotEmpty(t, cur.SessionID)
	require.JSONEq(t, `5`, string(cur.Position))

	// disconnect announces departure and frees the room
	b.Close()
	left := next(t, a)
	require.Equal(t, protocol.TypeUserLeft, left.Type)
	require.Eventually(t, func() bool { return len(h.reg.Members(d.ID)) == 1 }, time.Second, 10*time.Millisecond)
}

func TestServe_RevertReachesEveryone(t *testing.T) {
	h := newHarness(t, syncConfig())
	ctx := context.Background()
	d, err := h.svc.Create(ctx, "alice", "doc")
	require.NoError(t, err)
	_, err = h.svc.AddCollaborator(ctx, d.ID, "alice", "bob")
	require.NoError(t, err)
	for _, c := range []string{"a", "ab", "abc"} {
		_, err := h.svc.Commit(ctx, d.ID, c, "alice")
		require.NoError(t, err)
	}

	a := h.dial(t, "alice")
	send(t, a, join(d.ID))
	next(t, a)
	b := h.dial(t, "bob")
	send(t, b, join(d.ID))
	next(t, b)
	await(t, a, protocol.TypeUserJoined)

	send(t, a, protocol.Frame{Type: protocol.TypeRevert, DocumentID: d.ID, Version: 1})
	for _, conn := range []*websocket.Conn{a, b} {
		f := await(t, conn, protocol.TypeReverted)
		require.Equal(t, "a", f.Text())
		require.Equal(t, 1, f.Version)
	}

	send(t, a, protocol.Frame{Type: protocol.TypeRevert, DocumentID: d.ID, Version: 9})
	f := await(t, a, protocol.TypeError)
	require.Equal(t, protocol.CodeNotFound, f.Code)

	versions, err := h.svc.ListVersions(ctx, d.ID, "alice", 0)
	require.NoError(t, err)
	require.Equal(t, 3, versions[0].VersionNumber)
}

func TestServe_Errors(t *testing.T) {
	h := newHarness(t, syncConfig())
	ctx := context.Background()
	d, err := h.svc.Create(ctx, "alice", "doc")
	require.NoError(t, err)

	c := h.dial(t, "carol")
	send(t, c, protocol.Edit(d.ID, "x"))
	require.Equal(t, protocol.CodeBadRequest, await(t, c, protocol.TypeError).Code)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"shout"}`)))
	require.Equal(t, protocol.CodeBadRequest, await(t, c, protocol.TypeError).Code)

	// joining an unknown document is allowed; the first edit reports it
	send(t, c, join("missing"))
	await(t, c, protocol.TypePresence)
	send(t, c, protocol.Edit("missing", "x"))
	require.Equal(t, protocol.CodeNotFound, await(t, c, protocol.TypeError).Code)

	send(t, c, join(d.ID))
	await(t, c, protocol.TypePresence)
	send(t, c, protocol.Edit(d.ID, "x"))
	require.Equal(t, protocol.CodeAccessDenied, await(t, c, protocol.TypeError).Code)
}

func TestServe_RateLimited(t *testing.T) {
	cfg := syncConfig()
	cfg.MessageRPS = 0.001
	cfg.MessageBurst = 1
	h := newHarness(t, cfg)

	c := h.dial(t, "dave")
	send(t, c, join("doc"))
	await(t, c, protocol.TypePresence)
	send(t, c, join("other"))
	require.Equal(t, protocol.CodeRateLimited, await(t, c, protocol.TypeError).Code)
}

func TestServe_DeletedDocumentReportsNotFoundOnce(t *testing.T) {
	h := newHarness(t, syncConfig())
	ctx := context.Background()
	d, err := h.svc.Create(ctx, "alice", "doc")
	require.NoError(t, err)

	a := h.dial(t, "alice")
	send(t, a, join(d.ID))
	await(t, a, protocol.TypePresence)
	send(t, a, protocol.Edit(d.ID, "hello"))
	// delete inside the debounce window; an edit that arrives after the
	// delete is refused the same way
	time.Sleep(syncConfig().Debounce / 3)
	require.NoError(t, h.svc.Delete(ctx, d.ID, "alice"))

	f := await(t, a, protocol.TypeError)
	require.Equal(t, protocol.CodeNotFound, f.Code)

	// no retry follows: the connection stays quiet past several windows
	require.NoError(t, a.SetReadDeadline(time.Now().Add(5*syncConfig().Debounce)))
	_, _, err = a.ReadMessage()
	require.Error(t, err)
}

func TestClose_FlushesPendingEditsBeforeReturning(t *testing.T) {
	cfg := syncConfig()
	cfg.Debounce = time.Minute
	h := newHarness(t, cfg)
	ctx := context.Background()
	d, err := h.svc.Create(ctx, "alice", "doc")
	require.NoError(t, err)

	a := h.dial(t, "alice")
	send(t, a, join(d.ID))
	await(t, a, protocol.TypePresence)
	send(t, a, protocol.Edit(d.ID, "unsaved"))
	// give the reader time to apply the edit
	time.Sleep(100 * time.Millisecond)

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, h.h.Close(closeCtx))

	versions, err := h.svc.ListVersions(ctx, d.ID, "alice", 0)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "unsaved", versions[0].Content)
	require.Equal(t, 0, h.reg.SessionCount())
}
