package wsgate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/ledger"
	"github.com/park285/cheese-arena/internal/money"
	"github.com/park285/cheese-arena/internal/settlement"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

type call struct {
	id string
	in arenadto.Inbound
}

type echoHandler struct {
	mu           sync.Mutex
	calls        []call
	disconnected []string
}

func (h *echoHandler) Handle(_ context.Context, conn arena.Conn, id string, in arenadto.Inbound) error {
	h.mu.Lock()
	h.calls = append(h.calls, call{id: id, in: in})
	h.mu.Unlock()
	return conn.Send(arenadto.Event{Type: "echo", Data: map[string]string{"type": in.Type, "user": id}})
}

func (h *echoHandler) Disconnect(conn arena.Conn) {
	h.mu.Lock()
	h.disconnected = append(h.disconnected, conn.ID())
	h.mu.Unlock()
}

func (h *echoHandler) disconnects() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.disconnected)
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hdr := http.Header{}
	hdr.Set("X-User-Id", user)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: hdr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

type frame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func read(t *testing.T, c *websocket.Conn) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var f frame
	require.NoError(t, wsjson.Read(ctx, c, &f))
	return f
}

func readUntil(t *testing.T, c *websocket.Conn, typ string) frame {
	t.Helper()
	for i := 0; i < 20; i++ {
		if f := read(t, c); f.Type == typ {
			return f
		}
	}
	t.Fatalf("no %s frame", typ)
	return frame{}
}

func TestRejectsMissingIdentity(t *testing.T) {
	srv := httptest.NewServer(New(&echoHandler{}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoundTripAndDisconnect(t *testing.T) {
	h := &echoHandler{}
	srv := httptest.NewServer(New(h))
	defer srv.Close()

	c := dial(t, srv, "u1")
	ctx := context.Background()
	require.NoError(t, wsjson.Write(ctx, c, arenadto.Inbound{Type: arenadto.TypeJoinGame, Mode: "blitz-3"}))
	f := read(t, c)
	require.Equal(t, "echo", f.Type)
	require.Equal(t, "join_game", f.Data["type"])
	require.Equal(t, "u1", f.Data["user"])

	// garbage is forwarded as an empty frame
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("{not json")))
	f = read(t, c)
	require.Equal(t, "", f.Data["type"])

	h.mu.Lock()
	require.Len(t, h.calls, 2)
	require.Equal(t, "blitz-3", h.calls[0].in.Mode)
	h.mu.Unlock()

	require.NoError(t, c.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return h.disconnects() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestSendAfterCloseAndSlowConsumer(t *testing.T) {
	c := &conn{id: "c1", out: make(chan arenadto.Event, 1), done: make(chan struct{})}

	require.NoError(t, c.Send(arenadto.Event{Type: "a"}))
	require.ErrorIs(t, c.Send(arenadto.Event{Type: "b"}), ErrSlowConsumer)
	require.ErrorIs(t, c.Send(arenadto.Event{Type: "c"}), ErrConnClosed)
}

func TestPairsTwoClientsThroughArena(t *testing.T) {
	mem := ledger.NewMemory()
	mem.Deposit("alice", money.MustParse("20"))
	mem.Deposit("bob", money.MustParse("20"))
	coord := settlement.NewCoordinator(mem, decimal.RequireFromString("0.1"))
	o := arena.New(arena.Settings{
		Modes: []config.Mode{{Name: "blitz-5", InitialTime: 5 * time.Minute, EntryFee: money.MustParse("3")}},
	}, coord)
	defer o.Close()

	srv := httptest.NewServer(New(o, WithPingInterval(0)))
	defer srv.Close()

	ctx := context.Background()
	alice := dial(t, srv, "alice")
	require.NoError(t, wsjson.Write(ctx, alice, arenadto.Inbound{Type: arenadto.TypeJoinGame, Mode: "blitz-5"}))
	f := read(t, alice)
	require.Equal(t, arenadto.TypeMatchmaking, f.Type)
	require.Equal(t, "waiting", f.Data["status"])

	bob := dial(t, srv, "bob")
	require.NoError(t, wsjson.Write(ctx, bob, arenadto.Inbound{Type: arenadto.TypeJoinGame, Mode: "blitz-5"}))
	bs := readUntil(t, bob, arenadto.TypeGameStart)
	as := readUntil(t, alice, arenadto.TypeGameStart)
	require.Equal(t, "white", bs.Data["color"])
	require.Equal(t, "black", as.Data["color"])
	require.Equal(t, bs.Data["gameId"], as.Data["gameId"])

	require.NoError(t, wsjson.Write(ctx, bob, arenadto.Inbound{Type: arenadto.TypeMove, Move: &arenadto.MoveSpec{From: "d2", To: "d4"}}))
	mv := readUntil(t, alice, arenadto.TypeMoveApplied)
	require.Equal(t, "d2d4", mv.Data["move"].(map[string]any)["uci"])

	acc, _ := mem.Account("alice")
	require.Equal(t, money.MustParse("17"), acc.Balance)
}
