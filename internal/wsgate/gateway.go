// Package wsgate is the websocket transport in front of the arena. It authenticates the
// upgrade by a trusted identity header, decodes inbound frames and delivers outbound events
// through a buffered per-connection writer.
package wsgate

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

var (
	ErrConnClosed   = errors.New("wsgate: connection closed")
	ErrSlowConsumer = errors.New("wsgate: send buffer full")
)

// Handler receives decoded frames. *arena.Orchestrator implements it.
type Handler interface {
	Handle(ctx context.Context, conn arena.Conn, id string, in arenadto.Inbound) error
	Disconnect(conn arena.Conn)
}

type Gateway struct {
	h              Handler
	userHeader     string
	originPatterns []string
	pingInterval   time.Duration
	writeTimeout   time.Duration
	sendBuffer     int
	readLimit      int64
}

type Option func(*Gateway)

func WithUserHeader(name string) Option {
	return func(g *Gateway) {
		if strings.TrimSpace(name) != "" {
			g.userHeader = name
		}
	}
}

func WithOriginPatterns(patterns ...string) Option {
	return func(g *Gateway) { g.originPatterns = patterns }
}

func WithPingInterval(d time.Duration) Option {
	return func(g *Gateway) { g.pingInterval = d }
}

func WithSendBuffer(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.sendBuffer = n
		}
	}
}

func New(h Handler, opts ...Option) *Gateway {
	g := &Gateway{
		h:            h,
		userHeader:   "X-User-Id",
		pingInterval: 30 * time.Second,
		writeTimeout: 5 * time.Second,
		sendBuffer:   64,
		readLimit:    16 << 10,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.Header.Get(g.userHeader))
	if id == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  g.originPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("user", id), zap.Error(err))
		return
	}
	ws.SetReadLimit(g.readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &conn{
		id:   uuid.NewString(),
		ws:   ws,
		out:  make(chan arenadto.Event, g.sendBuffer),
		done: make(chan struct{}),
	}
	obslog.L().Info("ws_connected", zap.String("user", id), zap.String("conn", c.id))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.writeLoop(ctx, g.writeTimeout) }()
	go func() { defer wg.Done(); g.pingLoop(ctx, c) }()

	g.readLoop(ctx, c, id)

	g.h.Disconnect(c)
	c.close(websocket.StatusNormalClosure, "")
	cancel()
	wg.Wait()
	obslog.L().Info("ws_disconnected", zap.String("user", id), zap.String("conn", c.id))
}

func (g *Gateway) readLoop(ctx context.Context, c *conn, id string) {
	for {
		typ, raw, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				obslog.L().Debug("ws_read_failed", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		in, err := arenadto.DecodeInbound(raw)
		if err != nil {
			// unrecognised frame: the handler answers with invalid_request
			in = arenadto.Inbound{}
		}
		if err := g.h.Handle(ctx, c, id, in); err != nil {
			obslog.L().Debug("ws_request_rejected",
				zap.String("user", id),
				zap.String("type", in.Type),
				zap.Error(err))
		}
	}
}

func (g *Gateway) pingLoop(ctx context.Context, c *conn) {
	if g.pingInterval <= 0 {
		return
	}
	t := time.NewTicker(g.pingInterval)
	defer t.Stop()
	consecutivePingFailures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.ws.Ping(pctx)
			cancel()
			if err == nil {
				consecutivePingFailures = 0
				continue
			}
			consecutivePingFailures++
			if consecutivePingFailures >= 2 {
				obslog.L().Info("ws_ping_timeout", zap.String("conn", c.id))
				c.close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

// conn implements arena.Conn over one websocket.
type conn struct {
	id        string
	ws        *websocket.Conn
	out       chan arenadto.Event
	done      chan struct{}
	closeOnce sync.Once
}

func (c *conn) ID() string { return c.id }

// Send queues ev without blocking. A full buffer closes the connection.
func (c *conn) Send(ev arenadto.Event) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.out <- ev:
		return nil
	default:
		c.close(websocket.StatusPolicyViolation, "slow consumer")
		return ErrSlowConsumer
	}
}

func (c *conn) writeLoop(ctx context.Context, timeout time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case ev := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, timeout)
			err := wsjson.Write(wctx, c.ws, ev)
			cancel()
			if err != nil {
				c.close(websocket.StatusGoingAway, "write failure")
				return
			}
		}
	}
}

func (c *conn) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			_ = c.ws.Close(code, reason)
		}
	})
}
