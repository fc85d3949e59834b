// arenacheck checks a running arena. It hits /healthz, then opens a websocket as
// ARENA_CHECK_USER and closes it again.
//
// Setting ARENA_CHECK_MODE also sends join_game for that mode, prints whatever arrives
// for a short window and cancels. Joining is a real wagered join: if another participant
// is waiting in that mode the check user is paired, the entry fee is debited and the
// abandoned game is lost when the reconnect grace runs out. Point it at a low-fee mode
// reserved for checks; a pairing is reported as a failure.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/pkg/arenadto"
)

var errPaired = errors.New("check user was paired into a live game; its entry fee is at stake")

type checkConfig struct {
	BaseURL string
	User    string
	Header  string
	Mode    string
	Window  time.Duration
}

func main() {
	cfg := checkConfig{
		BaseURL: strings.TrimRight(os.Getenv("ARENA_BASE_URL"), "/"),
		User:    os.Getenv("ARENA_CHECK_USER"),
		Header:  os.Getenv("ARENA_USER_HEADER"),
		Mode:    os.Getenv("ARENA_CHECK_MODE"),
		Window:  5 * time.Second,
	}
	if cfg.BaseURL == "" {
		log.Fatal("ARENA_BASE_URL is required")
	}
	if err := runCheck(context.Background(), cfg, os.Stdout); err != nil {
		log.Fatalf("check failed: %v", err)
	}
}

func runCheck(ctx context.Context, cfg checkConfig, out io.Writer) error {
	if cfg.Header == "" {
		cfg.Header = "X-User-Id"
	}
	status, body, err := fasthttp.GetTimeout(nil, cfg.BaseURL+"/healthz", 5*time.Second)
	if err != nil {
		return fmt.Errorf("/healthz: %w", err)
	}
	fmt.Fprintf(out, "/healthz status=%d body=%q\n", status, body)
	if status != http.StatusOK {
		return fmt.Errorf("/healthz status %d", status)
	}

	if cfg.User == "" {
		fmt.Fprintln(out, "ARENA_CHECK_USER not set; skipping WS check")
		return nil
	}

	hdr := http.Header{}
	hdr.Set(cfg.Header, cfg.User)
	wsURL := "ws" + strings.TrimPrefix(cfg.BaseURL, "http") + "/ws"

	cctx, ccancel := context.WithTimeout(ctx, 10*time.Second)
	defer ccancel()
	c, _, err := websocket.Dial(cctx, wsURL, &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		return fmt.Errorf("ws connect: %w", err)
	}
	defer func() { _ = c.Close(websocket.StatusNormalClosure, "check done") }()
	fmt.Fprintln(out, "WS connected")

	if cfg.Mode == "" {
		return nil
	}
	if err := wsjson.Write(ctx, c, arenadto.Inbound{Type: arenadto.TypeJoinGame, Mode: cfg.Mode}); err != nil {
		return fmt.Errorf("ws write: %w", err)
	}

	// Observe for a short window. A Read whose context expires closes the socket, so the
	// reader runs until the deferred cancel and the window is a timer.
	rctx, rcancel := context.WithCancel(ctx)
	defer rcancel()
	events := make(chan checkEvent, 8)
	go func() {
		defer close(events)
		for {
			var ev checkEvent
			if err := wsjson.Read(rctx, c, &ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-rctx.Done():
				return
			}
		}
	}()

	window := time.NewTimer(cfg.Window)
	defer window.Stop()
observe:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return errors.New("ws closed by server during the check")
			}
			fmt.Fprintf(out, "WS event type=%s data=%s\n", ev.Type, ev.Data)
			if ev.Type == arenadto.TypeGameStart {
				return errPaired
			}
		case <-window.C:
			break observe
		}
	}

	if err := wsjson.Write(ctx, c, arenadto.Inbound{Type: arenadto.TypeCancelMatchmaking}); err != nil {
		return fmt.Errorf("ws cancel: %w", err)
	}
	return nil
}

type checkEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}
