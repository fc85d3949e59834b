// Package events fans session snapshots out to a NATS subject tree so other
// services can follow contests without polling Redis.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/store"
)

const DefaultPrefix = "arena.game"

// Publisher is the part of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Connect dials url with the reconnect policy used for every arena broker link.
func Connect(url, name string) (*nats.Conn, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("NATS_URL required for event publisher")
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			obslog.L().Warn("nats_disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			obslog.L().Info("nats_reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	return nats.Connect(url, opts...)
}

// Sink publishes each snapshot to <prefix>.<status>, e.g. arena.game.finished.
// It satisfies arena.SnapshotSink.
type Sink struct {
	pub    Publisher
	prefix string
}

func NewSink(pub Publisher, prefix string) *Sink {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Sink{pub: pub, prefix: prefix}
}

func (s *Sink) Subject(status string) string { return s.prefix + "." + status }

// Save publishes snap. NATS core publish is fire-and-forget, so ctx only
// short-circuits a cancelled caller.
func (s *Sink) Save(ctx context.Context, snap store.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.Status == "" {
		return fmt.Errorf("snapshot %s without status", snap.GameID)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.pub.Publish(s.Subject(snap.Status), raw)
}
