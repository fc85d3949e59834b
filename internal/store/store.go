// Package store keeps best-effort snapshots of arena sessions in Redis so an
// operator can inspect live and recently finished contests. The ledger, not
// this store, is the source of truth for money.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const ttlSnapshot = 24 * time.Hour

const (
	StatusPlaying  = "playing"
	StatusFinished = "finished"
)

// Snapshot is the persisted view of one session.
type Snapshot struct {
	GameID      string    `json:"gameId"`
	Mode        string    `json:"mode"`
	White       string    `json:"white"`
	Black       string    `json:"black"`
	EntryFee    string    `json:"entryFee"`
	Status      string    `json:"status"`
	FEN         string    `json:"fen"`
	MovesUCI    []string  `json:"movesUci"`
	Turn        string    `json:"turn"`
	WhiteMillis int64     `json:"whiteMillis"`
	BlackMillis int64     `json:"blackMillis"`
	Result      string    `json:"result,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Settled     bool      `json:"settled"`
	StartedAt   time.Time `json:"startedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Store struct{ rdb *redis.Client }

// NewStore connects to REDIS_URL and pings once.
func NewStore(redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for snapshot store")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func NewStoreFromClient(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func gameKey(id string) string      { return "arena:game:" + strings.TrimSpace(id) }
func idxUserKey(user string) string { return "arena:index:user:" + strings.TrimSpace(user) }
func activeKey() string             { return "arena:active" }

// Save writes the snapshot and refreshes both participant indexes. Finished
// sessions leave the active set.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	if strings.TrimSpace(snap.GameID) == "" {
		return fmt.Errorf("snapshot without game id")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, gameKey(snap.GameID), raw, ttlSnapshot)
	for _, user := range []string{snap.White, snap.Black} {
		if strings.TrimSpace(user) == "" {
			continue
		}
		pipe.SAdd(ctx, idxUserKey(user), snap.GameID)
		// 인덱스 키 TTL도 스냅샷과 동일하게 갱신
		pipe.Expire(ctx, idxUserKey(user), ttlSnapshot)
	}
	if snap.Status == StatusFinished {
		pipe.SRem(ctx, activeKey(), snap.GameID)
	} else {
		pipe.SAdd(ctx, activeKey(), snap.GameID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Load returns nil, nil when the snapshot expired or never existed.
func (s *Store) Load(ctx context.Context, id string) (*Snapshot, error) {
	raw, err := s.rdb.Get(ctx, gameKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) GamesByUser(ctx context.Context, user string) ([]string, error) {
	return s.rdb.SMembers(ctx, idxUserKey(user)).Result()
}

// Active lists ids of sessions whose last snapshot was still playing.
func (s *Store) Active(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, activeKey()).Result()
}

// ParseRedisURL accepts redis:// and rediss:// URLs with optional credentials and /db path.
// rediss:// enables TLS.
func ParseRedisURL(raw string) (*redis.Options, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return opts, nil
}
