// Package httpapi is the HTTP surface of the arena server: the websocket
// upgrade route plus read-only status endpoints for operators.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/store"
)

// ArenaStatus is implemented by *arena.Orchestrator.
type ArenaStatus interface {
	Waiting(mode string) int
	Live() int
}

// GameReader is implemented by *store.Store.
type GameReader interface {
	Load(ctx context.Context, id string) (*store.Snapshot, error)
	GamesByUser(ctx context.Context, user string) ([]string, error)
	Active(ctx context.Context) ([]string, error)
}

type Deps struct {
	Arena ArenaStatus
	Modes []string
	// Games may be nil when REDIS_URL is unset; snapshot routes then answer 503.
	Games GameReader
	WS    http.Handler
}

const readTimeout = 3 * time.Second

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if d.WS != nil {
		r.GET("/ws", gin.WrapH(d.WS))
	}

	r.GET("/status", func(c *gin.Context) {
		queues := make(gin.H, len(d.Modes))
		for _, m := range d.Modes {
			queues[m] = d.Arena.Waiting(m)
		}
		c.JSON(http.StatusOK, gin.H{
			"live":   d.Arena.Live(),
			"queues": queues,
		})
	})

	g := r.Group("/", requireGames(d.Games))
	g.GET("/active", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
		defer cancel()
		ids, err := d.Games.Active(ctx)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"games": nonNil(ids)})
	})
	g.GET("/games/:id", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
		defer cancel()
		snap, err := d.Games.Load(ctx, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		if snap == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
			return
		}
		c.JSON(http.StatusOK, snap)
	})
	g.GET("/users/:id/games", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
		defer cancel()
		ids, err := d.Games.GamesByUser(ctx, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"games": nonNil(ids)})
	})
	return r
}

func requireGames(games GameReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if games == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot store disabled"})
			return
		}
		c.Next()
	}
}

func fail(c *gin.Context, err error) {
	obslog.L().Warn("http_store_read_failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": "snapshot store unavailable"})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		obslog.L().Debug("http_request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
