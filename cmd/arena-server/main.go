package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/cheese-arena/internal/arena"
	appcfg "github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/events"
	"github.com/park285/cheese-arena/internal/httpapi"
	"github.com/park285/cheese-arena/internal/identity"
	"github.com/park285/cheese-arena/internal/ledger"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/settlement"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/internal/wsgate"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	if err := run(cfg); err != nil {
		obslog.L().Error("arena_exit", zap.Error(err))
		obslog.Sync()
		os.Exit(1)
	}
}

func run(cfg *appcfg.AppConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := msgcat.New(cfg.MessagesLocale, cfg.MessagesDir)
	if err != nil {
		return err
	}

	led, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	coord := settlement.NewCoordinator(led, cfg.PlatformFeeRate)

	opts := []arena.Option{arena.WithCatalog(cat)}
	if cfg.IdentityBaseURL != "" {
		opts = append(opts, arena.WithDirectory(identity.NewClient(cfg.IdentityBaseURL,
			identity.WithTimeout(cfg.IdentityTimeout))))
	}
	var games httpapi.GameReader
	if cfg.RedisURL != "" {
		st, err := store.NewStore(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		games = st
		opts = append(opts, arena.WithSnapshots(st))
	}
	if cfg.NatsURL != "" {
		nc, err := events.Connect(cfg.NatsURL, "cheese-arena")
		if err != nil {
			return err
		}
		defer nc.Close()
		opts = append(opts, arena.WithSnapshots(events.NewSink(nc, cfg.NatsSubjectPrefix)))
	}

	orch := arena.New(arena.Settings{
		Modes:              cfg.Modes,
		MatchmakingTimeout: cfg.MatchmakingTimeout,
		ReconnectGrace:     cfg.ReconnectGrace,
		TickInterval:       cfg.ClockTick,
	}, coord, opts...)

	gw := wsgate.New(orch,
		wsgate.WithUserHeader(cfg.UserHeader),
		wsgate.WithOriginPatterns(cfg.AllowedOrigins...))

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	modes := make([]string, 0, len(cfg.Modes))
	for _, m := range cfg.Modes {
		modes = append(modes, m.Name)
	}
	router := httpapi.NewRouter(httpapi.Deps{Arena: orch, Modes: modes, Games: games, WS: gw})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		obslog.L().Info("arena_listen",
			zap.String("addr", cfg.ListenAddr),
			zap.Int("modes", len(cfg.Modes)),
			zap.String("fee_rate", cfg.PlatformFeeRate.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// 대기열 타이머와 진행 중인 시계를 먼저 멈춘다
		orch.Close()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			obslog.L().Warn("arena_shutdown_failed", zap.Error(err))
		}
		return nil
	})
	err = g.Wait()
	obslog.L().Info("arena_stopped", zap.Int("live_sessions", orch.Live()))
	return err
}

// openLedger uses Postgres when DATABASE_URL is set and an in-process ledger otherwise.
func openLedger(ctx context.Context, cfg *appcfg.AppConfig) (ledger.Ledger, func(), error) {
	if cfg.DatabaseURL == "" {
		obslog.L().Warn("arena_ledger_memory", zap.String("hint", "set DATABASE_URL for durable balances"))
		return ledger.NewMemory(), func() {}, nil
	}
	pg, err := ledger.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.MigrateOnStart {
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := pg.Migrate(mctx); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
		obslog.L().Info("arena_ledger_migrated")
	}
	return pg, func() { _ = pg.Close() }, nil
}
