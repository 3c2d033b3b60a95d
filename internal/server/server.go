package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/misquote/internal/account"
	"github.com/victornm/misquote/internal/api"
	"github.com/victornm/misquote/internal/event"
	"github.com/victornm/misquote/internal/game"
	"github.com/victornm/misquote/internal/history"
	"github.com/victornm/misquote/internal/job"
	"github.com/victornm/misquote/internal/leaderboard"
	"github.com/victornm/misquote/internal/notification"
	"github.com/victornm/misquote/internal/player"
	"github.com/victornm/misquote/internal/quote"
	"github.com/victornm/misquote/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port      int32
		RateLimit struct {
			RPS   float64
			Burst int
			Idle  time.Duration
		}
	}

	GRPC struct {
		Port int32
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	// Postgres archives finished games. Leave Addr empty to disable the archive.
	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	EventBus struct {
		PoolSize       int
		HandlerTimeout time.Duration
	}

	Game struct {
		AutoTick     bool
		TickInterval time.Duration
		SessionTTL   time.Duration
	}

	Leaderboard struct {
		Seed bool
	}

	Notification struct {
		TTL      time.Duration
		Capacity int
	}

	Auth struct {
		Secret   string
		Issuer   string
		TokenTTL time.Duration
	}
}

// DefaultConfig holds the values used for anything the config file leaves out.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.HTTP.RateLimit.RPS = 20
	c.HTTP.RateLimit.Burst = 40
	c.HTTP.RateLimit.Idle = 10 * time.Minute
	c.GRPC.Port = 8081
	c.Redis.Addrs = []string{"localhost:6379"}
	c.Redis.Prefix = "misquote"
	c.EventBus.PoolSize = 1024
	c.EventBus.HandlerTimeout = 10 * time.Second
	c.Game.AutoTick = true
	c.Game.TickInterval = time.Second
	c.Game.SessionTTL = 2 * time.Hour
	c.Leaderboard.Seed = true
	c.Notification.TTL = 5 * time.Second
	c.Notification.Capacity = 20
	c.Auth.Issuer = "misquote"
	c.Auth.TokenTTL = 24 * time.Hour
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	service struct {
		quote        *quote.Catalog
		player       *player.Service
		game         *game.Service
		leaderboard  *leaderboard.Service
		notification *notification.Service
		job          *job.Service
		account      *account.Service
		history      *history.Service
	}

	health *health.Server
	http   *http.Server
	grpc   *grpc.Server
}

func Init(c Config) (*Server, error) {
	if c.Auth.Secret == "" {
		return nil, fmt.Errorf("server: auth secret is required")
	}

	s := &Server{c: c}

	s.eb = event.NewBus(
		event.WithPoolSize(c.EventBus.PoolSize),
		event.WithHandlerTimeout(c.EventBus.HandlerTimeout),
	)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initPostgres() error {
	pc := s.c.Postgres
	if pc.Addr == "" {
		slog.Info("server: postgres not configured, game history disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pc.User, pc.Pass, pc.Addr, pc.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	prefix := s.c.Redis.Prefix

	s.service.quote = quote.NewCatalog(quote.Config{})

	s.service.player = player.NewService(player.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis,
		Prefix:   prefix,
	})

	s.service.game = game.NewService(game.Config{
		EventBus:     s.eb,
		Quotes:       s.service.quote,
		Players:      s.service.player,
		AutoTick:     s.c.Game.AutoTick,
		TickInterval: s.c.Game.TickInterval,
		SessionTTL:   s.c.Game.SessionTTL,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis,
		Prefix:   prefix,
	})
	if s.c.Leaderboard.Seed {
		if err := s.service.leaderboard.Seed(ctx); err != nil {
			return err
		}
	}

	s.service.notification = notification.NewService(notification.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis,
		Prefix:   prefix,
		TTL:      s.c.Notification.TTL,
		Capacity: s.c.Notification.Capacity,
	})

	s.service.job = job.NewService(job.Config{
		EventBus: s.eb,
	})

	s.service.account = account.NewService(account.Config{
		Secret:   []byte(s.c.Auth.Secret),
		Issuer:   s.c.Auth.Issuer,
		TokenTTL: s.c.Auth.TokenTTL,
	})

	s.service.history = history.NewService(history.Config{
		EventBus: s.eb,
		DB:       s.infra.postgres,
	})

	return s.service.history.Migrate(ctx)
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery(), telemetry.GinMiddleware())
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.GET("/healthz", s.healthz)

	// Compression would break the websocket upgrade.
	r := e.Group("", gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`/notifications/ws$`})))

	api.New(api.Config{
		Router:        r,
		Players:       s.service.player,
		Games:         s.service.game,
		Quotes:        s.service.quote,
		Leaderboard:   s.service.leaderboard,
		Notifications: s.service.notification,
		Jobs:          s.service.job,
		Accounts:      s.service.account,
		History:       s.service.history,
		RateLimit: api.RateLimitConfig{
			RPS:   s.c.HTTP.RateLimit.RPS,
			Burst: s.c.HTTP.RateLimit.Burst,
			Idle:  s.c.HTTP.RateLimit.Idle,
		},
	})

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// healthz reports whether the backing stores answer.
func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error {
		if err := s.infra.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	if s.infra.postgres != nil {
		eg.Go(func() error {
			if err := s.infra.postgres.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		slog.WarnContext(ctx, "server: health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.service.game.Close()
	s.eb.Stop()

	if err := s.infra.redis.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close redis failed", "error", err)
	}
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
