package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/collab-service/handlers"
	"github.com/gogotex/gogotex/backend/collab-service/internal/auth"
	"github.com/gogotex/gogotex/backend/collab-service/internal/broadcast"
	"github.com/gogotex/gogotex/backend/collab-service/internal/config"
	"github.com/gogotex/gogotex/backend/collab-service/internal/database"
	"github.com/gogotex/gogotex/backend/collab-service/internal/document/handler"
	"github.com/gogotex/gogotex/backend/collab-service/internal/document/service"
	"github.com/gogotex/gogotex/backend/collab-service/internal/oidc"
	"github.com/gogotex/gogotex/backend/collab-service/internal/sessions"
	"github.com/gogotex/gogotex/backend/collab-service/internal/storage"
	"github.com/gogotex/gogotex/backend/collab-service/internal/tokens"
	"github.com/gogotex/gogotex/backend/collab-service/internal/users"
	"github.com/gogotex/gogotex/backend/collab-service/internal/ws"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/metrics"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.SetJSON(strings.EqualFold(os.Getenv("LOG_FORMAT"), "json"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: keycloak=%v mongo=%v redis=%v minio=%v", cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Fatalf("startup failed: %v", err)
	}
	defer a.close()

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     a.router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// websocket connections outlive any write timeout; the ws writer sets
		// per-frame deadlines itself
	}
	go func() {
		logger.Infof("Starting collaboration service on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
	// hijacked websocket connections survive Shutdown; drain them while the
	// stores are still open
	if err := a.ws.Close(shutdownCtx); err != nil {
		logger.Warnf("websocket drain: %v", err)
	}
}

type app struct {
	router  *gin.Engine
	ws      *ws.Handler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp wires every component from cfg. Optional backends (Redis, MongoDB,
// MinIO, Keycloak) are skipped when unconfigured or unreachable; documents
// then live in memory.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	probes := map[string]handlers.Probe{}

	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			_ = client.Close()
		} else {
			logger.Infof("Connected to Redis: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
			rdb = client
			a.closers = append(a.closers, func() { _ = client.Close() })
			probes["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		}
	}

	verifier := buildVerifier(ctx, cfg)
	gate := auth.NewGate(verifier, sessions.NewBlacklist(rdb))

	var opts []service.Option
	opts = append(opts, service.WithVersionLimit(cfg.Sync.VersionLimit))
	if cfg.MinIO.Endpoint != "" {
		archive, err := storage.NewSnapshotArchive(ctx, cfg.MinIO)
		if err != nil {
			logger.Warnf("snapshot archive disabled: %v", err)
		} else {
			opts = append(opts, service.WithArchive(archive))
		}
	}

	var docs *service.Service
	userSvc := users.NewService(nil)
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Warnf("could not connect to MongoDB, documents are kept in memory: %v", err)
		} else {
			a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
			db := client.Database(cfg.MongoDB.Database)
			if docs, err = service.NewMongoService(ctx, db, opts...); err != nil {
				a.close()
				return nil, fmt.Errorf("document store: %w", err)
			}
			if repo, err := users.NewMongoUserRepository(ctx, db); err != nil {
				logger.Warnf("user store disabled: %v", err)
			} else {
				userSvc = users.NewService(repo)
			}
			probes["storage"] = mongoProbe(client)
		}
	}
	if docs == nil {
		docs = service.NewMemoryService(opts...)
		probes["storage"] = func(context.Context) error { return nil }
	}

	registry := sessions.NewRegistry(cfg.Sync.SendBuffer)
	router := broadcast.NewRouter(registry)

	r := gin.New()
	r.Use(cors(), gin.Logger(), gin.Recovery())

	handlers.RegisterHealth(r, startTime, probes)
	handlers.RegisterSwagger(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	a.ws = ws.NewHandler(gate, registry, router, docs, cfg.Sync)
	r.GET("/ws", gin.WrapH(a.ws))

	authed := r.Group("/", middleware.AuthMiddleware(gate))
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			authed.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			authed.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	handler.RegisterDocumentRoutes(authed, docs, router)
	handlers.RegisterMe(authed.Group("/api/v1"), userSvc)

	a.router = r
	return a, nil
}

// buildVerifier chains every configured credential verifier: HS256 shared
// secret, then Keycloak OIDC, then (opt-in) unsigned claims for integration
// runs.
func buildVerifier(ctx context.Context, cfg *config.Config) auth.Verifier {
	var chain auth.ChainVerifier
	if cfg.JWT.Secret != "" {
		v, err := tokens.NewVerifier(cfg.JWT.Secret)
		if err != nil {
			logger.Warnf("failed to initialize HS256 verifier: %v", err)
		} else {
			chain = append(chain, v)
		}
	}
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" {
		issuer := cfg.Keycloak.URL
		if cfg.Keycloak.Realm != "" {
			issuer = oidc.IssuerURL(cfg.Keycloak.URL, cfg.Keycloak.Realm)
		}
		v, err := oidc.NewVerifier(ctx, issuer, cfg.Keycloak.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			chain = append(chain, v)
		}
	}
	if cfg.JWT.AllowInsecure {
		logger.Warn("enabling insecure token verifier (integration mode)")
		chain = append(chain, oidc.NewInsecureVerifier())
	}
	if len(chain) == 0 {
		logger.Warn("no credential verifier configured; every connection will be refused")
	}
	return chain
}

func mongoProbe(client *mongo.Client) handlers.Probe {
	return func(ctx context.Context) error { return client.Ping(ctx, nil) }
}

// cors is a lightweight dev/test policy answering preflight requests.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
