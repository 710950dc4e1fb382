package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Skotchmaster/streamtweet/internal/config"
	"github.com/Skotchmaster/streamtweet/internal/es"
	"github.com/Skotchmaster/streamtweet/internal/httpserver"
	jwthelp "github.com/Skotchmaster/streamtweet/internal/jwt"
	"github.com/Skotchmaster/streamtweet/internal/metrics"
	authmw "github.com/Skotchmaster/streamtweet/internal/middleware/auth"
	"github.com/Skotchmaster/streamtweet/internal/middleware/ratelimit"
	"github.com/Skotchmaster/streamtweet/internal/mykafka"
	"github.com/Skotchmaster/streamtweet/internal/repo"
	"github.com/Skotchmaster/streamtweet/internal/search"
	"github.com/Skotchmaster/streamtweet/internal/service"
	"github.com/Skotchmaster/streamtweet/internal/sideeffect"
	"github.com/Skotchmaster/streamtweet/pkg/db"
	"github.com/Skotchmaster/streamtweet/pkg/logging"
	"github.com/Skotchmaster/streamtweet/pkg/middleware/csrf"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	if err != nil {
		cancel()
		log.Fatalf("db init error: %v", err)
	}
	store := repo.New(gdb)
	if err := store.Migrate(initCtx); err != nil {
		cancel()
		log.Fatalf("db migrate: %v", err)
	}

	registry := metrics.NewRegistry()
	dispatcher := sideeffect.New(sideeffect.Config{
		QueueSize: cfg.SideEffectQueue,
		Workers:   cfg.SideEffectWorkers,
	}, logger, metrics.NewSideEffectMetrics(registry))

	var (
		events   service.EventPublisher = service.NoopPublisher{}
		producer *mykafka.Producer
	)
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = mykafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			cancel()
			log.Fatalf("kafka producer: %v", err)
		}
		events = producer
		logger.Info("kafka_enabled", "brokers", cfg.KafkaBrokers)
	}

	var index service.VideoIndex
	if cfg.ESURL != "" {
		client, err := es.NewClient(initCtx, cfg, logger)
		if err != nil {
			logger.Warn("es_unavailable", "error", err)
		} else {
			index = search.NewVideoIndex(client, cfg.ESIndex)
		}
	}
	cancel()

	clock := clockwork.NewRealClock()
	tokens := &service.TokenService{
		Users:         store,
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Clock:         clock,
	}
	authSvc := &service.AuthService{Users: store, Tokens: tokens, Events: events, BG: dispatcher, Clock: clock}
	toggle := &service.ToggleEngine{Relations: store, Users: store, Videos: store, Tweets: store, Events: events, BG: dispatcher, Clock: clock}
	videos := &service.VideoService{
		Videos:    store,
		Users:     store,
		Relations: store,
		History:   store,
		Index:     index,
		Events:    events,
		BG:        dispatcher,
		Clock:     clock,
	}
	channels := &service.ChannelService{Users: store, Relations: store, Toggle: toggle}
	tweets := &service.TweetService{Tweets: store, Users: store, Relations: store, Events: events, BG: dispatcher, Clock: clock}

	cookies := jwthelp.Cookies{Secure: cfg.CookieSecure, SameSite: cfg.CookieSameSite}

	var csrfCfg *csrf.Config
	if cfg.CSRFEnabled {
		csrfCfg = httpserver.SessionCSRF(cookies, cfg.CORSOrigins)
	}

	e := httpserver.New(&httpserver.Deps{
		Logger:       logger,
		Ready:        func(ctx context.Context) error { return db.Ping(ctx, gdb) },
		AuthHandler:  &httpserver.AuthHTTP{Svc: authSvc, Cookies: cookies},
		UserHandler:  &httpserver.UserHTTP{Auth: authSvc, Channels: channels, Videos: videos},
		VideoHandler: &httpserver.VideoHTTP{Svc: videos, Toggle: toggle},
		TweetHandler: &httpserver.TweetHTTP{Svc: tweets, Toggle: toggle},
		AuthMW:       authmw.New(tokens, store),
		AuthLimiter:  ratelimit.New(cfg.AuthRateLimit, time.Minute, cfg.AuthRateBurst, clock),
		Registry:     registry,
		HTTPMetrics:  metrics.NewHTTPMetrics(registry),
		CORSOrigins:  cfg.CORSOrigins,
		CSRF:         csrfCfg,
	})
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	go func() {
		logger.Info("http_listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo_shutdown", "error", err)
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("side_effects_shutdown", "error", err)
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka_close", "error", err)
		}
	}
}
