package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/semachat/sema/internal/config"
	"github.com/semachat/sema/internal/database"
	postgresrepo "github.com/semachat/sema/internal/repository/postgres"
	redisrepo "github.com/semachat/sema/internal/repository/redis"
	"github.com/semachat/sema/internal/service"
	"github.com/semachat/sema/internal/transport/http/handlers"
	"github.com/semachat/sema/internal/transport/http/middleware"
	"github.com/semachat/sema/internal/transport/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	ctx := context.Background()

	// Stores
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to database")
	}
	defer pool.Close()

	if err := postgresrepo.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("running migrations")
	}
	log.Info().Msg("connected to database")

	rdb, err := database.ConnectRedis(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to redis")
	}
	defer rdb.Close()

	// Repositories
	convRepo := postgresrepo.NewConversationRepo(pool)
	msgRepo := postgresrepo.NewMessageRepo(pool)
	callLogRepo := postgresrepo.NewCallLogRepo(pool)
	lastSeenRepo := redisrepo.NewLastSeenRepo(rdb)

	// Services
	conversationService := service.NewConversationService(convRepo)
	messageService := service.NewMessageService(msgRepo, convRepo)
	callService := service.NewCallService(callLogRepo, cfg.RingTimeout)
	typingService := service.NewTypingService(convRepo, cfg.TypingTTL)
	presenceService := service.NewPresenceService(convRepo, lastSeenRepo)

	// Connection registry + notifier; one instance, injected everywhere,
	// torn down with the process.
	registry := ws.NewRegistry()
	notifier := ws.NewRegistryNotifier(registry)
	messageService.SetNotifier(notifier)
	callService.SetNotifier(notifier)
	typingService.SetNotifier(notifier)
	presenceService.SetNotifier(notifier)

	registry.OnConnect(presenceService.HandleConnect)
	registry.OnDisconnect(presenceService.HandleDisconnect)
	registry.OnDisconnect(func(userID uuid.UUID, remaining int) {
		if remaining == 0 {
			callService.HandleOffline(userID)
		}
	})

	services := &ws.Services{
		Conversations: conversationService,
		Messages:      messageService,
		Calls:         callService,
		Typing:        typingService,
		Presence:      presenceService,
	}

	// Handlers
	conversationHandler := handlers.NewConversationHandler(conversationService, messageService)
	callHandler := handlers.NewCallHandler(callService)

	auth := middleware.Auth(cfg.JWTSecret)

	// Routes
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})

	mux.HandleFunc("GET /ws", ws.ServeWS(registry, services, cfg.JWTSecret))

	mux.Handle("POST /api/v1/conversations", auth(http.HandlerFunc(conversationHandler.GetOrCreate)))
	mux.Handle("GET /api/v1/conversations", auth(http.HandlerFunc(conversationHandler.List)))
	mux.Handle("GET /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(conversationHandler.ListMessages)))
	mux.Handle("GET /api/v1/calls", auth(http.HandlerFunc(callHandler.History)))

	addr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Info().Str("addr", addr).Msg("starting server")
	log.Fatal().Err(http.ListenAndServe(addr, middleware.CORS(mux))).Msg("server stopped")
}
