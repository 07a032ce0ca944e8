package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/meera/waymate/config"
	"github.com/meera/waymate/internal/handler"
	"github.com/meera/waymate/internal/middleware"
	"github.com/meera/waymate/internal/repository"
	"github.com/meera/waymate/internal/routing"
	"github.com/meera/waymate/internal/service"
	"github.com/meera/waymate/pkg/cache"
	"github.com/meera/waymate/pkg/db"
)

// cycleLeaseTTL must comfortably exceed the longest expected matching cycle.
const cycleLeaseTTL = 5 * time.Minute

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// ── Connect to PostgreSQL ───────────────────────────
	pgPool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer pgPool.Close()
	log.Println("✓ PostgreSQL connected")

	// ── Connect to Redis ────────────────────────────────
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// ── Initialize layers ───────────────────────────────
	userRepo := repository.NewUserRepository(pgPool)
	commuteRepo := repository.NewCommuteRepository(pgPool)
	matchRepo := repository.NewMatchRepository(pgPool)
	chatRoomRepo := repository.NewChatRoomRepository(pgPool)

	planner := routing.NewClient(cfg.Planner, cache.NewPlanCache(redisClient))
	cycleLease := cache.NewCycleLease(redisClient, cycleLeaseTTL)

	matchingSvc := service.NewMatchingService(
		userRepo, commuteRepo, matchRepo, chatRoomRepo, cycleLease,
		cfg.Algorithm, cfg.Service,
	)
	commuteSvc := service.NewCommuteService(commuteRepo, planner)
	userSvc := service.NewUserService(userRepo)

	matchingHandler := handler.NewMatchingHandler(matchingSvc)
	commuteHandler := handler.NewCommuteHandler(commuteSvc)
	userHandler := handler.NewUserHandler(userSvc)
	chatHandler := handler.NewChatHandler(matchingSvc)

	// ── Setup router ────────────────────────────────────
	router := mux.NewRouter()

	// Health check endpoint.
	router.HandleFunc("/health", healthHandler(pgPool, redisClient)).Methods(http.MethodGet)

	// API v1 routes, all behind gateway identity.
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Auth)

	// Profile and commute management
	api.HandleFunc("/users/me", userHandler.GetMe).Methods(http.MethodGet)
	api.HandleFunc("/users/me", userHandler.PutMe).Methods(http.MethodPut)
	api.HandleFunc("/commutes/me", commuteHandler.GetMine).Methods(http.MethodGet)
	api.HandleFunc("/commutes/me", commuteHandler.Put).Methods(http.MethodPut)
	api.HandleFunc("/commutes/me/queue", commuteHandler.SetQueue).Methods(http.MethodPost)
	api.HandleFunc("/commutes/me/suggestions", commuteHandler.SetSuggestions).Methods(http.MethodPost)
	api.HandleFunc("/commutes/me/pause", commuteHandler.Pause).Methods(http.MethodPost)

	// Matching cycle, decisions, listings
	api.HandleFunc("/matching/run", matchingHandler.RunCycle).Methods(http.MethodPost)
	api.HandleFunc("/matching/suggestions", matchingHandler.ListSuggestions).Methods(http.MethodGet)
	api.HandleFunc("/matching/suggestions/{id}/accept", matchingHandler.Accept).Methods(http.MethodPost)
	api.HandleFunc("/matching/suggestions/{id}/pass", matchingHandler.Pass).Methods(http.MethodPost)
	api.HandleFunc("/matching/active", matchingHandler.ListActive).Methods(http.MethodGet)
	api.HandleFunc("/matching/assignments", matchingHandler.ListAssignments).Methods(http.MethodGet)

	// Chat rooms
	api.HandleFunc("/chat/rooms", chatHandler.ListRooms).Methods(http.MethodGet)

	wrapped := middleware.RequestLogger(middleware.Recoverer(middleware.CORS(router)))

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      wrapped,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in a goroutine so we can listen for shutdown signals.
	go func() {
		log.Printf("🚀 Server listening on %s", cfg.Server.ServerAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("⏳ Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// healthHandler returns an HTTP handler that checks PG and Redis connectivity.
func healthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		if err := db.HealthCheck(r.Context(), pgPool); err != nil {
			resp.Status = "degraded"
			resp.Services["postgres"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["postgres"] = "healthy"
		}

		if err := cache.HealthCheck(r.Context(), redisClient); err != nil {
			resp.Status = "degraded"
			resp.Services["redis"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["redis"] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
