package httpserver

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"buzztalk/internal/config"
	"buzztalk/internal/security"
	"buzztalk/internal/service"
	"buzztalk/internal/store/sqlite"
	"buzztalk/internal/ws"
)

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
func NewRouter(cfg *config.Config, db *sql.DB, hub *ws.Hub, tokenSvc *security.TokenService, passwordHasher *security.PasswordHasher) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Repositories
	userRepo := sqlite.NewUserRepo(db)
	friendRepo := sqlite.NewFriendRepo(db)
	convRepo := sqlite.NewConversationRepo(db)
	partRepo := sqlite.NewParticipantRepo(db)
	msgRepo := sqlite.NewMessageRepo(db)

	// Services
	authSvc := service.NewAuthService(userRepo, tokenSvc, passwordHasher)
	userSvc := service.NewUserService(userRepo, friendRepo)
	convSvc := service.NewConversationService(convRepo, partRepo, msgRepo, userRepo, friendRepo)
	msgSvc := service.NewMessageService(convRepo, partRepo, msgRepo, userRepo, friendRepo)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": cfg.AppName, "version": "1.0.0"})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Auth routes (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(authSvc))
			r.Post("/login", handleLogin(authSvc))
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(tokenSvc, userRepo))

			r.Get("/auth/me", handleMe())

			// Users and the friend graph
			r.Route("/users", func(r chi.Router) {
				r.Get("/search/{username}", handleSearchUser(userSvc))
				r.Get("/friends", handleListFriends(userSvc))
				r.Get("/friend-requests", handleListFriendRequests(userSvc))
				r.Post("/friend-request/send", handleSendFriendRequest(userSvc))
				r.Post("/friend-request/respond", handleRespondFriendRequest(userSvc))
				r.Post("/unfriend", handleUnfriend(userSvc))
				r.Post("/block", handleBlock(userSvc))
				r.Post("/unblock", handleUnblock(userSvc))
			})

			// Conversations and messages
			r.Route("/chats", func(r chi.Router) {
				r.Post("/", handleCreateChat(convSvc))
				r.Get("/", handleListChats(convSvc, msgSvc))
				r.Get("/{chatID}/messages", handleListChatMessages(msgSvc))
				r.Post("/{chatID}/read", handleMarkChatRead(convSvc, hub))
				r.Delete("/{chatID}", handleDeleteChat(convSvc, hub))
			})
		})
	})

	// WebSocket endpoint
	r.Get("/ws", ws.MakeHandler(hub, tokenSvc, userRepo, friendRepo, convSvc, msgSvc, cfg.CORSOrigins))

	return r
}
