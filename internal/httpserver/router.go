package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"chatcore/internal/config"
	"chatcore/internal/domain"
	"chatcore/internal/service"
)

// Services bundles what the HTTP routes call into.
type Services struct {
	Auth     *service.AuthService
	Users    *service.UserService
	Blocks   *service.BlockService
	Messages *service.MessageService
}

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
func NewRouter(cfg *config.Config, log *zap.Logger, svc Services, wsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": cfg.AppName, "env": cfg.Env})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// Auth routes (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(svc.Auth))
			r.Post("/login", handleLogin(svc.Auth))
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(svc.Auth))

			r.Post("/auth/logout", handleLogout(svc.Auth))
			r.Get("/auth/me", handleMe())

			r.Get("/users/{userID}", handleGetUser(svc.Users))

			r.Route("/blocks", func(r chi.Router) {
				r.Get("/", handleListBlocks(svc.Blocks))
				r.Post("/{userID}", handleBlock(svc.Blocks))
				r.Delete("/{userID}", handleUnblock(svc.Blocks))
			})

			r.Route("/messages", func(r chi.Router) {
				r.Post("/", handleSendMessage(svc.Messages))
				r.Patch("/{messageID}", handleEditMessage(svc.Messages))
				r.Delete("/{messageID}", handleDeleteMessage(svc.Messages))
			})

			r.Delete("/conversations/{userID}", handleDeleteConversation(svc.Messages))
		})
	})

	// WebSocket endpoint
	if wsHandler != nil {
		r.Get("/ws", wsHandler.ServeHTTP)
	}

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// errorStatus maps service errors to a status code and a short reason.
// Storage failures are reported without detail.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "already exists"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	}
	return http.StatusInternalServerError, "internal error"
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := errorStatus(err)
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDeleteError keeps the {success} shape of delete replies on failure.
func writeDeleteError(w http.ResponseWriter, err error) {
	status, msg := errorStatus(err)
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// decodeBody reads a JSON request body into v and answers 400 when it
// cannot.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidInput))
		return false
	}
	return true
}

// requireUser returns the authenticated user or answers 401.
func requireUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	user := CurrentUser(r)
	if user == nil {
		writeError(w, domain.ErrUnauthorized)
		return nil, false
	}
	return user, true
}
