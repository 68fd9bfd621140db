// Package server is the web collaborator: it serves the framework's
// admin API and a mutable table of plugin-registered endpoints.
package server

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/HerbHall/botforge/internal/metrics"
	"github.com/HerbHall/botforge/internal/registry"
	"github.com/HerbHall/botforge/internal/version"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

// Server is the botforge admin and endpoint server.
type Server struct {
	httpServer *http.Server
	registry   *registry.Registry
	logger     *zap.Logger
	mux        *http.ServeMux

	secret       []byte // JWT signing key
	passwordHash []byte // bcrypt hash of web.password, nil disables auth'd routes

	mu        sync.RWMutex
	endpoints map[string]http.HandlerFunc
}

// New creates a Server. password protects the mutating admin routes; an
// empty password disables them. secret signs session tokens; when empty
// a random per-process key is generated.
func New(addr string, reg *registry.Registry, m *metrics.Metrics, password, secret string, logger *zap.Logger) (*Server, error) {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		registry:  reg,
		logger:    logger,
		mux:       mux,
		endpoints: make(map[string]http.HandlerFunc),
	}

	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash web password: %w", err)
		}
		s.passwordHash = hash
	}

	if secret != "" {
		s.secret = []byte(secret)
	} else {
		s.secret = make([]byte, 32)
		if _, err := rand.Read(s.secret); err != nil {
			return nil, fmt.Errorf("generate token key: %w", err)
		}
	}

	s.registerCoreRoutes(m)
	return s, nil
}

// AddEndpoint registers a plugin endpoint. Registering the same path
// twice is last-wins.
func (s *Server) AddEndpoint(path string, handler http.HandlerFunc) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	s.mu.Lock()
	s.endpoints[path] = handler
	s.mu.Unlock()
}

// RemoveEndpoint deregisters a plugin endpoint.
func (s *Server) RemoveEndpoint(path string) {
	s.mu.Lock()
	delete(s.endpoints, path)
	s.mu.Unlock()
}

func (s *Server) registerCoreRoutes(m *metrics.Metrics) {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/plugins", s.handlePlugins)
	s.mux.HandleFunc("POST /api/v1/plugins/{name}/enable", s.requireAuth(s.handleEnable))
	s.mux.HandleFunc("POST /api/v1/plugins/{name}/disable", s.requireAuth(s.handleDisable))
	s.mux.HandleFunc("POST /api/v1/login", s.handleLogin)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	// Everything else goes through the mutable plugin endpoint table.
	s.mux.HandleFunc("/", s.handleEndpoint)
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	handler, ok := s.endpoints[r.URL.Path]
	s.mu.RUnlock()

	if !ok {
		NotFound(w, "no such endpoint", r.URL.Path)
		return
	}
	handler(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Botforge-Version", version.Short())
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"service": "botforge",
		"version": version.Map(),
	})
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.registry.Infos())
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.registry.Enable(name); err != nil {
		BadRequest(w, err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.registry.Disable(name); err != nil {
		BadRequest(w, err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLogin exchanges the web password for a signed bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.passwordHash == nil {
		Unauthorized(w, "admin access not configured", r.URL.Path)
		return
	}

	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(body.Password)); err != nil {
		Unauthorized(w, "wrong password", r.URL.Path)
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		InternalError(w, "token signing failed", r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"token": signed})
}

// requireAuth guards mutating admin routes with the bearer token issued
// by handleLogin.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.passwordHash == nil {
			Unauthorized(w, "admin access not configured", r.URL.Path)
			return
		}

		auth := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			Unauthorized(w, "missing bearer token", r.URL.Path)
			return
		}

		_, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			Unauthorized(w, "invalid token", r.URL.Path)
			return
		}

		next(w, r)
	}
}
