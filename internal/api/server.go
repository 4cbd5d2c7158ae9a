package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cookchat/cookchat/internal/chat"
	"github.com/cookchat/cookchat/internal/recipe"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	ChatService *chat.Service     // Required
	ChatFlow    *chat.Flow        // Optional: nil streams without Genkit tracing
	Converter   *recipe.Converter // Optional: nil disables the structured endpoint
	ImageGen    ImageGenerator    // Optional: nil disables the image endpoint
	Translator  Translator        // Optional: nil skips prompt translation
	Pool        *pgxpool.Pool     // Optional: nil disables the DB readiness check
	CORSOrigins []string          // Allowed origins for CORS
	TrustProxy  bool              // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst   int               // Rate limiter burst per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.ChatService == nil {
		return nil, errors.New("chat service is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sh := &sessionHandler{svc: cfg.ChatService, logger: logger}
	ch := &chatHandler{svc: cfg.ChatService, flow: cfg.ChatFlow, logger: logger}
	rh := &recipeHandler{
		svc:        cfg.ChatService,
		sessions:   sh,
		converter:  cfg.Converter,
		imageGen:   cfg.ImageGen,
		translator: cfg.Translator,
		logger:     logger,
	}

	mux := http.NewServeMux()

	// Session lifecycle
	mux.HandleFunc("POST /api/v1/sessions", sh.createSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sh.getSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/history", sh.getHistory)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.deleteSession)

	// Chat
	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("POST /api/v1/chat/stream", ch.stream)

	// Finalized recipe
	mux.HandleFunc("POST /api/v1/sessions/{id}/finalize", rh.finalize)
	mux.HandleFunc("GET /api/v1/sessions/{id}/recipe", rh.getRecipe)
	if cfg.Converter != nil {
		mux.HandleFunc("POST /api/v1/sessions/{id}/recipe/structured", rh.getStructuredRecipe)
	}
	if cfg.ImageGen != nil {
		mux.HandleFunc("POST /api/v1/sessions/{id}/recipe/image", rh.generateImage)
	}

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack (outermost first):
	//   Recovery -> RequestID -> Logging -> CORS -> RateLimit -> Routes
	// RequestID sits before Logging so request_id appears in log attributes.
	// CORS sits before RateLimit so preflight OPTIONS gets CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w)
		handler.ServeHTTP(w, r)
	})

	// Health probes live on a top-level mux, outside the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.HandleFunc("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
