package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SetupRouter creates and configures the HTTP router. metrics serves /metrics when non-nil.
func SetupRouter(handler *Handler, metrics http.Handler, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()

	// Apply middleware
	router.Use(loggingMiddleware(logger))
	router.Use(corsMiddleware())
	router.Use(recoveryMiddleware(logger))

	// Health check endpoint
	router.HandleFunc("/health", handler.HandleHealth).Methods(http.MethodGet)

	if metrics != nil {
		router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Sessions
	api.HandleFunc("/sessions", handler.HandleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", handler.HandleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionId}", handler.HandleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionId}/approve", handler.HandleApprove).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/transfer", handler.HandleTransfer).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/deposit", handler.HandleDeposit).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/retry", handler.HandleRetry).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/reset", handler.HandleReset).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/refresh", handler.HandleRefreshBalances).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/strategy", handler.HandleSetStrategy).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{sessionId}/transactions", handler.HandleGetTransactions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionId}/needs-approval", handler.HandleNeedsApproval).Methods(http.MethodGet)

	// Wallet prompts
	api.HandleFunc("/prompts", handler.HandleListPrompts).Methods(http.MethodGet)
	api.HandleFunc("/prompts/{promptId}/finish", handler.HandleFinishPrompt).Methods(http.MethodPost)
	api.HandleFunc("/prompts/{promptId}/cancel", handler.HandleCancelPrompt).Methods(http.MethodPost)
	api.HandleFunc("/prompts/{promptId}/fail", handler.HandleFailPrompt).Methods(http.MethodPost)

	// Portfolio
	api.HandleFunc("/portfolio/withdraw", handler.HandleWithdraw).Methods(http.MethodPost)
	api.HandleFunc("/portfolio/{principal}", handler.HandleGetPortfolio).Methods(http.MethodGet)

	// Address codec
	api.HandleFunc("/addresses/encode", handler.HandleEncodeAddress).Methods(http.MethodPost)
	api.HandleFunc("/addresses/decode", handler.HandleDecodeAddress).Methods(http.MethodPost)

	return router
}

// ==================== Middleware ====================

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// corsMiddleware adds CORS headers
func corsMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Allow all origins for now (can be restricted later)
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// recoveryMiddleware recovers from panics and logs them
func recoveryMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("Panic recovered",
						zap.Any("error", err),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
					)

					// Send error response
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"error":"Internal server error","message":"An unexpected error occurred"}`))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
