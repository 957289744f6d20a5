// Package httpapi exposes the token engine over HTTP with chi.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Engine is the part of [goToken.Engine] the routes call.
type Engine interface {
	middleware.Verifier
	GenerateTokens(ctx context.Context, id goToken.Identity) (*goToken.TokenPair, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*goToken.RefreshResult, error)
	Logout(ctx context.Context, userID string) error
	GetSessionInfo(ctx context.Context, userID string) (*goToken.SessionInfo, error)
	Health(ctx context.Context) goToken.HealthStatus
}

// Authenticator checks login credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (goToken.UserRecord, error)
}

type Dependencies struct {
	Engine        Engine
	Authenticator Authenticator
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	Logger  *zap.Logger
	// RequestTimeout bounds each request. Zero means 30s.
	RequestTimeout time.Duration
}

// NewRouter builds the route tree.
func NewRouter(deps Dependencies) http.Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	h := &handlers{engine: deps.Engine, auth: deps.Authenticator, log: log}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(clientIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(timeout))
	r.Use(requestLogger(log))

	r.Get("/healthz", h.health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(deps.Engine))
			r.Post("/logout", h.logout)
			r.Get("/me", h.me)
			r.Get("/session", h.session)
		})
	})

	return r
}

func clientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := goToken.WithClientIP(r.Context(), ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			}
			if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
				fields = append(fields, zap.String("user_id", claims.UserID))
			}
			log.Info("http_request", fields...)
		})
	}
}

func claimsOf(r *http.Request) *jwt.Claims {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	return claims
}
