// Package gateway is the HTTP surface: round catalogue and lifecycle,
// wallet, profile, leaderboard and the websocket endpoint.
package gateway

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jacl-coder/EyeSurvival-Server/config"
	"github.com/jacl-coder/EyeSurvival-Server/internal/leaderboard"
	"github.com/jacl-coder/EyeSurvival-Server/internal/payment"
	"github.com/jacl-coder/EyeSurvival-Server/internal/session"
	"github.com/jacl-coder/EyeSurvival-Server/internal/storage"
	"github.com/jacl-coder/EyeSurvival-Server/internal/store"
)

// Deps are the collaborators behind the handlers. Payouts, Uploader and
// Broadcaster may be nil.
type Deps struct {
	Rounds      store.RoundStore
	Catalogue   store.RoundLister
	Users       store.UserStore
	Wallets     store.WalletStore
	Registry    *session.Registry
	Settlement  *session.Settlement
	Leaderboard leaderboard.Board
	Payments    payment.Verifier
	Payouts     payment.Payouts
	Uploader    storage.FileUploader
	Broadcaster session.Broadcaster
	WebSocket   http.Handler
}

// Gateway owns the router and its stateful middleware.
type Gateway struct {
	config  config.ServerConfig
	deps    Deps
	auth    *Authenticator
	limiter *RateLimiter
	cache   *MemoryCache
	logger  *slog.Logger
}

// NewGateway wires handlers to deps.
func NewGateway(cfg *config.Config, deps Deps, logger *slog.Logger) *Gateway {
	return &Gateway{
		config:  cfg.Server,
		deps:    deps,
		auth:    NewAuthenticator(cfg.JWT),
		limiter: NewRateLimiter(cfg.Server.RateLimitPerMinute),
		cache:   NewMemoryCache(1000),
		logger:  logger,
	}
}

// Authenticator exposes the token signer.
func (g *Gateway) Authenticator() *Authenticator {
	return g.auth
}

// Close stops background loops of the middleware.
func (g *Gateway) Close() {
	g.limiter.Close()
	g.cache.Close()
}

// Router builds the handler tree.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(g.logger))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   g.config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"ETag", "X-Cache"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, "OK", nil)
	})
	if g.deps.WebSocket != nil {
		r.Handle("/ws", g.deps.WebSocket)
	}

	cache := NewCacheMiddleware(g.cache)

	r.Route("/api", func(r chi.Router) {
		r.Use(g.limiter.Middleware)
		r.Use(g.auth.Middleware)
		r.Use(cache.Middleware)

		r.Route("/games", func(r chi.Router) {
			r.Get("/", g.handleUpcoming)
			r.Get("/history", g.handleHistory)
			r.Get("/{id}", g.handleGetRound)

			r.Post("/join", g.handleJoin)
			r.Post("/leave", g.handleLeave)
			r.Post("/lose", g.handleLose)
			r.Post("/debit-eyes", g.handleDebitEyes)
			r.Post("/end", g.handleEnd)
			r.Post("/submit-score", g.handleSubmitScore)
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", g.handleGetWallet)
			r.Get("/transactions", g.handleTransactions)
			r.Post("/fund/verify", g.handleVerifyFunding)

			r.Get("/banks", g.handleBanks)
			r.Post("/withdraw/verify-account", g.handleVerifyAccount)
			r.Post("/withdraw", g.handleWithdraw)
			r.Post("/withdraw/finalize", g.handleFinalizeWithdrawal)
			r.Get("/withdraw/{reference}", g.handleWithdrawalStatus)
		})

		r.Get("/users/me", g.handleProfile)
		r.Post("/notifications/token", g.handleRegisterPushToken)
		r.Post("/users/avatar", g.handleUploadAvatar)

		r.Get("/leaderboard/{period}", g.handleLeaderboard)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin))
			r.Post("/admin/games", g.handleCreateRound)
		})
	})

	return r
}
