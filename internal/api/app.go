package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/AS-Aurora/FullStackSocial/internal/auth"
	"github.com/AS-Aurora/FullStackSocial/internal/config"
	"github.com/AS-Aurora/FullStackSocial/internal/database"
	"github.com/AS-Aurora/FullStackSocial/internal/server"
	"github.com/AS-Aurora/FullStackSocial/internal/stats"
	"github.com/gorilla/handlers"
)

// SocialApp is the HTTP surface of the realtime core: the three websocket
// endpoints plus debug vars. REST resources (posts, conversations,
// accounts) are served elsewhere and are out of scope here.
type SocialApp struct {
	log            *log.Logger
	db             database.SocialRepository
	mux            *http.Server
	rt             *server.RealtimeServer
	resolver       *auth.Resolver
	stats          stats.StatsProvider
	allowedOrigins []string
}

func NewSocialApp(mux *http.ServeMux, logger *log.Logger, rt *server.RealtimeServer, db database.SocialRepository, resolver *auth.Resolver, su stats.StatsProvider, cfg *config.Config) *SocialApp {
	s := &SocialApp{
		log:            logger,
		db:             db,
		rt:             rt,
		resolver:       resolver,
		stats:          su,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("GET /ws/posts/{id}", s.servePostWs)
	mux.HandleFunc("GET /ws/chat/{id}", s.serveChatWs)
	mux.HandleFunc("GET /ws/notifications", s.serveNotificationsWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *SocialApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *SocialApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
