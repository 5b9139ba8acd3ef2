package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"

	"github.com/npezzotti/go-fireside/internal/config"
	"github.com/npezzotti/go-fireside/internal/database"
	"github.com/npezzotti/go-fireside/internal/pubsub"
	"github.com/npezzotti/go-fireside/internal/relay"
	"github.com/npezzotti/go-fireside/internal/stats"
)

type FiresideApp struct {
	log            *log.Logger
	db             database.FiresideRepository
	relay          *relay.Relay
	broker         *pubsub.Broker
	stats          stats.StatsProvider
	mux            *http.Server
	signingKey     []byte
	allowedOrigins []string

	// overridable in tests
	generateRoomId     func() string
	generateSessionKey func() (string, error)
}

func NewFiresideApp(mux *http.ServeMux, logger *log.Logger, rl *relay.Relay, broker *pubsub.Broker,
	db database.FiresideRepository, sp stats.StatsProvider, cfg *config.Config) *FiresideApp {
	s := &FiresideApp{
		log:                logger,
		db:                 db,
		relay:              rl,
		broker:             broker,
		stats:              sp,
		signingKey:         cfg.SigningKey,
		allowedOrigins:     cfg.AllowedOrigins,
		generateRoomId:     database.GenerateRoomId,
		generateSessionKey: shortid.Generate,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("POST /api/rooms", s.participantMiddleware(s.createRoom))
	mux.Handle("GET /api/rooms", s.participantMiddleware(s.getRoom))
	mux.Handle("POST /api/rooms/join", s.participantMiddleware(s.joinRoom))
	mux.Handle("POST /api/rooms/actions", s.participantMiddleware(s.roomAction))
	mux.Handle("PUT /api/rooms/config", s.participantMiddleware(s.updateConfig))
	mux.Handle("GET /api/messages", s.participantMiddleware(s.getMessages))
	mux.Handle("GET /api/recordings", s.participantMiddleware(s.listRecordings))
	mux.Handle("POST /api/recordings", s.participantMiddleware(s.createRecording))
	mux.Handle("GET /ws", s.participantMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
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

func (s *FiresideApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *FiresideApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
