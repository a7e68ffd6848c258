package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-santa/internal/config"
	"github.com/npezzotti/go-santa/internal/database"
	"github.com/npezzotti/go-santa/internal/server"
	"github.com/sirupsen/logrus"
)

type SantaApp struct {
	log            logrus.FieldLogger
	accessLog      *io.PipeWriter
	db             database.Repository
	rooms          *server.Coordinator
	srv            *http.Server
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

func NewSantaApp(mux *http.ServeMux, logger *logrus.Logger, rooms *server.Coordinator, db database.Repository, cfg *config.Config) *SantaApp {
	s := &SantaApp{
		log:            logger,
		accessLog:      logger.Writer(),
		db:             db,
		rooms:          rooms,
		allowedOrigins: cfg.AllowedOrigins,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/rooms", s.createRoom)
	api.HandleFunc("GET /api/rooms", s.listRooms)
	api.HandleFunc("POST /api/rooms/join", s.joinRoom)
	api.HandleFunc("POST /api/rooms/leave", s.leaveRoom)
	api.HandleFunc("GET /api/rooms/{roomId}", s.getRoom)
	api.HandleFunc("DELETE /api/rooms/{roomId}", s.deleteRoom)
	api.HandleFunc("POST /api/rooms/{roomId}/select-letter", s.selectLetter)
	api.HandleFunc("POST /api/rooms/{roomId}/toggle-ready", s.toggleReady)
	api.HandleFunc("POST /api/rooms/{roomId}/draw", s.startDraw)
	api.HandleFunc("GET /api/rooms/{roomId}/draw-result", s.getDrawResult)
	api.HandleFunc("GET /api/rooms/{roomId}/events", s.roomEvents)
	api.HandleFunc("GET /api/rooms/{roomId}/ws", s.serveWs)
	api.HandleFunc("GET /api/rooms/{roomId}/invite.png", s.inviteCode)
	api.HandleFunc("GET /api/letters", s.listLetters)
	api.HandleFunc("GET /api/draws", s.listDraws)
	mux.Handle("/api/", noStore(api))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = handlers.CombinedLoggingHandler(s.accessLog, h)
	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped root handler.
func (s *SantaApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *SantaApp) Start() error {
	s.log.WithField("addr", s.srv.Addr).Info("starting server")
	return s.srv.ListenAndServe()
}

func (s *SantaApp) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server...")
	defer s.accessLog.Close()

	// Close open streams before draining.
	s.rooms.Shutdown()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

func (s *SantaApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	return slices.Contains(s.allowedOrigins, origin)
}
