package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rocketscienceinc/tictactoe-arena/internal/entity"
	"github.com/rocketscienceinc/tictactoe-arena/internal/usecase"
)

const shutdownTimeout = 5 * time.Second

type sessionManager interface {
	CreateGame(ctx context.Context, playerName string) (*entity.Game, error)
	JoinGame(ctx context.Context, id, playerName string) (*entity.Game, error)
	GetGame(ctx context.Context, id string) (*entity.Game, error)
	MakeTurn(ctx context.Context, id, mark string, cell int) (*entity.Game, error)
	RequestReset(ctx context.Context, id, mark string) (*entity.Game, error)
	ConfirmReset(ctx context.Context, id string) (*entity.Game, error)
	DenyReset(ctx context.Context, id string) (*entity.Game, error)
	PlayerStats(ctx context.Context, playerName string) (*usecase.PlayerStats, error)
}

type publisher interface {
	Publish(game *entity.Game)
}

type Server struct {
	logger    *slog.Logger
	session   sessionManager
	publisher publisher
	wsHandler http.Handler
}

func NewServer(logger *slog.Logger, session sessionManager, publisher publisher, wsHandler http.Handler) *Server {
	return &Server{
		logger:    logger.With("component", "rest"),
		session:   session,
		publisher: publisher,
		wsHandler: wsHandler,
	}
}

// Router - builds the full route table, including the push channel at /ws,
// wrapped in permissive CORS.
func (that *Server) Router() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/ping", that.ping).Methods(http.MethodGet)

	router.HandleFunc("/games", that.createGame).Methods(http.MethodPost)
	router.HandleFunc("/games/{id}", that.getGame).Methods(http.MethodGet)
	router.HandleFunc("/games/{id}/join", that.joinGame).Methods(http.MethodPost)
	router.HandleFunc("/games/{id}/move", that.makeMove).Methods(http.MethodPost)
	router.HandleFunc("/games/{id}/reset-request", that.requestReset).Methods(http.MethodPost)
	router.HandleFunc("/games/{id}/reset-confirm", that.confirmReset).Methods(http.MethodPost)
	router.HandleFunc("/games/{id}/reset-deny", that.denyReset).Methods(http.MethodPost)

	router.HandleFunc("/players/{name}/stats", that.playerStats).Methods(http.MethodGet)

	if that.wsHandler != nil {
		router.Handle("/ws", that.wsHandler)
	}

	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(router)
}

// Start - serves until the context is canceled, then shuts down gracefully.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
