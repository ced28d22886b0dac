package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rocketscienceinc/tictactoe-arena/internal/broadcast"
)

type hub interface {
	Subscribe(gameID string, conn broadcast.Conn)
	Unsubscribe(gameID string, conn broadcast.Conn)
	Drop(conn broadcast.Conn)
}

// Message is a client frame on the push channel. Anything the server does
// not recognize is ignored, not an error.
type Message struct {
	Type   string `json:"type"`
	GameID string `json:"gameId"`
}

// Server accepts push-channel connections and keeps hub membership in sync
// with what each client subscribes to. It never sends on its own: all
// outbound traffic goes through the hub's fan-out.
type Server struct {
	logger   *slog.Logger
	hub      hub
	upgrader websocket.Upgrader
}

func New(logger *slog.Logger, hub hub) *Server {
	return &Server{
		logger: logger.With("component", "websocket"),
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
	}
}

func (that *Server) Handler() http.Handler {
	return http.HandlerFunc(that.serve)
}

func (that *Server) serve(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "serve")

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	defer func() {
		that.hub.Drop(conn)
		conn.Close()
	}()

	log.Info("connection established", "remote", conn.RemoteAddr().String())

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Debug("connection closed", "error", err)
			return
		}

		var message Message
		if err = json.Unmarshal(raw, &message); err != nil {
			log.Debug("ignoring malformed message", "error", err)
			continue
		}

		switch message.Type {
		case "subscribe":
			if message.GameID != "" {
				that.hub.Subscribe(message.GameID, conn)
				log.Info("subscribed", "gameID", message.GameID)
			}
		case "unsubscribe":
			if message.GameID != "" {
				that.hub.Unsubscribe(message.GameID, conn)
				log.Info("unsubscribed", "gameID", message.GameID)
			}
		default:
			// unrecognized message types are ignored
		}
	}
}
