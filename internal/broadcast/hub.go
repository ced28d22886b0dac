package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/tictactoe-arena/internal/entity"
)

const queueSize = 128

// Conn is the slice of a websocket connection the hub needs. Writes happen
// only from the fan-out goroutine, so a single writer per connection holds.
type Conn interface {
	WriteJSON(v interface{}) error
}

// Update is the push-channel frame sent to every subscriber of a game.
type Update struct {
	Type   string       `json:"type"`
	GameID string       `json:"gameId"`
	Data   *entity.Game `json:"data"`
}

// Hub tracks which connections are subscribed to which game id and fans
// state updates out to them. Delivery is best-effort, at-most-once: the
// push channel is a convenience, clients reconstruct state by polling.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]map[Conn]struct{}

	queue chan Update
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With("component", "broadcast"),
		subs:   make(map[string]map[Conn]struct{}),
		queue:  make(chan Update, queueSize),
	}
}

// Run - drains the publish queue until the context is canceled.
func (that *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-that.queue:
			that.fanOut(update)
		}
	}
}

func (that *Hub) Subscribe(gameID string, conn Conn) {
	that.mu.Lock()
	defer that.mu.Unlock()

	subscribers, ok := that.subs[gameID]
	if !ok {
		subscribers = make(map[Conn]struct{})
		that.subs[gameID] = subscribers
	}

	subscribers[conn] = struct{}{}
}

func (that *Hub) Unsubscribe(gameID string, conn Conn) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.removeLocked(gameID, conn)
}

// Drop - removes a closed connection from every game it was subscribed to.
func (that *Hub) Drop(conn Conn) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for gameID := range that.subs {
		that.removeLocked(gameID, conn)
	}
}

// Publish - enqueues the state for fan-out and returns immediately. A full
// queue drops the update; subscribers catch up on their next poll.
func (that *Hub) Publish(game *entity.Game) {
	update := Update{
		Type:   "game_update",
		GameID: game.ID,
		Data:   game,
	}

	select {
	case that.queue <- update:
	default:
		that.logger.Warn("update queue full, dropping update", "gameID", game.ID)
	}
}

func (that *Hub) fanOut(update Update) {
	that.mu.Lock()
	subscribers := make([]Conn, 0, len(that.subs[update.GameID]))
	for conn := range that.subs[update.GameID] {
		subscribers = append(subscribers, conn)
	}
	that.mu.Unlock()

	for _, conn := range subscribers {
		if err := conn.WriteJSON(update); err != nil {
			// closed connections are skipped, the read loop prunes them
			that.logger.Debug("failed to write update", "gameID", update.GameID, "error", err)
		}
	}
}

func (that *Hub) removeLocked(gameID string, conn Conn) {
	subscribers, ok := that.subs[gameID]
	if !ok {
		return
	}

	delete(subscribers, conn)

	if len(subscribers) == 0 {
		delete(that.subs, gameID)
	}
}
