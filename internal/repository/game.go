package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rocketscienceinc/tictactoe-arena/internal/entity"
)

var (
	ErrGameNotFound      = errors.New("game not found")
	ErrGameAlreadyExists = errors.New("game already exists")
	ErrVersionConflict   = errors.New("game was modified concurrently")
	ErrSeatTaken         = errors.New("seat is already taken")
)

const gameKeyPrefix = "game:"

type GameRepository interface {
	Create(ctx context.Context, game *entity.Game) error
	GetByID(ctx context.Context, id string) (*entity.Game, error)
	Update(ctx context.Context, game *entity.Game) error
	TakeSeat(ctx context.Context, id, mark, name string) (*entity.Game, error)
	FindFinishedByPlayer(ctx context.Context, name string) ([]*entity.Game, error)
}

type dbGame struct {
	client *redis.Client
}

func NewGameRepository(client *redis.Client) GameRepository {
	return &dbGame{
		client: client,
	}
}

// Create - inserts a new record. The id must not previously exist; a
// collision fails loudly instead of silently overwriting.
func (that *dbGame) Create(ctx context.Context, game *entity.Game) error {
	game.UpdatedAt = time.Now().UTC()

	gameJSON, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("could not marshal game: %w", err)
	}

	created, err := that.client.SetNX(ctx, gameKeyPrefix+game.ID, gameJSON, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to set game: %w", err)
	}

	if !created {
		return fmt.Errorf("%w: id %s", ErrGameAlreadyExists, game.ID)
	}

	return nil
}

func (that *dbGame) GetByID(ctx context.Context, id string) (*entity.Game, error) {
	response, err := that.client.Get(ctx, gameKeyPrefix+id).Result()

	if errors.Is(err, redis.Nil) {
		return nil, ErrGameNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	return decodeGame([]byte(response))
}

// Update - writes the game only if the stored version still equals the
// version the caller read. At most one writer wins when two updates race.
func (that *dbGame) Update(ctx context.Context, game *entity.Game) error {
	gameKey := gameKeyPrefix + game.ID

	txFunc := func(tx *redis.Tx) error {
		response, err := tx.Get(ctx, gameKey).Result()
		if errors.Is(err, redis.Nil) {
			return ErrGameNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get game by id: %w", err)
		}

		stored, err := decodeGame([]byte(response))
		if err != nil {
			return err
		}

		if stored.Version != game.Version {
			return ErrVersionConflict
		}

		game.Version++
		game.UpdatedAt = time.Now().UTC()

		gameJSON, err := json.Marshal(game)
		if err != nil {
			return fmt.Errorf("could not marshal game: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, gameKey, gameJSON, 0)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to set game: %w", err)
		}

		return nil
	}

	err := that.client.Watch(ctx, txFunc, gameKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}

	return err
}

// TakeSeat - fills a seat only if it is still unassigned at write time.
// Losing the race returns ErrSeatTaken.
func (that *dbGame) TakeSeat(ctx context.Context, id, mark, name string) (*entity.Game, error) {
	gameKey := gameKeyPrefix + id

	var updated *entity.Game

	txFunc := func(tx *redis.Tx) error {
		response, err := tx.Get(ctx, gameKey).Result()
		if errors.Is(err, redis.Nil) {
			return ErrGameNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get game by id: %w", err)
		}

		game, err := decodeGame([]byte(response))
		if err != nil {
			return err
		}

		switch mark {
		case entity.PlayerX:
			if game.PlayerXName != "" {
				return ErrSeatTaken
			}
			game.PlayerXName = name
		case entity.PlayerO:
			if game.PlayerOName != "" {
				return ErrSeatTaken
			}
			game.PlayerOName = name
		default:
			return fmt.Errorf("%w: unknown seat %q", ErrSeatTaken, mark)
		}

		if game.BothSeatsTaken() && game.IsWaiting() {
			game.Status = entity.StatusPlaying
		}

		game.Version++
		game.UpdatedAt = time.Now().UTC()

		gameJSON, err := json.Marshal(game)
		if err != nil {
			return fmt.Errorf("could not marshal game: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, gameKey, gameJSON, 0)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to set game: %w", err)
		}

		updated = game

		return nil
	}

	err := that.client.Watch(ctx, txFunc, gameKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, ErrSeatTaken
	}
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// FindFinishedByPlayer - scans all done games where the named player occupied
// either seat. Pure query; rows that fail validation are skipped.
func (that *dbGame) FindFinishedByPlayer(ctx context.Context, name string) ([]*entity.Game, error) {
	var games []*entity.Game

	iter := that.client.Scan(ctx, 0, gameKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		response, err := that.client.Get(ctx, iter.Val()).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get game by key: %w", err)
		}

		game, err := decodeGame([]byte(response))
		if err != nil {
			continue
		}

		if game.IsDone() && game.SeatOf(name) != entity.EmptyCell {
			games = append(games, game)
		}
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan games: %w", err)
	}

	return games, nil
}

func decodeGame(raw []byte) (*entity.Game, error) {
	var game entity.Game
	if err := json.Unmarshal(raw, &game); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %w", err)
	}

	if err := game.Validate(); err != nil {
		return nil, fmt.Errorf("failed to decode stored game: %w", err)
	}

	return &game, nil
}
