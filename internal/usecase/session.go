package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rocketscienceinc/tictactoe-arena/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-arena/internal/entity"
	"github.com/rocketscienceinc/tictactoe-arena/internal/pkg"
	"github.com/rocketscienceinc/tictactoe-arena/internal/repository"
)

type gameRepo interface {
	Create(ctx context.Context, game *entity.Game) error
	GetByID(ctx context.Context, id string) (*entity.Game, error)
	Update(ctx context.Context, game *entity.Game) error
	TakeSeat(ctx context.Context, id, mark, name string) (*entity.Game, error)
	FindFinishedByPlayer(ctx context.Context, name string) ([]*entity.Game, error)
}

// PlayerStats is the aggregation returned by GET /players/{name}/stats.
type PlayerStats struct {
	PlayerName string `json:"playerName"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	Draws      int    `json:"draws"`
	TotalGames int    `json:"totalGames"`
}

// SessionManager is the game session state machine. Every operation reads,
// validates, writes and returns the resulting state; publishing the state is
// the caller's concern, which keeps this layer free of transport details.
type SessionManager struct {
	logger   *slog.Logger
	gameRepo gameRepo
}

func NewSessionManager(logger *slog.Logger, gameRepo gameRepo) *SessionManager {
	return &SessionManager{
		logger:   logger.With("component", "session"),
		gameRepo: gameRepo,
	}
}

// CreateGame - allocates an empty game with the creator on a random seat.
func (that *SessionManager) CreateGame(ctx context.Context, playerName string) (*entity.Game, error) {
	name := strings.TrimSpace(playerName)
	if name == "" {
		return nil, apperror.ErrNameRequired
	}

	game := entity.NewGame(pkg.GenerateGameID(), name)

	if err := that.gameRepo.Create(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}

	that.logger.Info("game created", "gameID", game.ID)

	return game, nil
}

// JoinGame - fills the open seat. Two racing joiners are decided by the
// store's conditional write; the loser is told the game is full.
func (that *SessionManager) JoinGame(ctx context.Context, id, playerName string) (*entity.Game, error) {
	name := strings.TrimSpace(playerName)
	if name == "" {
		return nil, apperror.ErrNameRequired
	}

	game, err := that.gameRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	if game.BothSeatsTaken() {
		return nil, apperror.ErrGameIsFull
	}

	if game.SeatOf(name) != entity.EmptyCell {
		return nil, apperror.ErrNameTaken
	}

	seat := entity.PlayerX
	if game.PlayerXName != "" {
		seat = entity.PlayerO
	}

	updated, err := that.gameRepo.TakeSeat(ctx, id, seat, name)
	if errors.Is(err, repository.ErrSeatTaken) {
		// TakeSeat loses on any concurrent write to the row, not only a
		// competing join; every lost join race is answered as a full game
		return nil, apperror.ErrGameIsFull
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take seat: %w", err)
	}

	that.logger.Info("player joined", "gameID", id, "seat", seat)

	return updated, nil
}

func (that *SessionManager) GetGame(ctx context.Context, id string) (*entity.Game, error) {
	game, err := that.gameRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	return game, nil
}

// MakeTurn - validates and applies a move. The write is conditional on the
// version read here; losing that race means a concurrent move landed first
// and flipped the turn, so the loser is told it is not their turn.
func (that *SessionManager) MakeTurn(ctx context.Context, id, mark string, cell int) (*entity.Game, error) {
	if !entity.ValidMark(mark) {
		return nil, apperror.ErrInvalidPlayer
	}

	game, err := that.gameRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	if !game.BothSeatsTaken() {
		return nil, apperror.ErrWaitingForPlayers
	}

	if err = game.ApplyTurn(mark, cell); err != nil {
		return nil, err
	}

	if err = that.gameRepo.Update(ctx, game); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, apperror.ErrNotYourTurn
		}
		return nil, fmt.Errorf("failed to update game: %w", err)
	}

	return game, nil
}

// RequestReset - flags a rematch request. A competing request from the other
// player while one is pending is rejected; re-requesting by the same player
// is a no-op accept.
func (that *SessionManager) RequestReset(ctx context.Context, id, mark string) (*entity.Game, error) {
	if !entity.ValidMark(mark) {
		return nil, apperror.ErrInvalidPlayer
	}

	game, err := that.gameRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	if !game.BothSeatsTaken() {
		return nil, apperror.ErrWaitingForPlayers
	}

	if game.ResetRequestedBy != entity.EmptyCell && game.ResetRequestedBy != mark {
		return nil, apperror.ErrResetPending
	}

	game.ResetRequestedBy = mark

	if err = that.gameRepo.Update(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to update game: %w", err)
	}

	return game, nil
}

// ConfirmReset - full reset: empty board, X to move, no winner. Seats and
// names are preserved.
func (that *SessionManager) ConfirmReset(ctx context.Context, id string) (*entity.Game, error) {
	game, err := that.gameRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	game.Reset()

	if err = that.gameRepo.Update(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to update game: %w", err)
	}

	that.logger.Info("game reset", "gameID", id)

	return game, nil
}

// DenyReset - clears the pending request and nothing else.
func (that *SessionManager) DenyReset(ctx context.Context, id string) (*entity.Game, error) {
	game, err := that.gameRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	game.ResetRequestedBy = entity.EmptyCell

	if err = that.gameRepo.Update(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to update game: %w", err)
	}

	return game, nil
}

// PlayerStats - read-only aggregation over all finished games the named
// player took part in.
func (that *SessionManager) PlayerStats(ctx context.Context, playerName string) (*PlayerStats, error) {
	name := strings.TrimSpace(playerName)
	if name == "" {
		return nil, apperror.ErrNameRequired
	}

	games, err := that.gameRepo.FindFinishedByPlayer(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find finished games: %w", err)
	}

	stats := &PlayerStats{PlayerName: name}

	for _, game := range games {
		switch {
		case game.Winner == entity.WinnerDraw:
			stats.Draws++
		case game.Winner == game.SeatOf(name):
			stats.Wins++
		default:
			stats.Losses++
		}
	}

	stats.TotalGames = stats.Wins + stats.Losses + stats.Draws

	return stats, nil
}
