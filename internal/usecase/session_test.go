package usecase

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rocketscienceinc/tictactoe-arena/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-arena/internal/entity"
	"github.com/rocketscienceinc/tictactoe-arena/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGameRepo is an in-memory stand-in for the Redis repository. It keeps
// the same conditional-write contract: Update checks the version the caller
// read, TakeSeat checks seat emptiness at write time.
type fakeGameRepo struct {
	mu    sync.Mutex
	games map[string]*entity.Game

	failNextTakeSeat bool
	failNextUpdate   bool
}

func newFakeGameRepo() *fakeGameRepo {
	return &fakeGameRepo{games: make(map[string]*entity.Game)}
}

func (that *fakeGameRepo) Create(_ context.Context, game *entity.Game) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.games[game.ID]; ok {
		return repository.ErrGameAlreadyExists
	}

	stored := *game
	that.games[game.ID] = &stored

	return nil
}

func (that *fakeGameRepo) GetByID(_ context.Context, id string) (*entity.Game, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	stored, ok := that.games[id]
	if !ok {
		return nil, repository.ErrGameNotFound
	}

	game := *stored

	return &game, nil
}

func (that *fakeGameRepo) Update(_ context.Context, game *entity.Game) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.failNextUpdate {
		that.failNextUpdate = false
		return repository.ErrVersionConflict
	}

	stored, ok := that.games[game.ID]
	if !ok {
		return repository.ErrGameNotFound
	}

	if stored.Version != game.Version {
		return repository.ErrVersionConflict
	}

	game.Version++
	updated := *game
	that.games[game.ID] = &updated

	return nil
}

func (that *fakeGameRepo) TakeSeat(_ context.Context, id, mark, name string) (*entity.Game, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.failNextTakeSeat {
		that.failNextTakeSeat = false
		return nil, repository.ErrSeatTaken
	}

	stored, ok := that.games[id]
	if !ok {
		return nil, repository.ErrGameNotFound
	}

	switch mark {
	case entity.PlayerX:
		if stored.PlayerXName != "" {
			return nil, repository.ErrSeatTaken
		}
		stored.PlayerXName = name
	case entity.PlayerO:
		if stored.PlayerOName != "" {
			return nil, repository.ErrSeatTaken
		}
		stored.PlayerOName = name
	}

	if stored.BothSeatsTaken() && stored.IsWaiting() {
		stored.Status = entity.StatusPlaying
	}

	stored.Version++
	game := *stored

	return &game, nil
}

func (that *fakeGameRepo) FindFinishedByPlayer(_ context.Context, name string) ([]*entity.Game, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	var games []*entity.Game
	for _, stored := range that.games {
		if stored.IsDone() && stored.SeatOf(name) != entity.EmptyCell {
			game := *stored
			games = append(games, &game)
		}
	}

	return games, nil
}

func newTestSessionManager(repo gameRepo) *SessionManager {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewSessionManager(logger, repo)
}

// twoPlayerGame seeds a playing game with alice on X and bob on O.
func twoPlayerGame(t *testing.T, repo *fakeGameRepo) *entity.Game {
	t.Helper()

	game := &entity.Game{
		ID:            "g1",
		CurrentPlayer: entity.PlayerX,
		Status:        entity.StatusPlaying,
		PlayerXName:   "alice",
		PlayerOName:   "bob",
	}
	require.NoError(t, repo.Create(context.Background(), game))

	return game
}

func TestSessionManager_CreateGame(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates a waiting game with the creator on one seat", func(t *testing.T) {
		// Given: an empty store
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)

		// When: a game is created
		game, err := manager.CreateGame(ctx, "  alice  ")

		// Then: the game waits for an opponent, X moves first, name is trimmed
		require.NoError(t, err)
		assert.NotEmpty(t, game.ID)
		assert.Equal(t, entity.StatusWaiting, game.Status)
		assert.Equal(t, entity.PlayerX, game.CurrentPlayer)
		assert.Equal(t, [9]string{}, game.Board)
		assert.Contains(t, []string{game.PlayerXName, game.PlayerOName}, "alice")
		assert.False(t, game.BothSeatsTaken())
	})

	t.Run("Rejects an empty player name", func(t *testing.T) {
		// Given: an empty store
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)

		// When: creating with a blank name
		_, err := manager.CreateGame(ctx, "   ")

		// Then: an ErrNameRequired error should be returned
		assert.ErrorIs(t, err, apperror.ErrNameRequired)
	})
}

func TestSessionManager_JoinGame(t *testing.T) {
	ctx := context.Background()

	t.Run("Fills the open seat and starts the game", func(t *testing.T) {
		// Given: a waiting game created by alice
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		created, err := manager.CreateGame(ctx, "alice")
		require.NoError(t, err)

		// When: bob joins
		game, err := manager.JoinGame(ctx, created.ID, "bob")

		// Then: both seats are taken and the game is playing
		require.NoError(t, err)
		assert.True(t, game.BothSeatsTaken())
		assert.Equal(t, entity.StatusPlaying, game.Status)
	})

	t.Run("Rejects a join when the game is full", func(t *testing.T) {
		// Given: a game with both seats taken
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		twoPlayerGame(t, repo)

		// When: a third player joins
		_, err := manager.JoinGame(ctx, "g1", "carol")

		// Then: an ErrGameIsFull error should be returned
		assert.ErrorIs(t, err, apperror.ErrGameIsFull)
	})

	t.Run("Rejects a name matching the existing occupant case-insensitively", func(t *testing.T) {
		// Given: a waiting game created by Alice
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		created, err := manager.CreateGame(ctx, "Alice")
		require.NoError(t, err)

		// When: someone joins as ALICE
		_, err = manager.JoinGame(ctx, created.ID, "ALICE")

		// Then: an ErrNameTaken error should be returned
		assert.ErrorIs(t, err, apperror.ErrNameTaken)
	})

	t.Run("A lost seat race surfaces as game is full", func(t *testing.T) {
		// Given: a waiting game whose seat gets filled concurrently
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		created, err := manager.CreateGame(ctx, "alice")
		require.NoError(t, err)
		repo.failNextTakeSeat = true

		// When: bob's conditional write loses the race
		_, err = manager.JoinGame(ctx, created.ID, "bob")

		// Then: an ErrGameIsFull error should be returned
		assert.ErrorIs(t, err, apperror.ErrGameIsFull)
	})

	t.Run("Returns not found for an unknown game id", func(t *testing.T) {
		// Given: an empty store
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)

		// When: joining a game that does not exist
		_, err := manager.JoinGame(ctx, "missing", "bob")

		// Then: an ErrGameNotFound error should be returned
		assert.ErrorIs(t, err, repository.ErrGameNotFound)
	})
}

func TestSessionManager_MakeTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("Applies a legal move and persists it", func(t *testing.T) {
		// Given: a playing game with both seats taken
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		twoPlayerGame(t, repo)

		// When: X plays cell 4
		game, err := manager.MakeTurn(ctx, "g1", entity.PlayerX, 4)

		// Then: the move is applied, O is next, and the store agrees
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerX, game.Board[4])
		assert.Equal(t, entity.PlayerO, game.CurrentPlayer)

		stored, err := repo.GetByID(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerX, stored.Board[4])
	})

	t.Run("Rejects moves while a seat is still empty", func(t *testing.T) {
		// Given: a waiting game with one seat empty
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		created, err := manager.CreateGame(ctx, "alice")
		require.NoError(t, err)

		// When: a move arrives
		_, err = manager.MakeTurn(ctx, created.ID, entity.PlayerX, 0)

		// Then: an ErrWaitingForPlayers error should be returned
		assert.ErrorIs(t, err, apperror.ErrWaitingForPlayers)
	})

	t.Run("Rejects an unknown player mark", func(t *testing.T) {
		// Given: a playing game
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		twoPlayerGame(t, repo)

		// When: a move with a bogus mark arrives
		_, err := manager.MakeTurn(ctx, "g1", "Z", 0)

		// Then: an ErrInvalidPlayer error should be returned
		assert.ErrorIs(t, err, apperror.ErrInvalidPlayer)
	})

	t.Run("Rejects an out-of-range position without mutating the board", func(t *testing.T) {
		// Given: a playing game
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		twoPlayerGame(t, repo)

		// When: X plays position 9
		_, err := manager.MakeTurn(ctx, "g1", entity.PlayerX, 9)

		// Then: the move is rejected and the stored board is untouched
		require.ErrorIs(t, err, apperror.ErrInvalidCell)

		stored, err := repo.GetByID(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, [9]string{}, stored.Board)
	})

	t.Run("Rejects a move out of turn", func(t *testing.T) {
		// Given: a playing game with X to move
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		twoPlayerGame(t, repo)

		// When: O moves first
		_, err := manager.MakeTurn(ctx, "g1", entity.PlayerO, 0)

		// Then: an ErrNotYourTurn error should be returned
		assert.ErrorIs(t, err, apperror.ErrNotYourTurn)
	})

	t.Run("Rejects further moves once the game is done", func(t *testing.T) {
		// Given: a done game
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		game := twoPlayerGame(t, repo)
		game.Board = [9]string{entity.PlayerX, entity.PlayerX, entity.PlayerX}
		game.Winner = entity.PlayerX
		game.Status = entity.StatusDone
		require.NoError(t, repo.Update(ctx, game))

		// When: O tries to keep playing
		_, err := manager.MakeTurn(ctx, "g1", entity.PlayerO, 5)

		// Then: an ErrGameFinished error should be returned
		assert.ErrorIs(t, err, apperror.ErrGameFinished)
	})

	t.Run("Resolves a win on the closing move", func(t *testing.T) {
		// Given: alice one move from the top row
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		game := twoPlayerGame(t, repo)
		game.Board = [9]string{
			entity.PlayerX, entity.PlayerX, entity.EmptyCell,
			entity.PlayerO, entity.PlayerO, entity.EmptyCell,
			entity.EmptyCell, entity.EmptyCell, entity.EmptyCell,
		}
		require.NoError(t, repo.Update(ctx, game))

		// When: X completes the row
		updated, err := manager.MakeTurn(ctx, "g1", entity.PlayerX, 2)

		// Then: the game is done with X as the winner
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerX, updated.Winner)
		assert.Equal(t, entity.StatusDone, updated.Status)
	})

	t.Run("A lost write race surfaces as not your turn", func(t *testing.T) {
		// Given: a playing game whose record changes between read and write
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		twoPlayerGame(t, repo)
		repo.failNextUpdate = true

		// When: X's write loses the version race
		_, err := manager.MakeTurn(ctx, "g1", entity.PlayerX, 0)

		// Then: an ErrNotYourTurn error should be returned
		assert.ErrorIs(t, err, apperror.ErrNotYourTurn)
	})
}

func TestSessionManager_ResetFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("RequestReset flags the requesting player", func(t *testing.T) {
		// Given: a playing game
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		twoPlayerGame(t, repo)

		// When: O requests a reset
		game, err := manager.RequestReset(ctx, "g1", entity.PlayerO)

		// Then: the request is recorded
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerO, game.ResetRequestedBy)
	})

	t.Run("RequestReset is rejected while a seat is empty", func(t *testing.T) {
		// Given: a waiting game
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		created, err := manager.CreateGame(ctx, "alice")
		require.NoError(t, err)

		// When: a reset is requested
		_, err = manager.RequestReset(ctx, created.ID, entity.PlayerX)

		// Then: an ErrWaitingForPlayers error should be returned
		assert.ErrorIs(t, err, apperror.ErrWaitingForPlayers)
	})

	t.Run("A competing request from the other player is rejected", func(t *testing.T) {
		// Given: a pending reset request from O
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		twoPlayerGame(t, repo)
		_, err := manager.RequestReset(ctx, "g1", entity.PlayerO)
		require.NoError(t, err)

		// When: X requests a reset while O's request is pending
		_, err = manager.RequestReset(ctx, "g1", entity.PlayerX)

		// Then: an ErrResetPending error should be returned, flag unchanged
		assert.ErrorIs(t, err, apperror.ErrResetPending)

		stored, err := repo.GetByID(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerO, stored.ResetRequestedBy)
	})

	t.Run("Re-requesting by the same player is accepted", func(t *testing.T) {
		// Given: a pending reset request from O
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		twoPlayerGame(t, repo)
		_, err := manager.RequestReset(ctx, "g1", entity.PlayerO)
		require.NoError(t, err)

		// When: O asks again
		game, err := manager.RequestReset(ctx, "g1", entity.PlayerO)

		// Then: the request stands
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerO, game.ResetRequestedBy)
	})

	t.Run("ConfirmReset restores a fresh board and keeps the players", func(t *testing.T) {
		// Given: a done game with a pending reset request
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		game := twoPlayerGame(t, repo)
		game.Board = [9]string{entity.PlayerX, entity.PlayerX, entity.PlayerX}
		game.Winner = entity.PlayerX
		game.Status = entity.StatusDone
		game.ResetRequestedBy = entity.PlayerO
		require.NoError(t, repo.Update(ctx, game))

		// When: the reset is confirmed
		updated, err := manager.ConfirmReset(ctx, "g1")

		// Then: empty board, X to move, no winner, names preserved
		require.NoError(t, err)
		assert.Equal(t, [9]string{}, updated.Board)
		assert.Equal(t, entity.PlayerX, updated.CurrentPlayer)
		assert.Equal(t, entity.EmptyCell, updated.Winner)
		assert.Equal(t, entity.StatusPlaying, updated.Status)
		assert.Equal(t, entity.EmptyCell, updated.ResetRequestedBy)
		assert.Equal(t, "alice", updated.PlayerXName)
		assert.Equal(t, "bob", updated.PlayerOName)
	})

	t.Run("DenyReset clears only the pending flag", func(t *testing.T) {
		// Given: a playing game mid-way with a pending reset request
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)
		game := twoPlayerGame(t, repo)
		game.Board[4] = entity.PlayerX
		game.CurrentPlayer = entity.PlayerO
		game.ResetRequestedBy = entity.PlayerX
		require.NoError(t, repo.Update(ctx, game))

		// When: the reset is denied
		updated, err := manager.DenyReset(ctx, "g1")

		// Then: only the flag changed
		require.NoError(t, err)
		assert.Equal(t, entity.EmptyCell, updated.ResetRequestedBy)
		assert.Equal(t, entity.PlayerX, updated.Board[4])
		assert.Equal(t, entity.PlayerO, updated.CurrentPlayer)
		assert.Equal(t, entity.EmptyCell, updated.Winner)
	})
}

func TestSessionManager_PlayerStats(t *testing.T) {
	ctx := context.Background()

	t.Run("Counts wins, losses and draws across finished games", func(t *testing.T) {
		// Given: three done games involving Alice: a win, a draw and a loss
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)

		games := []*entity.Game{
			{ID: "win", CurrentPlayer: entity.PlayerX, Status: entity.StatusDone, Winner: entity.PlayerX, PlayerXName: "Alice", PlayerOName: "bob"},
			{ID: "draw", CurrentPlayer: entity.PlayerX, Status: entity.StatusDone, Winner: entity.WinnerDraw, PlayerXName: "carol", PlayerOName: "Alice"},
			{ID: "loss", CurrentPlayer: entity.PlayerX, Status: entity.StatusDone, Winner: entity.PlayerO, PlayerXName: "Alice", PlayerOName: "dave"},
			{ID: "other", CurrentPlayer: entity.PlayerX, Status: entity.StatusDone, Winner: entity.PlayerX, PlayerXName: "carol", PlayerOName: "dave"},
			{ID: "open", CurrentPlayer: entity.PlayerX, Status: entity.StatusPlaying, PlayerXName: "Alice", PlayerOName: "bob"},
		}
		for _, game := range games {
			require.NoError(t, repo.Create(ctx, game))
		}

		// When: stats are requested with a different casing
		stats, err := manager.PlayerStats(ctx, "alice")

		// Then: one win, one loss, one draw; unfinished games excluded
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Wins)
		assert.Equal(t, 1, stats.Losses)
		assert.Equal(t, 1, stats.Draws)
		assert.Equal(t, 3, stats.TotalGames)
		assert.Equal(t, "alice", strings.ToLower(stats.PlayerName))
	})

	t.Run("Rejects an empty name", func(t *testing.T) {
		// Given: an empty store
		repo := newFakeGameRepo()
		manager := newTestSessionManager(repo)

		// When: stats are requested with a blank name
		_, err := manager.PlayerStats(ctx, "  ")

		// Then: an ErrNameRequired error should be returned
		assert.ErrorIs(t, err, apperror.ErrNameRequired)
	})
}
