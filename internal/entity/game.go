package entity

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rocketscienceinc/tictactoe-arena/internal/apperror"
)

const (
	StatusWaiting = "waiting"
	StatusPlaying = "playing"
	StatusDone    = "done"

	PlayerX = "X"
	PlayerO = "O"

	WinnerDraw = "draw"

	EmptyCell = ""
)

var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Game is one durable record per game id. The board is row-major, cells 0..8.
type Game struct {
	ID               string    `json:"id"`
	Board            [9]string `json:"board"`
	CurrentPlayer    string    `json:"currentPlayer"`
	Winner           string    `json:"winner"`
	Status           string    `json:"status"`
	PlayerXName      string    `json:"playerXName"`
	PlayerOName      string    `json:"playerOName"`
	ResetRequestedBy string    `json:"resetRequestedBy,omitempty"`
	Version          int64     `json:"version"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NewGame - creates an empty game with the creator on a random seat.
// X always moves first, regardless of which seat the creator got.
func NewGame(id, creatorName string) *Game {
	game := &Game{
		ID:            id,
		CurrentPlayer: PlayerX,
		Status:        StatusWaiting,
	}

	if RandomSeat() == PlayerX {
		game.PlayerXName = creatorName
	} else {
		game.PlayerOName = creatorName
	}

	return game
}

// DetermineGameResult - scans all winning triples and returns the winning
// mark, WinnerDraw when the board is full, or EmptyCell while play continues.
func (that *Game) DetermineGameResult() string {
	for _, combo := range WinCombos {
		a, b, c := that.Board[combo[0]], that.Board[combo[1]], that.Board[combo[2]]
		if a != EmptyCell && a == b && b == c {
			return a
		}
	}

	for _, cell := range that.Board {
		if cell == EmptyCell {
			return EmptyCell
		}
	}

	return WinnerDraw
}

// ValidateTurn - checks move legality without mutating the board.
func (that *Game) ValidateTurn(mark string, cell int) error {
	if that.Winner != EmptyCell {
		return apperror.ErrGameFinished
	}

	if mark != that.CurrentPlayer {
		return apperror.ErrNotYourTurn
	}

	if cell < 0 || cell >= len(that.Board) {
		return fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	if that.Board[cell] != EmptyCell {
		return apperror.ErrCellOccupied
	}

	return nil
}

// ApplyTurn - validates and applies a move, recomputes the outcome and flips
// the turn. The turn flips even on the closing move; the field is meaningless
// once a winner is set but kept for display.
func (that *Game) ApplyTurn(mark string, cell int) error {
	if err := that.ValidateTurn(mark, cell); err != nil {
		return err
	}

	that.Board[cell] = mark
	that.CurrentPlayer = OpponentMark(mark)

	if winner := that.DetermineGameResult(); winner != EmptyCell {
		that.Winner = winner
		that.Status = StatusDone
	} else {
		that.Status = StatusPlaying
	}

	return nil
}

// Reset - clears board, turn and outcome. Seat assignments survive.
func (that *Game) Reset() {
	that.Board = [9]string{}
	that.CurrentPlayer = PlayerX
	that.Winner = EmptyCell
	that.Status = StatusPlaying
	that.ResetRequestedBy = EmptyCell
}

func (that *Game) BothSeatsTaken() bool {
	return that.PlayerXName != "" && that.PlayerOName != ""
}

// SeatOf - returns the mark a named player occupies, or EmptyCell.
// Name comparison is case-insensitive.
func (that *Game) SeatOf(name string) string {
	switch {
	case that.PlayerXName != "" && strings.EqualFold(that.PlayerXName, name):
		return PlayerX
	case that.PlayerOName != "" && strings.EqualFold(that.PlayerOName, name):
		return PlayerO
	default:
		return EmptyCell
	}
}

func (that *Game) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Game) IsPlaying() bool {
	return that.Status == StatusPlaying
}

func (that *Game) IsDone() bool {
	return that.Status == StatusDone
}

// Validate - rejects malformed rows at the store boundary instead of
// trusting their shape at every read site.
func (that *Game) Validate() error {
	if that.ID == "" {
		return fmt.Errorf("%w: empty id", apperror.ErrMalformedGame)
	}

	switch that.Status {
	case StatusWaiting, StatusPlaying, StatusDone:
	default:
		return fmt.Errorf("%w: status %q", apperror.ErrMalformedGame, that.Status)
	}

	if !ValidMark(that.CurrentPlayer) {
		return fmt.Errorf("%w: current player %q", apperror.ErrMalformedGame, that.CurrentPlayer)
	}

	switch that.Winner {
	case EmptyCell, PlayerX, PlayerO, WinnerDraw:
	default:
		return fmt.Errorf("%w: winner %q", apperror.ErrMalformedGame, that.Winner)
	}

	switch that.ResetRequestedBy {
	case EmptyCell, PlayerX, PlayerO:
	default:
		return fmt.Errorf("%w: reset requested by %q", apperror.ErrMalformedGame, that.ResetRequestedBy)
	}

	for i, cell := range that.Board {
		switch cell {
		case EmptyCell, PlayerX, PlayerO:
		default:
			return fmt.Errorf("%w: cell %d holds %q", apperror.ErrMalformedGame, i, cell)
		}
	}

	return nil
}

// RandomSeat - picks X or O uniformly, independently per game.
func RandomSeat() string {
	if rand.Intn(2) == 0 { //nolint: gosec // it's ok
		return PlayerX
	}
	return PlayerO
}

func OpponentMark(mark string) string {
	if mark == PlayerX {
		return PlayerO
	}
	return PlayerX
}

func ValidMark(mark string) bool {
	return mark == PlayerX || mark == PlayerO
}
