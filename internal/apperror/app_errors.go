package apperror

import "errors"

var (
	ErrInvalidBody       = errors.New("invalid request body")
	ErrGameFinished      = errors.New("game is already finished")
	ErrNotYourTurn       = errors.New("it's not your turn")
	ErrInvalidCell       = errors.New("invalid position")
	ErrCellOccupied      = errors.New("cell is already occupied")
	ErrGameIsFull        = errors.New("game is full")
	ErrNameTaken         = errors.New("player name must be different from the existing player")
	ErrNameRequired      = errors.New("player name is required")
	ErrInvalidPlayer     = errors.New("invalid player")
	ErrWaitingForPlayers = errors.New("waiting for both players to join")
	ErrResetPending      = errors.New("reset already requested")
	ErrMalformedGame     = errors.New("malformed game record")
)
