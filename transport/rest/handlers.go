package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rocketscienceinc/tictactoe-arena/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-arena/internal/repository"
)

type createGameRequest struct {
	PlayerName string `json:"playerName"`
}

type joinGameRequest struct {
	PlayerName string `json:"playerName"`
}

type moveRequest struct {
	Position *int   `json:"position"`
	Player   string `json:"player"`
}

type resetRequest struct {
	Player string `json:"player"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ruleViolations are rejected with 400 and the sentinel's own message.
var ruleViolations = []error{
	apperror.ErrInvalidBody,
	apperror.ErrGameFinished,
	apperror.ErrNotYourTurn,
	apperror.ErrInvalidCell,
	apperror.ErrCellOccupied,
	apperror.ErrGameIsFull,
	apperror.ErrNameTaken,
	apperror.ErrNameRequired,
	apperror.ErrInvalidPlayer,
	apperror.ErrWaitingForPlayers,
	apperror.ErrResetPending,
}

func (that *Server) ping(w http.ResponseWriter, _ *http.Request) {
	if _, err := w.Write([]byte("pong")); err != nil {
		that.logger.Error("failed to write ping response", "error", err)
	}
}

func (that *Server) createGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		that.respondError(w, apperror.ErrInvalidBody)
		return
	}

	game, err := that.session.CreateGame(r.Context(), req.PlayerName)
	if err != nil {
		that.respondError(w, err)
		return
	}

	that.respondJSON(w, http.StatusOK, game)
}

func (that *Server) joinGame(w http.ResponseWriter, r *http.Request) {
	var req joinGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		that.respondError(w, apperror.ErrInvalidBody)
		return
	}

	game, err := that.session.JoinGame(r.Context(), mux.Vars(r)["id"], req.PlayerName)
	if err != nil {
		that.respondError(w, err)
		return
	}

	that.publisher.Publish(game)
	that.respondJSON(w, http.StatusOK, game)
}

func (that *Server) getGame(w http.ResponseWriter, r *http.Request) {
	game, err := that.session.GetGame(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		that.respondError(w, err)
		return
	}

	that.respondJSON(w, http.StatusOK, game)
}

func (that *Server) makeMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		that.respondError(w, apperror.ErrInvalidCell)
		return
	}

	if req.Position == nil {
		that.respondError(w, apperror.ErrInvalidCell)
		return
	}

	game, err := that.session.MakeTurn(r.Context(), mux.Vars(r)["id"], req.Player, *req.Position)
	if err != nil {
		that.respondError(w, err)
		return
	}

	that.publisher.Publish(game)
	that.respondJSON(w, http.StatusOK, game)
}

func (that *Server) requestReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		that.respondError(w, apperror.ErrInvalidPlayer)
		return
	}

	game, err := that.session.RequestReset(r.Context(), mux.Vars(r)["id"], req.Player)
	if err != nil {
		that.respondError(w, err)
		return
	}

	that.publisher.Publish(game)
	that.respondJSON(w, http.StatusOK, game)
}

func (that *Server) confirmReset(w http.ResponseWriter, r *http.Request) {
	game, err := that.session.ConfirmReset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		that.respondError(w, err)
		return
	}

	that.publisher.Publish(game)
	that.respondJSON(w, http.StatusOK, game)
}

func (that *Server) denyReset(w http.ResponseWriter, r *http.Request) {
	game, err := that.session.DenyReset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		that.respondError(w, err)
		return
	}

	that.publisher.Publish(game)
	that.respondJSON(w, http.StatusOK, game)
}

func (that *Server) playerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := that.session.PlayerStats(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		that.respondError(w, err)
		return
	}

	that.respondJSON(w, http.StatusOK, stats)
}

func (that *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		that.logger.Error("failed to encode response", "error", err)
	}
}

func (that *Server) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrGameNotFound) {
		that.respondJSON(w, http.StatusNotFound, errorResponse{Error: repository.ErrGameNotFound.Error()})
		return
	}

	if errors.Is(err, repository.ErrVersionConflict) {
		that.respondJSON(w, http.StatusBadRequest, errorResponse{Error: repository.ErrVersionConflict.Error()})
		return
	}

	for _, sentinel := range ruleViolations {
		if errors.Is(err, sentinel) {
			that.respondJSON(w, http.StatusBadRequest, errorResponse{Error: sentinel.Error()})
			return
		}
	}

	that.logger.Error("request failed", "error", err)
	that.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}
