package handlers

import (
	"errors"
	"net/http"

	"github.com/beamdrop/beamdrop/internal/logger"
	"github.com/beamdrop/beamdrop/internal/transfer"
	"github.com/beamdrop/beamdrop/internal/utils"
)

// writeError maps a domain error to a response. The kind string is stable
// API surface; the message is for humans.
func writeError(w http.ResponseWriter, err error) {
	var status int
	var kind string
	switch {
	case errors.Is(err, transfer.ErrNotFound):
		status, kind = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, transfer.ErrForbidden):
		status, kind = http.StatusUnauthorized, "FORBIDDEN"
	case errors.Is(err, transfer.ErrInvalidTransition):
		status, kind = http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, transfer.ErrInvalidRequest):
		status, kind = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, transfer.ErrValidation):
		status, kind = http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, transfer.ErrUpstream):
		status, kind = http.StatusBadGateway, "UPSTREAM_FAILURE"
	default:
		logger.Log.Error().Err(err).Msg("internal error")
		utils.JSONResponse(w, http.StatusInternalServerError, utils.Payload{
			Success: false,
			Message: "Server Error",
		})
		return
	}

	utils.JSONResponse(w, status, utils.Payload{
		Success: false,
		Message: err.Error(),
		Data:    map[string]string{"kind": kind},
	})
}
