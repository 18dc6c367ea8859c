package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/beamdrop/beamdrop/internal/models"
	"github.com/beamdrop/beamdrop/internal/utils"
)

// POST /api/v1/transfers/{id}/signal
// PostSignal godoc
// @Summary Relay connection-setup data to the counterparty
// @Description Stores an offer, answer or ICE candidate for the other participant to fetch. The recipient is derived from the caller's role.
// @Tags Signaling
// @Accept json
// @Produce json
// @Param id path string true "Transfer ID"
// @Success 200 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 401 {object} utils.Payload
// @Router /api/v1/transfers/{id}/signal [post]
func (h *Handler) PostSignal(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := transferID(w, r)
	if !ok {
		return
	}

	var input struct {
		Type      models.SignalType `json:"type"`
		SDP       json.RawMessage   `json:"sdp,omitempty"`
		Candidate json.RawMessage   `json:"candidate,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.JSONResponse(w, http.StatusBadRequest, utils.Payload{
			Success: false,
			Message: "Invalid input",
		})
		return
	}

	msg, err := h.svc.PostSignal(r.Context(), id, caller, input.Type, input.SDP, input.Candidate)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Signal stored",
		Data:    map[string]any{"signalId": msg.ID},
	})
}

// GET /api/v1/transfers/{id}/signal/{type}
// FetchSignal godoc
// @Summary Fetch counterparty signaling data
// @Description Returns the latest offer/answer (direction-checked) or all live ICE candidates in creation order.
// @Tags Signaling
// @Produce json
// @Param id path string true "Transfer ID"
// @Param type path string true "Signal type" Enums(offer, answer, ice-candidate)
// @Success 200 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Router /api/v1/transfers/{id}/signal/{type} [get]
func (h *Handler) FetchSignal(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := transferID(w, r)
	if !ok {
		return
	}
	st := models.SignalType(r.PathValue("type"))

	msgs, err := h.svc.FetchSignal(r.Context(), id, caller, st)
	if err != nil {
		writeError(w, err)
		return
	}

	if st == models.SignalCandidate {
		candidates := make([]json.RawMessage, 0, len(msgs))
		for _, m := range msgs {
			candidates = append(candidates, m.Candidate)
		}
		utils.JSONResponse(w, http.StatusOK, utils.Payload{
			Success: true,
			Message: "Candidates retrieved",
			Data:    candidates,
		})
		return
	}

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Signal retrieved",
		Data: map[string]any{
			"type": msgs[0].Type,
			"sdp":  msgs[0].SDP,
		},
	})
}
