package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/beamdrop/beamdrop/internal/api/middleware"
	"github.com/beamdrop/beamdrop/internal/models"
	"github.com/beamdrop/beamdrop/internal/repositories"
	"github.com/beamdrop/beamdrop/internal/transfer"
	"github.com/beamdrop/beamdrop/internal/utils"
)

type Handler struct {
	svc   *transfer.Service
	users *repositories.UserRepository
}

func NewHandler(svc *transfer.Service, users *repositories.UserRepository) *Handler {
	return &Handler{svc: svc, users: users}
}

func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.UserID(r)
	if !ok {
		utils.JSONResponse(w, http.StatusUnauthorized, utils.Payload{
			Success: false,
			Message: "Unauthorized",
		})
	}
	return id, ok
}

func transferID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.JSONResponse(w, http.StatusBadRequest, utils.Payload{
			Success: false,
			Message: "Invalid transfer ID",
		})
		return uuid.Nil, false
	}
	return id, true
}

// POST /api/v1/transfers
// CreateTransfer godoc
// @Summary Initiate a transfer to another registered user
// @Description Creates a P2P transfer awaiting negotiation, or a CLOUD transfer with a presigned upload URL.
// @Tags Transfers
// @Accept json
// @Produce json
// @Success 200 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Router /api/v1/transfers [post]
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	var input struct {
		FileName  string                `json:"fileName"`
		FileSize  int64                 `json:"fileSize"`
		FileType  string                `json:"fileType"`
		Recipient string                `json:"recipient"`
		Method    models.TransferMethod `json:"method"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		utils.JSONResponse(w, http.StatusBadRequest, utils.Payload{
			Success: false,
			Message: "Invalid input",
		})
		return
	}

	res, err := h.svc.Create(r.Context(), caller, transfer.CreateInput{
		FileName:       input.FileName,
		FileSize:       input.FileSize,
		FileType:       input.FileType,
		RecipientEmail: input.Recipient,
		Method:         input.Method,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	data := map[string]any{
		"transferId": res.Transfer.ID,
		"status":     res.Transfer.Status,
	}
	if res.UploadURL != "" {
		data["uploadUrl"] = res.UploadURL
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Transfer initiated",
		Data:    data,
	})
}

// GET /api/v1/transfers/{id}
// GetTransfer godoc
// @Summary Retrieve one transfer
// @Description Returns the transfer record with participant emails resolved. Participants only.
// @Tags Transfers
// @Produce json
// @Param id path string true "Transfer ID"
// @Success 200 {object} utils.Payload
// @Failure 401 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Router /api/v1/transfers/{id} [get]
func (h *Handler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := transferID(w, r)
	if !ok {
		return
	}

	t, role, err := h.svc.Resolve(r.Context(), id, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	sender, err := h.users.ByID(r.Context(), t.SenderID)
	if err != nil {
		writeError(w, err)
		return
	}
	recipient, err := h.users.ByID(r.Context(), t.RecipientID)
	if err != nil {
		writeError(w, err)
		return
	}

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Transfer retrieved",
		Data: map[string]any{
			"transfer":       t,
			"role":           role,
			"senderEmail":    sender.Email,
			"recipientEmail": recipient.Email,
		},
	})
}

// GET /api/v1/transfers/pending
func (h *Handler) PendingTransfers(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	pending, err := h.svc.Pending(r.Context(), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Pending transfers retrieved",
		Data:    pending,
	})
}

// PUT /api/v1/transfers/{id}/status
// UpdateStatus godoc
// @Summary Transition a transfer's lifecycle status
// @Tags Transfers
// @Accept json
// @Produce json
// @Param id path string true "Transfer ID"
// @Success 200 {object} utils.Payload
// @Failure 409 {object} utils.Payload
// @Router /api/v1/transfers/{id}/status [put]
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := transferID(w, r)
	if !ok {
		return
	}

	var input struct {
		Status models.TransferStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.JSONResponse(w, http.StatusBadRequest, utils.Payload{
			Success: false,
			Message: "Invalid input",
		})
		return
	}

	t, err := h.svc.UpdateStatus(r.Context(), id, caller, input.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Status updated",
		Data:    t,
	})
}

// PUT /api/v1/transfers/{id}/progress
func (h *Handler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := transferID(w, r)
	if !ok {
		return
	}

	var input struct {
		Progress float64 `json:"progress"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.JSONResponse(w, http.StatusBadRequest, utils.Payload{
			Success: false,
			Message: "Invalid input",
		})
		return
	}

	t, err := h.svc.UpdateProgress(r.Context(), id, caller, input.Progress)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Progress updated",
		Data: map[string]any{
			"progress": t.Progress,
			"status":   t.Status,
		},
	})
}

// DELETE /api/v1/transfers/{id}
// CancelTransfer godoc
// @Summary Cancel a transfer
// @Description Either participant may cancel while the transfer has not finished.
// @Tags Transfers
// @Produce json
// @Param id path string true "Transfer ID"
// @Success 200 {object} utils.Payload
// @Failure 409 {object} utils.Payload
// @Router /api/v1/transfers/{id} [delete]
func (h *Handler) CancelTransfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := transferID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Cancel(r.Context(), id, caller); err != nil {
		writeError(w, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Transfer cancelled successfully",
	})
}

// POST /api/v1/transfers/{id}/uploaded
func (h *Handler) ConfirmUpload(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := transferID(w, r)
	if !ok {
		return
	}

	t, err := h.svc.ConfirmUpload(r.Context(), id, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Upload confirmed",
		Data:    t,
	})
}

// GET /api/v1/transfers/{id}/download
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := transferID(w, r)
	if !ok {
		return
	}

	url, err := h.svc.DownloadURL(r.Context(), id, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Presigned download URL generated successfully",
		Data:    map[string]string{"downloadUrl": url},
	})
}
