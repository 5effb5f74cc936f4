package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gatepass/internal/platform/middleware"
	"gatepass/internal/trust"
	"gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"

	"gatepass/internal/transport/http/shared"
)

// TrustHandler serves the trust score and cooldown administration endpoints.
type TrustHandler struct {
	ledger *trust.Ledger
	logger *slog.Logger
}

func NewTrustHandler(ledger *trust.Ledger, logger *slog.Logger) *TrustHandler {
	return &TrustHandler{ledger: ledger, logger: logger}
}

type adjustPayload struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

type adjustResponse struct {
	ActorID  string `json:"actor_id"`
	NewScore int    `json:"new_score"`
}

// Adjust handles POST /trust/{id}/adjust.
func (h *TrustHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	actorID, err := domain.ParseStudentID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "invalid student id"))
		return
	}
	var payload adjustPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	newScore, err := h.ledger.Adjust(r.Context(), actorID, payload.Delta, payload.Reason, middleware.GetActorID(r.Context()))
	if err != nil {
		shared.WriteError(w, r, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, adjustResponse{ActorID: actorID.String(), NewScore: newScore})
}

// ResetCooldown handles POST /trust/{id}/cooldown/reset.
func (h *TrustHandler) ResetCooldown(w http.ResponseWriter, r *http.Request) {
	actorID, err := domain.ParseStudentID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "invalid student id"))
		return
	}
	authority, err := domain.ParseStaffID(middleware.GetActorID(r.Context()))
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeUnauthorized, "invalid actor id"))
		return
	}
	if err := h.ledger.ResetCooldown(r.Context(), actorID, authority); err != nil {
		shared.WriteError(w, r, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusNoContent, nil)
}

type adjustmentResponse struct {
	AdjusterID string    `json:"adjuster_id"`
	OldScore   int       `json:"old_score"`
	NewScore   int       `json:"new_score"`
	Delta      int       `json:"delta"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// History handles GET /trust/{id}/history.
func (h *TrustHandler) History(w http.ResponseWriter, r *http.Request) {
	actorID, err := domain.ParseStudentID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "invalid student id"))
		return
	}
	history, err := h.ledger.History(r.Context(), actorID)
	if err != nil {
		shared.WriteError(w, r, h.logger, err)
		return
	}
	out := make([]adjustmentResponse, len(history))
	for i, adj := range history {
		out[i] = adjustmentResponse{
			AdjusterID: adj.AdjusterID,
			OldScore:   adj.OldScore,
			NewScore:   adj.NewScore,
			Delta:      adj.Delta,
			Reason:     adj.Reason,
			CreatedAt:  adj.CreatedAt,
		}
	}
	shared.WriteJSON(w, http.StatusOK, out)
}
