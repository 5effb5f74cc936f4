package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"gatepass/internal/gate"
	"gatepass/internal/platform/middleware"
	"gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"

	"gatepass/internal/transport/http/shared"
)

// GateHandler serves the gate desk endpoints.
type GateHandler struct {
	svc    *gate.Service
	logger *slog.Logger
}

func NewGateHandler(svc *gate.Service, logger *slog.Logger) *GateHandler {
	return &GateHandler{svc: svc, logger: logger}
}

type verifyPayload struct {
	Token     string `json:"token,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type verificationResponse struct {
	Request        *requestResponse `json:"request,omitempty"`
	Status         string           `json:"status"`
	AllowedActions []string         `json:"allowed_actions"`
	Warning        string           `json:"warning,omitempty"`
	OverdueMinutes int              `json:"overdue_minutes,omitempty"`
}

func toVerificationResponse(v gate.Verification) verificationResponse {
	actions := make([]string, len(v.AllowedActions))
	for i, a := range v.AllowedActions {
		actions[i] = string(a)
	}
	return verificationResponse{
		Status:         string(v.Status),
		AllowedActions: actions,
		Warning:        v.Warning,
		OverdueMinutes: v.OverdueMinutes,
	}
}

// Verify handles POST /gate/verify with either a token or a request id.
func (h *GateHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var payload verifyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	if payload.Token != "" {
		req, v, err := h.svc.Check(r.Context(), payload.Token)
		if err != nil {
			shared.WriteError(w, r, h.logger, err)
			return
		}
		resp := toVerificationResponse(v)
		full := toResponse(req)
		resp.Request = &full
		shared.WriteJSON(w, http.StatusOK, resp)
		return
	}

	id, err := domain.ParsePassID(payload.RequestID)
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "a token or request id is required"))
		return
	}
	v, err := h.svc.Evaluate(r.Context(), id)
	if err != nil {
		shared.WriteError(w, r, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toVerificationResponse(v))
}

type logActionPayload struct {
	RequestID string `json:"request_id"`
	Action    string `json:"action"`
}

// LogAction handles POST /gate/log-action.
func (h *GateHandler) LogAction(w http.ResponseWriter, r *http.Request) {
	gatekeeper, err := domain.ParseStaffID(middleware.GetActorID(r.Context()))
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeUnauthorized, "invalid actor id"))
		return
	}

	var payload logActionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	id, err := domain.ParsePassID(payload.RequestID)
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "invalid request id"))
		return
	}
	action, err := gate.ParseAction(payload.Action)
	if err != nil {
		shared.WriteError(w, r, h.logger, err)
		return
	}

	req, err := h.svc.LogAction(r.Context(), gatekeeper, id, action)
	if err != nil {
		shared.WriteError(w, r, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(req))
}
