package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gatepass/internal/escalation"
	"gatepass/internal/platform/middleware"
	"gatepass/internal/request"
	"gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"

	"gatepass/internal/transport/http/shared"
)

// RequestHandler serves the student-facing lifecycle endpoints and the
// approval queues.
type RequestHandler struct {
	svc    *request.Service
	logger *slog.Logger
}

func NewRequestHandler(svc *request.Service, logger *slog.Logger) *RequestHandler {
	return &RequestHandler{svc: svc, logger: logger}
}

type requestPayload struct {
	Category    string     `json:"category"`
	Reason      string     `json:"reason"`
	DepartureAt time.Time  `json:"departure_at"`
	ReturnAt    *time.Time `json:"return_at,omitempty"`
}

type requestResponse struct {
	ID          string     `json:"id"`
	StudentID   string     `json:"student_id"`
	Category    string     `json:"category"`
	Reason      string     `json:"reason"`
	DepartureAt time.Time  `json:"departure_at"`
	ReturnAt    time.Time  `json:"return_at"`
	Status      string     `json:"status"`
	ForwardedTo *string    `json:"forwarded_to,omitempty"`
	Token       string     `json:"token,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toResponse(req request.PassRequest) requestResponse {
	resp := requestResponse{
		ID:          req.ID.String(),
		StudentID:   req.StudentID.String(),
		Category:    string(req.Category),
		Reason:      req.Reason,
		DepartureAt: req.DepartureAt,
		ReturnAt:    req.ReturnAt,
		Status:      string(req.Status),
		CreatedAt:   req.CreatedAt,
		UpdatedAt:   req.UpdatedAt,
	}
	if req.ForwardedTo != nil {
		forwarded := req.ForwardedTo.String()
		resp.ForwardedTo = &forwarded
	}
	return resp
}

func toResponses(reqs []request.PassRequest) []requestResponse {
	out := make([]requestResponse, len(reqs))
	for i, req := range reqs {
		out[i] = toResponse(req)
	}
	return out
}

// Create handles POST /requests.
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	studentID, err := domain.ParseStudentID(middleware.GetActorID(r.Context()))
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeUnauthorized, "invalid actor id"))
		return
	}

	in, err := decodeCreateInput(r)
	if err != nil {
		shared.WriteError(w, r, h.logger, err)
		return
	}

	req, err := h.svc.Create(r.Context(), studentID, in)
	if err != nil {
		shared.WriteError(w, r, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toResponse(req))
}

// ListMine handles GET /requests/mine.
func (h *RequestHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	studentID, err := domain.ParseStudentID(middleware.GetActorID(r.Context()))
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeUnauthorized, "invalid actor id"))
		return
	}
	reqs, err := h.svc.ListMine(r.Context(), studentID)
	if err != nil {
		shared.WriteError(w, r, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponses(reqs))
}

// Edit handles PUT /requests/{id}.
func (h *RequestHandler) Edit(w http.ResponseWriter, r *http.Request) {
	studentID, err := domain.ParseStudentID(middleware.GetActorID(r.Context()))
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeUnauthorized, "invalid actor id"))
		return
	}
	id, err := domain.ParsePassID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "invalid request id"))
		return
	}

	in, err := decodeCreateInput(r)
	if err != nil {
		shared.WriteError(w, r, h.logger, err)
		return
	}
	upd := request.DetailsUpdate{
		Category:    in.Category,
		Reason:      in.Reason,
		DepartureAt: in.DepartureAt,
		ReturnAt:    in.ReturnAt,
	}

	req, err := h.svc.Edit(r.Context(), studentID, id, upd)
	if err != nil {
		shared.WriteError(w, r, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(req))
}

// Cancel handles DELETE /requests/{id}.
func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	studentID, err := domain.ParseStudentID(middleware.GetActorID(r.Context()))
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeUnauthorized, "invalid actor id"))
		return
	}
	id, err := domain.ParsePassID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "invalid request id"))
		return
	}
	req, err := h.svc.Cancel(r.Context(), studentID, id)
	if err != nil {
		shared.WriteError(w, r, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(req))
}

// Queue handles GET /queue for mentors and department heads; the caller's
// role picks the stage.
func (h *RequestHandler) Queue(w http.ResponseWriter, r *http.Request) {
	actor, stage, err := h.actorStage(r)
	if err != nil {
		shared.WriteError(w, r, h.logger, err)
		return
	}
	reqs, err := h.svc.Queue(r.Context(), actor, stage)
	if err != nil {
		shared.WriteError(w, r, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponses(reqs))
}

type decisionPayload struct {
	Decision string `json:"decision"`
	Note     string `json:"note,omitempty"`
	To       string `json:"to,omitempty"`
	Override bool   `json:"override,omitempty"`
}

// Decide handles PUT /queue/{id}/status for the first two stages.
func (h *RequestHandler) Decide(w http.ResponseWriter, r *http.Request) {
	actor, err := domain.ParseStaffID(middleware.GetActorID(r.Context()))
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeUnauthorized, "invalid actor id"))
		return
	}
	id, err := domain.ParsePassID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "invalid request id"))
		return
	}
	var payload decisionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	switch payload.Decision {
	case "recommend":
		req, err := h.svc.Recommend(r.Context(), actor, id)
		if err != nil {
			shared.WriteError(w, r, h.logger, err)
			return
		}
		shared.WriteJSON(w, http.StatusOK, toResponse(req))
	case "approve":
		result, err := h.svc.Approve(r.Context(), actor, id)
		if err != nil {
			shared.WriteError(w, r, h.logger, err)
			return
		}
		resp := toResponse(result.Request)
		resp.Token = result.IssuedToken
		shared.WriteJSON(w, http.StatusOK, resp)
	case "reject":
		req, err := h.svc.Reject(r.Context(), actor, id, payload.Note)
		if err != nil {
			shared.WriteError(w, r, h.logger, err)
			return
		}
		shared.WriteJSON(w, http.StatusOK, toResponse(req))
	case "forward":
		to, err := domain.ParseStaffID(payload.To)
		if err != nil {
			shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "invalid forwarding target"))
			return
		}
		req, err := h.svc.Forward(r.Context(), actor, to, id)
		if err != nil {
			shared.WriteError(w, r, h.logger, err)
			return
		}
		shared.WriteJSON(w, http.StatusOK, toResponse(req))
	default:
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput,
			"decision must be recommend, approve, reject, or forward"))
	}
}

// WardenQueue handles GET /wardens/queue.
func (h *RequestHandler) WardenQueue(w http.ResponseWriter, r *http.Request) {
	actor, err := domain.ParseStaffID(middleware.GetActorID(r.Context()))
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeUnauthorized, "invalid actor id"))
		return
	}
	reqs, err := h.svc.Queue(r.Context(), actor, escalation.StageWarden)
	if err != nil {
		shared.WriteError(w, r, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponses(reqs))
}

// WardenVerify handles PUT /wardens/{id}/verify.
func (h *RequestHandler) WardenVerify(w http.ResponseWriter, r *http.Request) {
	actor, err := domain.ParseStaffID(middleware.GetActorID(r.Context()))
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeUnauthorized, "invalid actor id"))
		return
	}
	id, err := domain.ParsePassID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "invalid request id"))
		return
	}
	var payload decisionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	switch payload.Decision {
	case "verify":
		result, err := h.svc.Verify(r.Context(), actor, id, payload.Override)
		if err != nil {
			shared.WriteError(w, r, h.logger, err)
			return
		}
		resp := toResponse(result.Request)
		resp.Token = result.IssuedToken
		shared.WriteJSON(w, http.StatusOK, resp)
	case "reject":
		req, err := h.svc.Reject(r.Context(), actor, id, payload.Note)
		if err != nil {
			shared.WriteError(w, r, h.logger, err)
			return
		}
		shared.WriteJSON(w, http.StatusOK, toResponse(req))
	default:
		shared.WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "decision must be verify or reject"))
	}
}

func (h *RequestHandler) actorStage(r *http.Request) (domain.StaffID, escalation.Stage, error) {
	actor, err := domain.ParseStaffID(middleware.GetActorID(r.Context()))
	if err != nil {
		return domain.StaffID{}, 0, dErrors.New(dErrors.CodeUnauthorized, "invalid actor id")
	}
	switch middleware.GetRole(r.Context()) {
	case domain.RoleMentor:
		return actor, escalation.StageMentor, nil
	case domain.RoleHOD:
		return actor, escalation.StageHOD, nil
	}
	return domain.StaffID{}, 0, dErrors.New(dErrors.CodeForbidden, "no approval queue for this role")
}

func decodeCreateInput(r *http.Request) (request.CreateInput, error) {
	var payload requestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return request.CreateInput{}, dErrors.New(dErrors.CodeBadRequest, "malformed request body")
	}
	category, err := domain.ParsePassCategory(payload.Category)
	if err != nil {
		return request.CreateInput{}, err
	}
	in := request.CreateInput{
		Category:    category,
		Reason:      payload.Reason,
		DepartureAt: payload.DepartureAt,
	}
	if payload.ReturnAt != nil {
		in.ReturnAt = *payload.ReturnAt
	}
	return in, nil
}
