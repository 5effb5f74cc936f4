package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"gatepass/internal/directory"
	"gatepass/internal/notify"
	"gatepass/internal/platform/config"
	"gatepass/internal/platform/metrics"
	"gatepass/internal/policy"
	"gatepass/internal/request"
	"gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/sentinel"
)

// Service is the gate desk: it derives the momentary standing of a pass and
// records scans. Gate status is never stored; every check recomputes it from
// the approval state and the newest log, so a stale screen can never let a
// used pass through.
type Service struct {
	requests  request.Store
	tokens    request.TokenCache
	logs      LogStore
	directory directory.Service
	policies  *policy.Engine
	publisher notify.Publisher
	logger    *slog.Logger
	clock     func() time.Time
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	cfg       config.Gate
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(
	requests request.Store,
	tokens request.TokenCache,
	logs LogStore,
	dir directory.Service,
	policies *policy.Engine,
	publisher notify.Publisher,
	cfg config.Gate,
	opts ...Option,
) (*Service, error) {
	if requests == nil || tokens == nil || logs == nil || dir == nil || policies == nil {
		return nil, fmt.Errorf("request store, token cache, log store, directory, and policy engine are required")
	}
	s := &Service{
		requests:  requests,
		tokens:    tokens,
		logs:      logs,
		directory: dir,
		policies:  policies,
		publisher: publisher,
		logger:    slog.Default(),
		clock:     time.Now,
		tracer:    otel.Tracer("gatepass/gate"),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Check resolves a verification token and returns the pass with its derived
// gate standing. A pass found hard-expired here is force-expired as a side
// effect so the screen and the store agree.
func (s *Service) Check(ctx context.Context, token string) (request.PassRequest, Verification, error) {
	ctx, span := s.tracer.Start(ctx, "gate.Check")
	defer span.End()

	req, err := s.lookup(ctx, token)
	if err != nil {
		return request.PassRequest{}, Verification{}, err
	}

	v, err := s.evaluate(ctx, req)
	if err != nil {
		return request.PassRequest{}, Verification{}, err
	}

	if v.Status == StatusExpired && req.Status == request.StatusApprovedFinal {
		s.hardExpire(ctx, &req)
	}
	return req, v, nil
}

// Evaluate derives the gate standing for a known request id.
func (s *Service) Evaluate(ctx context.Context, id domain.PassID) (Verification, error) {
	req, err := s.find(ctx, id)
	if err != nil {
		return Verification{}, err
	}
	return s.evaluate(ctx, req)
}

// LogAction records a scan and drives the matching lifecycle transition. The
// scan is legal only when the derived standing allows it; a repeated scan
// loses either here or on the guarded transition, never double-applies.
func (s *Service) LogAction(ctx context.Context, gatekeeper domain.StaffID, id domain.PassID, action Action) (request.PassRequest, error) {
	ctx, span := s.tracer.Start(ctx, "gate.LogAction")
	defer span.End()

	req, err := s.find(ctx, id)
	if err != nil {
		return request.PassRequest{}, err
	}
	v, err := s.evaluate(ctx, req)
	if err != nil {
		return request.PassRequest{}, err
	}
	if !v.Allows(action) {
		return request.PassRequest{}, dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("%s is not allowed while the pass is %s", action, v.Status))
	}

	from, to, err := s.scanTransition(ctx, req, action)
	if err != nil {
		return request.PassRequest{}, err
	}

	now := s.clock()
	start := time.Now()
	err = s.requests.Transition(ctx, req.ID, from, to, now)
	s.observeTransition(to, err, start)
	if errors.Is(err, sentinel.ErrConflict) {
		return request.PassRequest{}, dErrors.New(dErrors.CodeConflict, "scan already recorded; re-check the pass")
	}
	if err != nil {
		return request.PassRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record scan transition")
	}
	req.Status = to
	req.UpdatedAt = now

	log := Log{
		ID:           uuid.New(),
		RequestID:    req.ID,
		Action:       action,
		GatekeeperID: gatekeeper,
		At:           now,
	}
	if err := s.logs.Append(ctx, log); err != nil {
		// The transition committed; the journal entry is best effort.
		s.logger.ErrorContext(ctx, "failed to append gate log", "request_id", req.ID, "error", err)
	}
	s.metrics.ObserveGateScan(string(action))

	eventType := notify.EventGateExit
	message := "exit recorded at the gate"
	if action == ActionEntry {
		eventType = notify.EventGateEntry
		message = "entry recorded at the gate"
	}
	s.publish(ctx, notify.Event{
		Type:        eventType,
		RequestID:   req.ID.String(),
		StudentID:   req.StudentID.String(),
		RecipientID: req.StudentID.String(),
		Message:     message,
	})
	return req, nil
}

// History returns the scan journal for a request.
func (s *Service) History(ctx context.Context, id domain.PassID) ([]Log, error) {
	logs, err := s.logs.ListByRequest(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list gate logs")
	}
	return logs, nil
}

// scanTransition maps a scan onto the lifecycle edge it drives. Exit-only
// passes complete on their single scan.
func (s *Service) scanTransition(ctx context.Context, req request.PassRequest, action Action) (request.Status, request.Status, error) {
	switch action {
	case ActionExit:
		required, err := s.requiredAction(ctx, req)
		if err != nil {
			return "", "", err
		}
		if required == domain.GateActionExitOnly {
			return request.StatusApprovedFinal, request.StatusCompleted, nil
		}
		return request.StatusApprovedFinal, request.StatusActive, nil
	case ActionEntry:
		return request.StatusActive, request.StatusCompleted, nil
	}
	return "", "", dErrors.New(dErrors.CodeInvalidInput, "unknown gate action")
}

// evaluate is the derivation. Order matters: scan requirement first, then the
// journal, then the time windows.
func (s *Service) evaluate(ctx context.Context, req request.PassRequest) (Verification, error) {
	switch req.Status {
	case request.StatusPending, request.StatusApprovedStage1, request.StatusApprovedStage2:
		return Verification{Status: StatusNotApproved}, nil
	case request.StatusRejected, request.StatusCancelled, request.StatusExpired:
		return Verification{Status: StatusExpired}, nil
	}

	required, err := s.requiredAction(ctx, req)
	if err != nil {
		return Verification{}, err
	}
	switch required {
	case domain.GateActionNone:
		return Verification{Status: StatusNotRequired}, nil
	case domain.GateActionInternal:
		return Verification{Status: StatusInternal}, nil
	}

	latest, err := s.latest(ctx, req.ID)
	if err != nil {
		return Verification{}, err
	}
	now := s.clock()

	if required == domain.GateActionExitOnly {
		if req.Status == request.StatusCompleted || (latest != nil && latest.Action == ActionExit) {
			return Verification{Status: StatusCompleted}, nil
		}
		return s.preExit(ctx, req, now)
	}

	// Standard two-scan flow.
	if latest == nil {
		if req.Status != request.StatusApprovedFinal {
			return Verification{Status: StatusExpired}, nil
		}
		return s.preExit(ctx, req, now)
	}
	switch latest.Action {
	case ActionExit:
		if req.Status == request.StatusCompleted {
			return Verification{Status: StatusExpired}, nil
		}
		if now.After(req.ReturnAt) {
			return Verification{
				Status:         StatusOverdue,
				AllowedActions: []Action{ActionEntry},
				Warning:        "return time exceeded",
				OverdueMinutes: int(now.Sub(req.ReturnAt).Minutes()),
			}, nil
		}
		return Verification{Status: StatusOut, AllowedActions: []Action{ActionEntry}}, nil
	default:
		return Verification{Status: StatusExpired}, nil
	}
}

// preExit applies the departure-time buffers before the first scan.
func (s *Service) preExit(ctx context.Context, req request.PassRequest, now time.Time) (Verification, error) {
	buffer := s.cfg.DepartureBuffer
	if req.Category == domain.PassEmergency {
		buffer = s.cfg.EmergencyBuffer
	}

	if now.After(req.DepartureAt.Add(buffer)) {
		student, err := s.student(ctx, req.StudentID)
		if err != nil {
			return Verification{}, err
		}
		if student.Category == domain.CategoryDayScholar && req.Category == domain.PassPermission {
			return Verification{Status: StatusExpired}, nil
		}
		return Verification{
			Status:         StatusReady,
			AllowedActions: []Action{ActionExit},
			Warning:        "late departure",
		}, nil
	}

	if now.Before(req.DepartureAt.Add(-s.cfg.EarlyBuffer)) {
		return Verification{
			Status:         StatusTooEarly,
			AllowedActions: []Action{ActionExit},
			Warning:        "before the scheduled departure window",
		}, nil
	}
	return Verification{Status: StatusReady, AllowedActions: []Action{ActionExit}}, nil
}

// hardExpire force-expires a pass the buffer check ruled out. Best effort;
// a lost race means someone else already moved it.
func (s *Service) hardExpire(ctx context.Context, req *request.PassRequest) {
	now := s.clock()
	err := s.requests.Transition(ctx, req.ID, request.StatusApprovedFinal, request.StatusExpired, now)
	if err != nil && !errors.Is(err, sentinel.ErrConflict) {
		s.logger.ErrorContext(ctx, "failed to hard-expire pass", "request_id", req.ID, "error", err)
		return
	}
	if err == nil {
		req.Status = request.StatusExpired
		req.UpdatedAt = now
		s.publish(ctx, notify.Event{
			Type:        notify.EventExpired,
			RequestID:   req.ID.String(),
			StudentID:   req.StudentID.String(),
			RecipientID: req.StudentID.String(),
			Message:     "your pass expired before departure",
		})
	}
}

func (s *Service) requiredAction(ctx context.Context, req request.PassRequest) (domain.GateAction, error) {
	student, err := s.student(ctx, req.StudentID)
	if err != nil {
		return "", err
	}
	action, err := s.policies.RequiredGateAction(ctx, student.Category, req.Category)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve gate action")
	}
	return action, nil
}

func (s *Service) lookup(ctx context.Context, token string) (request.PassRequest, error) {
	if token == "" {
		return request.PassRequest{}, dErrors.New(dErrors.CodeInvalidInput, "a verification token is required")
	}

	id, err := s.tokens.Get(ctx, token)
	if err == nil {
		return s.find(ctx, id)
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "token cache lookup failed", "error", err)
	}

	req, err := s.requests.FindByTokenDigest(ctx, request.DigestToken(token))
	if errors.Is(err, sentinel.ErrNotFound) {
		return request.PassRequest{}, dErrors.New(dErrors.CodeNotFound, "unknown verification token")
	}
	if err != nil {
		return request.PassRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve verification token")
	}
	return req, nil
}

func (s *Service) latest(ctx context.Context, id domain.PassID) (*Log, error) {
	log, err := s.logs.Latest(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read gate logs")
	}
	return &log, nil
}

func (s *Service) student(ctx context.Context, id domain.StudentID) (directory.StudentProfile, error) {
	student, err := s.directory.Student(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return directory.StudentProfile{}, dErrors.New(dErrors.CodeNotFound, "student not found")
	}
	if err != nil {
		return directory.StudentProfile{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load student")
	}
	return student, nil
}

func (s *Service) find(ctx context.Context, id domain.PassID) (request.PassRequest, error) {
	req, err := s.requests.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return request.PassRequest{}, dErrors.New(dErrors.CodeNotFound, "request not found")
	}
	if err != nil {
		return request.PassRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request")
	}
	return req, nil
}

func (s *Service) observeTransition(to request.Status, err error, start time.Time) {
	outcome := "ok"
	if errors.Is(err, sentinel.ErrConflict) {
		outcome = "conflict"
	} else if err != nil {
		outcome = "error"
	}
	s.metrics.ObserveTransition(string(to), outcome, time.Since(start))
}

func (s *Service) publish(ctx context.Context, event notify.Event) {
	if s.publisher != nil {
		s.publisher.Publish(ctx, event)
	}
}
