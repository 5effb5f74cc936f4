package request

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gatepass/internal/directory"
	"gatepass/internal/escalation"
	"gatepass/internal/notify"
	"gatepass/internal/platform/config"
	"gatepass/internal/platform/metrics"
	"gatepass/internal/policy"
	"gatepass/internal/trust"
	"gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/sentinel"
)

// Service owns the request lifecycle: creation with eligibility gates, the
// three-stage approval chain, cancellation, editing, and the queue reads.
// Every status move goes through the guarded store so a lost race surfaces as
// CodeConflict rather than a double-applied decision.
type Service struct {
	store        Store
	restrictions RestrictionStore
	tokens       TokenCache
	directory    directory.Service
	policies     *policy.Engine
	escalation   *escalation.Resolver
	trust        *trust.Ledger
	publisher    notify.Publisher
	logger       *slog.Logger
	clock        func() time.Time
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	cfg          config.Lifecycle
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
	store Store,
	restrictions RestrictionStore,
	tokens TokenCache,
	dir directory.Service,
	policies *policy.Engine,
	resolver *escalation.Resolver,
	ledger *trust.Ledger,
	publisher notify.Publisher,
	cfg config.Lifecycle,
	opts ...Option,
) (*Service, error) {
	if store == nil || restrictions == nil || tokens == nil || dir == nil {
		return nil, fmt.Errorf("store, restriction store, token cache, and directory are required")
	}
	if policies == nil || resolver == nil || ledger == nil {
		return nil, fmt.Errorf("policy engine, escalation resolver, and trust ledger are required")
	}
	s := &Service{
		store:        store,
		restrictions: restrictions,
		tokens:       tokens,
		directory:    dir,
		policies:     policies,
		escalation:   resolver,
		trust:        ledger,
		publisher:    publisher,
		logger:       slog.Default(),
		clock:        time.Now,
		tracer:       otel.Tracer("gatepass/request"),
		cfg:          cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateInput carries the student-supplied fields of a new request. ReturnAt
// may be zero for open-ended categories; it is auto-filled to the end of the
// departure day.
type CreateInput struct {
	Category    domain.PassCategory
	Reason      string
	DepartureAt time.Time
	ReturnAt    time.Time
}

// DecisionResult is the outcome of an approval decision. IssuedToken is set
// only on the move into final approval and is never recoverable afterwards;
// the store keeps only its digest.
type DecisionResult struct {
	Request     PassRequest
	IssuedToken string
}

// Create validates eligibility and policy, inserts the request at pending,
// and notifies the resolved first-stage authority.
func (s *Service) Create(ctx context.Context, studentID domain.StudentID, in CreateInput) (PassRequest, error) {
	ctx, span := s.tracer.Start(ctx, "request.Create",
		trace.WithAttributes(attribute.String("student_id", studentID.String())))
	defer span.End()

	if in.Reason == "" {
		return PassRequest{}, dErrors.New(dErrors.CodeValidation, "a reason is required")
	}

	student, err := s.student(ctx, studentID)
	if err != nil {
		return PassRequest{}, err
	}
	if err := s.checkEligibility(ctx, student); err != nil {
		return PassRequest{}, err
	}

	now := s.clock()
	if in.DepartureAt.Before(now.Add(-s.cfg.CreateGrace)) {
		return PassRequest{}, dErrors.New(dErrors.CodeValidation, "departure time is in the past")
	}
	if in.DepartureAt.After(now.Add(s.cfg.CreateHorizon)) {
		return PassRequest{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("departure may be at most %s ahead", s.cfg.CreateHorizon))
	}

	returnAt := in.ReturnAt
	if returnAt.IsZero() {
		returnAt = endOfDay(in.DepartureAt)
	}
	if !returnAt.After(in.DepartureAt) {
		return PassRequest{}, dErrors.New(dErrors.CodeValidation, "return time must be after departure")
	}

	decision, err := s.policies.Evaluate(ctx, student.Category, in.Category, in.DepartureAt, returnAt.Sub(in.DepartureAt).Hours())
	if err != nil {
		return PassRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to evaluate policy")
	}
	if !decision.Allowed {
		return PassRequest{}, dErrors.New(dErrors.CodeValidation, decision.Reason)
	}

	req := PassRequest{
		ID:          domain.NewPassID(),
		StudentID:   studentID,
		Category:    in.Category,
		Reason:      in.Reason,
		DepartureAt: in.DepartureAt,
		ReturnAt:    returnAt,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, req); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			return PassRequest{}, dErrors.New(dErrors.CodeConflict, "an open request already exists")
		}
		return PassRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create request")
	}
	if s.metrics != nil {
		s.metrics.RequestsCreated.Inc()
	}

	s.applyMonthlyVolumePenalty(ctx, studentID, now)
	s.notifyFirstStage(ctx, req, student)
	return req, nil
}

// Recommend is the first-stage decision: the mentor (or their escalation)
// moves pending to approved_stage1.
func (s *Service) Recommend(ctx context.Context, actor domain.StaffID, id domain.PassID) (PassRequest, error) {
	ctx, span := s.tracer.Start(ctx, "request.Recommend")
	defer span.End()

	req, student, err := s.loadForDecision(ctx, actor, id, StatusPending, escalation.StageMentor)
	if err != nil {
		return PassRequest{}, err
	}
	if err := s.transition(ctx, req.ID, StatusPending, StatusApprovedStage1); err != nil {
		return PassRequest{}, err
	}
	req.Status = StatusApprovedStage1

	s.publish(ctx, notify.Event{
		Type:        notify.EventStageAdvanced,
		RequestID:   req.ID.String(),
		StudentID:   req.StudentID.String(),
		RecipientID: req.StudentID.String(),
		Message:     "your request passed first-stage review",
	})
	if authority, err := s.escalation.ResolveAuthority(ctx, escalation.StageHOD, student); err == nil {
		s.publish(ctx, notify.Event{
			Type:        notify.EventStageAdvanced,
			RequestID:   req.ID.String(),
			StudentID:   req.StudentID.String(),
			RecipientID: authority.ActorID.String(),
			Message:     "a request awaits your approval",
		})
	} else {
		s.logger.WarnContext(ctx, "failed to resolve second-stage authority", "request_id", req.ID, "error", err)
	}
	return req, nil
}

// Approve is the second-stage decision. Residents advance to the warden
// stage; day scholars have no hostel, so their approval is final and the
// verification token is issued here.
func (s *Service) Approve(ctx context.Context, actor domain.StaffID, id domain.PassID) (DecisionResult, error) {
	ctx, span := s.tracer.Start(ctx, "request.Approve")
	defer span.End()

	req, student, err := s.loadForDecision(ctx, actor, id, StatusApprovedStage1, escalation.StageHOD)
	if err != nil {
		return DecisionResult{}, err
	}

	if student.Category == domain.CategoryDayScholar {
		return s.finalize(ctx, req, StatusApprovedStage1)
	}

	if err := s.transition(ctx, req.ID, StatusApprovedStage1, StatusApprovedStage2); err != nil {
		return DecisionResult{}, err
	}
	req.Status = StatusApprovedStage2

	s.publish(ctx, notify.Event{
		Type:        notify.EventStageAdvanced,
		RequestID:   req.ID.String(),
		StudentID:   req.StudentID.String(),
		RecipientID: req.StudentID.String(),
		Message:     "your request passed second-stage review",
	})
	if authority, err := s.escalation.ResolveAuthority(ctx, escalation.StageWarden, student); err == nil {
		s.publish(ctx, notify.Event{
			Type:        notify.EventStageAdvanced,
			RequestID:   req.ID.String(),
			StudentID:   req.StudentID.String(),
			RecipientID: authority.ActorID.String(),
			Message:     "a request awaits your verification",
		})
	} else {
		s.logger.WarnContext(ctx, "failed to resolve warden authority", "request_id", req.ID, "error", err)
	}
	return DecisionResult{Request: req}, nil
}

// Verify is the warden's final decision for residents. The trust floor
// applies here unless the warden explicitly overrides it.
func (s *Service) Verify(ctx context.Context, actor domain.StaffID, id domain.PassID, override bool) (DecisionResult, error) {
	ctx, span := s.tracer.Start(ctx, "request.Verify")
	defer span.End()

	req, _, err := s.loadForDecision(ctx, actor, id, StatusApprovedStage2, escalation.StageWarden)
	if err != nil {
		return DecisionResult{}, err
	}

	if !override {
		score, err := s.trust.Score(ctx, req.StudentID)
		if err != nil {
			return DecisionResult{}, err
		}
		if score < s.cfg.TrustVerifyFloor {
			return DecisionResult{}, dErrors.NewEligibility(dErrors.SeverityCritical,
				fmt.Sprintf("trust score %d is below the verification floor %d", score, s.cfg.TrustVerifyFloor))
		}
	}
	return s.finalize(ctx, req, StatusApprovedStage2)
}

// Reject ends the request at whichever review stage it sits in.
func (s *Service) Reject(ctx context.Context, actor domain.StaffID, id domain.PassID, note string) (PassRequest, error) {
	ctx, span := s.tracer.Start(ctx, "request.Reject")
	defer span.End()

	req, err := s.find(ctx, id)
	if err != nil {
		return PassRequest{}, err
	}
	stage, ok := reviewStage(req.Status)
	if !ok {
		return PassRequest{}, dErrors.New(dErrors.CodeConflict, "request is not under review")
	}
	if err := s.authorize(ctx, actor, req, stage); err != nil {
		return PassRequest{}, err
	}
	if err := s.transition(ctx, req.ID, req.Status, StatusRejected); err != nil {
		return PassRequest{}, err
	}
	req.Status = StatusRejected

	msg := "your request was rejected"
	if note != "" {
		msg = "your request was rejected: " + note
	}
	s.publish(ctx, notify.Event{
		Type:        notify.EventRejected,
		RequestID:   req.ID.String(),
		StudentID:   req.StudentID.String(),
		RecipientID: req.StudentID.String(),
		Message:     msg,
	})
	return req, nil
}

// Cancel withdraws the student's own request. Cancellation is refused while
// the student is physically out; cancelling after second or third stage
// approval costs a trust penalty, and every cancellation feeds the cooldown
// counter.
func (s *Service) Cancel(ctx context.Context, studentID domain.StudentID, id domain.PassID) (PassRequest, error) {
	ctx, span := s.tracer.Start(ctx, "request.Cancel")
	defer span.End()

	req, err := s.find(ctx, id)
	if err != nil {
		return PassRequest{}, err
	}
	if req.StudentID != studentID {
		return PassRequest{}, dErrors.New(dErrors.CodeForbidden, "request belongs to another student")
	}
	if req.Status == StatusActive {
		return PassRequest{}, dErrors.New(dErrors.CodeConflict, "cannot cancel while outside campus")
	}
	if req.Status.Terminal() {
		return PassRequest{}, dErrors.New(dErrors.CodeConflict, "request is already closed")
	}

	lateCancel := req.Status == StatusApprovedStage2 || req.Status == StatusApprovedFinal
	if err := s.transition(ctx, req.ID, req.Status, StatusCancelled); err != nil {
		return PassRequest{}, err
	}
	req.Status = StatusCancelled

	if lateCancel {
		if _, err := s.trust.Adjust(ctx, studentID, -s.cfg.LateCancelPenalty, trust.ReasonLateCancellation, trust.SystemAdjuster); err != nil {
			s.logger.ErrorContext(ctx, "failed to apply late-cancel penalty", "request_id", req.ID, "error", err)
		}
	}
	if err := s.trust.RecordCancellation(ctx, studentID); err != nil {
		s.logger.ErrorContext(ctx, "failed to record cancellation", "request_id", req.ID, "error", err)
	}

	s.publish(ctx, notify.Event{
		Type:        notify.EventCancelled,
		RequestID:   req.ID.String(),
		StudentID:   studentID.String(),
		RecipientID: studentID.String(),
		Message:     "your request was cancelled",
	})
	return req, nil
}

// Edit rewrites a pending request's details. Edits close when the departure
// is near; the new times and category re-run the full policy check.
func (s *Service) Edit(ctx context.Context, studentID domain.StudentID, id domain.PassID, upd DetailsUpdate) (PassRequest, error) {
	ctx, span := s.tracer.Start(ctx, "request.Edit")
	defer span.End()

	req, err := s.find(ctx, id)
	if err != nil {
		return PassRequest{}, err
	}
	if req.StudentID != studentID {
		return PassRequest{}, dErrors.New(dErrors.CodeForbidden, "request belongs to another student")
	}
	if req.Status != StatusPending {
		return PassRequest{}, dErrors.New(dErrors.CodeConflict, "only pending requests can be edited")
	}

	now := s.clock()
	if req.DepartureAt.Sub(now) < s.cfg.EditLock {
		return PassRequest{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("edits close %s before departure", s.cfg.EditLock))
	}
	if upd.Reason == "" {
		return PassRequest{}, dErrors.New(dErrors.CodeValidation, "a reason is required")
	}
	if upd.DepartureAt.Before(now.Add(-s.cfg.CreateGrace)) {
		return PassRequest{}, dErrors.New(dErrors.CodeValidation, "departure time is in the past")
	}
	if upd.DepartureAt.After(now.Add(s.cfg.CreateHorizon)) {
		return PassRequest{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("departure may be at most %s ahead", s.cfg.CreateHorizon))
	}
	if upd.ReturnAt.IsZero() {
		upd.ReturnAt = endOfDay(upd.DepartureAt)
	}
	if !upd.ReturnAt.After(upd.DepartureAt) {
		return PassRequest{}, dErrors.New(dErrors.CodeValidation, "return time must be after departure")
	}

	student, err := s.student(ctx, studentID)
	if err != nil {
		return PassRequest{}, err
	}
	decision, err := s.policies.Evaluate(ctx, student.Category, upd.Category, upd.DepartureAt, upd.ReturnAt.Sub(upd.DepartureAt).Hours())
	if err != nil {
		return PassRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to evaluate policy")
	}
	if !decision.Allowed {
		return PassRequest{}, dErrors.New(dErrors.CodeValidation, decision.Reason)
	}

	if err := s.store.UpdateDetails(ctx, req.ID, StatusPending, upd, now); err != nil {
		return PassRequest{}, mapStoreErr(err, "failed to update request")
	}
	req.Category = upd.Category
	req.Reason = upd.Reason
	req.DepartureAt = upd.DepartureAt
	req.ReturnAt = upd.ReturnAt
	req.UpdatedAt = now
	return req, nil
}

// Forward hands the item at its current review stage to a named colleague,
// who then holds decision authority for that stage.
func (s *Service) Forward(ctx context.Context, actor, to domain.StaffID, id domain.PassID) (PassRequest, error) {
	ctx, span := s.tracer.Start(ctx, "request.Forward")
	defer span.End()

	req, err := s.find(ctx, id)
	if err != nil {
		return PassRequest{}, err
	}
	stage, ok := reviewStage(req.Status)
	if !ok {
		return PassRequest{}, dErrors.New(dErrors.CodeConflict, "request is not under review")
	}
	if err := s.authorize(ctx, actor, req, stage); err != nil {
		return PassRequest{}, err
	}
	if to == actor {
		return PassRequest{}, dErrors.New(dErrors.CodeValidation, "cannot forward to oneself")
	}
	if err := s.store.SetForwarded(ctx, req.ID, req.Status, to, s.clock()); err != nil {
		return PassRequest{}, mapStoreErr(err, "failed to forward request")
	}
	req.ForwardedTo = &to

	s.publish(ctx, notify.Event{
		Type:        notify.EventStageAdvanced,
		RequestID:   req.ID.String(),
		StudentID:   req.StudentID.String(),
		RecipientID: to.String(),
		Message:     "a request was forwarded to you for review",
	})
	return req, nil
}

// Get returns a single request by id.
func (s *Service) Get(ctx context.Context, id domain.PassID) (PassRequest, error) {
	return s.find(ctx, id)
}

// ListMine returns the student's full request history, oldest first.
func (s *Service) ListMine(ctx context.Context, studentID domain.StudentID) ([]PassRequest, error) {
	reqs, err := s.store.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list requests")
	}
	return reqs, nil
}

// Queue returns the items awaiting the actor's decision at the given stage.
func (s *Service) Queue(ctx context.Context, actor domain.StaffID, stage escalation.Stage) ([]PassRequest, error) {
	status, ok := stageStatus(stage)
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown approval stage")
	}
	reqs, err := s.store.ListByStatus(ctx, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list queue")
	}

	queue := make([]PassRequest, 0, len(reqs))
	for _, req := range reqs {
		ok, err := s.holdsAuthority(ctx, actor, req, stage)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping queue item", "request_id", req.ID, "error", err)
			continue
		}
		if ok {
			queue = append(queue, req)
		}
	}
	return queue, nil
}

// --- decision plumbing ---

func (s *Service) loadForDecision(ctx context.Context, actor domain.StaffID, id domain.PassID, expected Status, stage escalation.Stage) (PassRequest, directory.StudentProfile, error) {
	req, err := s.find(ctx, id)
	if err != nil {
		return PassRequest{}, directory.StudentProfile{}, err
	}
	if req.Status != expected {
		return PassRequest{}, directory.StudentProfile{}, dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("request is %s, not %s", req.Status, expected))
	}
	if err := s.authorize(ctx, actor, req, stage); err != nil {
		return PassRequest{}, directory.StudentProfile{}, err
	}
	student, err := s.student(ctx, req.StudentID)
	if err != nil {
		return PassRequest{}, directory.StudentProfile{}, err
	}
	return req, student, nil
}

// finalize moves the request into approved_final and issues the verification
// token. The raw token leaves the service exactly once, in the result.
func (s *Service) finalize(ctx context.Context, req PassRequest, from Status) (DecisionResult, error) {
	raw, digest, err := newToken()
	if err != nil {
		return DecisionResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue verification token")
	}

	now := s.clock()
	start := time.Now()
	err = s.store.TransitionWithToken(ctx, req.ID, from, StatusApprovedFinal, digest, now)
	s.observeTransition(StatusApprovedFinal, err, start)
	if err != nil {
		return DecisionResult{}, mapStoreErr(err, "failed to finalize request")
	}
	req.Status = StatusApprovedFinal
	req.TokenDigest = digest
	req.UpdatedAt = now

	ttl := req.ReturnAt.Sub(now) + 24*time.Hour
	if err := s.tokens.Set(ctx, raw, req.ID, ttl); err != nil {
		// The gate falls back to the digest lookup on a cache miss.
		s.logger.WarnContext(ctx, "failed to cache verification token", "request_id", req.ID, "error", err)
	}

	s.publish(ctx, notify.Event{
		Type:        notify.EventRequestReady,
		RequestID:   req.ID.String(),
		StudentID:   req.StudentID.String(),
		RecipientID: req.StudentID.String(),
		Message:     "your pass is approved and ready for the gate",
	})
	return DecisionResult{Request: req, IssuedToken: raw}, nil
}

func (s *Service) authorize(ctx context.Context, actor domain.StaffID, req PassRequest, stage escalation.Stage) error {
	ok, err := s.holdsAuthority(ctx, actor, req, stage)
	if err != nil {
		return err
	}
	if !ok {
		return dErrors.New(dErrors.CodeForbidden, "actor lacks authority for this stage")
	}
	return nil
}

func (s *Service) holdsAuthority(ctx context.Context, actor domain.StaffID, req PassRequest, stage escalation.Stage) (bool, error) {
	if req.ForwardedTo != nil && *req.ForwardedTo == actor {
		return true, nil
	}
	student, err := s.student(ctx, req.StudentID)
	if err != nil {
		return false, err
	}
	return s.escalation.HasAuthority(ctx, actor, stage, student)
}

func (s *Service) checkEligibility(ctx context.Context, student directory.StudentProfile) error {
	if !student.Active {
		return dErrors.NewEligibility(dErrors.SeverityCritical, "account is inactive")
	}
	if student.PassBlocked {
		return dErrors.NewEligibility(dErrors.SeverityCritical, "account is pass-blocked")
	}

	score, err := s.trust.Score(ctx, student.ID)
	if err != nil {
		return err
	}
	if score < s.cfg.TrustCreateFloor {
		return dErrors.NewEligibility(dErrors.SeverityCritical,
			fmt.Sprintf("trust score %d is below the required %d", score, s.cfg.TrustCreateFloor))
	}

	active, err := s.restrictions.ActiveFor(ctx, student, s.clock())
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check group restrictions")
	}
	if len(active) > 0 {
		return dErrors.NewEligibility(dErrors.SeverityCritical,
			"requests are restricted: "+active[0].Reason)
	}

	inCooldown, err := s.trust.InCooldown(ctx, student.ID)
	if err != nil {
		return err
	}
	if inCooldown {
		return dErrors.NewEligibility(dErrors.SeverityWarning,
			"too many recent cancellations; try again later")
	}
	return nil
}

// applyMonthlyVolumePenalty charges the fixed penalty when this create pushed
// the calendar-month total past the free allowance. Best effort; the request
// already exists.
func (s *Service) applyMonthlyVolumePenalty(ctx context.Context, studentID domain.StudentID, now time.Time) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	count, err := s.store.CountCreatedBetween(ctx, studentID, monthStart, now.Add(time.Second))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to count monthly requests", "student_id", studentID, "error", err)
		return
	}
	if count <= s.cfg.MonthlyVolumeLimit {
		return
	}
	if _, err := s.trust.Adjust(ctx, studentID, -s.cfg.MonthlyVolumePenalty, trust.ReasonMonthlyVolume, trust.SystemAdjuster); err != nil {
		s.logger.ErrorContext(ctx, "failed to apply monthly volume penalty", "student_id", studentID, "error", err)
	}
}

func (s *Service) notifyFirstStage(ctx context.Context, req PassRequest, student directory.StudentProfile) {
	authority, err := s.escalation.ResolveAuthority(ctx, escalation.StageMentor, student)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to resolve first-stage authority", "request_id", req.ID, "error", err)
		return
	}
	s.publish(ctx, notify.Event{
		Type:        notify.EventRequestCreated,
		RequestID:   req.ID.String(),
		StudentID:   req.StudentID.String(),
		RecipientID: authority.ActorID.String(),
		Message:     "a new request awaits your review",
	})
}

func (s *Service) transition(ctx context.Context, id domain.PassID, from, to Status) error {
	start := time.Now()
	err := s.store.Transition(ctx, id, from, to, s.clock())
	s.observeTransition(to, err, start)
	if err != nil {
		return mapStoreErr(err, "failed to transition request")
	}
	return nil
}

func (s *Service) observeTransition(to Status, err error, start time.Time) {
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

func (s *Service) find(ctx context.Context, id domain.PassID) (PassRequest, error) {
	req, err := s.store.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return PassRequest{}, dErrors.New(dErrors.CodeNotFound, "request not found")
	}
	if err != nil {
		return PassRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request")
	}
	return req, nil
}

// reviewStage maps a status under review to the stage that decides it.
func reviewStage(status Status) (escalation.Stage, bool) {
	switch status {
	case StatusPending:
		return escalation.StageMentor, true
	case StatusApprovedStage1:
		return escalation.StageHOD, true
	case StatusApprovedStage2:
		return escalation.StageWarden, true
	}
	return 0, false
}

func stageStatus(stage escalation.Stage) (Status, bool) {
	switch stage {
	case escalation.StageMentor:
		return StatusPending, true
	case escalation.StageHOD:
		return StatusApprovedStage1, true
	case escalation.StageWarden:
		return StatusApprovedStage2, true
	}
	return "", false
}

func mapStoreErr(err error, message string) error {
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "request was modified concurrently; re-fetch and retry")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "request not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, message)
	}
}

// newToken mints the opaque gate verification token and its storable digest.
func newToken() (raw, digest string, err error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("read random bytes: %w", err)
	}
	raw = hex.EncodeToString(buf)
	return raw, DigestToken(raw), nil
}

// DigestToken is the canonical token digest used for persistence and the
// cache-miss fallback lookup.
func DigestToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
