package lending

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/kitcheck/internal/app/detection"
	"github.com/PabloGalante/kitcheck/internal/app/diff"
	"github.com/PabloGalante/kitcheck/internal/app/journal"
	"github.com/PabloGalante/kitcheck/internal/app/projection"
	"github.com/PabloGalante/kitcheck/internal/app/reconcile"
	"github.com/PabloGalante/kitcheck/internal/domain"
	"github.com/PabloGalante/kitcheck/internal/observability"
)

const DefaultThreshold = 0.98

type Config struct {
	// DefaultThreshold applies to new sessions and to one-off predictions
	// that do not name a threshold.
	DefaultThreshold float64
	// AllowPartialIssue lets a handout with unaccounted classes be issued.
	AllowPartialIssue bool
}

// Service drives tool lending sessions through their lifecycle.
type Service struct {
	sessions  domain.SessionStore
	detection *detection.Adapter
	publisher domain.EventPublisher
	journal   *journal.Service
	cfg       Config
	now       func() time.Time
}

func NewService(
	sessions domain.SessionStore,
	adapter *detection.Adapter,
	publisher domain.EventPublisher,
	history *journal.Service,
	cfg Config,
) *Service {
	if cfg.DefaultThreshold <= 0 || cfg.DefaultThreshold > 1 {
		cfg.DefaultThreshold = DefaultThreshold
	}
	if history == nil {
		history = journal.NewService(nil)
	}
	return &Service{
		sessions:  sessions,
		detection: adapter,
		publisher: publisher,
		journal:   history,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ─────────────────────────────────────────
// Session creation and one-off prediction
// ─────────────────────────────────────────

type CreateInput struct {
	// Threshold defaults to the configured value when nil.
	Threshold *float64
	Notes     string
}

func (s *Service) CreateSession(ctx context.Context, actor domain.Actor, in CreateInput) (*domain.Session, error) {
	if actor.EmployeeID == "" {
		return nil, fmt.Errorf("%w: employee id is required", domain.ErrInvalidInput)
	}

	threshold := s.cfg.DefaultThreshold
	if in.Threshold != nil {
		threshold = *in.Threshold
	}
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}

	now := s.now()
	session := &domain.Session{
		ID:            domain.SessionID(uuid.NewString()),
		EmployeeID:    actor.EmployeeID,
		Status:        domain.StatusDraft,
		ThresholdUsed: threshold,
		Notes:         in.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	log := observability.LoggerFromContext(ctx).With(
		"session_id", session.ID,
		"employee_id", actor.EmployeeID,
	)

	if err := s.sessions.CreateSession(ctx, session); err != nil {
		log.Error("failed to create session", "error", err)
		return nil, err
	}

	log.Info("session created", "threshold", threshold)
	return session, nil
}

// Predict runs detection without touching any session. A nil threshold
// means the configured default.
func (s *Service) Predict(ctx context.Context, image string, threshold *float64) (*domain.PredictResult, error) {
	return s.detection.Run(ctx, image, thresholdOr(threshold, s.cfg.DefaultThreshold))
}

// ─────────────────────────────────────────
// Predict / adjust (per phase)
// ─────────────────────────────────────────

func (s *Service) PredictHandout(ctx context.Context, actor domain.Actor, id domain.SessionID, image string, threshold *float64) (*domain.PredictResult, error) {
	return s.predict(ctx, actor, id, domain.PhaseHandout, image, threshold)
}

func (s *Service) PredictHandover(ctx context.Context, actor domain.Actor, id domain.SessionID, image string, threshold *float64) (*domain.PredictResult, error) {
	return s.predict(ctx, actor, id, domain.PhaseHandover, image, threshold)
}

func (s *Service) AdjustHandout(ctx context.Context, actor domain.Actor, id domain.SessionID, threshold *float64, annotations []domain.Annotation) (*domain.AdjustResult, error) {
	return s.adjust(ctx, actor, id, domain.PhaseHandout, threshold, annotations)
}

func (s *Service) AdjustHandover(ctx context.Context, actor domain.Actor, id domain.SessionID, threshold *float64, annotations []domain.Annotation) (*domain.AdjustResult, error) {
	return s.adjust(ctx, actor, id, domain.PhaseHandover, threshold, annotations)
}

// predict runs detection for a phase and moves the session to the phase's
// auto or manual-review status. A nil threshold means the session's.
func (s *Service) predict(
	ctx context.Context,
	actor domain.Actor,
	id domain.SessionID,
	kind domain.PhaseKind,
	image string,
	requested *float64,
) (*domain.PredictResult, error) {
	session, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	ev := predictedEvent(kind)
	log := observability.LoggerFromContext(ctx).With(
		"session_id", session.ID,
		"phase", kind,
	)

	// Reject closed phases before spending a detector call.
	if _, err := domain.Transition(session.Status, domain.Trigger{Kind: ev}); err != nil {
		return nil, err
	}

	threshold := thresholdOr(requested, session.ThresholdUsed)
	res, err := s.detection.Run(ctx, image, threshold)
	if err != nil {
		return nil, err
	}

	auto := detection.AutoResolvable(res)
	from := session.Status
	to, err := domain.Transition(from, domain.Trigger{
		Kind:           ev,
		RequiresManual: res.Summary.RequiresManualCount,
		AutoResolvable: auto,
	})
	if err != nil {
		return nil, err
	}

	phase := session.PhaseData(kind)
	phase.Image = image
	phase.Predict = res
	phase.Final = nil
	if to == autoStatus(kind) {
		phase.Final = detection.AutoFinalSet(res)
	}

	now := s.now()
	session.Status = to
	session.ThresholdUsed = threshold
	session.UpdatedAt = now

	if err := s.sessions.UpdateSession(ctx, session); err != nil {
		log.Error("failed to store prediction", "error", err)
		return nil, err
	}

	log.Info("prediction stored",
		"status", to,
		"requires_manual", res.Summary.RequiresManualCount,
		"auto", auto,
	)
	s.publish(ctx, s.event(session.ID, ev, from, to, actor, now))

	return res, nil
}

// adjust reconciles operator annotations with the phase's prediction. The
// final set is committed only when the annotations are structurally sound
// and validation passed; otherwise the session is left untouched.
func (s *Service) adjust(
	ctx context.Context,
	actor domain.Actor,
	id domain.SessionID,
	kind domain.PhaseKind,
	requested *float64,
	annotations []domain.Annotation,
) (*domain.AdjustResult, error) {
	session, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	ev := adjustedEvent(kind)
	if _, err := domain.Transition(session.Status, domain.Trigger{Kind: ev}); err != nil {
		return nil, err
	}

	threshold := thresholdOr(requested, session.ThresholdUsed)
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}

	phase := session.PhaseData(kind)
	var detections []domain.Detection
	if phase.Predict != nil {
		detections = phase.Predict.Detections
	}

	r := reconcile.Reconcile(reconcile.Input{
		Threshold:   threshold,
		Catalog:     s.detection.Catalog().Classes(),
		Annotations: annotations,
		Detections:  detections,
		RequireAll:  kind == domain.PhaseHandout && !s.cfg.AllowPartialIssue,
	})

	out := &domain.AdjustResult{
		OK:         r.OK,
		Issues:     r.Issues,
		Phase:      kind,
		Count:      r.Count,
		Passed:     r.Passed,
		Validation: r.Validation,
		Status:     session.Status,
	}

	log := observability.LoggerFromContext(ctx).With(
		"session_id", session.ID,
		"phase", kind,
	)

	if !r.OK || !r.Passed {
		log.Info("adjustment rejected",
			"issues", len(r.Issues),
			"errors", len(r.Validation.Errors),
		)
		return out, nil
	}

	now := s.now()
	phase.Final = r.Final
	session.ThresholdUsed = threshold
	session.UpdatedAt = now

	if err := s.sessions.UpdateSession(ctx, session); err != nil {
		log.Error("failed to store adjustment", "error", err)
		return nil, err
	}

	log.Info("adjustment committed", "count", r.Count, "warnings", len(r.Validation.Warnings))
	s.publish(ctx, s.event(session.ID, ev, session.Status, session.Status, actor, now))

	out.Final = r.Final
	return out, nil
}

// ─────────────────────────────────────────
// Issue / finalize
// ─────────────────────────────────────────

type IssueResult struct {
	Status   domain.Status `json:"status"`
	IssuedAt time.Time     `json:"issued_at"`
}

// Issue hands the kit to the employee. The handout needs a committed final
// set; unaccounted classes block issuing unless partial issue is allowed.
func (s *Service) Issue(ctx context.Context, actor domain.Actor, id domain.SessionID) (*IssueResult, error) {
	session, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	trigger := domain.Trigger{Kind: domain.EventIssue, AllowUnresolved: s.cfg.AllowPartialIssue}
	if final := finalOf(session.Handout); final != nil {
		trigger.FinalReady = final.Validation.Passed
		trigger.Unresolved = len(final.Unresolved())
	}

	from := session.Status
	to, err := domain.Transition(from, trigger)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session.Status = to
	session.IssuedAt = &now
	session.UpdatedAt = now

	log := observability.LoggerFromContext(ctx).With("session_id", session.ID)
	if err := s.sessions.UpdateSession(ctx, session); err != nil {
		log.Error("failed to issue session", "error", err)
		return nil, err
	}

	log.Info("session issued", "unresolved", trigger.Unresolved)
	s.publish(ctx, s.event(session.ID, domain.EventIssue, from, to, actor, now))

	return &IssueResult{Status: to, IssuedAt: now}, nil
}

type FinalizeResult struct {
	Status     domain.Status       `json:"status"`
	ReturnedAt time.Time           `json:"returned_at"`
	Hash       string              `json:"hash"`
	Diff       *domain.SessionDiff `json:"diff"`
}

// Finalize closes the handover, marking the session returned and then
// completed in a single store update.
func (s *Service) Finalize(ctx context.Context, actor domain.Actor, id domain.SessionID) (*FinalizeResult, error) {
	session, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	handoverFinal := finalOf(session.Handover)
	from := session.Status
	returned, err := domain.Transition(from, domain.Trigger{
		Kind:       domain.EventFinalize,
		FinalReady: handoverFinal != nil && handoverFinal.Validation.Passed,
	})
	if err != nil {
		return nil, err
	}
	completed, err := domain.Transition(returned, domain.Trigger{Kind: domain.EventComplete})
	if err != nil {
		return nil, err
	}

	handoutFinal := finalOf(session.Handout)
	d, err := diff.Compute(handoutFinal, handoverFinal, s.detection.Catalog().Classes())
	if err != nil {
		return nil, err
	}
	hash, err := IntegrityHash(handoutFinal, handoverFinal)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session.Status = completed
	session.ReturnedAt = &now
	session.UpdatedAt = now
	session.Hash = hash

	log := observability.LoggerFromContext(ctx).With("session_id", session.ID)
	if err := s.sessions.UpdateSession(ctx, session); err != nil {
		log.Error("failed to finalize session", "error", err)
		return nil, err
	}

	log.Info("session finalized",
		"missing", len(d.Missing),
		"extra", len(d.Extra),
		"unexpected", len(d.Unexpected),
	)
	s.publish(ctx,
		s.event(session.ID, domain.EventFinalize, from, returned, actor, now),
		s.event(session.ID, domain.EventComplete, returned, completed, actor, now),
	)

	return &FinalizeResult{
		Status:     completed,
		ReturnedAt: now,
		Hash:       hash,
		Diff:       d,
	}, nil
}

// ─────────────────────────────────────────
// Queries
// ─────────────────────────────────────────

// GetDiff compares the handout and handover final sets of a returned session.
func (s *Service) GetDiff(ctx context.Context, actor domain.Actor, id domain.SessionID) (*domain.SessionDiff, error) {
	session, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !session.Status.AtLeast(domain.StatusReturned) {
		return nil, fmt.Errorf("%w: session %s is %s", domain.ErrNotReady, session.ID, session.Status)
	}
	return diff.Compute(finalOf(session.Handout), finalOf(session.Handover), s.detection.Catalog().Classes())
}

func (s *Service) GetSession(ctx context.Context, actor domain.Actor, id domain.SessionID) (*domain.Session, error) {
	return s.load(ctx, actor, id)
}

type ListInput struct {
	// Group restricts the list to draft, active or completed sessions.
	Group string
	Page  int
	Limit int
}

type ListOutput struct {
	Items []*domain.Session
	Total int
	Page  int
	Limit int
}

// ListSessions pages through the sessions visible to actor, newest first.
// Admins see every session, other employees only their own.
func (s *Service) ListSessions(ctx context.Context, actor domain.Actor, in ListInput) (*ListOutput, error) {
	page := projection.Page{Page: in.Page, Limit: in.Limit}.Normalize()

	filter := domain.SessionFilter{
		Offset: page.Offset(),
		Limit:  page.Limit,
	}
	if !actor.IsAdmin() {
		if actor.EmployeeID == "" {
			return nil, fmt.Errorf("%w: employee id is required", domain.ErrInvalidInput)
		}
		filter.EmployeeID = actor.EmployeeID
	}
	if in.Group != "" {
		g, err := projection.ParseGroup(in.Group)
		if err != nil {
			return nil, err
		}
		filter.Statuses = projection.StatusesIn(g)
	}

	items, total, err := s.sessions.ListSessions(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &ListOutput{
		Items: items,
		Total: total,
		Page:  page.Page,
		Limit: page.Limit,
	}, nil
}

// History returns the recorded transitions of a session, oldest first.
func (s *Service) History(ctx context.Context, actor domain.Actor, id domain.SessionID, limit int) ([]*domain.Event, error) {
	if _, err := s.load(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.journal.History(ctx, id, limit)
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

// load fetches a session the actor may see. Other employees' sessions read
// as not found.
func (s *Service) load(ctx context.Context, actor domain.Actor, id domain.SessionID) (*domain.Session, error) {
	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(session.EmployeeID) {
		observability.LoggerFromContext(ctx).Warn("session access denied",
			"session_id", id,
			"employee_id", actor.EmployeeID,
		)
		return nil, domain.ErrNotFound
	}
	return session, nil
}

func (s *Service) event(
	id domain.SessionID,
	kind domain.EventKind,
	from, to domain.Status,
	actor domain.Actor,
	at time.Time,
) *domain.Event {
	return &domain.Event{
		ID:        uuid.NewString(),
		SessionID: id,
		Kind:      kind,
		From:      from,
		To:        to,
		Actor:     actor.EmployeeID,
		At:        at,
	}
}

func (s *Service) publish(ctx context.Context, events ...*domain.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, events)
}

func checkThreshold(t float64) error {
	if t < 0 || t > 1 {
		return fmt.Errorf("%w: threshold must be within [0,1], got %v", domain.ErrInvalidInput, t)
	}
	return nil
}

func thresholdOr(t *float64, fallback float64) float64 {
	if t == nil {
		return fallback
	}
	return *t
}

func finalOf(p *domain.Phase) *domain.FinalSet {
	if p == nil {
		return nil
	}
	return p.Final
}

func predictedEvent(kind domain.PhaseKind) domain.EventKind {
	if kind == domain.PhaseHandover {
		return domain.EventHandoverPredicted
	}
	return domain.EventHandoutPredicted
}

func adjustedEvent(kind domain.PhaseKind) domain.EventKind {
	if kind == domain.PhaseHandover {
		return domain.EventHandoverAdjusted
	}
	return domain.EventHandoutAdjusted
}

func autoStatus(kind domain.PhaseKind) domain.Status {
	if kind == domain.PhaseHandover {
		return domain.StatusHandoverAuto
	}
	return domain.StatusHandoutAuto
}
