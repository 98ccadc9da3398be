package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/PabloGalante/kitcheck/internal/app/lending"
	"github.com/PabloGalante/kitcheck/internal/app/projection"
	"github.com/PabloGalante/kitcheck/internal/domain"
	"github.com/PabloGalante/kitcheck/internal/observability"
)

// maxBodyBytes bounds request bodies; images travel base64-encoded.
const maxBodyBytes = 20 << 20

type Server struct {
	svc      *lending.Service
	backends map[string]string
	checks   map[string]HealthCheck
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type predictRequest struct {
	Image     string   `json:"image"`
	Threshold *float64 `json:"threshold,omitempty"`
}

type createSessionRequest struct {
	Threshold *float64 `json:"threshold,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

type adjustRequest struct {
	Threshold   *float64            `json:"threshold,omitempty"`
	Annotations []domain.Annotation `json:"annotations"`
}

type confirmRequest struct {
	Confirm bool `json:"confirm"`
}

type sessionResponse struct {
	ID            string        `json:"id"`
	EmployeeID    string        `json:"employee_id"`
	Status        string        `json:"status"`
	StatusLabel   string        `json:"status_label"`
	Group         string        `json:"group"`
	ThresholdUsed float64       `json:"threshold_used"`
	Notes         string        `json:"notes,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	IssuedAt      *time.Time    `json:"issued_at,omitempty"`
	ReturnedAt    *time.Time    `json:"returned_at,omitempty"`
	Handout       *domain.Phase `json:"handout,omitempty"`
	Handover      *domain.Phase `json:"handover,omitempty"`
	Hash          string        `json:"hash,omitempty"`
	Version       int64         `json:"version"`
}

type sessionSummary struct {
	ID          string    `json:"id"`
	EmployeeID  string    `json:"employee_id"`
	Status      string    `json:"status"`
	StatusLabel string    `json:"status_label"`
	Group       string    `json:"group"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type listSessionsResponse struct {
	Items []sessionSummary `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

type eventsResponse struct {
	Events []*domain.Event `json:"events"`
}

type healthResponse struct {
	Status   string            `json:"status"`
	Backends map[string]string `json:"backends,omitempty"`
	Checks   map[string]string `json:"checks,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ─────────────────────────────────────────────
// Health and one-off prediction
// ─────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Backends: s.backends}

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if err := s.checks[name](r.Context()); err != nil {
				resp.Checks[name] = "error: " + err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Image == "" {
		badRequest(w, "image is required")
		return
	}

	res, err := s.svc.Predict(r.Context(), req.Image, req.Threshold)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─────────────────────────────────────────────
// Sessions
// ─────────────────────────────────────────────

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	session, err := s.svc.CreateSession(r.Context(), GetActor(r), lending.CreateInput{
		Threshold: req.Threshold,
		Notes:     req.Notes,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"))
	if err != nil {
		badRequest(w, "page must be an integer")
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		badRequest(w, "limit must be an integer")
		return
	}

	out, err := s.svc.ListSessions(r.Context(), GetActor(r), lending.ListInput{
		Group: q.Get("group"),
		Page:  page,
		Limit: limit,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	items := make([]sessionSummary, 0, len(out.Items))
	for _, sess := range out.Items {
		items = append(items, toSessionSummary(sess))
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{
		Items: items,
		Total: out.Total,
		Page:  out.Page,
		Limit: out.Limit,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.GetSession(r.Context(), GetActor(r), sessionID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (s *Server) handlePredictHandout(w http.ResponseWriter, r *http.Request) {
	s.handlePhasePredict(w, r, s.svc.PredictHandout)
}

func (s *Server) handlePredictHandover(w http.ResponseWriter, r *http.Request) {
	s.handlePhasePredict(w, r, s.svc.PredictHandover)
}

type phasePredictFunc = func(ctx context.Context, actor domain.Actor, id domain.SessionID, image string, threshold *float64) (*domain.PredictResult, error)

func (s *Server) handlePhasePredict(w http.ResponseWriter, r *http.Request, predict phasePredictFunc) {
	var req predictRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Image == "" {
		badRequest(w, "image is required")
		return
	}

	res, err := predict(r.Context(), GetActor(r), sessionID(r), req.Image, req.Threshold)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAdjustHandout(w http.ResponseWriter, r *http.Request) {
	s.handlePhaseAdjust(w, r, s.svc.AdjustHandout)
}

func (s *Server) handleAdjustHandover(w http.ResponseWriter, r *http.Request) {
	s.handlePhaseAdjust(w, r, s.svc.AdjustHandover)
}

type phaseAdjustFunc = func(ctx context.Context, actor domain.Actor, id domain.SessionID, threshold *float64, annotations []domain.Annotation) (*domain.AdjustResult, error)

// handlePhaseAdjust answers 200 even when the annotations are rejected;
// the verdict is in ok/passed/issues.
func (s *Server) handlePhaseAdjust(w http.ResponseWriter, r *http.Request, adjust phaseAdjustFunc) {
	var req adjustRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := adjust(r.Context(), GetActor(r), sessionID(r), req.Threshold, req.Annotations)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	if !confirmed(w, r, "issue") {
		return
	}

	res, err := s.svc.Issue(r.Context(), GetActor(r), sessionID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	if !confirmed(w, r, "finalize") {
		return
	}

	res, err := s.svc.Finalize(r.Context(), GetActor(r), sessionID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetDiff(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.GetDiff(r.Context(), GetActor(r), sessionID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		badRequest(w, "limit must be an integer")
		return
	}

	evs, err := s.svc.History(r.Context(), GetActor(r), sessionID(r), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if evs == nil {
		evs = []*domain.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: evs})
}

// ─────────────────────────────────────────────
// Session Helpers
// ─────────────────────────────────────────────

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:            string(s.ID),
		EmployeeID:    string(s.EmployeeID),
		Status:        string(s.Status),
		StatusLabel:   projection.Label(s.Status),
		Group:         string(projection.GroupOf(s.Status)),
		ThresholdUsed: s.ThresholdUsed,
		Notes:         s.Notes,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		IssuedAt:      s.IssuedAt,
		ReturnedAt:    s.ReturnedAt,
		Handout:       s.Handout,
		Handover:      s.Handover,
		Hash:          s.Hash,
		Version:       s.Version,
	}
}

func toSessionSummary(s *domain.Session) sessionSummary {
	return sessionSummary{
		ID:          string(s.ID),
		EmployeeID:  string(s.EmployeeID),
		Status:      string(s.Status),
		StatusLabel: projection.Label(s.Status),
		Group:       string(projection.GroupOf(s.Status)),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func sessionID(r *http.Request) domain.SessionID {
	return domain.SessionID(chi.URLParam(r, "id"))
}

// confirmed requires {"confirm": true}. Anything else is rejected before the
// session is read.
func confirmed(w http.ResponseWriter, r *http.Request, action string) bool {
	var req confirmRequest
	if !decodeJSON(w, r, &req) {
		return false
	}
	if !req.Confirm {
		badRequest(w, fmt.Sprintf("must confirm to %s session", action))
		return false
	}
	return true
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for bodies that may be empty.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg, "invalid_input")
}

// writeDomainError maps service errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		guard *domain.GuardViolation
		df    *domain.DetectionFailure
	)

	switch {
	case errors.As(err, &guard):
		writeError(w, http.StatusConflict, guard.Error(), "guard_violation")
	case errors.As(err, &df):
		if df.Timeout {
			writeError(w, http.StatusGatewayTimeout, df.Error(), "detection_timeout")
			return
		}
		writeError(w, http.StatusBadGateway, df.Error(), "detection_failed")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found", "not_found")
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error(), "conflict")
	case errors.Is(err, domain.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error(), "not_ready")
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_input")
	default:
		observability.LoggerFromContext(r.Context()).Error("request failed", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal server error", "internal")
	}
}
