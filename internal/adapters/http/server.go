package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/GSA-TTS/FAC-sub003/internal/domain"
	"github.com/GSA-TTS/FAC-sub003/internal/ports"
	"github.com/GSA-TTS/FAC-sub003/internal/workers/assignrunner"
)

// Server is the thin read/admin surface over the lifecycle engine. The full
// REST API (forms, uploads, search) lives in a separate collaborator; only
// the engine's own decisions are exposed here.
type Server struct {
	store     ports.RecordStore
	decider   ports.EligibilityDecider
	history   ports.HistoryRepository
	jobs      ports.JobRepository
	processor assignrunner.Processor
	log       *logrus.Logger
}

func New(store ports.RecordStore, decider ports.EligibilityDecider, history ports.HistoryRepository, jobs ports.JobRepository, processor assignrunner.Processor, log *logrus.Logger) *Server {
	return &Server{store: store, decider: decider, history: history, jobs: jobs, processor: processor, log: log}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Route("/audits/{reportID}", func(r chi.Router) {
		r.Get("/", s.handleGetAudit)
		r.Get("/history", s.handleGetHistory)
		r.Post("/resubmission-check", s.handleResubmissionCheck)
		r.Post("/assign", s.handleAssign)
	})
	return r
}

type auditResponse struct {
	ReportID         string         `json:"report_id"`
	Version          int            `json:"version"`
	SubmissionStatus string         `json:"submission_status"`
	Payload          domain.Payload `json:"payload"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type historyEntryResponse struct {
	ID        string    `json:"id"`
	EventType string    `json:"event_type"`
	Version   int       `json:"version"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

type eligibilityResponse struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.fetch(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, auditResponse{
		ReportID:         rec.ReportID,
		Version:          rec.Version,
		SubmissionStatus: string(rec.SubmissionStatus),
		Payload:          rec.Payload,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.fetch(w, r)
	if !ok {
		return
	}
	entries, err := s.history.ListByReport(r.Context(), rec.ReportID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]historyEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = historyEntryResponse{ID: e.ID, EventType: e.EventType, Version: e.Version, Actor: e.Actor, CreatedAt: e.CreatedAt}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleResubmissionCheck answers whether the audit may be superseded. The
// reason is surfaced verbatim to the end user.
func (s *Server) handleResubmissionCheck(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.fetch(w, r)
	if !ok {
		return
	}
	eligible, reason, err := s.decider.CanResubmit(r.Context(), rec)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, eligibilityResponse{Eligible: eligible, Reason: reason})
}

// handleAssign runs the oversight assignment synchronously for one report,
// reusing the worker's processor so the logic stays in one place.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.fetch(w, r)
	if !ok {
		return
	}
	if _, err := s.jobs.Enqueue(r.Context(), rec.ReportID); err != nil {
		s.writeError(w, err)
		return
	}
	if err := assignrunner.ProcessInline(r.Context(), s.jobs, s.processor, rec.ReportID); err != nil {
		s.writeError(w, err)
		return
	}
	updated, err := s.store.Get(r.Context(), rec.ReportID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, auditResponse{
		ReportID:         updated.ReportID,
		Version:          updated.Version,
		SubmissionStatus: string(updated.SubmissionStatus),
		Payload:          updated.Payload,
		CreatedAt:        updated.CreatedAt,
		UpdatedAt:        updated.UpdatedAt,
	})
}

func (s *Server) fetch(w http.ResponseWriter, r *http.Request) (domain.AuditRecord, bool) {
	rec, err := s.store.Get(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		s.writeError(w, err)
		return domain.AuditRecord{}, false
	}
	return rec, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ce *domain.ConcurrencyError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, assignrunner.ErrAlreadyAssigned):
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &ce):
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": ce.Error()})
	default:
		s.log.WithError(err).Error("request failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("response encode failed")
	}
}
