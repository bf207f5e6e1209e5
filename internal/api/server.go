package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ticketflow/internal/sched"
	"ticketflow/internal/store"
)

// Server is the operator surface: job inventory, manual triggers, and
// read-only inspection of recent engine output. The public ticketing API
// lives in another service.
type Server struct {
	r     *chi.Mux
	sched *sched.Scheduler
	repo  store.Repository
}

func NewServer(scheduler *sched.Scheduler, repo store.Repository) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, sched: scheduler, repo: repo}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Get("/api/jobs", s.listJobs)
	r.Post("/api/jobs/{name}/run", s.runJob)
	r.Get("/api/notifications", s.recentNotifications)
	r.Get("/api/payments/pending", s.pendingPayments)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ticketflow_up 1\n"))
	for _, j := range s.sched.Jobs() {
		w.Write([]byte("ticketflow_job_runs_total{job=\"" + j.Name + "\"} " + strconv.FormatInt(j.Runs, 10) + "\n"))
	}
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.sched.Jobs())
}

func (s *Server) runJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.sched.RunNow(name); err != nil {
		if errors.Is(err, sched.ErrAlreadyRunning) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job": name, "status": "triggered"})
}

func (s *Server) recentNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	notifications, err := s.repo.RecentNotifications(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	out := make([]map[string]any, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, map[string]any{
			"id":         n.ID,
			"recipient":  n.RecipientID,
			"kind":       n.Kind,
			"entity_id":  n.EntityID,
			"title":      n.Title,
			"created_at": n.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, 200, out)
}

func (s *Server) pendingPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := s.repo.PendingPayments(r.Context())
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	out := make([]map[string]any, 0, len(payments))
	for _, p := range payments {
		entry := map[string]any{
			"id":           p.ID,
			"external_ref": p.ExternalRef,
			"status":       p.Status,
			"amount_cents": p.AmountCents,
			"created_at":   p.CreatedAt.Format(time.RFC3339),
		}
		if p.LastCheckedAt != nil {
			entry["last_checked_at"] = p.LastCheckedAt.Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	writeJSON(w, 200, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
