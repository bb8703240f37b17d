package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
)

const defaultJobListLimit = 100

type opsServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	router *mux.Router

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// jobView is the JSON shape of a job on the ops endpoints.
type jobView struct {
	ID           int64      `json:"id"`
	Queue        string     `json:"queue"`
	PayloadID    int64      `json:"payload_id"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ResultRef    string     `json:"result_ref,omitempty"`
	EnqueuedAt   time.Time  `json:"enqueued_at"`
	AvailableAt  time.Time  `json:"available_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

func newJobView(job *queue.Job) jobView {
	return jobView{
		ID:           job.ID,
		Queue:        job.Queue,
		PayloadID:    job.PayloadID,
		Status:       string(job.Status),
		Attempts:     job.Attempts,
		ErrorMessage: job.ErrorMessage,
		ErrorKind:    job.ErrorKind,
		ResultRef:    job.ResultRef,
		EnqueuedAt:   job.EnqueuedAt,
		AvailableAt:  job.AvailableAt,
		StartedAt:    job.StartedAt,
		FinishedAt:   job.FinishedAt,
	}
}

func newOpsServer(bind string, d *Daemon, logger *slog.Logger) *opsServer {
	s := &opsServer{
		bind:   strings.TrimSpace(bind),
		logger: logger,
		daemon: d,
	}
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/queue", s.handleQueue).Methods(http.MethodGet)
	r.HandleFunc("/queue/{id:[0-9]+}", s.handleJob).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *opsServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("ops listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "ops_server_failed"),
			)
		}
	}()
	s.logger.Info("ops server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *opsServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *opsServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *opsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.daemon.pipeline.Dispatcher.Health(r.Context())
	code := http.StatusOK
	for _, h := range health {
		if !h.Ready {
			code = http.StatusServiceUnavailable
			break
		}
	}
	s.writeJSON(w, code, map[string]any{
		"running": s.daemon.Running(),
		"stages":  health,
	})
}

func (s *opsServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *opsServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := queue.Filter{
		Queue: strings.TrimSpace(query.Get("queue")),
		Limit: defaultJobListLimit,
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}
	for _, raw := range query["status"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", part))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	jobs, err := s.daemon.pipeline.Jobs.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, newJobView(job))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (s *opsServer) handleJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.daemon.pipeline.Jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("job %d not found", id))
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	view := newJobView(job)
	var ref stage.Ref
	if job.ResultRef != "" {
		ref, _ = stage.ParseRef(job.ResultRef)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": view, "result": ref})
}

func (s *opsServer) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("ops response encode failed", logging.Error(err))
	}
}

func (s *opsServer) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"error": message})
}
