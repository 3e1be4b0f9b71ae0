package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"copywriter/app/usecase"
	"copywriter/internal/domain/entity"
	"copywriter/internal/domain/repository"
	"copywriter/internal/infrastructure/metrics"
)

const (
	maxBodyBytes = 1 << 20
	writeWait    = 10 * time.Second
)

// CatalogSource returns the catalog new runs will use.
type CatalogSource interface {
	Catalog() *entity.Catalog
}

type CopywriterHandler struct {
	runService    usecase.RunUsecase
	reportService usecase.ReportUsecase
	catalog       CatalogSource
	hub           *Hub
	logger        *slog.Logger
	upgrader      websocket.Upgrader

	reqDuration *prometheus.HistogramVec
	reqCount    *prometheus.CounterVec
	errCount    *prometheus.CounterVec
}

func NewCopywriterHandler(
	runService usecase.RunUsecase,
	reportService usecase.ReportUsecase,
	catalog CatalogSource,
	hub *Hub,
	logger *slog.Logger,
) *CopywriterHandler {
	reqDuration := metrics.Register(prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	))

	reqCount := metrics.Register(prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "path"},
	))

	errCount := metrics.Register(prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of HTTP request errors.",
		},
		[]string{"method", "path", "status"},
	))

	return &CopywriterHandler{
		runService:    runService,
		reportService: reportService,
		catalog:       catalog,
		hub:           hub,
		logger:        logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		reqDuration: reqDuration,
		reqCount:    reqCount,
		errCount:    errCount,
	}
}

// withMetrics labels requests by route template so ids do not explode cardinality.
func (h *CopywriterHandler) withMetrics(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		method := r.Method

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rw, r)

		duration := time.Since(start).Seconds()
		statusStr := strconv.Itoa(rw.status)

		h.reqCount.WithLabelValues(method, path).Inc()
		h.reqDuration.WithLabelValues(method, path, statusStr).Observe(duration)

		if rw.status >= 400 {
			h.errCount.WithLabelValues(method, path, statusStr).Inc()
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (h *CopywriterHandler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/runs", h.withMetrics(h.handleCreateRun)).Methods(http.MethodPost)
	api.HandleFunc("/runs", h.withMetrics(h.handleListRuns)).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", h.withMetrics(h.handleGetRun)).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", h.withMetrics(h.handleDeleteRun)).Methods(http.MethodDelete)
	api.HandleFunc("/runs/{id}/report", h.withMetrics(h.handleGetReport)).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/drafts/{formula}", h.withMetrics(h.handleGetDraft)).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/events", h.withMetrics(h.handleEvents)).Methods(http.MethodGet)
	api.HandleFunc("/catalog", h.withMetrics(h.handleCatalog)).Methods(http.MethodGet)
	api.HandleFunc("/health", h.withMetrics(h.handleHealth)).Methods(http.MethodGet)

	// Prometheus
	r.Handle("/metrics", promhttp.Handler())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *CopywriterHandler) fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error(msg, append(attrs, "err", err)...)
	} else {
		h.logger.Debug(msg, append(attrs, "err", err)...)
	}
	writeError(w, code, err)
}

// POST /api/v1/runs
func (h *CopywriterHandler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req entity.ProjectRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad request body: %w", err))
		return
	}

	run, err := h.runService.CreateRun(r.Context(), req)
	if err != nil {
		h.fail(w, "create run failed", err)
		return
	}

	w.Header().Set("Location", "/api/v1/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, run)
}

// GET /api/v1/runs?status=
func (h *CopywriterHandler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	status := entity.RunStatus(strings.ToLower(r.URL.Query().Get("status")))
	switch status {
	case "", entity.RunStatusPending, entity.RunStatusRunning, entity.RunStatusCompleted, entity.RunStatusFailed:
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown status %q", status))
		return
	}

	runs, err := h.runService.ListRuns(r.Context(), status)
	if err != nil {
		h.fail(w, "list runs failed", err)
		return
	}
	if runs == nil {
		runs = []*entity.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GET /api/v1/runs/{id}
func (h *CopywriterHandler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.runService.GetRun(r.Context(), id)
	if err != nil {
		h.fail(w, "get run failed", err, "run_id", id)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// DELETE /api/v1/runs/{id}
func (h *CopywriterHandler) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.runService.DeleteRun(r.Context(), id); err != nil {
		h.fail(w, "delete run failed", err, "run_id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/runs/{id}/report
func (h *CopywriterHandler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sum, err := h.reportService.GetReport(r.Context(), id)
	if err != nil {
		h.fail(w, "get report failed", err, "run_id", id)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// GET /api/v1/runs/{id}/drafts/{formula}?format=html|md
func (h *CopywriterHandler) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, formula := vars["id"], vars["formula"]

	var (
		body        string
		err         error
		contentType string
	)
	switch r.URL.Query().Get("format") {
	case "md", "markdown":
		body, err = h.reportService.GetDraftMarkdown(r.Context(), id, formula)
		contentType = "text/markdown; charset=utf-8"
	case "", "html":
		body, err = h.reportService.GetDraftHTML(r.Context(), id, formula)
		contentType = "text/html; charset=utf-8"
	default:
		writeError(w, http.StatusBadRequest, errors.New("format must be html or md"))
		return
	}
	if err != nil {
		h.fail(w, "get draft failed", err, "run_id", id, "formula", formula)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

// GET /api/v1/runs/{id}/events (websocket)
func (h *CopywriterHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// Subscribe before reading the run. The worker publishes the terminal event
	// only after persisting it, so either the read sees a finished run or the
	// subscription receives the event.
	events, cancel := h.hub.Subscribe(id)
	defer cancel()

	run, err := h.runService.GetRun(r.Context(), id)
	if err != nil {
		h.fail(w, "events: get run failed", err, "run_id", id)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "run_id", id, "err", err)
		return
	}
	defer conn.Close()

	if run.IsFinished() {
		_ = h.writeEvent(conn, finishedEvent(run))
		h.closeSocket(conn)
		return
	}

	// Reading is only needed to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				h.closeSocket(conn)
				return
			}
			if err := h.writeEvent(conn, e); err != nil {
				h.logger.Debug("websocket write failed", "run_id", id, "err", err)
				return
			}
		}
	}
}

func (h *CopywriterHandler) writeEvent(conn *websocket.Conn, e entity.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(e)
}

func (h *CopywriterHandler) closeSocket(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func finishedEvent(run *entity.Run) entity.Event {
	e := entity.Event{RunID: run.ID, Type: entity.EventRunCompleted, Time: run.UpdatedAt}
	if run.Status == entity.RunStatusFailed {
		e.Type = entity.EventRunFailed
		e.Error = run.Error
	}
	if run.State != nil {
		e.Pass = run.State.RevisionCount
	}
	return e
}

type catalogFormula struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
	Summary string   `json:"summary"`
}

type catalogCriterion struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Focus string `json:"focus"`
}

type catalogResponse struct {
	Formulas       []catalogFormula   `json:"formulas"`
	Criteria       []catalogCriterion `json:"criteria"`
	AgeBrackets    []string           `json:"age_brackets"`
	ContentFormats []string           `json:"content_formats"`
	ContentGoals   []string           `json:"content_goals"`
}

// GET /api/v1/catalog
func (h *CopywriterHandler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	resp := catalogResponse{
		AgeBrackets:    entity.AgeBrackets,
		ContentFormats: entity.ContentFormats,
		ContentGoals:   entity.ContentGoals,
	}
	cat := h.catalog.Catalog()
	for _, f := range cat.Formulas {
		summary, _, _ := strings.Cut(f.Guidance, "\n")
		resp.Formulas = append(resp.Formulas, catalogFormula{ID: f.ID, Name: f.Name, Aliases: f.Aliases, Summary: strings.TrimSpace(summary)})
	}
	for _, c := range cat.Criteria {
		resp.Criteria = append(resp.Criteria, catalogCriterion{ID: c.ID, Title: c.Title, Focus: c.Focus})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/health
func (h *CopywriterHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"ok": true,
		"ts": time.Now().UTC(),
	}
	writeJSON(w, http.StatusOK, status)
}
