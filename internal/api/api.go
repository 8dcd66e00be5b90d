package api

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/local/layoutengine/internal/engine"
    "github.com/local/layoutengine/internal/metrics"
    "github.com/local/layoutengine/internal/store"
    "github.com/local/layoutengine/internal/worker"
)

// Queue is the slice of the stream queue the API needs.
type Queue interface {
    Enqueue(ctx context.Context, payload []byte) error
    CancelJob(ctx context.Context, jobID string) error
    Ping(ctx context.Context) error
    Depths(ctx context.Context) (int64, int64, int64, error)
}

// StatusStore reads and writes job status records.
type StatusStore interface {
    Set(ctx context.Context, jobID string, st store.Status) error
    Get(ctx context.Context, jobID string) (store.Status, bool, error)
    SetDocJobMapping(ctx context.Context, docID, jobID string) error
    GetJobByDocID(ctx context.Context, docID string) (string, error)
}

// ResultStore reads committed page results.
type ResultStore interface {
    GetPage(ctx context.Context, jobID string, page int) (engine.PageResult, bool, error)
}

// API exposes job submission, status, cancellation and page retrieval.
type API struct {
    q       Queue
    status  StatusStore
    results ResultStore
}

func New(q Queue, status StatusStore, results ResultStore) *API {
    return &API{q: q, status: status, results: results}
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("/jobs", a.handleSubmit)
    mux.HandleFunc("/jobs/", a.handleJob)
    mux.HandleFunc("/health", a.handleHealth)
    mux.Handle("/metrics", metrics.Handler())
}

// SubmitRequest describes a reconstruction job: one batch key per page.
type SubmitRequest struct {
    DocID     string   `json:"doc_id,omitempty"`
    BatchKeys []string `json:"batch_keys"`
    // ResultPrefix overrides the default layout/<job_id>/ export location.
    ResultPrefix string `json:"result_prefix,omitempty"`
}

type submitResponse struct {
    JobID      string `json:"job_id"`
    TotalPages int    `json:"total_pages"`
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req SubmitRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        httpError(w, http.StatusBadRequest, "invalid json body")
        return
    }
    if len(req.BatchKeys) == 0 {
        httpError(w, http.StatusBadRequest, "batch_keys required")
        return
    }

    jobID := uuid.NewString()
    now := time.Now()
    _ = a.status.Set(r.Context(), jobID, store.Status{
        Status:  "queued",
        Message: fmt.Sprintf("%d pages queued", len(req.BatchKeys)),
        Start:   &now,
    })
    if req.DocID != "" {
        _ = a.status.SetDocJobMapping(r.Context(), req.DocID, jobID)
    }

    for i, key := range req.BatchKeys {
        page := i + 1
        job := worker.Job{
            JobID:      jobID,
            DocID:      req.DocID,
            Page:       page,
            TotalPages: len(req.BatchKeys),
            BatchKey:   key,
            IdemKey:    fmt.Sprintf("%s:%d", jobID, page),
        }
        if req.ResultPrefix != "" {
            job.ResultKey = fmt.Sprintf("%s/page-%d.json", strings.TrimSuffix(req.ResultPrefix, "/"), page)
        }
        payload, _ := json.Marshal(job)
        if err := a.q.Enqueue(r.Context(), payload); err != nil {
            log.Error().Err(err).Str("job_id", jobID).Int("page", page).Msg("enqueue failed")
            httpError(w, http.StatusInternalServerError, "enqueue failed")
            return
        }
    }

    log.Info().Str("job_id", jobID).Str("doc_id", req.DocID).Int("pages", len(req.BatchKeys)).Msg("job submitted")
    writeJSON(w, http.StatusAccepted, submitResponse{JobID: jobID, TotalPages: len(req.BatchKeys)})
}

// handleJob dispatches /jobs/{id}, /jobs/{id}/cancel and /jobs/{id}/pages/{n}.
func (a *API) handleJob(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
    parts := strings.Split(strings.Trim(rest, "/"), "/")
    if len(parts) == 0 || parts[0] == "" {
        httpError(w, http.StatusNotFound, "job id required")
        return
    }
    jobID := parts[0]

    switch {
    case len(parts) == 1 && r.Method == http.MethodGet:
        a.handleStatus(w, r, jobID)
    case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
        a.handleCancel(w, r, jobID)
    case len(parts) == 3 && parts[1] == "pages" && r.Method == http.MethodGet:
        page, err := strconv.Atoi(parts[2])
        if err != nil || page < 1 {
            httpError(w, http.StatusBadRequest, "invalid page number")
            return
        }
        a.handlePage(w, r, jobID, page)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request, jobID string) {
    st, found, err := a.status.Get(r.Context(), jobID)
    if err != nil {
        httpError(w, http.StatusInternalServerError, "status lookup failed")
        return
    }
    if !found {
        // allow lookup by document id as a fallback
        if mapped, merr := a.status.GetJobByDocID(r.Context(), jobID); merr == nil {
            st, found, err = a.status.Get(r.Context(), mapped)
            if err == nil && found {
                writeJSON(w, http.StatusOK, st)
                return
            }
        }
        httpError(w, http.StatusNotFound, "job not found")
        return
    }
    writeJSON(w, http.StatusOK, st)
}

func (a *API) handleCancel(w http.ResponseWriter, r *http.Request, jobID string) {
    if err := a.q.CancelJob(r.Context(), jobID); err != nil {
        httpError(w, http.StatusInternalServerError, "cancel failed")
        return
    }
    now := time.Now()
    _ = a.status.Set(r.Context(), jobID, store.Status{Status: "cancelled", Message: "cancelled by request", End: &now})
    log.Info().Str("job_id", jobID).Msg("job cancelled")
    writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (a *API) handlePage(w http.ResponseWriter, r *http.Request, jobID string, page int) {
    res, found, err := a.results.GetPage(r.Context(), jobID, page)
    if err != nil {
        httpError(w, http.StatusInternalServerError, "page lookup failed")
        return
    }
    if !found {
        httpError(w, http.StatusNotFound, "page not reconstructed yet")
        return
    }
    writeJSON(w, http.StatusOK, res)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
    if err := a.q.Ping(r.Context()); err != nil {
        httpError(w, http.StatusServiceUnavailable, "redis unreachable")
        return
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PollQueueDepths feeds the queue gauges until ctx is done.
func (a *API) PollQueueDepths(ctx context.Context, every time.Duration) {
    if every <= 0 { every = 5 * time.Second }
    ticker := time.NewTicker(every)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            stream, delayed, dlq, err := a.q.Depths(ctx)
            if err != nil { continue }
            metrics.SetQueueDepth("stream", stream)
            metrics.SetQueueDepth("delayed", delayed)
            metrics.SetQueueDepth("dlq", dlq)
        }
    }
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    _ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, msg string) {
    writeJSON(w, code, map[string]string{"error": msg})
}
