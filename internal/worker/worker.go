package worker

import (
    "context"
    "encoding/json"
    "fmt"
    "math/rand"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/local/layoutengine/internal/config"
    "github.com/local/layoutengine/internal/element"
    "github.com/local/layoutengine/internal/engine"
    "github.com/local/layoutengine/internal/joblock"
    "github.com/local/layoutengine/internal/metrics"
    "github.com/local/layoutengine/internal/storage"
    "github.com/local/layoutengine/internal/store"
    "github.com/local/layoutengine/internal/validate"
)

// Job is one page reconstruction request taken from the stream.
type Job struct {
    JobID      string `json:"job_id"`
    DocID      string `json:"doc_id,omitempty"`
    Page       int    `json:"page"`
    TotalPages int    `json:"total_pages"`
    BatchKey   string `json:"batch_key"`
    ResultKey  string `json:"result_key,omitempty"`
    Attempt    int    `json:"attempt,omitempty"`
    IdemKey    string `json:"idem_key,omitempty"`
}

// Queue is the slice of the stream queue the pool uses.
type Queue interface {
    Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
    Ack(ctx context.Context, msgID string) error
    IsCancelled(ctx context.Context, jobID string) (bool, error)
    EnqueueDelayed(ctx context.Context, payload []byte, executeAt time.Time) error
    AddDLQ(ctx context.Context, payload []byte, reason string) error
    IsIdemDone(ctx context.Context, key string) (bool, error)
    MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error
}

// BatchFetcher pulls element batches from object storage.
type BatchFetcher interface {
    FetchBatch(ctx context.Context, key, password string) (storage.PageBatch, error)
}

// ResultExporter pushes reconstruction results to object storage.
type ResultExporter interface {
    PutResult(ctx context.Context, key string, result any) error
}

// ResultStore commits per-page results idempotently.
type ResultStore interface {
    SavePage(ctx context.Context, jobID string, page int, res engine.PageResult) (engine.PageResult, bool, error)
    PagesDone(ctx context.Context, jobID string, total int) (int, error)
}

// StatusStore records job progress for the status API.
type StatusStore interface {
    Set(ctx context.Context, jobID string, st store.Status) error
}

// Pool runs the reconstruction workers.
type Pool struct {
    cfg      config.Config
    q        Queue
    fetch    BatchFetcher
    export   ResultExporter
    results  ResultStore
    status   StatusStore
    locks    *joblock.Guard
    engine   *engine.Reconstructor
    password string

    stop chan struct{}
}

func New(cfg config.Config, q Queue, fetch BatchFetcher, export ResultExporter, results ResultStore, status StatusStore) *Pool {
    if cfg.Worker.Concurrency <= 0 { cfg.Worker.Concurrency = 2 }
    return &Pool{
        cfg:      cfg,
        q:        q,
        fetch:    fetch,
        export:   export,
        results:  results,
        status:   status,
        locks:    joblock.New(cfg.Worker.LockTimeout),
        engine:   engine.New(EngineOptions(cfg.Engine)),
        password: cfg.Storage.EncPassword,
        stop:     make(chan struct{}),
    }
}

// EngineOptions maps the env configuration onto pipeline options.
func EngineOptions(ec config.EngineConfig) engine.Options {
    opts := engine.DefaultOptions()

    opts.Partition.WorksheetMode = ec.WorksheetMode
    opts.Partition.AnchorClasses = element.ParseClassSet(splitClasses(ec.AnchorClasses))
    opts.Partition.ChildClasses = element.ParseClassSet(splitClasses(ec.ChildClasses))
    opts.Partition.RowBandPx = ec.RowBandPx
    opts.Partition.ProximityXWeight = ec.ProximityXWeight
    opts.Partition.LookaheadMaxGroups = ec.LookaheadMaxGroups
    opts.Partition.LargeElementAreaPx2 = ec.LargeElementAreaPx2
    opts.Partition.ColumnGapMarginPx = ec.ColumnGapMarginPx
    opts.Partition.RowMajor = ec.RowMajor
    opts.Partition.ProfileOptions.RowBandPx = ec.RowBandPx
    opts.Partition.ProfileOptions.SeparatorMinWidthFrac = ec.SeparatorMinWidthFrac
    opts.Partition.ProfileOptions.TwoColumnVarianceGain = ec.TwoColumnVarianceGain
    opts.Partition.ProfileOptions.MinColumnSeparationFrac = ec.MinColumnSeparationFrac

    opts.Validate.Sequence.LargeJumpThreshold = ec.LargeJumpThreshold
    opts.Validate.Spatial.IoUThreshold = ec.IoUThreshold
    opts.Validate.Spatial.SevereOverlapAreaPx2 = ec.SevereOverlapAreaPx2
    opts.Validate.Spatial.IntrusionFrac = ec.IntrusionFrac

    opts.Correct.RepairWindow = ec.RepairWindow
    opts.ForcedStrategy = ec.ForcedStrategy
    return opts
}

func splitClasses(s string) []string {
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        if t := strings.TrimSpace(p); t != "" {
            out = append(out, t)
        }
    }
    return out
}

func (p *Pool) Start() {
    for i := 0; i < p.cfg.Worker.Concurrency; i++ {
        go p.loop(i)
    }
}

func (p *Pool) Stop(ctx context.Context) error {
    close(p.stop)
    return nil
}

func (p *Pool) loop(id int) {
    consumer := fmt.Sprintf("worker-%d-%s", id, uuid.NewString()[:8])
    log.Info().Int("worker", id).Str("consumer", consumer).Msg("reconstruction worker started")
    for {
        select {
        case <-p.stop:
            log.Info().Int("worker", id).Msg("reconstruction worker stopped")
            return
        default:
        }

        msgID, data, err := p.q.Dequeue(context.Background(), consumer, 2*time.Second)
        if err != nil {
            log.Error().Err(err).Msg("queue dequeue error")
            time.Sleep(500 * time.Millisecond)
            continue
        }
        if data == nil { continue }
        _ = p.q.Ack(context.Background(), msgID)

        var job Job
        if err := json.Unmarshal(data, &job); err != nil || job.JobID == "" || job.BatchKey == "" {
            log.Error().Err(err).Str("msg_id", msgID).Msg("undecodable job payload; sending to DLQ")
            _ = p.q.AddDLQ(context.Background(), data, "undecodable payload")
            metrics.IncReconstructed("dlq")
            continue
        }

        p.handle(job, data)
    }
}

func (p *Pool) handle(job Job, raw []byte) {
    ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Worker.PageTimeout)
    defer cancel()

    if cancelled, _ := p.q.IsCancelled(ctx, job.JobID); cancelled {
        log.Warn().Str("job_id", job.JobID).Int("page", job.Page).Msg("job cancelled; skipping page")
        return
    }
    if job.IdemKey != "" {
        if done, _ := p.q.IsIdemDone(ctx, job.IdemKey); done {
            log.Debug().Str("job_id", job.JobID).Int("page", job.Page).Msg("page already done; skipping duplicate delivery")
            return
        }
    }

    if err := p.processPage(ctx, job); err != nil {
        p.handleFailure(ctx, job, raw, err)
        return
    }

    if job.IdemKey != "" {
        _ = p.q.MarkIdemDone(ctx, job.IdemKey, p.cfg.Store.ResultTTL)
    }
    metrics.IncReconstructed("success")
}

func (p *Pool) processPage(ctx context.Context, job Job) error {
    batch, err := p.fetch.FetchBatch(ctx, job.BatchKey, p.password)
    if err != nil {
        return fmt.Errorf("fetch page %d: %w", job.Page, err)
    }

    start := time.Now()
    res := p.engine.Reconstruct(batch.Elements)
    metrics.ObserveReconstruction(res.Strategy, res.Profile.Topology.String(), time.Since(start))
    observeFindings(res)

    // commits for the same job are serialized; a retried page re-reads the
    // committed result instead of overwriting it
    release, err := p.locks.Acquire(ctx, job.JobID)
    if err != nil {
        return fmt.Errorf("lock job %s: %w", job.JobID, err)
    }
    committed, wrote, err := p.results.SavePage(ctx, job.JobID, job.Page, res)
    release()
    if err != nil {
        return fmt.Errorf("commit page %d: %w", job.Page, err)
    }
    if !wrote {
        res = committed
    }

    key := job.ResultKey
    if key == "" {
        key = fmt.Sprintf("layout/%s/page-%d.json", job.JobID, job.Page)
    }
    if err := p.export.PutResult(ctx, key, res); err != nil {
        return fmt.Errorf("export page %d: %w", job.Page, err)
    }

    p.updateStatus(ctx, job)
    log.Info().
        Str("job_id", job.JobID).
        Int("page", job.Page).
        Str("strategy", res.Strategy).
        Int("groups", len(res.Groups)).
        Int("orphans", len(res.Orphans)).
        Msg("page committed")
    return nil
}

func observeFindings(res engine.PageResult) {
    metrics.AddSequenceGaps("forward", len(validate.ForwardGaps(res.Validation.Gaps)))
    metrics.AddSequenceGaps("reverse", len(validate.ReverseGaps(res.Validation.Gaps)))
    jumps := len(res.Validation.Gaps) - len(validate.ForwardGaps(res.Validation.Gaps)) - len(validate.ReverseGaps(res.Validation.Gaps))
    metrics.AddSequenceGaps("jump", jumps)

    severe, mild := 0, 0
    for _, c := range res.Validation.Conflicts {
        if c.Severe { severe++ } else { mild++ }
    }
    metrics.AddSpatialConflicts("severe", severe)
    metrics.AddSpatialConflicts("mild", mild)

    metrics.AddCorrections("rename", len(res.Correction.Renames))
    metrics.AddCorrections("move", len(res.Correction.Moves))
    metrics.AddCorrections("recovered", len(res.Correction.Recovered))
    metrics.AddCorrections("failed", len(res.Correction.RepairFailed))
}

func (p *Pool) updateStatus(ctx context.Context, job Job) {
    if job.TotalPages <= 0 {
        return
    }
    done, err := p.results.PagesDone(ctx, job.JobID, job.TotalPages)
    if err != nil {
        log.Warn().Err(err).Str("job_id", job.JobID).Msg("progress count failed")
        return
    }
    st := store.Status{
        Status:   "processing",
        Progress: done * 100 / job.TotalPages,
        Message:  fmt.Sprintf("%d/%d pages reconstructed", done, job.TotalPages),
    }
    if done >= job.TotalPages {
        now := time.Now()
        st.Status = "done"
        st.End = &now
    }
    if err := p.status.Set(ctx, job.JobID, st); err != nil {
        log.Warn().Err(err).Str("job_id", job.JobID).Msg("status update failed")
    }
}

func (p *Pool) handleFailure(ctx context.Context, job Job, raw []byte, err error) {
    // known-transient failures get the full retry budget, unknown ones a
    // single retry, fatal ones none
    if isFatalError(err) || (!isTransientError(err) && job.Attempt > 0) {
        log.Error().Err(err).Str("job_id", job.JobID).Int("page", job.Page).Msg("page failed permanently; sending to DLQ")
        _ = p.q.AddDLQ(ctx, raw, err.Error())
        metrics.IncReconstructed("dlq")
        return
    }
    if job.Attempt+1 >= p.cfg.Worker.JobMaxAttempts {
        log.Error().Err(err).Str("job_id", job.JobID).Int("page", job.Page).Int("attempts", job.Attempt+1).Msg("retry budget exhausted; sending to DLQ")
        _ = p.q.AddDLQ(ctx, raw, err.Error())
        metrics.IncReconstructed("dlq")
        return
    }

    job.Attempt++
    delay := p.backoff(job.Attempt)
    payload, merr := json.Marshal(job)
    if merr != nil {
        _ = p.q.AddDLQ(ctx, raw, "remarshal failed: "+merr.Error())
        metrics.IncReconstructed("dlq")
        return
    }
    if qerr := p.q.EnqueueDelayed(ctx, payload, time.Now().Add(delay)); qerr != nil {
        log.Error().Err(qerr).Str("job_id", job.JobID).Int("page", job.Page).Msg("delayed requeue failed; sending to DLQ")
        _ = p.q.AddDLQ(ctx, raw, qerr.Error())
        metrics.IncReconstructed("dlq")
        return
    }
    metrics.IncRetry()
    metrics.IncReconstructed("retry")
    log.Warn().Err(err).
        Str("job_id", job.JobID).
        Int("page", job.Page).
        Int("attempt", job.Attempt).
        Dur("delay", delay).
        Msg("page failed; retry scheduled")
}

// backoff grows exponentially per attempt with uniform jitter.
func (p *Pool) backoff(attempt int) time.Duration {
    d := float64(p.cfg.Worker.RetryBaseDelay)
    for i := 1; i < attempt; i++ {
        d *= p.cfg.Worker.RetryBackoffFactor
    }
    jitter := time.Duration(0)
    if p.cfg.Worker.RetryJitter > 0 {
        jitter = time.Duration(rand.Int63n(int64(p.cfg.Worker.RetryJitter)))
    }
    return time.Duration(d) + jitter
}
