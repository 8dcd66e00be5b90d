package worker

import (
    "context"
    "encoding/json"
    "errors"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/local/layoutengine/internal/config"
    "github.com/local/layoutengine/internal/element"
    "github.com/local/layoutengine/internal/engine"
    "github.com/local/layoutengine/internal/geometry"
    "github.com/local/layoutengine/internal/storage"
    "github.com/local/layoutengine/internal/store"
)

type fakeQueue struct {
    cancelled map[string]bool
    idemDone  map[string]bool
    delayed   [][]byte
    dlq       []string
}

func newFakeQueue() *fakeQueue {
    return &fakeQueue{cancelled: map[string]bool{}, idemDone: map[string]bool{}}
}

func (q *fakeQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error) {
    return "", nil, nil
}
func (q *fakeQueue) Ack(ctx context.Context, msgID string) error { return nil }
func (q *fakeQueue) IsCancelled(ctx context.Context, jobID string) (bool, error) {
    return q.cancelled[jobID], nil
}
func (q *fakeQueue) EnqueueDelayed(ctx context.Context, payload []byte, executeAt time.Time) error {
    q.delayed = append(q.delayed, payload)
    return nil
}
func (q *fakeQueue) AddDLQ(ctx context.Context, payload []byte, reason string) error {
    q.dlq = append(q.dlq, reason)
    return nil
}
func (q *fakeQueue) IsIdemDone(ctx context.Context, key string) (bool, error) {
    return q.idemDone[key], nil
}
func (q *fakeQueue) MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error {
    q.idemDone[key] = true
    return nil
}

type fakeFetcher struct {
    batch storage.PageBatch
    err   error
}

func (f *fakeFetcher) FetchBatch(ctx context.Context, key, password string) (storage.PageBatch, error) {
    if f.err != nil { return storage.PageBatch{}, f.err }
    return f.batch, nil
}

type fakeExporter struct {
    keys []string
    err  error
}

func (e *fakeExporter) PutResult(ctx context.Context, key string, result any) error {
    if e.err != nil { return e.err }
    e.keys = append(e.keys, key)
    return nil
}

type fakeResults struct {
    saved map[string]engine.PageResult
}

func newFakeResults() *fakeResults { return &fakeResults{saved: map[string]engine.PageResult{}} }

func (r *fakeResults) key(jobID string, page int) string {
    return jobID + "#" + string(rune('0'+page))
}

func (r *fakeResults) SavePage(ctx context.Context, jobID string, page int, res engine.PageResult) (engine.PageResult, bool, error) {
    k := r.key(jobID, page)
    if existing, ok := r.saved[k]; ok {
        return existing, false, nil
    }
    r.saved[k] = res
    return res, true, nil
}

func (r *fakeResults) PagesDone(ctx context.Context, jobID string, total int) (int, error) {
    n := 0
    for i := 1; i <= total; i++ {
        if _, ok := r.saved[r.key(jobID, i)]; ok { n++ }
    }
    return n, nil
}

type fakeStatus struct {
    last store.Status
    set  bool
}

func (s *fakeStatus) Set(ctx context.Context, jobID string, st store.Status) error {
    s.last = st
    s.set = true
    return nil
}

func testConfig() config.Config {
    cfg := config.FromEnv()
    cfg.Worker.JobMaxAttempts = 3
    cfg.Worker.RetryBaseDelay = time.Millisecond
    cfg.Worker.RetryJitter = 0
    return cfg
}

func testBatch() storage.PageBatch {
    return storage.PageBatch{
        JobID: "job-1",
        Page:  1,
        Elements: []element.Element{
            {ID: "a1", Class: element.ClassQuestionNumber, Box: geometry.Box{X1: 40, Y1: 100, X2: 70, Y2: 130}, Text: "1."},
            {ID: "t1", Class: element.ClassText, Box: geometry.Box{X1: 90, Y1: 100, X2: 500, Y2: 140}},
        },
    }
}

func TestSuccessfulPageCommitsAndExports(t *testing.T) {
    q := newFakeQueue()
    results := newFakeResults()
    status := &fakeStatus{}
    exporter := &fakeExporter{}
    p := New(testConfig(), q, &fakeFetcher{batch: testBatch()}, exporter, results, status)

    job := Job{JobID: "job-1", Page: 1, TotalPages: 1, BatchKey: "in/p1.json", IdemKey: "job-1:1"}
    raw, _ := json.Marshal(job)
    p.handle(job, raw)

    assert.Len(t, results.saved, 1)
    require.Len(t, exporter.keys, 1)
    assert.Equal(t, "layout/job-1/page-1.json", exporter.keys[0])
    assert.True(t, q.idemDone["job-1:1"])
    assert.Empty(t, q.dlq)
    assert.Empty(t, q.delayed)

    require.True(t, status.set)
    assert.Equal(t, "done", status.last.Status)
    assert.Equal(t, 100, status.last.Progress)
}

func TestCancelledJobIsSkipped(t *testing.T) {
    q := newFakeQueue()
    q.cancelled["job-1"] = true
    results := newFakeResults()
    p := New(testConfig(), q, &fakeFetcher{batch: testBatch()}, &fakeExporter{}, results, &fakeStatus{})

    job := Job{JobID: "job-1", Page: 1, BatchKey: "in/p1.json"}
    raw, _ := json.Marshal(job)
    p.handle(job, raw)

    assert.Empty(t, results.saved)
    assert.Empty(t, q.dlq)
    assert.Empty(t, q.delayed)
}

func TestDuplicateDeliveryIsSkipped(t *testing.T) {
    q := newFakeQueue()
    q.idemDone["job-1:1"] = true
    results := newFakeResults()
    p := New(testConfig(), q, &fakeFetcher{batch: testBatch()}, &fakeExporter{}, results, &fakeStatus{})

    job := Job{JobID: "job-1", Page: 1, BatchKey: "in/p1.json", IdemKey: "job-1:1"}
    raw, _ := json.Marshal(job)
    p.handle(job, raw)
    assert.Empty(t, results.saved)
}

func TestTransientFailureSchedulesRetry(t *testing.T) {
    q := newFakeQueue()
    fetcher := &fakeFetcher{err: errors.New("connection refused")}
    p := New(testConfig(), q, fetcher, &fakeExporter{}, newFakeResults(), &fakeStatus{})

    job := Job{JobID: "job-1", Page: 1, BatchKey: "in/p1.json"}
    raw, _ := json.Marshal(job)
    p.handle(job, raw)

    require.Len(t, q.delayed, 1)
    assert.Empty(t, q.dlq)
    var requeued Job
    require.NoError(t, json.Unmarshal(q.delayed[0], &requeued))
    assert.Equal(t, 1, requeued.Attempt)
}

func TestExhaustedRetriesGoToDLQ(t *testing.T) {
    q := newFakeQueue()
    fetcher := &fakeFetcher{err: errors.New("connection refused")}
    p := New(testConfig(), q, fetcher, &fakeExporter{}, newFakeResults(), &fakeStatus{})

    job := Job{JobID: "job-1", Page: 1, BatchKey: "in/p1.json", Attempt: 2}
    raw, _ := json.Marshal(job)
    p.handle(job, raw)

    assert.Empty(t, q.delayed)
    assert.Len(t, q.dlq, 1)
}

func TestFatalFailureGoesStraightToDLQ(t *testing.T) {
    q := newFakeQueue()
    fetcher := &fakeFetcher{err: &PayloadError{Reason: "unsupported content type image/png"}}
    p := New(testConfig(), q, fetcher, &fakeExporter{}, newFakeResults(), &fakeStatus{})

    job := Job{JobID: "job-1", Page: 1, BatchKey: "in/p1.json"}
    raw, _ := json.Marshal(job)
    p.handle(job, raw)

    assert.Empty(t, q.delayed)
    assert.Len(t, q.dlq, 1)
}

func TestDuplicateCommitKeepsFirstResult(t *testing.T) {
    q := newFakeQueue()
    results := newFakeResults()
    exporter := &fakeExporter{}
    p := New(testConfig(), q, &fakeFetcher{batch: testBatch()}, exporter, results, &fakeStatus{})

    job := Job{JobID: "job-1", Page: 1, TotalPages: 1, BatchKey: "in/p1.json"}
    raw, _ := json.Marshal(job)
    p.handle(job, raw)
    first := results.saved[results.key("job-1", 1)]

    p.handle(job, raw)
    assert.Equal(t, first, results.saved[results.key("job-1", 1)])
    assert.Len(t, exporter.keys, 2) // export is idempotent by key
}

func TestEngineOptionsMapping(t *testing.T) {
    ec := config.FromEnv().Engine
    ec.WorksheetMode = true
    ec.AnchorClasses = "question_number, section_unit"
    ec.ChildClasses = "text,figure"
    ec.RowBandPx = 24
    ec.ForcedStrategy = "hybrid"
    ec.LargeJumpThreshold = 15

    opts := EngineOptions(ec)
    assert.True(t, opts.Partition.WorksheetMode)
    assert.True(t, opts.Partition.AnchorClasses.Has(element.ClassQuestionNumber))
    assert.True(t, opts.Partition.AnchorClasses.Has(element.ClassSectionUnit))
    assert.True(t, opts.Partition.ChildClasses.Has(element.ClassFigure))
    assert.False(t, opts.Partition.ChildClasses.Has(element.ClassTable))
    assert.Equal(t, 24.0, opts.Partition.RowBandPx)
    assert.Equal(t, 24.0, opts.Partition.ProfileOptions.RowBandPx)
    assert.Equal(t, "hybrid", opts.ForcedStrategy)
    assert.Equal(t, 15, opts.Validate.Sequence.LargeJumpThreshold)
}

func TestBackoffGrowsPerAttempt(t *testing.T) {
    cfg := testConfig()
    cfg.Worker.RetryBaseDelay = 2 * time.Second
    cfg.Worker.RetryBackoffFactor = 2.0
    cfg.Worker.RetryJitter = 0
    p := New(cfg, newFakeQueue(), &fakeFetcher{}, &fakeExporter{}, newFakeResults(), &fakeStatus{})

    assert.Equal(t, 2*time.Second, p.backoff(1))
    assert.Equal(t, 4*time.Second, p.backoff(2))
    assert.Equal(t, 8*time.Second, p.backoff(3))
}
