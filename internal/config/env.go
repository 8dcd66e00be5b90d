package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level      string
    Pretty     bool
    File       string
    MaxSizeMB  int
    MaxBackups int
    MaxAgeDays int
    Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// EngineConfig holds the reconstruction tunables. Defaults were calibrated
// on scanned exam pages at roughly 1240px width.
type EngineConfig struct {
    WorksheetMode bool
    AnchorClasses string // comma-separated class names
    ChildClasses  string

    RowBandPx           float64
    ProximityXWeight    float64
    LookaheadMaxGroups  int
    LargeElementAreaPx2 float64
    ColumnGapMarginPx   float64
    RowMajor            bool

    SeparatorMinWidthFrac   float64
    TwoColumnVarianceGain   float64
    MinColumnSeparationFrac float64

    IoUThreshold         float64
    SevereOverlapAreaPx2 float64
    IntrusionFrac        float64
    LargeJumpThreshold   int
    RepairWindow         int

    // ForcedStrategy pins "direct", "legacy_local" or "hybrid" for tuning.
    ForcedStrategy string
}

// WorkerConfig defines worker behavior and limits.
type WorkerConfig struct {
    Concurrency        int
    PageTimeout        time.Duration
    JobMaxAttempts     int
    RetryBaseDelay     time.Duration
    RetryJitter        time.Duration
    RetryBackoffFactor float64
    LockTimeout        time.Duration
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
    RedisURL     string
    Stream       string
    Group        string
    PollInterval time.Duration
}

// StoreConfig defines the result/status store.
type StoreConfig struct {
    RedisURL  string
    ResultTTL time.Duration
}

// StorageConfig defines S3 connectivity for element batches and exports.
type StorageConfig struct {
    Region       string
    InputBucket  string
    OutputBucket string
    // EncPassword decrypts GCM-wrapped batches when set.
    EncPassword string
}

// Config is the top-level configuration.
type Config struct {
    Logging LoggingConfig
    Axiom   AxiomConfig
    Engine  EngineConfig
    Worker  WorkerConfig
    Queue   QueueConfig
    Store   StoreConfig
    Storage StorageConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/layoutengine.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_layoutengine",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    // Engine defaults
    cfg.Engine = EngineConfig{
        WorksheetMode: parseBool(getEnv("WORKSHEET_MODE", "0")),
        AnchorClasses: getEnv("ALLOWED_ANCHOR_CLASSES", "question_number,section_unit"),
        ChildClasses:  getEnv("ALLOWED_CHILD_CLASSES", "text,figure,table,formula,choice,caption"),

        RowBandPx:           parseFloat(getEnv("ROW_BAND_PX", "18"), 18),
        ProximityXWeight:    parseFloat(getEnv("PROXIMITY_X_WEIGHT", "0.2"), 0.2),
        LookaheadMaxGroups:  parseInt(getEnv("LOOKAHEAD_MAX_GROUPS", "2"), 2),
        LargeElementAreaPx2: parseFloat(getEnv("LARGE_ELEMENT_AREA_PX2", "40000"), 40000),
        ColumnGapMarginPx:   parseFloat(getEnv("COLUMN_GAP_MARGIN_PX", "10"), 10),
        RowMajor:            parseBool(getEnv("ROW_MAJOR_ORDER", "0")),

        SeparatorMinWidthFrac:   parseFloat(getEnv("SEPARATOR_MIN_WIDTH_FRAC", "0.85"), 0.85),
        TwoColumnVarianceGain:   parseFloat(getEnv("TWO_COLUMN_VARIANCE_GAIN", "0.35"), 0.35),
        MinColumnSeparationFrac: parseFloat(getEnv("MIN_COLUMN_SEPARATION_FRAC", "0.22"), 0.22),

        IoUThreshold:         parseFloat(getEnv("CONFLICT_IOU_THRESHOLD", "0.1"), 0.1),
        SevereOverlapAreaPx2: parseFloat(getEnv("SEVERE_OVERLAP_AREA_PX2", "10000"), 10000),
        IntrusionFrac:        parseFloat(getEnv("INTRUSION_FRAC", "0.5"), 0.5),
        LargeJumpThreshold:   parseInt(getEnv("LARGE_JUMP_THRESHOLD", "10"), 10),
        RepairWindow:         parseInt(getEnv("REPAIR_WINDOW", "2"), 2),

        ForcedStrategy: getEnv("FORCED_STRATEGY", ""),
    }

    // Worker defaults
    cfg.Worker = WorkerConfig{
        Concurrency:        parseInt(getEnv("WORKER_CONCURRENCY", "8"), 8),
        PageTimeout:        parseDuration(getEnv("PAGE_TIMEOUT", "60s"), 60*time.Second),
        JobMaxAttempts:     parseInt(getEnv("JOB_MAX_ATTEMPTS", "3"), 3),
        RetryBaseDelay:     parseDuration(getEnv("RETRY_BASE_DELAY", "2s"), 2*time.Second),
        RetryJitter:        parseDuration(getEnv("RETRY_JITTER", "200ms"), 200*time.Millisecond),
        RetryBackoffFactor: parseFloat(getEnv("RETRY_BACKOFF_FACTOR", "2.0"), 2.0),
        LockTimeout:        parseDuration(getEnv("JOB_LOCK_TIMEOUT", "30s"), 30*time.Second),
    }

    // Queue defaults
    cfg.Queue = QueueConfig{
        RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
        Stream:       getEnv("QUEUE_STREAM", "jobs:layout:pages"),
        Group:        getEnv("QUEUE_GROUP", "workers:layout"),
        PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "100ms"), 100*time.Millisecond),
    }

    // Store defaults
    cfg.Store = StoreConfig{
        RedisURL:  getEnv("STORE_REDIS_URL", getEnv("REDIS_URL", "redis://localhost:6379")),
        ResultTTL: parseDuration(getEnv("RESULT_TTL", "168h"), 168*time.Hour),
    }

    // Storage defaults
    cfg.Storage = StorageConfig{
        Region:       getEnv("AWS_REGION", "us-east-1"),
        InputBucket:  getEnv("S3_INPUT_BUCKET", ""),
        OutputBucket: getEnv("S3_OUTPUT_BUCKET", ""),
        EncPassword:  getEnv("BATCH_ENC_PASSWORD", ""),
    }

    return cfg
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}
