package worker

import (
    "context"
    "errors"
    "fmt"
    "strings"

    "github.com/local/layoutengine/internal/joblock"
)

// PayloadError marks a job that can never succeed: a malformed message or a
// batch the engine cannot interpret. These go straight to the DLQ.
type PayloadError struct {
    Reason string
}

func (e *PayloadError) Error() string {
    return fmt.Sprintf("payload error: %s", e.Reason)
}

// isTransientError reports whether the failure is worth a delayed retry.
func isTransientError(err error) bool {
    if err == nil {
        return false
    }

    // lock contention and timeouts resolve themselves
    if errors.Is(err, joblock.ErrTimeout) {
        return true
    }
    if errors.Is(err, context.DeadlineExceeded) {
        return true
    }

    // network-shaped failures from Redis or S3
    errStr := strings.ToLower(err.Error())
    if strings.Contains(errStr, "connection refused") ||
        strings.Contains(errStr, "connection reset") ||
        strings.Contains(errStr, "timeout") ||
        strings.Contains(errStr, "network") ||
        strings.Contains(errStr, "eof") ||
        strings.Contains(errStr, "throttl") ||
        strings.Contains(errStr, "slow down") {
        return true
    }

    return false
}

// isFatalError reports whether the failure should skip retries entirely.
func isFatalError(err error) bool {
    if err == nil {
        return false
    }

    var payloadErr *PayloadError
    if errors.As(err, &payloadErr) {
        return true
    }

    errStr := strings.ToLower(err.Error())
    if strings.Contains(errStr, "unsupported content type") ||
        strings.Contains(errStr, "malformed") ||
        strings.Contains(errStr, "decode batch") ||
        strings.Contains(errStr, "access denied") ||
        strings.Contains(errStr, "nosuchkey") {
        return true
    }

    return false
}
