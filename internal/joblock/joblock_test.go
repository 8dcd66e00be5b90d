package joblock

import (
    "context"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
    g := New(time.Second)
    release, err := g.Acquire(context.Background(), "job-1")
    require.NoError(t, err)
    assert.Equal(t, 1, g.Len())
    release()
    assert.Equal(t, 0, g.Len())
}

func TestSecondAcquireTimesOut(t *testing.T) {
    g := New(50 * time.Millisecond)
    release, err := g.Acquire(context.Background(), "job-1")
    require.NoError(t, err)
    defer release()

    _, err = g.Acquire(context.Background(), "job-1")
    assert.ErrorIs(t, err, ErrTimeout)
}

func TestDifferentJobsDoNotContend(t *testing.T) {
    g := New(50 * time.Millisecond)
    r1, err := g.Acquire(context.Background(), "job-1")
    require.NoError(t, err)
    defer r1()

    r2, err := g.Acquire(context.Background(), "job-2")
    require.NoError(t, err)
    defer r2()
    assert.Equal(t, 2, g.Len())
}

func TestContextCancelUnblocks(t *testing.T) {
    g := New(time.Minute)
    release, err := g.Acquire(context.Background(), "job-1")
    require.NoError(t, err)
    defer release()

    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan error, 1)
    go func() {
        _, err := g.Acquire(ctx, "job-1")
        done <- err
    }()
    cancel()
    select {
    case err := <-done:
        assert.ErrorIs(t, err, context.Canceled)
    case <-time.After(time.Second):
        t.Fatal("acquire did not observe cancellation")
    }
}

func TestSerializesCriticalSection(t *testing.T) {
    g := New(5 * time.Second)
    var inside, peak int
    var mu sync.Mutex
    var wg sync.WaitGroup
    for i := 0; i < 8; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            release, err := g.Acquire(context.Background(), "job-1")
            if err != nil { return }
            mu.Lock()
            inside++
            if inside > peak { peak = inside }
            mu.Unlock()
            time.Sleep(time.Millisecond)
            mu.Lock()
            inside--
            mu.Unlock()
            release()
        }()
    }
    wg.Wait()
    assert.Equal(t, 1, peak)
    assert.Equal(t, 0, g.Len())
}
