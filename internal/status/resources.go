package status

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// historyWindow bounds how far back ResourceSnapshot.History reaches.
const historyWindow = 24 * time.Hour

// ResourcePoint is one process sample. OpenFDs tracks relay sockets, which
// are the first thing to run out when many profiles share a host.
type ResourcePoint struct {
	Timestamp  time.Time `json:"timestamp"`
	CPUPercent float64   `json:"cpuPercent"`
	RSSBytes   uint64    `json:"rssBytes"`
	OpenFDs    int32     `json:"openFds"`
	Threads    int32     `json:"threads"`
	Goroutines int       `json:"goroutines"`
}

type ResourceSnapshot struct {
	Current ResourcePoint   `json:"current"`
	History []ResourcePoint `json:"history"`
}

// ResourceTracker samples the current process on a fixed interval and keeps
// a ring of the last day of samples.
type ResourceTracker struct {
	proc     *process.Process
	interval time.Duration
	limit    int

	mu      sync.RWMutex
	ring    []ResourcePoint
	next    int
	full    bool
	current ResourcePoint
	once    sync.Once
}

// NewResourceTracker returns nil when the current process cannot be inspected.
func NewResourceTracker(interval time.Duration) *ResourceTracker {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	limit := int(historyWindow / interval)
	if limit < 1 {
		limit = 1
	}
	return &ResourceTracker{
		proc:     p,
		interval: interval,
		limit:    limit,
		ring:     make([]ResourcePoint, 0, min(limit, 1024)),
	}
}

// Start samples once immediately and then on every tick until ctx ends.
// Later calls are no-ops.
func (r *ResourceTracker) Start(ctx context.Context) {
	if r == nil {
		return
	}
	r.once.Do(func() {
		r.sample(ctx)
		go func() {
			ticker := time.NewTicker(r.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					r.sample(ctx)
				}
			}
		}()
	})
}

func (r *ResourceTracker) sample(ctx context.Context) {
	point := ResourcePoint{
		Timestamp:  time.Now().UTC(),
		Goroutines: runtime.NumGoroutine(),
	}
	if cpu, err := r.proc.PercentWithContext(ctx, 0); err == nil {
		point.CPUPercent = cpu
	}
	if mem, err := r.proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		point.RSSBytes = mem.RSS
	}
	if fds, err := r.proc.NumFDsWithContext(ctx); err == nil {
		point.OpenFDs = fds
	}
	if threads, err := r.proc.NumThreadsWithContext(ctx); err == nil {
		point.Threads = threads
	}
	r.record(point)
}

func (r *ResourceTracker) record(point ResourcePoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = point
	if len(r.ring) < r.limit {
		r.ring = append(r.ring, point)
		return
	}
	r.ring[r.next] = point
	r.next = (r.next + 1) % r.limit
	r.full = true
}

// Snapshot returns the latest sample and the history oldest first.
func (r *ResourceTracker) Snapshot() ResourceSnapshot {
	if r == nil {
		return ResourceSnapshot{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	history := make([]ResourcePoint, 0, len(r.ring))
	if r.full {
		history = append(history, r.ring[r.next:]...)
		history = append(history, r.ring[:r.next]...)
	} else {
		history = append(history, r.ring...)
	}
	return ResourceSnapshot{Current: r.current, History: history}
}
