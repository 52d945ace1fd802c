package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/annolab/annotation-inference/config"
)

const (
	acquireTimeout    = 5 * time.Second
	healthCheckPeriod = 60 * time.Second
)

// DetectorPool bounds the number of concurrent detection invocations. The
// pipeline itself has no shared mutable state between calls; the pool exists
// because each engine session owns preallocated tensors.
type DetectorPool struct {
	detectors chan *Detector
	size      int
	profile   config.DetectionProfile
	mu        sync.Mutex
	closed    bool
	metrics   poolMetrics
	lastErrs  []error
}

type poolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	waitTime        time.Duration
}

// PoolMetrics is a snapshot of pool counters.
type PoolMetrics struct {
	Size            int           `json:"size"`
	InUse           int           `json:"in_use"`
	TotalAcquired   int64         `json:"total_acquired"`
	TotalReleased   int64         `json:"total_released"`
	AcquireFailures int64         `json:"acquire_failures"`
	WaitTime        time.Duration `json:"wait_time"`
	RecentErrors    []string      `json:"recent_errors,omitempty"`
}

// NewDetectorPool creates size detectors for the profile.
func NewDetectorPool(profile config.DetectionProfile, size int) (*DetectorPool, error) {
	if size <= 0 {
		size = 1
	}
	pool := &DetectorPool{
		detectors: make(chan *Detector, size),
		size:      size,
		profile:   profile,
	}
	for i := 0; i < size; i++ {
		d, err := NewDetector(profile)
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("initialize detector %d: %w", i, err)
		}
		pool.detectors <- d
	}

	go pool.healthCheck()
	return pool, nil
}

// Acquire blocks until a detector is free, the context is done, or the
// acquire timeout passes.
func (p *DetectorPool) Acquire(ctx context.Context) (*Detector, error) {
	if p.closed {
		return nil, fmt.Errorf("pool is closed")
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	select {
	case d := <-p.detectors:
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return d, nil
	case <-time.After(acquireTimeout):
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, fmt.Errorf("timeout waiting for available detector")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a detector to the pool.
func (p *DetectorPool) Release(d *Detector) {
	if p.closed {
		d.Destroy()
		return
	}

	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.detectors <- d
}

// Destroy closes the pool and releases all detectors.
func (p *DetectorPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.detectors)

	for d := range p.detectors {
		d.Destroy()
	}
}

func (p *DetectorPool) healthCheck() {
	ticker := time.NewTicker(healthCheckPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if p.closed {
			return
		}
		p.mu.Lock()
		current := len(p.detectors)
		p.mu.Unlock()
		p.metrics.mu.RLock()
		inUse := p.metrics.inUse
		p.metrics.mu.RUnlock()

		// Sessions lost to Release-after-close or failed replenishes.
		if missing := p.size - current - inUse; missing > 0 {
			p.replenish(missing)
		}
	}
}

func (p *DetectorPool) replenish(count int) {
	for i := 0; i < count; i++ {
		d, err := NewDetector(p.profile)
		if err != nil {
			p.recordError(err)
			continue
		}
		p.detectors <- d
	}
}

func (p *DetectorPool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrs = append(p.lastErrs, err)
	if len(p.lastErrs) > 10 {
		p.lastErrs = p.lastErrs[1:]
	}
}

// Metrics returns a snapshot of the pool counters.
func (p *DetectorPool) Metrics() PoolMetrics {
	p.mu.Lock()
	var errs []string
	for _, err := range p.lastErrs {
		errs = append(errs, err.Error())
	}
	p.mu.Unlock()

	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return PoolMetrics{
		Size:            p.size,
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
		WaitTime:        p.metrics.waitTime,
		RecentErrors:    errs,
	}
}
