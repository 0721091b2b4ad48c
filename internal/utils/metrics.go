// internal/utils/metrics.go
package utils

import (
	"sync"
	"sync/atomic"
)

// MetricsCollector collects application counters
type MetricsCollector struct {
	counters map[string]*Counter
	mu       sync.RWMutex
}

// Counter metric - using atomic operations for thread-safe value updates
type Counter struct {
	value int64
}

var (
	metricsInstance *MetricsCollector
	metricsOnce     sync.Once
)

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		metricsInstance = &MetricsCollector{
			counters: make(map[string]*Counter),
		}
	})
	return metricsInstance
}

func (m *MetricsCollector) counter(name string) *Counter {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.counters[name]; ok {
		return c
	}
	c = &Counter{}
	m.counters[name] = c
	return c
}

// IncrementCounter increments a named counter by one
func (m *MetricsCollector) IncrementCounter(name string) {
	atomic.AddInt64(&m.counter(name).value, 1)
}

// AddCounter adds a value to a named counter
func (m *MetricsCollector) AddCounter(name string, value int64) {
	atomic.AddInt64(&m.counter(name).value, value)
}

// GetCounterValue returns the current value of a named counter
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.counters[name]; ok {
		return atomic.LoadInt64(&c.value)
	}
	return 0
}

// GetMetrics returns a snapshot of all counters
func (m *MetricsCollector) GetMetrics() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(map[string]int64, len(m.counters))
	for name, c := range m.counters {
		snapshot[name] = atomic.LoadInt64(&c.value)
	}
	return snapshot
}
