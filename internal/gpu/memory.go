package gpu

import (
	"errors"
	"fmt"
	"sync"
)

// ErrMemoryBudgetExceeded is returned when a buffer would exceed the budget.
var ErrMemoryBudgetExceeded = errors.New("gpu: memory budget exceeded")

// Default memory limits.
const (
	// DefaultMaxMemoryMB is the default device memory budget (512 MB), room
	// for one texture at MaxTextureDimension squared plus the buffers.
	DefaultMaxMemoryMB = 512

	// MinMemoryMB is the minimum allowed budget (16 MB).
	MinMemoryMB = 16
)

// MemoryStats contains device buffer usage statistics.
type MemoryStats struct {
	TotalBytes  uint64 // budget
	UsedBytes   uint64 // currently reserved
	PeakBytes   uint64 // high-water mark since creation
	BufferCount int    // live buffers
}

// String returns a human-readable string of memory stats.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Memory[%d/%d bytes, peak %d, %d buffers]",
		s.UsedBytes, s.TotalBytes, s.PeakBytes, s.BufferCount)
}

// MemoryBudget tracks the bytes of device buffers and textures created through a Context
// and rejects allocations that would exceed the budget. Buffers are keyed
// by label; reserving an existing label replaces the old size.
//
// MemoryBudget is safe for concurrent use.
type MemoryBudget struct {
	mu sync.Mutex

	budgetBytes uint64
	usedBytes   uint64
	peakBytes   uint64
	buffers     map[string]uint64
}

// NewMemoryBudget creates a budget of maxMB megabytes. Values below
// MinMemoryMB select DefaultMaxMemoryMB.
func NewMemoryBudget(maxMB int) *MemoryBudget {
	if maxMB < MinMemoryMB {
		maxMB = DefaultMaxMemoryMB
	}
	return &MemoryBudget{
		budgetBytes: uint64(maxMB) << 20, //nolint:gosec // maxMB >= MinMemoryMB
		buffers:     make(map[string]uint64),
	}
}

// Reserve accounts size bytes for the buffer named label.
func (m *MemoryBudget) Reserve(label string, size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.usedBytes - m.buffers[label]
	if size > m.budgetBytes-used {
		return fmt.Errorf("%w: %s needs %d bytes, %d of %d available",
			ErrMemoryBudgetExceeded, label, size, m.budgetBytes-used, m.budgetBytes)
	}
	m.buffers[label] = size
	m.usedBytes = used + size
	m.peakBytes = max(m.peakBytes, m.usedBytes)
	return nil
}

// Release returns the bytes of label to the budget. Unknown labels are ignored.
func (m *MemoryBudget) Release(label string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	size, ok := m.buffers[label]
	if !ok {
		return
	}
	delete(m.buffers, label)
	m.usedBytes -= size
}

// Stats returns current usage statistics.
func (m *MemoryBudget) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MemoryStats{
		TotalBytes:  m.budgetBytes,
		UsedBytes:   m.usedBytes,
		PeakBytes:   m.peakBytes,
		BufferCount: len(m.buffers),
	}
}
