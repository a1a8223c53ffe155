package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Sample is one resource reading of the helper process.
type Sample struct {
	Time       time.Time
	CPUPercent float64
	MemoryMB   float64
	Threads    int32
}

// ProcessMonitor samples a process's CPU and memory usage.
type ProcessMonitor struct {
	mu      sync.Mutex
	proc    *process.Process
	samples []Sample
}

// NewProcessMonitor attaches to a running process.
func NewProcessMonitor(pid int) (*ProcessMonitor, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to attach to process %d: %w", pid, err)
	}
	return &ProcessMonitor{proc: proc}, nil
}

// Sample takes one reading and keeps it.
func (m *ProcessMonitor) Sample() (Sample, error) {
	cpu, err := m.proc.CPUPercent()
	if err != nil {
		return Sample{}, err
	}
	memInfo, err := m.proc.MemoryInfo()
	if err != nil {
		return Sample{}, err
	}
	threads, err := m.proc.NumThreads()
	if err != nil {
		threads = 0
	}

	s := Sample{
		Time:       time.Now(),
		CPUPercent: cpu,
		MemoryMB:   float64(memInfo.RSS) / (1024 * 1024),
		Threads:    threads,
	}

	m.mu.Lock()
	m.samples = append(m.samples, s)
	m.mu.Unlock()
	return s, nil
}

// Run samples every interval until ctx is done or the process is gone.
func (m *ProcessMonitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.Sample(); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Samples returns a copy of all readings so far.
func (m *ProcessMonitor) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sample, len(m.samples))
	copy(out, m.samples)
	return out
}

// PeakMemoryMB returns the largest resident size seen.
func (m *ProcessMonitor) PeakMemoryMB() float64 {
	var peak float64
	for _, s := range m.Samples() {
		if s.MemoryMB > peak {
			peak = s.MemoryMB
		}
	}
	return peak
}
