// Package engine provides the tick-based simulation loop.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultReportEvery is how many ticks pass between OnReport calls.
const DefaultReportEvery = 100

// Engine drives the simulation forward.
type Engine struct {
	Interval    time.Duration // Base tick interval (default 1 second)
	ReportEvery uint64        // Ticks between OnReport calls; 0 disables

	// OnTick runs every tick. A returned error stops the loop.
	OnTick func(tick uint64) error
	// OnReport runs every ReportEvery ticks after OnTick.
	OnReport func(tick uint64)

	tick    atomic.Uint64 // monotonic, never resets
	running atomic.Bool

	mu    sync.Mutex
	speed float64 // 1.0 = real-time, 0 = paused
}

// NewEngine creates a simulation engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		Interval:    time.Second,
		ReportEvery: DefaultReportEvery,
		speed:       1.0,
	}
}

// Tick returns the last completed tick.
func (e *Engine) Tick() uint64 { return e.tick.Load() }

// SetTick restores the tick counter (used when loading saved state).
func (e *Engine) SetTick(t uint64) { e.tick.Store(t) }

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. Zero or less pauses the loop.
func (e *Engine) SetSpeed(v float64) {
	e.mu.Lock()
	e.speed = v
	e.mu.Unlock()
}

// Running reports whether Run is active.
func (e *Engine) Running() bool { return e.running.Load() }

// Run starts the simulation loop. Blocks until Stop() is called or a tick
// fails, in which case the tick's error is returned.
func (e *Engine) Run() error {
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "tick", e.Tick(), "speed", e.Speed())

	for e.Running() {
		speed := e.Speed()
		if speed <= 0 {
			// Paused; poll again shortly.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		if err := e.step(); err != nil {
			slog.Error("simulation engine halted", "tick", e.Tick(), "error", err)
			return err
		}

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick())
	return nil
}

// RunFor advances n ticks back to back, ignoring speed and interval.
func (e *Engine) RunFor(n int) error {
	for i := 0; i < n; i++ {
		if err := e.step(); err != nil {
			return err
		}
	}
	return nil
}

// Stop halts the simulation loop.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// step advances the simulation by one tick.
func (e *Engine) step() error {
	tick := e.tick.Load() + 1

	if e.OnTick != nil {
		if err := e.OnTick(tick); err != nil {
			return fmt.Errorf("tick %d: %w", tick, err)
		}
	}
	e.tick.Store(tick)

	if e.ReportEvery > 0 && tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(tick)
	}
	return nil
}
