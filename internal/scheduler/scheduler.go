package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Status is a snapshot of the scheduler for the control endpoints.
type Status struct {
	Name         string        `json:"name"`
	Running      bool          `json:"running"`
	Interval     time.Duration `json:"-"`
	IntervalText string        `json:"interval"`
	Runs         int64         `json:"runs"`
	LastRunAt    *time.Time    `json:"last_run_at,omitempty"`
	LastDuration string        `json:"last_duration,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

// TickFunc runs one unit of periodic work. A returned error is logged and
// recorded; the scheduler keeps ticking.
type TickFunc func(context.Context) error

type Scheduler struct {
	name     string
	interval time.Duration
	tickFn   TickFunc

	running atomic.Bool
	runs    atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	lastMu       sync.Mutex
	lastRunAt    time.Time
	lastDuration time.Duration
	lastErr      error
}

func New(name string, interval time.Duration, tickFn TickFunc) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		tickFn:   tickFn,
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("scheduler started", "name", s.name, "interval", s.interval.String())

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("scheduler stopping", "name", s.name)
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("scheduler stopped", "name", s.name)
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	st := Status{
		Name:         s.name,
		Running:      s.running.Load(),
		Interval:     s.interval,
		IntervalText: s.interval.String(),
		Runs:         s.runs.Load(),
	}

	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	if !s.lastRunAt.IsZero() {
		at := s.lastRunAt
		st.LastRunAt = &at
		st.LastDuration = s.lastDuration.String()
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Scheduler) safeTick(ctx context.Context) {
	start := time.Now()
	var err error

	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler tick panic recovered", "name", s.name, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
		s.record(start, time.Since(start), err)
	}()

	err = s.tickFn(ctx)
	if err != nil {
		slog.Warn("scheduler tick failed", "name", s.name, "err", err)
	}
	slog.Info("scheduler tick completed", "name", s.name, "duration_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) record(at time.Time, took time.Duration, err error) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	s.runs.Add(1)
	s.lastRunAt = at
	s.lastDuration = took
	s.lastErr = err
}
