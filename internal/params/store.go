package params

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Source loads a full parameter set from an external parameter store.
type Source interface {
	Load(ctx context.Context) (Parameters, error)
}

// Store publishes parameter snapshots to the detector. A refresh swaps in a
// whole new snapshot; readers never see a partially updated set.
type Store struct {
	current atomic.Pointer[Parameters]
	source  Source
	logger  *slog.Logger
}

// NewStore creates a store holding initial. source may be nil, in which case
// Refresh is a no-op.
func NewStore(initial Parameters, source Source, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{source: source, logger: logger}
	s.current.Store(&initial)
	return s
}

// Snapshot returns the current parameter set.
func (s *Store) Snapshot() Parameters {
	return *s.current.Load()
}

// Set validates p and makes it the current snapshot.
func (s *Store) Set(p Parameters) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	s.current.Store(&p)
	return nil
}

// Refresh loads from the source and swaps the result in. On any failure the
// previous snapshot stays current.
func (s *Store) Refresh(ctx context.Context) error {
	if s.source == nil {
		return nil
	}
	p, err := s.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load parameters: %w", err)
	}
	if p == s.Snapshot() {
		return nil
	}
	if err := s.Set(p); err != nil {
		return err
	}
	s.logger.Info("parameters updated",
		"trig_time", p.TrigTime,
		"min_throttle", p.MinThrottle,
		"use_hte", p.UseHoverThrustEstimate)
	return nil
}

// Run refreshes every interval until ctx is done. Failures are logged and the
// last-known parameters stay in use.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if s.source == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("parameter refresh failed, keeping last-known values", "error", err)
			}
		}
	}
}
