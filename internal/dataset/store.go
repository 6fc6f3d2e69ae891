package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "zoocal/internal/log"
	"zoocal/internal/model"
	"zoocal/internal/recur"
)

// ErrDuplicateID reports two definitions sharing an id.
var ErrDuplicateID = errors.New("dataset: duplicate definition id")

const defaultReloadTimeout = 30 * time.Second

// ReloadHook observes every reload attempt; count is the size of the new
// snapshot (0 on error).
type ReloadHook func(count int, err error)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithReloadHook registers a hook called after each reload.
func WithReloadHook(h ReloadHook) StoreOption {
	return func(s *Store) { s.hook = h }
}

// WithReloadTimeout bounds scheduled reloads.
func WithReloadTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.reloadTimeout = d
		}
	}
}

// Store holds the current, validated snapshot of definitions. A reload that
// fails keeps the previous snapshot.
type Store struct {
	provider      Provider
	hook          ReloadHook
	reloadTimeout time.Duration

	mu       sync.RWMutex
	defs     []model.EventDefinition
	loadedAt time.Time

	cron *cron.Cron
}

// NewStore creates an empty Store backed by provider.
func NewStore(provider Provider, opts ...StoreOption) *Store {
	s := &Store{
		provider:      provider,
		reloadTimeout: defaultReloadTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reload loads and validates a fresh snapshot, replacing the current one
// only if every definition is valid.
func (s *Store) Reload(ctx context.Context) error {
	defs, err := s.provider.Load(ctx)
	if err == nil {
		err = validateAll(defs)
	}
	if err != nil {
		appLog.Error("dataset reload failed; keeping previous snapshot", err)
		if s.hook != nil {
			s.hook(0, err)
		}
		return err
	}

	s.mu.Lock()
	s.defs = defs
	s.loadedAt = time.Now()
	s.mu.Unlock()

	appLog.Info("dataset reloaded", "definitions", len(defs))
	if s.hook != nil {
		s.hook(len(defs), nil)
	}
	return nil
}

// Definitions returns the current snapshot. Callers must not modify it.
func (s *Store) Definitions() ([]model.EventDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.loadedAt.IsZero() {
		return nil, ErrNoDefinitions
	}
	return s.defs, nil
}

// LoadedAt is the time of the last successful reload.
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Start schedules Reload on a standard 5-field cron spec. An empty spec
// disables scheduling.
func (s *Store) Start(spec string) error {
	if spec == "" {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.reloadTimeout)
		defer cancel()
		_ = s.Reload(ctx)
	})
	if err != nil {
		return fmt.Errorf("dataset: schedule %q: %w", spec, err)
	}
	s.cron = c
	c.Start()
	appLog.Info("dataset reload scheduled", "cron", spec)
	return nil
}

// Stop halts scheduled reloads and waits for a running one to finish or ctx
// to end.
func (s *Store) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// validateAll checks id uniqueness and every recurrence.
func validateAll(defs []model.EventDefinition) error {
	seen := make(map[string]struct{}, len(defs))
	var errs []error
	for _, def := range defs {
		if _, dup := seen[def.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateID, def.ID))
		}
		seen[def.ID] = struct{}{}
		if err := recur.Validate(def); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
