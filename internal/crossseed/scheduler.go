package crossseed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/crossarr/crossarr/internal/store"
)

// ErrScanInProgress is returned when a scan is requested for an instance
// that is already being scanned.
var ErrScanInProgress = errors.New("crossseed: scan already in progress")

// sweepInterval is how often the scheduler re-reads the stored configs to
// catch enabled instances whose in-memory timer was lost.
const sweepInterval = time.Minute

// InstanceStatus describes one instance's scheduling state.
type InstanceStatus struct {
	InstanceID int64      `json:"instanceId"`
	Enabled    bool       `json:"enabled"`
	Running    bool       `json:"running"`
	LastRun    *time.Time `json:"lastRun,omitempty"`
	NextRun    *time.Time `json:"nextRun,omitempty"`
}

// Service owns the scan timers and the per-instance run/abort state. At
// most one scan runs per instance; triggers against a busy instance are
// rejected rather than queued.
type Service struct {
	gocron gocron.Scheduler
	store  *store.Store
	worker *Worker
	logger zerolog.Logger

	mu      sync.Mutex
	jobs    map[int64]gocron.Job
	running map[int64]context.CancelFunc
}

// NewService creates the scheduler service.
func NewService(st *store.Store, worker *Worker, logger zerolog.Logger) (*Service, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Service{
		gocron:  gs,
		store:   st,
		worker:  worker,
		logger:  logger.With().Str("component", "crossseed-scheduler").Logger(),
		jobs:    make(map[int64]gocron.Job),
		running: make(map[int64]context.CancelFunc),
	}, nil
}

// Start schedules every enabled instance and starts the timers. An
// instance whose persisted next_run is already past is scanned shortly
// after startup instead of waiting a full interval.
func (s *Service) Start(ctx context.Context) error {
	configs, err := s.store.ListEnabledScanConfigs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scan configs: %w", err)
	}
	for _, cfg := range configs {
		if err := s.schedule(cfg); err != nil {
			s.logger.Error().Err(err).Int64("instanceId", cfg.InstanceID).Msg("failed to schedule instance")
		}
	}
	if _, err := s.gocron.NewJob(
		gocron.DurationJob(sweepInterval),
		gocron.NewTask(s.sweep),
		gocron.WithName("crossseed-sweep"),
	); err != nil {
		return fmt.Errorf("failed to create sweep job: %w", err)
	}
	s.gocron.Start()
	s.logger.Info().Int("instances", len(configs)).Msg("scheduler started")
	return nil
}

// Shutdown stops the timers and aborts any running scans.
func (s *Service) Shutdown() error {
	s.mu.Lock()
	for _, cancel := range s.running {
		cancel()
	}
	s.mu.Unlock()
	return s.gocron.Shutdown()
}

func (s *Service) schedule(cfg store.ScanConfig) error {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	firstRun := gocron.WithStartDateTime(time.Now().Add(interval))
	if cfg.NextRun != nil {
		next := *cfg.NextRun
		if next.Before(time.Now()) {
			next = time.Now().Add(time.Minute)
		}
		firstRun = gocron.WithStartDateTime(next)
	}

	instanceID := cfg.InstanceID
	job, err := s.gocron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := s.runScan(instanceID, false); err != nil && !errors.Is(err, ErrScanInProgress) {
				s.logger.Error().Err(err).Int64("instanceId", instanceID).Msg("scheduled scan failed")
			}
		}),
		gocron.WithName(fmt.Sprintf("crossseed-scan-%d", instanceID)),
		gocron.WithStartAt(firstRun),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.mu.Lock()
	s.jobs[instanceID] = job
	s.mu.Unlock()
	return nil
}

// sweep re-reads the stored configs and schedules any enabled instance
// with no in-memory timer, so a due next_run survives losing its job.
// schedule fires overdue instances shortly after rather than immediately.
func (s *Service) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	configs, err := s.store.ListEnabledScanConfigs(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("sweep failed to load scan configs")
		return
	}
	for _, cfg := range configs {
		s.mu.Lock()
		_, scheduled := s.jobs[cfg.InstanceID]
		s.mu.Unlock()
		if scheduled {
			continue
		}
		if err := s.schedule(cfg); err != nil {
			s.logger.Error().Err(err).Int64("instanceId", cfg.InstanceID).Msg("sweep failed to schedule instance")
			continue
		}
		s.logger.Info().Int64("instanceId", cfg.InstanceID).Msg("sweep restored lost schedule")
	}
}

// Reschedule rebuilds an instance's timer after its configuration changed.
// Disabling removes the timer; a running scan is left to finish.
func (s *Service) Reschedule(ctx context.Context, instanceID int64) error {
	s.mu.Lock()
	if job, ok := s.jobs[instanceID]; ok {
		if err := s.gocron.RemoveJob(job.ID()); err != nil {
			s.logger.Warn().Err(err).Int64("instanceId", instanceID).Msg("failed to remove job")
		}
		delete(s.jobs, instanceID)
	}
	s.mu.Unlock()

	cfg, err := s.store.GetScanConfig(ctx, instanceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load scan config: %w", err)
	}
	if !cfg.Enabled {
		return nil
	}
	return s.schedule(cfg)
}

// TriggerScan starts a forced scan immediately. Returns ErrScanInProgress
// if the instance is already being scanned.
func (s *Service) TriggerScan(instanceID int64) error {
	s.mu.Lock()
	if _, busy := s.running[instanceID]; busy {
		s.mu.Unlock()
		return ErrScanInProgress
	}
	s.mu.Unlock()

	go func() {
		if err := s.runScan(instanceID, true); err != nil && !errors.Is(err, ErrScanInProgress) {
			s.logger.Error().Err(err).Int64("instanceId", instanceID).Msg("triggered scan failed")
		}
	}()
	return nil
}

// StopScan aborts a running scan. Stopping an idle instance is a no-op.
func (s *Service) StopScan(instanceID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.running[instanceID]; ok {
		cancel()
	}
}

// Running reports whether a scan is currently executing for the instance.
func (s *Service) Running(instanceID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.running[instanceID]
	return busy
}

// Status returns the scheduling state of every configured instance.
func (s *Service) Status(ctx context.Context) ([]InstanceStatus, error) {
	configs, err := s.store.ListEnabledScanConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load scan configs: %w", err)
	}
	statuses := make([]InstanceStatus, 0, len(configs))
	for _, cfg := range configs {
		statuses = append(statuses, InstanceStatus{
			InstanceID: cfg.InstanceID,
			Enabled:    cfg.Enabled,
			Running:    s.Running(cfg.InstanceID),
			LastRun:    cfg.LastRun,
			NextRun:    cfg.NextRun,
		})
	}
	return statuses, nil
}

// runScan claims the instance's running slot, executes the worker and
// persists the run times. The double-check under the lock makes concurrent
// triggers for the same instance lose cleanly.
func (s *Service) runScan(instanceID int64, force bool) error {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if _, busy := s.running[instanceID]; busy {
		s.mu.Unlock()
		cancel()
		return ErrScanInProgress
	}
	s.running[instanceID] = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, instanceID)
		s.mu.Unlock()
		cancel()
	}()

	started := time.Now()
	result, err := s.worker.RunScan(ctx, instanceID, force)
	if err != nil {
		s.worker.broadcast(EventScanFailed, ScanFailedPayload{
			InstanceID: instanceID,
			Error:      err.Error(),
		})
		s.persistRunTimes(instanceID, started)
		return err
	}

	s.persistRunTimes(instanceID, started)
	s.logger.Info().
		Int64("instanceId", instanceID).
		Int("injected", result.Injected).
		Int("simulated", result.Simulated).
		Msg("scan run recorded")
	return nil
}

func (s *Service) persistRunTimes(instanceID int64, started time.Time) {
	ctx, cancelWrite := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWrite()

	cfg, err := s.store.GetScanConfig(ctx, instanceID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("instanceId", instanceID).Msg("failed to reload config for run times")
		return
	}
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if err := s.store.UpdateScanRunTimes(ctx, instanceID, started, started.Add(interval)); err != nil {
		s.logger.Warn().Err(err).Int64("instanceId", instanceID).Msg("failed to persist run times")
	}
}
