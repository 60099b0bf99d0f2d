package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by StartAll on a running manager
var ErrAlreadyRunning = errors.New("workers already running")

// Worker is a background job with an explicit lifecycle
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// Manager runs the registered workers as one group.
// Only workers that started successfully are stopped, newest first.
type Manager struct {
	logger *zap.Logger

	mu         sync.Mutex
	registered []Worker
	started    []Worker
	cancel     context.CancelFunc
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger.Named("workers")}
}

// Register adds a worker. Workers registered while running start with the next StartAll.
func (m *Manager) Register(w Worker) {
	m.mu.Lock()
	m.registered = append(m.registered, w)
	n := len(m.registered)
	m.mu.Unlock()

	m.logger.Info("Worker registered", zap.String("worker_name", w.Name()), zap.Int("total_workers", n))
}

// StartAll starts every registered worker under a context cancelled by StopAll.
// Start failures are logged and skipped; an error is returned only when none started.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	var errs []error
	for _, w := range m.registered {
		log := m.logger.With(zap.String("worker_name", w.Name()))
		if err := w.Start(runCtx); err != nil {
			log.Error("Worker failed to start", zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
			continue
		}
		m.started = append(m.started, w)
		log.Info("Worker started")
	}

	if len(m.started) == 0 && len(errs) > 0 {
		cancel()
		return errors.Join(errs...)
	}
	m.cancel = cancel
	return nil
}

// StopAll is a no-op when nothing is running
func (m *Manager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return nil
	}
	m.cancel()
	m.cancel = nil

	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		w := m.started[i]
		if err := w.Stop(); err != nil {
			m.logger.Error("Worker failed to stop", zap.String("worker_name", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
			continue
		}
		m.logger.Info("Worker stopped", zap.String("worker_name", w.Name()))
	}
	m.started = nil
	return errors.Join(errs...)
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registered)
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}
