package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/repositories"
	"go.uber.org/zap"
)

// Archiver forwards events to the audit archive asynchronously.
// The ring only keeps the last events; the archive keeps full history.
type Archiver struct {
	repo        repositories.AuditRepository
	logger      *zap.Logger
	eventChan   chan *models.AuditEvent
	workerCount int
	bufferSize  int
	opTimeout   time.Duration
	wg          sync.WaitGroup
	started     bool
	stopped     bool
	mu          sync.Mutex
}

// ArchiverConfig holds configuration for the Archiver
type ArchiverConfig struct {
	BufferSize  int           // Size of the event buffer channel
	WorkerCount int           // Number of concurrent workers
	OpTimeout   time.Duration // Per-insert deadline
}

// DefaultArchiverConfig returns the default configuration
func DefaultArchiverConfig() ArchiverConfig {
	return ArchiverConfig{
		BufferSize:  10000,
		WorkerCount: 2,
		OpTimeout:   5 * time.Second,
	}
}

// NewArchiver creates a new Archiver instance
func NewArchiver(repo repositories.AuditRepository, logger *zap.Logger, cfg ArchiverConfig) *Archiver {
	def := DefaultArchiverConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = def.OpTimeout
	}

	return &Archiver{
		repo:        repo,
		logger:      logger,
		eventChan:   make(chan *models.AuditEvent, cfg.BufferSize),
		workerCount: cfg.WorkerCount,
		bufferSize:  cfg.BufferSize,
		opTimeout:   cfg.OpTimeout,
	}
}

// Start starts the background workers
func (a *Archiver) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return fmt.Errorf("audit archiver already started")
	}

	for i := 0; i < a.workerCount; i++ {
		a.wg.Add(1)
		go a.worker(i)
	}

	a.started = true
	a.logger.Info("started audit archiver",
		zap.Int("worker_count", a.workerCount),
		zap.Int("buffer_size", a.bufferSize))

	return nil
}

// Stop closes the queue and waits for pending events to be written
func (a *Archiver) Stop(timeout time.Duration) error {
	a.mu.Lock()
	if !a.started || a.stopped {
		a.mu.Unlock()
		return fmt.Errorf("audit archiver not running")
	}
	a.stopped = true
	close(a.eventChan)
	a.mu.Unlock()

	a.logger.Info("stopping audit archiver", zap.Int("pending_events", len(a.eventChan)))

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("audit archiver stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit archiver stop timeout after %v", timeout)
	}
}

// Enqueue queues event without blocking. A full buffer drops the event.
func (a *Archiver) Enqueue(event *models.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started || a.stopped {
		return fmt.Errorf("audit archiver not running")
	}

	select {
	case a.eventChan <- event:
		return nil
	default:
		a.logger.Warn("audit archive buffer full, dropping event",
			zap.String("type", string(event.Type)),
			zap.String("event_id", event.ID.String()))
		return fmt.Errorf("audit archive buffer full")
	}
}

func (a *Archiver) worker(id int) {
	defer a.wg.Done()

	a.logger.Debug("audit archive worker started", zap.Int("worker_id", id))

	for event := range a.eventChan {
		if err := a.archive(event); err != nil {
			a.logger.Error("failed to archive audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("type", string(event.Type)),
				zap.String("event_id", event.ID.String()))
		}
	}

	a.logger.Debug("audit archive worker stopped", zap.Int("worker_id", id))
}

func (a *Archiver) archive(event *models.AuditEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.opTimeout)
	defer cancel()

	if err := a.repo.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Stats returns statistics about the archiver
func (a *Archiver) Stats() ArchiverStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	return ArchiverStats{
		BufferSize:    a.bufferSize,
		PendingEvents: len(a.eventChan),
		WorkerCount:   a.workerCount,
		Started:       a.started && !a.stopped,
	}
}

// ArchiverStats represents archiver statistics
type ArchiverStats struct {
	BufferSize    int  `json:"buffer_size"`
	PendingEvents int  `json:"pending_events"`
	WorkerCount   int  `json:"worker_count"`
	Started       bool `json:"started"`
}
