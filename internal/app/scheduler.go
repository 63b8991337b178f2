package app

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/student_portal/internal/service"
	"go.uber.org/zap"
)

// Sweeper пересчитывает просрочки и доступ
type Sweeper interface {
	SweepOverdue(ctx context.Context) (service.SweepResult, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler создаёт новый планировщик
func NewScheduler(sweeper Sweeper, interval, timeout time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler",
		zap.Duration("sweep_interval", s.interval),
		zap.Duration("sweep_timeout", s.timeout),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runOverdueSweepTask(ctx)
	}()
}

// Stop останавливает фоновые задачи и ждёт текущий прогон
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

// runOverdueSweepTask периодически пересчитывает просроченные платежи
func (s *Scheduler) runOverdueSweepTask(ctx context.Context) {
	// Первый запуск сразу при старте
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("Overdue sweep task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Overdue sweep task cancelled")
			return
		}
	}
}

// sweep один прогон с ограничением по времени
func (s *Scheduler) sweep(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.sweeper.SweepOverdue(runCtx)
	if err != nil {
		s.logger.Error("Overdue sweep failed", zap.Error(err))
		return
	}

	if result.Failed > 0 {
		s.logger.Warn("Overdue sweep finished with failures", zap.Int("failed", result.Failed))
	}
}
