// Package scheduler запускает периодические фоновые задачи.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// LockReleaser снимает истекшие блокировки входа
type LockReleaser interface {
	ReleaseExpiredLocks(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron    *cron.Cron
	logger  *logrus.Logger
	timeout time.Duration
}

// New создает планировщик. timeout ограничивает одно выполнение задачи.
func New(logger *logrus.Logger, timeout time.Duration) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		logger:  logger,
		timeout: timeout,
	}
}

// AddLockRelease регистрирует снятие истекших блокировок по расписанию schedule
// ("@every 5m", "*/5 * * * *")
func (s *Scheduler) AddLockRelease(schedule string, releaser LockReleaser) error {
	if _, err := s.cron.AddFunc(schedule, s.lockReleaseJob(releaser)); err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}
	s.logger.WithField("schedule", schedule).Info("Lock release job scheduled")
	return nil
}

func (s *Scheduler) lockReleaseJob(releaser LockReleaser) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		released, err := releaser.ReleaseExpiredLocks(ctx)
		if err != nil {
			s.logger.WithError(err).Error("Lock release job failed")
			return
		}
		s.logger.WithField("released", released).Debug("Lock release job finished")
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop останавливает планировщик и ждет завершения запущенных задач
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
	}
}
