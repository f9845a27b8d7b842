// Package completion периодически переводит прошедшие подтверждённые записи в COMPLETED.
package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const runTimeout = time.Minute

// Completer: booking.Lifecycle.
type Completer interface {
	CompleteDue(ctx context.Context, now time.Time) (int, error)
}

type Sweeper struct {
	cron      *cron.Cron
	completer Completer
	logger    *zap.Logger
	now       func() time.Time
}

func NewSweeper(completer Completer, logger *zap.Logger, now func() time.Time) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		// медленный прогон не должен наслаиваться на следующий
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		completer: completer,
		logger:    logger.Named("completion"),
		now:       now,
	}
}

// Start регистрирует задачу по cron-выражению. Пустое выражение отключает sweeper.
func (s *Sweeper) Start(spec string) error {
	if spec == "" {
		s.logger.Info("completion sweeper disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return fmt.Errorf("add completion job %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info("completion sweeper started", zap.String("spec", spec))
	return nil
}

// Stop ждёт завершения текущего прогона или отмены ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce: один прогон, без расписания.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	n, err := s.completer.CompleteDue(ctx, s.now())
	if err != nil {
		return n, fmt.Errorf("complete due bookings: %w", err)
	}
	return n, nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	n, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("completion run failed", zap.Int("completed", n), zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("bookings completed", zap.Int("count", n))
	}
}
