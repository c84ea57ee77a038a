package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/hmukwana/trade-alerts-firebase/internal/copytrading"
)

// Trigger - обработчик ежемесячного события
type Trigger interface {
	OnSchedule(ctx context.Context) (copytrading.RolloverResult, error)
}

// NextMonthStart возвращает 00:00 первого числа следующего месяца в часовом поясе loc
func NextMonthStart(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)

	// time.Date нормализует месяц 13 в январь следующего года
	return time.Date(local.Year(), local.Month()+1, 1, 0, 0, 0, 0, loc)
}

// Scheduler запускает месячный rollover в начале каждого месяца
type Scheduler struct {
	trigger Trigger
	loc     *time.Location
	timeout time.Duration
	logger  *slog.Logger

	now   func() time.Time
	after func(d time.Duration) <-chan time.Time
}

func New(trigger Trigger, loc *time.Location, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	return &Scheduler{
		trigger: trigger,
		loc:     loc,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
		after:   time.After,
	}
}

// Run ждет начала следующего месяца и вызывает триггер, пока не отменен ctx
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := NextMonthStart(s.now(), s.loc)

		s.logger.Info("📅 Next monthly rollover scheduled", slog.Time("at", next))

		select {
		case <-ctx.Done():
			return
		case <-s.after(time.Until(next)):
		}

		s.fire(ctx)
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.trigger.OnSchedule(runCtx)
	if err != nil {
		s.logger.Error("❌ Monthly rollover failed", slog.Any("error", err))
		return
	}

	s.logger.Info("✅ Monthly rollover finished",
		slog.Int("total", result.TotalCount),
		slog.Int("failed", result.FailedCount))
}
