package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"password_expiry_notifier/internal/app"
)

// Runner is one notification pass.
type Runner interface {
	Run(ctx context.Context) (*app.RunSummary, error)
}

type NotificationScheduler struct {
	cronEngine *cron.Cron
	runner     Runner
	logger     *logrus.Logger
	cronSpec   string // e.g., "0 7 * * 1-5" (07:00 on weekdays)
	timeout    time.Duration

	mu      sync.Mutex
	last    *app.RunSummary
	lastErr error
}

func NewNotificationScheduler(runner Runner, logger *logrus.Logger, cronSpec string, timeout time.Duration) *NotificationScheduler {
	return &NotificationScheduler{
		cronEngine: cron.New(cron.WithLocation(time.Local)), // Use server's local time for cron
		runner:     runner,
		logger:     logger,
		cronSpec:   cronSpec,
		timeout:    timeout,
	}
}

func (s *NotificationScheduler) Start() error {
	s.logger.Info("Starting notification scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.logger.Info("Cron job triggered for password expiry run.")
		s.execute()
	})
	if err != nil {
		return fmt.Errorf("could not add cron job %q: %w", s.cronSpec, err)
	}

	s.cronEngine.Start()
	for _, e := range s.cronEngine.Entries() {
		s.logger.Infof("Notification scheduler started, next run at %s", e.Next.Format(time.RFC3339))
	}
	return nil
}

func (s *NotificationScheduler) execute() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	summary, err := s.runner.Run(ctx)
	s.mu.Lock()
	s.last, s.lastErr = summary, err
	s.mu.Unlock()
	if err != nil {
		s.logger.Errorf("Error during password expiry run: %v", err)
		return
	}
	s.logger.WithField("run_id", summary.RunID).Infof("Password expiry run finished, %d notified.", summary.Statistics.TotalNotified)
}

// Last returns the most recent run's summary and error; both are nil before the first tick.
func (s *NotificationScheduler) Last() (*app.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastErr
}

// Next reports when the job fires next.
func (s *NotificationScheduler) Next() time.Time {
	for _, e := range s.cronEngine.Entries() {
		return e.Next
	}
	return time.Time{}
}

func (s *NotificationScheduler) Stop() {
	s.logger.Info("Stopping notification scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Notification scheduler gracefully stopped.")
}
