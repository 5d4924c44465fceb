package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"torgbot/internal/services"
)

// CleanupScheduler runs the nightly retention job that trims old request and
// visit logs.
type CleanupScheduler struct {
	scheduler  gocron.Scheduler
	users      *services.UserService
	instanceID string

	cronExpr      string
	retentionDays int
}

func NewCleanupScheduler(users *services.UserService, cronExpr string, retentionDays int) (*CleanupScheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cronExpr); err != nil {
		return nil, fmt.Errorf("invalid cleanup cron expression %q: %w", cronExpr, err)
	}

	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &CleanupScheduler{
		scheduler:     scheduler,
		users:         users,
		instanceID:    uuid.New().String(),
		cronExpr:      cronExpr,
		retentionDays: retentionDays,
	}, nil
}

// Start registers the cleanup job and starts the scheduler
func (s *CleanupScheduler) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.CronJob(s.cronExpr, false),
		gocron.NewTask(s.runCleanup),
	)
	if err != nil {
		return fmt.Errorf("failed to register cleanup job: %w", err)
	}

	s.scheduler.Start()
	log.Printf("🧹 [CLEANUP] Scheduled at %q, retention %d days (instance %s)",
		s.cronExpr, s.retentionDays, s.instanceID)
	return nil
}

// Stop shuts the scheduler down
func (s *CleanupScheduler) Stop() error {
	return s.scheduler.Shutdown()
}

func (s *CleanupScheduler) runCleanup() {
	log.Println("🧹 [CLEANUP] Retention cleanup started")

	removed, err := s.users.CleanupOldData(s.retentionDays)
	if err != nil {
		log.Printf("❌ [CLEANUP] Retention cleanup failed: %v", err)
		return
	}

	log.Printf("✅ [CLEANUP] Retention cleanup finished, removed %d rows", removed)
}
