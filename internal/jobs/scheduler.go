package jobs

import (
	"fmt"
	"log"

	"SalongDriftSaas/internal/logger"
	"SalongDriftSaas/internal/serviceiface"
	"SalongDriftSaas/internal/store"
	"SalongDriftSaas/pkg/keylock"
)

type CronService struct {
	config map[string]interface{}
	st     store.Store
	locks  *keylock.KeyLock
}

func NewCronService(cfg map[string]interface{}, st store.Store, locks *keylock.KeyLock) serviceiface.Service {
	return &CronService{
		config: cfg,
		st:     st,
		locks:  locks,
	}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	log.Println("Starting cron service...")

	rematchConfig := NewDefaultRematchConfig()
	if s.config != nil {
		if schedule, ok := s.config["rematch_schedule"].(string); ok && schedule != "" {
			rematchConfig.Schedule = schedule
		}
		if tz, ok := s.config["timezone"].(string); ok && tz != "" {
			rematchConfig.TimeZone = tz
		}
	}

	if err := RunRematchScheduler(rematchConfig, s.st, s.locks); err != nil {
		return fmt.Errorf("failed to start rematch scheduler: %v", err)
	}

	if logger.GlobalLogger != nil {
		logger.GlobalLogger.LogAudit("Cron service started with nightly rematch")
	}
	log.Println("Cron service started — Rematch Scheduler scheduled")
	return nil
}

func (s *CronService) Stop() error {
	log.Println("Cron service stopped.")
	return nil
}
