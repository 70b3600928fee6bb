package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"SalongDriftSaas/api/bonus/importer"
	"SalongDriftSaas/internal/config"
	"SalongDriftSaas/internal/logger"
	"SalongDriftSaas/internal/store"
	"SalongDriftSaas/pkg/keylock"
)

type RematchConfig struct {
	Schedule string
	TimeZone string
	Timeout  time.Duration
}

func NewDefaultRematchConfig() *RematchConfig {
	return &RematchConfig{
		Schedule: config.DefaultRematchSchedule,
		TimeZone: config.DefaultTimeZone,
		Timeout:  30 * time.Minute,
	}
}

// RunRematchScheduler re-resolves unmatched import rows every night so
// salons registered during the day pick up their historical turnover
// without an operator clicking through every batch. locks must be the
// same lock set the bonus service uses.
func RunRematchScheduler(cfg *RematchConfig, st store.Store, locks *keylock.KeyLock) error {
	if cfg.Schedule == "" {
		cfg.Schedule = config.DefaultRematchSchedule
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = config.DefaultTimeZone
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid timezone for rematch scheduler: %v", err)
	}

	mgr := importer.NewManager(st, locks)

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(cfg.Schedule, func() {
		if logger.GlobalLogger != nil {
			logger.GlobalLogger.LogAudit(fmt.Sprintf("Running nightly rematch at %s", time.Now().In(loc)))
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()

		report, err := mgr.SyncAll(ctx)
		if logger.GlobalLogger == nil {
			return
		}
		if err != nil {
			logger.GlobalLogger.LogAudit(fmt.Sprintf("Nightly rematch failed: %v", err))
			return
		}
		logger.GlobalLogger.LogAudit(fmt.Sprintf(
			"Nightly rematch completed: %d batches, %d newly matched, %d still unmatched, %d failed",
			report.BatchesProcessed, report.NewlyMatched, report.StillUnmatched, report.Failed))
	})
	if err != nil {
		return fmt.Errorf("schedule rematch job: %v", err)
	}
	c.Start()
	return nil
}
