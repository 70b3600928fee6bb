package bonus

import (
	"SalongDriftSaas/internal/serviceiface"
	"SalongDriftSaas/internal/store"
	"SalongDriftSaas/pkg/keylock"
)

type BonusService struct {
	config map[string]interface{}
	st     store.Store
	locks  *keylock.KeyLock
}

func NewBonusService(cfg map[string]interface{}, st store.Store, locks *keylock.KeyLock) serviceiface.Service {
	return &BonusService{config: cfg, st: st, locks: locks}
}

func (s *BonusService) Name() string {
	return "bonus"
}

func (s *BonusService) Start() error {
	go StartBonusService(s.st, s.locks)
	return nil
}

func (s *BonusService) Stop() error {
	return nil
}
