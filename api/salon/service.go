package salon

import (
	"SalongDriftSaas/internal/serviceiface"
	"database/sql"
)

type SalonService struct {
	config map[string]interface{}
	db     *sql.DB
}

func NewSalonService(cfg map[string]interface{}, db *sql.DB) serviceiface.Service {
	return &SalonService{config: cfg, db: db}
}

func (s *SalonService) Name() string {
	return "salon"
}

func (s *SalonService) Start() error {
	go StartSalonService(s.db)
	return nil
}

func (s *SalonService) Stop() error {
	return nil
}
