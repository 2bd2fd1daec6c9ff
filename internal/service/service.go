package service

import (
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"academic-portal/backend/config"
	"academic-portal/backend/internal/repository"
	"academic-portal/backend/internal/scheduling"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Timetable TimetableService
	Query     ScheduleQueryService
	Export    ExportService
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	locker scheduling.Locker,
	logger *zap.Logger,
) *Service {
	return &Service{
		Timetable: NewTimetableService(repo, locker, cfg.Scheduling.WriteAttempts, logger),
		Query:     NewScheduleQueryService(repo, logger),
		Export:    NewExportService(repo, logger),
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
