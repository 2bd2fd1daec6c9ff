package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"academic-portal/backend/internal/model"
	pkgerrors "academic-portal/backend/pkg/errors"
)

// pgExclusionViolation PostgreSQL exclusion_violation
const pgExclusionViolation = "23P01"

// TimetableFilter 管理员排课列表筛选条件
type TimetableFilter struct {
	SemesterID       string
	BranchID         string
	DayOfWeek        *model.Weekday
	IncludeCancelled bool
}

// TimetableRepository 排课数据访问接口
// 所有写操作与对应的变更日志在同一事务中提交
type TimetableRepository interface {
	Create(ctx context.Context, entry *model.TimetableEntry, log *model.TimetableChangeLog) error
	GetByID(ctx context.Context, id string) (*model.TimetableEntry, error)
	Update(ctx context.Context, entry *model.TimetableEntry, log *model.TimetableChangeLog) error
	// Cancel 仅当排课为 active 时迁移为 cancelled；返回是否发生了迁移
	Cancel(ctx context.Context, id, operatorID string, log *model.TimetableChangeLog) (bool, error)

	// ListActiveForResources 查询某天占用指定房间或教师的有效排课（冲突检测的输入）
	ListActiveForResources(ctx context.Context, day model.Weekday, roomNo, teacherID string) ([]model.TimetableEntry, error)
	ListBySemester(ctx context.Context, semesterID string, includeCancelled bool) ([]model.TimetableEntry, error)
	ListByTeacher(ctx context.Context, teacherID string, day *model.Weekday) ([]model.TimetableEntry, error)
	ListBySubject(ctx context.Context, subjectID string) ([]model.TimetableEntry, error)
	List(ctx context.Context, filter TimetableFilter, offset, limit int) ([]model.TimetableEntry, int64, error)

	AddGrant(ctx context.Context, grant *model.TimetableGrant, log *model.TimetableChangeLog) (bool, error)
	DeleteGrant(ctx context.Context, entryID, userID string, log *model.TimetableChangeLog) (bool, error)
	GetGrant(ctx context.Context, entryID, userID string) (*model.TimetableGrant, error)

	ListChangeLogs(ctx context.Context, entryID string, offset, limit int) ([]model.TimetableChangeLog, int64, error)
}

// ── Timetable Repository 实现 ──

type timetableRepo struct {
	db *gorm.DB
}

func NewTimetableRepo(db *gorm.DB) TimetableRepository {
	return &timetableRepo{db: db}
}

// translateWriteError 将排他约束冲突转换为 ErrSlotTaken
func translateWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
		return pkgerrors.ErrSlotTaken
	}
	return err
}

func insertLog(tx *gorm.DB, log *model.TimetableChangeLog) error {
	if log == nil {
		return nil
	}
	if log.ChangeLogID == "" {
		log.ChangeLogID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	return tx.Create(log).Error
}

// activeOrder 周视图排序：星期 → 开始时间 → 房间
const activeOrder = "day_of_week ASC, start_time ASC, room_no ASC"

func (r *timetableRepo) preloadGrants(db *gorm.DB) *gorm.DB {
	return db.Preload("Grants", func(db *gorm.DB) *gorm.DB {
		return db.Order("granted_at ASC")
	})
}

func (r *timetableRepo) Create(ctx context.Context, entry *model.TimetableEntry, log *model.TimetableChangeLog) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(entry).Error; err != nil {
			return err
		}
		return insertLog(tx, log)
	})
	return translateWriteError(err)
}

func (r *timetableRepo) GetByID(ctx context.Context, id string) (*model.TimetableEntry, error) {
	var entry model.TimetableEntry
	err := r.preloadGrants(r.db.WithContext(ctx)).
		Where("entry_id = ?", id).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *timetableRepo) Update(ctx context.Context, entry *model.TimetableEntry, log *model.TimetableChangeLog) error {
	oldVersion := entry.Version
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.TimetableEntry{}).
			Where("entry_id = ? AND version = ? AND status = ?", entry.EntryID, oldVersion, model.StatusActive).
			Updates(map[string]interface{}{
				"subject_id":   entry.SubjectID,
				"teacher_id":   entry.TeacherID,
				"room_no":      entry.RoomNo,
				"day_of_week":  entry.DayOfWeek,
				"start_time":   entry.StartTime,
				"end_time":     entry.EndTime,
				"lecture_type": entry.LectureType,
				"notes":        entry.Notes,
				"updated_by":   entry.UpdatedBy,
				"updated_at":   now,
				"version":      oldVersion + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return pkgerrors.ErrOptimisticLock
		}
		return insertLog(tx, log)
	})
	if err != nil {
		return translateWriteError(err)
	}
	entry.Version = oldVersion + 1
	entry.UpdatedAt = now
	return nil
}

func (r *timetableRepo) Cancel(ctx context.Context, id, operatorID string, log *model.TimetableChangeLog) (bool, error) {
	var changed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.TimetableEntry{}).
			Where("entry_id = ? AND status = ?", id, model.StatusActive).
			Updates(map[string]interface{}{
				"status":     model.StatusCancelled,
				"updated_by": operatorID,
				"updated_at": time.Now().UTC(),
				"version":    gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		changed = true
		return insertLog(tx, log)
	})
	return changed, err
}

func (r *timetableRepo) ListActiveForResources(ctx context.Context, day model.Weekday, roomNo, teacherID string) ([]model.TimetableEntry, error) {
	var entries []model.TimetableEntry
	err := r.db.WithContext(ctx).
		Where("status = ? AND day_of_week = ?", model.StatusActive, day).
		Where(r.db.Where("room_no = ?", roomNo).Or("teacher_id = ?", teacherID)).
		Order(activeOrder).
		Find(&entries).Error
	return entries, err
}

func (r *timetableRepo) ListBySemester(ctx context.Context, semesterID string, includeCancelled bool) ([]model.TimetableEntry, error) {
	var entries []model.TimetableEntry
	query := r.preloadGrants(r.db.WithContext(ctx)).Where("semester_id = ?", semesterID)
	if !includeCancelled {
		query = query.Where("status = ?", model.StatusActive)
	}
	err := query.Order(activeOrder).Find(&entries).Error
	return entries, err
}

func (r *timetableRepo) ListByTeacher(ctx context.Context, teacherID string, day *model.Weekday) ([]model.TimetableEntry, error) {
	var entries []model.TimetableEntry
	query := r.preloadGrants(r.db.WithContext(ctx)).
		Where("teacher_id = ? AND status = ?", teacherID, model.StatusActive)
	if day != nil {
		query = query.Where("day_of_week = ?", *day)
	}
	err := query.Order(activeOrder).Find(&entries).Error
	return entries, err
}

func (r *timetableRepo) ListBySubject(ctx context.Context, subjectID string) ([]model.TimetableEntry, error) {
	var entries []model.TimetableEntry
	err := r.preloadGrants(r.db.WithContext(ctx)).
		Where("subject_id = ? AND status = ?", subjectID, model.StatusActive).
		Order(activeOrder).
		Find(&entries).Error
	return entries, err
}

func (r *timetableRepo) List(ctx context.Context, filter TimetableFilter, offset, limit int) ([]model.TimetableEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.TimetableEntry{})
	if filter.SemesterID != "" {
		query = query.Where("semester_id = ?", filter.SemesterID)
	}
	if filter.BranchID != "" {
		query = query.Where("branch_id = ?", filter.BranchID)
	}
	if filter.DayOfWeek != nil {
		query = query.Where("day_of_week = ?", *filter.DayOfWeek)
	}
	if !filter.IncludeCancelled {
		query = query.Where("status = ?", model.StatusActive)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []model.TimetableEntry
	err := r.preloadGrants(query).
		Order(activeOrder).
		Offset(offset).Limit(limit).
		Find(&entries).Error
	return entries, total, err
}

// ── 编辑授权 ──

func (r *timetableRepo) AddGrant(ctx context.Context, grant *model.TimetableGrant, log *model.TimetableChangeLog) (bool, error) {
	var inserted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(grant)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		inserted = true
		return insertLog(tx, log)
	})
	return inserted, err
}

func (r *timetableRepo) DeleteGrant(ctx context.Context, entryID, userID string, log *model.TimetableChangeLog) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("entry_id = ? AND user_id = ?", entryID, userID).
			Delete(&model.TimetableGrant{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return insertLog(tx, log)
	})
	return deleted, err
}

func (r *timetableRepo) GetGrant(ctx context.Context, entryID, userID string) (*model.TimetableGrant, error) {
	var grant model.TimetableGrant
	err := r.db.WithContext(ctx).
		Where("entry_id = ? AND user_id = ?", entryID, userID).
		First(&grant).Error
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

// ── 变更日志 ──

func (r *timetableRepo) ListChangeLogs(ctx context.Context, entryID string, offset, limit int) ([]model.TimetableChangeLog, int64, error) {
	var logs []model.TimetableChangeLog
	var total int64

	query := r.db.WithContext(ctx).Model(&model.TimetableChangeLog{}).Where("entry_id = ?", entryID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&logs).Error
	return logs, total, err
}
