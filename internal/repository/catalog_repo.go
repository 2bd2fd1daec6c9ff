package repository

import (
	"context"

	"gorm.io/gorm"

	"academic-portal/backend/internal/model"
)

// CatalogRepository 学术目录只读访问接口
// 未找到时返回 gorm.ErrRecordNotFound
type CatalogRepository interface {
	GetSemester(ctx context.Context, id string) (*model.Semester, error)
	GetBranch(ctx context.Context, id string) (*model.Branch, error)
	GetSubject(ctx context.Context, id string) (*model.Subject, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	// ListAssignments 教师/系主任的授课分配，用于构建排课范围
	ListAssignments(ctx context.Context, userID string) ([]model.TeacherAssignment, error)
	ListSubjectsByIDs(ctx context.Context, ids []string) ([]model.Subject, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]model.User, error)
}

// ── Catalog Repository 实现 ──

type catalogRepo struct {
	db *gorm.DB
}

func NewCatalogRepo(db *gorm.DB) CatalogRepository {
	return &catalogRepo{db: db}
}

func (r *catalogRepo) GetSemester(ctx context.Context, id string) (*model.Semester, error) {
	var semester model.Semester
	if err := r.db.WithContext(ctx).Where("semester_id = ?", id).First(&semester).Error; err != nil {
		return nil, err
	}
	return &semester, nil
}

func (r *catalogRepo) GetBranch(ctx context.Context, id string) (*model.Branch, error) {
	var branch model.Branch
	if err := r.db.WithContext(ctx).Where("branch_id = ?", id).First(&branch).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

func (r *catalogRepo) GetSubject(ctx context.Context, id string) (*model.Subject, error) {
	var subject model.Subject
	if err := r.db.WithContext(ctx).Where("subject_id = ?", id).First(&subject).Error; err != nil {
		return nil, err
	}
	return &subject, nil
}

func (r *catalogRepo) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("user_id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *catalogRepo) ListAssignments(ctx context.Context, userID string) ([]model.TeacherAssignment, error) {
	var assignments []model.TeacherAssignment
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&assignments).Error
	return assignments, err
}

func (r *catalogRepo) ListSubjectsByIDs(ctx context.Context, ids []string) ([]model.Subject, error) {
	var subjects []model.Subject
	if len(ids) == 0 {
		return subjects, nil
	}
	err := r.db.WithContext(ctx).Where("subject_id IN ?", ids).Find(&subjects).Error
	return subjects, err
}

func (r *catalogRepo) ListUsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	var users []model.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("user_id IN ?", ids).Find(&users).Error
	return users, err
}
