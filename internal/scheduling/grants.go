package scheduling

import (
	"context"
	"time"

	"academic-portal/backend/internal/model"
)

// GrantStore 授权记录的持久化接口，由 repository 层实现
type GrantStore interface {
	// AddGrant 插入授权并写入变更日志；主键冲突时不做任何修改并返回 false
	AddGrant(ctx context.Context, grant *model.TimetableGrant, log *model.TimetableChangeLog) (bool, error)
	// DeleteGrant 删除授权并写入变更日志；记录不存在时返回 false
	DeleteGrant(ctx context.Context, entryID, userID string, log *model.TimetableChangeLog) (bool, error)
	// GetGrant 查询单条授权
	GetGrant(ctx context.Context, entryID, userID string) (*model.TimetableGrant, error)
}

// AccessGrantManager 维护排课上的编辑授权列表
// 只负责机制，调用前的权限判断由 Gate 完成
type AccessGrantManager struct {
	store GrantStore
	now   func() time.Time
}

// NewAccessGrantManager 创建授权管理器
func NewAccessGrantManager(store GrantStore) *AccessGrantManager {
	return &AccessGrantManager{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Grant 授予用户编辑权限
// 已存在时原样返回旧记录（不刷新 granted_at），created 为 false
func (m *AccessGrantManager) Grant(ctx context.Context, entry *model.TimetableEntry, userID string, role model.Role, by Requester) (*model.TimetableGrant, bool, error) {
	if userID == "" {
		return nil, false, Invalid("user_id", "不能为空")
	}
	if role != model.RoleTeacher && role != model.RoleHod {
		return nil, false, Invalid("role", "只能授权给 teacher 或 hod")
	}
	if g := entry.FindGrant(userID); g != nil {
		return g, false, nil
	}

	grant := model.TimetableGrant{
		EntryID:   entry.EntryID,
		UserID:    userID,
		Role:      role,
		GrantedAt: m.now(),
		GrantedBy: by.ID,
	}
	log := changeLog(entry.EntryID, model.ActionGrant, by, map[string]interface{}{
		"user_id": userID,
		"role":    string(role),
	})
	inserted, err := m.store.AddGrant(ctx, &grant, log)
	if err != nil {
		return nil, false, Internal("grant", err)
	}
	if !inserted {
		// 并发授权已写入，以库中记录为准
		existing, err := m.store.GetGrant(ctx, entry.EntryID, userID)
		if err != nil {
			return nil, false, Internal("grant", err)
		}
		entry.Grants = append(entry.Grants, *existing)
		return existing, false, nil
	}
	entry.Grants = append(entry.Grants, grant)
	return &grant, true, nil
}

// Revoke 撤销用户编辑权限；不存在时返回 NotFoundError 且不修改排课
func (m *AccessGrantManager) Revoke(ctx context.Context, entry *model.TimetableEntry, userID string, by Requester) error {
	if entry.FindGrant(userID) == nil {
		return &NotFoundError{What: NotFoundGrant, ID: userID}
	}
	log := changeLog(entry.EntryID, model.ActionRevoke, by, map[string]interface{}{"user_id": userID})
	deleted, err := m.store.DeleteGrant(ctx, entry.EntryID, userID, log)
	if err != nil {
		return Internal("revoke", err)
	}
	if !deleted {
		return &NotFoundError{What: NotFoundGrant, ID: userID}
	}
	kept := entry.Grants[:0]
	for _, g := range entry.Grants {
		if g.UserID != userID {
			kept = append(kept, g)
		}
	}
	entry.Grants = kept
	return nil
}

// changeLog 构造一条变更日志
func changeLog(entryID, action string, by Requester, changes map[string]interface{}) *model.TimetableChangeLog {
	return &model.TimetableChangeLog{
		EntryID:      entryID,
		Action:       action,
		OperatorID:   by.ID,
		OperatorRole: by.Role,
		Changes:      changes,
	}
}
