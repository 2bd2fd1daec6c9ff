package scheduling

import "academic-portal/backend/internal/model"

// ── 权限判定 ──────────────────────────────────────────────
//
// 所有角色相关的判断集中在 capabilities 表中，Handler 与 Service
// 不再直接比较角色字符串。
// ─────────────────────────────────────────────────────────────

// capability 单个角色的能力集合
type capability struct {
	mutateAny      bool // 可修改任意排课
	mutateAssigned bool // 可修改自己任课的排课
	mutateGranted  bool // 被授权后可修改
	manageGrants   bool
	changeIdentity bool // 可重新分配课程/教师
	createAny      bool
	createSubject  bool // 在授课课程范围内创建，且教师必须为本人
	createBranch   bool // 在所辖 branch 范围内创建
}

var capabilities = map[model.Role]capability{
	model.RoleAdmin: {
		mutateAny: true, manageGrants: true, changeIdentity: true, createAny: true,
	},
	model.RoleHod: {
		mutateAssigned: true, mutateGranted: true, createBranch: true,
	},
	model.RoleTeacher: {
		mutateAssigned: true, mutateGranted: true, createSubject: true,
	},
	model.RoleStudent: {},
}

// Gate 排课权限网关，无状态
type Gate struct{}

// NewGate 创建权限网关
func NewGate() *Gate { return &Gate{} }

func capOf(r Requester) capability { return capabilities[r.Role] }

// CanMutate 是否可修改或取消排课
func (g *Gate) CanMutate(entry *model.TimetableEntry, r Requester) bool {
	c := capOf(r)
	switch {
	case c.mutateAny:
		return true
	case c.mutateAssigned && r.ID != "" && r.ID == entry.TeacherID:
		return true
	case c.mutateGranted && r.ID != "" && entry.FindGrant(r.ID) != nil:
		return true
	}
	return false
}

// CanManageGrants 是否可授予或撤销编辑授权；被授权者不能继续转授
func (g *Gate) CanManageGrants(_ *model.TimetableEntry, r Requester) bool {
	return capOf(r).manageGrants
}

// CanChangeIdentity 是否可修改 subject_id / teacher_id
func (g *Gate) CanChangeIdentity(r Requester) bool {
	return capOf(r).changeIdentity
}

// CanCreate 是否可在给定范围内创建排课
func (g *Gate) CanCreate(r Requester, scope model.Scope, entry *model.TimetableEntry) error {
	c := capOf(r)
	switch {
	case c.createAny:
		return nil
	case c.createBranch:
		if scope.CoversBranch(entry.BranchID) {
			return nil
		}
		return Forbidden("create", "branch 不在管辖范围内")
	case c.createSubject:
		if entry.TeacherID != r.ID {
			return Forbidden("create", "教师只能为自己排课")
		}
		if scope.CoversSubject(entry.BranchID, entry.SubjectID) {
			return nil
		}
		return Forbidden("create", "课程不在授课范围内")
	}
	return Forbidden("create", "角色无排课权限")
}
