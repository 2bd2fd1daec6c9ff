package scheduling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"academic-portal/backend/internal/model"
)

func TestGate_CanMutate(t *testing.T) {
	g := NewGate()
	e := &model.TimetableEntry{
		EntryID:   "a",
		TeacherID: "tx",
		Grants: []model.TimetableGrant{
			{EntryID: "a", UserID: "tz", Role: model.RoleTeacher},
			{EntryID: "a", UserID: "hod1", Role: model.RoleHod},
		},
	}

	tests := []struct {
		name string
		req  Requester
		want bool
	}{
		{"admin 总是允许", Requester{ID: "adm", Role: model.RoleAdmin}, true},
		{"任课教师", Requester{ID: "tx", Role: model.RoleTeacher}, true},
		{"被授权教师", Requester{ID: "tz", Role: model.RoleTeacher}, true},
		{"被授权系主任", Requester{ID: "hod1", Role: model.RoleHod}, true},
		{"未授权教师", Requester{ID: "tw", Role: model.RoleTeacher}, false},
		{"未授权系主任", Requester{ID: "hod2", Role: model.RoleHod}, false},
		{"学生即使 ID 匹配也拒绝", Requester{ID: "tx", Role: model.RoleStudent}, false},
		{"未知角色", Requester{ID: "tx", Role: model.Role("guest")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.CanMutate(e, tt.req))
		})
	}
}

func TestGate_CanManageGrants_NoTransitiveDelegation(t *testing.T) {
	g := NewGate()
	e := &model.TimetableEntry{
		TeacherID: "tx",
		Grants:    []model.TimetableGrant{{UserID: "tz", Role: model.RoleTeacher}},
	}

	assert.True(t, g.CanManageGrants(e, Requester{ID: "adm", Role: model.RoleAdmin}))
	assert.False(t, g.CanManageGrants(e, Requester{ID: "tx", Role: model.RoleTeacher}))
	assert.False(t, g.CanManageGrants(e, Requester{ID: "tz", Role: model.RoleTeacher}))
	assert.False(t, g.CanManageGrants(e, Requester{ID: "h", Role: model.RoleHod}))
}

func TestGate_CanChangeIdentity(t *testing.T) {
	g := NewGate()
	assert.True(t, g.CanChangeIdentity(Requester{ID: "adm", Role: model.RoleAdmin}))
	assert.False(t, g.CanChangeIdentity(Requester{ID: "h", Role: model.RoleHod}))
	assert.False(t, g.CanChangeIdentity(Requester{ID: "t", Role: model.RoleTeacher}))
}

func TestGate_CanCreate(t *testing.T) {
	g := NewGate()
	cs101 := "cs101"
	scope := model.NewScope([]model.TeacherAssignment{
		{UserID: "tx", BranchID: "cse", SubjectID: &cs101},
	})
	hodScope := model.NewScope([]model.TeacherAssignment{
		{UserID: "h", BranchID: "cse"},
	})

	e := &model.TimetableEntry{BranchID: "cse", SubjectID: "cs101", TeacherID: "tx"}

	assert.NoError(t, g.CanCreate(Requester{ID: "adm", Role: model.RoleAdmin}, model.Scope{}, e))
	assert.NoError(t, g.CanCreate(Requester{ID: "tx", Role: model.RoleTeacher}, scope, e))
	assert.NoError(t, g.CanCreate(Requester{ID: "h", Role: model.RoleHod}, hodScope, e))

	var ae *AuthorizationError

	// 教师不能为他人排课
	other := *e
	other.TeacherID = "ty"
	require.ErrorAs(t, g.CanCreate(Requester{ID: "tx", Role: model.RoleTeacher}, scope, &other), &ae)

	// 课程不在授课范围
	outside := *e
	outside.SubjectID = "cs999"
	require.ErrorAs(t, g.CanCreate(Requester{ID: "tx", Role: model.RoleTeacher}, scope, &outside), &ae)

	// 系主任只能在所辖 branch 内
	ece := *e
	ece.BranchID = "ece"
	require.ErrorAs(t, g.CanCreate(Requester{ID: "h", Role: model.RoleHod}, hodScope, &ece), &ae)

	require.ErrorAs(t, g.CanCreate(Requester{ID: "s", Role: model.RoleStudent}, scope, e), &ae)
}
