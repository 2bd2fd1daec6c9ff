package service

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"academic-portal/backend/internal/model"
	"academic-portal/backend/internal/repository"
	"academic-portal/backend/internal/scheduling"
	pkgerrors "academic-portal/backend/pkg/errors"
)

// ── Mock TimetableRepository ──
//
// 并发安全的内存实现。checkDelay 用于放大 "检测 → 写入" 之间的竞态窗口；
// exclusion=true 时模拟数据库排他约束。

type mockTimetableRepo struct {
	mu         sync.Mutex
	entries    map[string]*model.TimetableEntry
	grants     map[string][]model.TimetableGrant
	logs       []model.TimetableChangeLog
	checkDelay time.Duration
	exclusion  bool
	failWrites error
	slotTaken  int // 接下来 n 次写入直接返回 ErrSlotTaken
}

func newMockTimetableRepo() *mockTimetableRepo {
	return &mockTimetableRepo{
		entries: make(map[string]*model.TimetableEntry),
		grants:  make(map[string][]model.TimetableGrant),
	}
}

func (m *mockTimetableRepo) clone(e *model.TimetableEntry) *model.TimetableEntry {
	c := *e
	c.Grants = append([]model.TimetableGrant(nil), m.grants[e.EntryID]...)
	return &c
}

func (m *mockTimetableRepo) violatesExclusion(e *model.TimetableEntry) bool {
	for _, other := range m.entries {
		if other.EntryID == e.EntryID || !other.IsActive() || other.DayOfWeek != e.DayOfWeek {
			continue
		}
		if !scheduling.Overlaps(other.StartTime, other.EndTime, e.StartTime, e.EndTime) {
			continue
		}
		if other.RoomNo == e.RoomNo || other.TeacherID == e.TeacherID {
			return true
		}
	}
	return false
}

func (m *mockTimetableRepo) writeGuard(e *model.TimetableEntry) error {
	if m.failWrites != nil {
		return m.failWrites
	}
	if m.slotTaken > 0 {
		m.slotTaken--
		return pkgerrors.ErrSlotTaken
	}
	if m.exclusion && m.violatesExclusion(e) {
		return pkgerrors.ErrSlotTaken
	}
	return nil
}

func (m *mockTimetableRepo) Create(_ context.Context, entry *model.TimetableEntry, log *model.TimetableChangeLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeGuard(entry); err != nil {
		return err
	}
	now := time.Now().UTC()
	entry.CreatedAt, entry.UpdatedAt = now, now
	c := *entry
	c.Grants = nil
	m.entries[entry.EntryID] = &c
	if log != nil {
		m.logs = append(m.logs, *log)
	}
	return nil
}

func (m *mockTimetableRepo) GetByID(_ context.Context, id string) (*model.TimetableEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return m.clone(e), nil
}

func (m *mockTimetableRepo) Update(_ context.Context, entry *model.TimetableEntry, log *model.TimetableChangeLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.entries[entry.EntryID]
	if !ok || cur.Version != entry.Version || !cur.IsActive() {
		return pkgerrors.ErrOptimisticLock
	}
	if err := m.writeGuard(entry); err != nil {
		return err
	}
	entry.Version++
	entry.UpdatedAt = time.Now().UTC()
	c := *entry
	c.Grants = nil
	m.entries[entry.EntryID] = &c
	if log != nil {
		m.logs = append(m.logs, *log)
	}
	return nil
}

func (m *mockTimetableRepo) Cancel(_ context.Context, id, operatorID string, log *model.TimetableChangeLog) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return false, m.failWrites
	}
	cur, ok := m.entries[id]
	if !ok || !cur.IsActive() {
		return false, nil
	}
	cur.Status = model.StatusCancelled
	cur.UpdatedBy = &operatorID
	cur.Version++
	if log != nil {
		m.logs = append(m.logs, *log)
	}
	return true, nil
}

func (m *mockTimetableRepo) ListActiveForResources(_ context.Context, day model.Weekday, roomNo, teacherID string) ([]model.TimetableEntry, error) {
	m.mu.Lock()
	var result []model.TimetableEntry
	for _, e := range m.entries {
		if e.IsActive() && e.DayOfWeek == day && (e.RoomNo == roomNo || e.TeacherID == teacherID) {
			result = append(result, *m.clone(e))
		}
	}
	m.mu.Unlock()

	if m.checkDelay > 0 {
		time.Sleep(m.checkDelay)
	}
	return result, nil
}

func (m *mockTimetableRepo) list(match func(e *model.TimetableEntry) bool) []model.TimetableEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.TimetableEntry
	for _, e := range m.entries {
		if match(e) {
			result = append(result, *m.clone(e))
		}
	}
	return result
}

func (m *mockTimetableRepo) ListBySemester(_ context.Context, semesterID string, includeCancelled bool) ([]model.TimetableEntry, error) {
	return m.list(func(e *model.TimetableEntry) bool {
		return e.SemesterID == semesterID && (includeCancelled || e.IsActive())
	}), nil
}

func (m *mockTimetableRepo) ListByTeacher(_ context.Context, teacherID string, day *model.Weekday) ([]model.TimetableEntry, error) {
	return m.list(func(e *model.TimetableEntry) bool {
		return e.TeacherID == teacherID && e.IsActive() && (day == nil || e.DayOfWeek == *day)
	}), nil
}

func (m *mockTimetableRepo) ListBySubject(_ context.Context, subjectID string) ([]model.TimetableEntry, error) {
	return m.list(func(e *model.TimetableEntry) bool {
		return e.SubjectID == subjectID && e.IsActive()
	}), nil
}

func (m *mockTimetableRepo) List(_ context.Context, f repository.TimetableFilter, offset, limit int) ([]model.TimetableEntry, int64, error) {
	all := m.list(func(e *model.TimetableEntry) bool {
		if f.SemesterID != "" && e.SemesterID != f.SemesterID {
			return false
		}
		if f.BranchID != "" && e.BranchID != f.BranchID {
			return false
		}
		if f.DayOfWeek != nil && e.DayOfWeek != *f.DayOfWeek {
			return false
		}
		return f.IncludeCancelled || e.IsActive()
	})
	sortEntries(all)
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockTimetableRepo) AddGrant(_ context.Context, grant *model.TimetableGrant, log *model.TimetableChangeLog) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return false, m.failWrites
	}
	for _, g := range m.grants[grant.EntryID] {
		if g.UserID == grant.UserID {
			return false, nil
		}
	}
	m.grants[grant.EntryID] = append(m.grants[grant.EntryID], *grant)
	if log != nil {
		m.logs = append(m.logs, *log)
	}
	return true, nil
}

func (m *mockTimetableRepo) DeleteGrant(_ context.Context, entryID, userID string, log *model.TimetableChangeLog) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.grants[entryID]
	for i, g := range list {
		if g.UserID == userID {
			m.grants[entryID] = append(list[:i:i], list[i+1:]...)
			if log != nil {
				m.logs = append(m.logs, *log)
			}
			return true, nil
		}
	}
	return false, nil
}

func (m *mockTimetableRepo) GetGrant(_ context.Context, entryID, userID string) (*model.TimetableGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.grants[entryID] {
		if g.UserID == userID {
			g := g
			return &g, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockTimetableRepo) ListChangeLogs(_ context.Context, entryID string, offset, limit int) ([]model.TimetableChangeLog, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.TimetableChangeLog
	for i := len(m.logs) - 1; i >= 0; i-- {
		if m.logs[i].EntryID == entryID {
			result = append(result, m.logs[i])
		}
	}
	total := int64(len(result))
	if offset >= len(result) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], total, nil
}

func (m *mockTimetableRepo) logCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

func (m *mockTimetableRepo) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.IsActive() {
			n++
		}
	}
	return n
}

// ── Mock CatalogRepository ──

type mockCatalogRepo struct {
	semesters   map[string]*model.Semester
	branches    map[string]*model.Branch
	subjects    map[string]*model.Subject
	users       map[string]*model.User
	assignments map[string][]model.TeacherAssignment
}

func newMockCatalogRepo() *mockCatalogRepo {
	return &mockCatalogRepo{
		semesters:   make(map[string]*model.Semester),
		branches:    make(map[string]*model.Branch),
		subjects:    make(map[string]*model.Subject),
		users:       make(map[string]*model.User),
		assignments: make(map[string][]model.TeacherAssignment),
	}
}

func (m *mockCatalogRepo) GetSemester(_ context.Context, id string) (*model.Semester, error) {
	if s, ok := m.semesters[id]; ok {
		return s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCatalogRepo) GetBranch(_ context.Context, id string) (*model.Branch, error) {
	if b, ok := m.branches[id]; ok {
		return b, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCatalogRepo) GetSubject(_ context.Context, id string) (*model.Subject, error) {
	if s, ok := m.subjects[id]; ok {
		return s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCatalogRepo) GetUser(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCatalogRepo) ListAssignments(_ context.Context, userID string) ([]model.TeacherAssignment, error) {
	return m.assignments[userID], nil
}

func (m *mockCatalogRepo) ListSubjectsByIDs(_ context.Context, ids []string) ([]model.Subject, error) {
	var result []model.Subject
	for _, id := range ids {
		if s, ok := m.subjects[id]; ok {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (m *mockCatalogRepo) ListUsersByIDs(_ context.Context, ids []string) ([]model.User, error) {
	var result []model.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			result = append(result, *u)
		}
	}
	return result, nil
}

// ── Fixture ──

const (
	testSemester = "sem-2024"
	testBranch   = "cse"
	otherBranch  = "ece"
	adminID      = "admin-1"
	hodID        = "hod-1"
	teacherX     = "teacher-x"
	teacherY     = "teacher-y"
	teacherZ     = "teacher-z"
	teacherW     = "teacher-w"
	studentID    = "student-1"
)

// newTestCatalog 学期 + 两个 branch + CS101~CS103 + 各角色用户
func newTestCatalog() *mockCatalogRepo {
	c := newMockCatalogRepo()
	c.semesters[testSemester] = &model.Semester{SemesterID: testSemester, Name: "2024 秋季", IsActive: true}
	c.branches[testBranch] = &model.Branch{BranchID: testBranch, Code: "CSE", Name: "计算机"}
	c.branches[otherBranch] = &model.Branch{BranchID: otherBranch, Code: "ECE", Name: "电子"}
	for _, code := range []string{"CS101", "CS102", "CS103"} {
		c.subjects[code] = &model.Subject{SubjectID: code, BranchID: testBranch, SemesterID: testSemester, Code: code, Name: "课程" + code}
	}
	c.subjects["EC101"] = &model.Subject{SubjectID: "EC101", BranchID: otherBranch, SemesterID: testSemester, Code: "EC101", Name: "电路"}

	c.users[adminID] = &model.User{UserID: adminID, Name: "管理员", Role: model.RoleAdmin}
	c.users[hodID] = &model.User{UserID: hodID, Name: "系主任", Role: model.RoleHod}
	for _, id := range []string{teacherX, teacherY, teacherZ, teacherW} {
		c.users[id] = &model.User{UserID: id, Name: "教师 " + id, Role: model.RoleTeacher}
	}
	c.users[studentID] = &model.User{UserID: studentID, Name: "学生", Role: model.RoleStudent}

	cs101, cs102 := "CS101", "CS102"
	c.assignments[teacherX] = []model.TeacherAssignment{{UserID: teacherX, BranchID: testBranch, SubjectID: &cs101}}
	c.assignments[teacherY] = []model.TeacherAssignment{{UserID: teacherY, BranchID: testBranch, SubjectID: &cs102}}
	c.assignments[hodID] = []model.TeacherAssignment{{UserID: hodID, BranchID: testBranch}}
	return c
}

func newTestRepo() (*repository.Repository, *mockTimetableRepo, *mockCatalogRepo) {
	tt := newMockTimetableRepo()
	cat := newTestCatalog()
	return &repository.Repository{Timetable: tt, Catalog: cat}, tt, cat
}

var (
	asAdmin   = scheduling.Requester{ID: adminID, Role: model.RoleAdmin}
	asHod     = scheduling.Requester{ID: hodID, Role: model.RoleHod}
	asTeacher = func(id string) scheduling.Requester { return scheduling.Requester{ID: id, Role: model.RoleTeacher} }
	asStudent = scheduling.Requester{ID: studentID, Role: model.RoleStudent}
)
