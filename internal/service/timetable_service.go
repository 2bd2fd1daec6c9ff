package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"academic-portal/backend/internal/dto"
	"academic-portal/backend/internal/model"
	"academic-portal/backend/internal/repository"
	"academic-portal/backend/internal/scheduling"
	pkgerrors "academic-portal/backend/pkg/errors"
)

// ── TimetableService 接口 ──────────────────────────────────
//
// 设计说明：
//   - 写操作统一流程：校验 → 鉴权 → 加锁 → 冲突检测 → 持久化，
//     任一步失败都不产生任何写入。
//   - 创建与改期在 (星期, 房间) 与 (星期, 教师) 两把锁内完成检测与写入；
//     数据库排他约束作为兜底，触发时重新检测，最多 writeAttempts 次。
//   - 取消与授权是单语句原子更新，不需要时段锁。
//   - 所有写入与变更日志在同一事务中提交。
// ─────────────────────────────────────────────────────────────

// TimetableService 排课写操作接口
type TimetableService interface {
	// Create 创建排课，成功即为 active
	Create(ctx context.Context, req *dto.CreateTimetableRequest, requester scheduling.Requester) (*dto.TimetableEntryResponse, error)
	// Update 修改排课的可变字段
	Update(ctx context.Context, id string, req *dto.UpdateTimetableRequest, requester scheduling.Requester) (*dto.TimetableEntryResponse, error)
	// Cancel 取消排课（软删除，终态）
	Cancel(ctx context.Context, id string, requester scheduling.Requester) (*dto.TimetableEntryResponse, error)
	// GrantAccess 授予用户对单个排课的编辑权限
	GrantAccess(ctx context.Context, id string, req *dto.GrantPermissionRequest, requester scheduling.Requester) (*dto.GrantResponse, error)
	// RevokeAccess 撤销用户对单个排课的编辑权限
	RevokeAccess(ctx context.Context, id string, req *dto.RevokePermissionRequest, requester scheduling.Requester) error
}

type timetableService struct {
	repo          *repository.Repository
	gate          *scheduling.Gate
	grants        *scheduling.AccessGrantManager
	locker        scheduling.Locker
	writeAttempts int
	logger        *zap.Logger
	newID         func() string
}

// NewTimetableService 创建 TimetableService 实例
func NewTimetableService(repo *repository.Repository, locker scheduling.Locker, writeAttempts int, logger *zap.Logger) TimetableService {
	if writeAttempts <= 0 {
		writeAttempts = 1
	}
	return &timetableService{
		repo:          repo,
		gate:          scheduling.NewGate(),
		grants:        scheduling.NewAccessGrantManager(repo.Timetable),
		locker:        locker,
		writeAttempts: writeAttempts,
		logger:        logger,
		newID:         func() string { return uuid.New().String() },
	}
}

// ════════════════════════════════════════════════════════════
// Create：创建排课
// ════════════════════════════════════════════════════════════

func (s *timetableService) Create(ctx context.Context, req *dto.CreateTimetableRequest, requester scheduling.Requester) (*dto.TimetableEntryResponse, error) {
	// 1. 字段校验
	day, err := scheduling.ParseDay("day_of_week", req.DayOfWeek)
	if err != nil {
		return nil, err
	}
	lt, err := scheduling.ParseLecture(req.LectureType)
	if err != nil {
		return nil, err
	}
	entry := &model.TimetableEntry{
		EntryID:     s.newID(),
		SemesterID:  strings.TrimSpace(req.SemesterID),
		BranchID:    strings.TrimSpace(req.BranchID),
		SubjectID:   strings.TrimSpace(req.SubjectID),
		TeacherID:   strings.TrimSpace(req.TeacherID),
		RoomNo:      scheduling.RoomKey(req.RoomNo),
		DayOfWeek:   day,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		LectureType: lt,
		Notes:       req.Notes,
		Status:      model.StatusActive,
	}
	entry.Version = 1
	entry.CreatedBy = &requester.ID
	entry.UpdatedBy = &requester.ID
	if err := scheduling.ValidateEntry(entry); err != nil {
		return nil, err
	}

	// 2. 鉴权：教师/系主任只能在自己的授课范围内排课
	if err := s.authorizeCreate(ctx, requester, entry); err != nil {
		return nil, err
	}

	// 3. 目录存在性
	if err := s.verifyCatalog(ctx, entry, true); err != nil {
		return nil, err
	}

	// 4. 加锁 → 冲突检测 → 持久化
	err = s.book(ctx, entry, "", func() error {
		return s.repo.Timetable.Create(ctx, entry, s.changeLog(entry.EntryID, model.ActionCreate, requester, snapshot(entry)))
	})
	if err != nil {
		return nil, s.wrapWrite("create", entry.EntryID, err)
	}

	s.logger.Info("排课已创建",
		zap.String("id", entry.EntryID),
		zap.String("requester", requester.ID),
		zap.String("day", entry.DayOfWeek.String()),
		zap.String("room", entry.RoomNo),
		zap.String("teacher", entry.TeacherID),
	)
	resp := toEntryResponse(entry)
	return &resp, nil
}

func (s *timetableService) authorizeCreate(ctx context.Context, requester scheduling.Requester, entry *model.TimetableEntry) error {
	var scope model.Scope
	if !requester.IsAdmin() {
		assignments, err := s.repo.Catalog.ListAssignments(ctx, requester.ID)
		if err != nil {
			s.logger.Error("查询授课范围失败", zap.String("user", requester.ID), zap.Error(err))
			return scheduling.Internal("scope", err)
		}
		scope = model.NewScope(assignments)
	}
	return s.gate.CanCreate(requester, scope, entry)
}

// verifyCatalog 校验目录引用存在；full=false 时只校验课程与教师（身份字段变更）
func (s *timetableService) verifyCatalog(ctx context.Context, entry *model.TimetableEntry, full bool) error {
	if full {
		if _, err := s.repo.Catalog.GetSemester(ctx, entry.SemesterID); err != nil {
			return s.catalogErr(err, scheduling.NotFoundSemester, entry.SemesterID)
		}
		if _, err := s.repo.Catalog.GetBranch(ctx, entry.BranchID); err != nil {
			return s.catalogErr(err, scheduling.NotFoundBranch, entry.BranchID)
		}
	}

	subject, err := s.repo.Catalog.GetSubject(ctx, entry.SubjectID)
	if err != nil {
		return s.catalogErr(err, scheduling.NotFoundSubject, entry.SubjectID)
	}
	if subject.BranchID != entry.BranchID {
		return scheduling.Invalid("subject_id", "课程不属于该 branch")
	}

	teacher, err := s.repo.Catalog.GetUser(ctx, entry.TeacherID)
	if err != nil {
		return s.catalogErr(err, scheduling.NotFoundUser, entry.TeacherID)
	}
	if teacher.Role != model.RoleTeacher && teacher.Role != model.RoleHod {
		return scheduling.Invalid("teacher_id", "指定的用户不是教师")
	}
	return nil
}

func (s *timetableService) catalogErr(err error, what scheduling.NotFoundKind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &scheduling.NotFoundError{What: what, ID: id}
	}
	s.logger.Error("查询学术目录失败", zap.String("kind", string(what)), zap.String("id", id), zap.Error(err))
	return scheduling.Internal("catalog", err)
}

// ════════════════════════════════════════════════════════════
// Update：修改排课
// ════════════════════════════════════════════════════════════
//
// 流程：
//   1. 加载排课并鉴权（canMutate），身份字段变更需管理员
//   2. 合并字段后重新校验
//   3. 时段或资源变化时，在目标资源键的锁内排除自身重新检测冲突
//   4. 基于 version 的乐观锁写入

func (s *timetableService) Update(ctx context.Context, id string, req *dto.UpdateTimetableRequest, requester scheduling.Requester) (*dto.TimetableEntryResponse, error) {
	current, err := s.loadEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanMutate(current, requester) {
		return nil, scheduling.Forbidden("update", "非任课教师且未被授权")
	}

	identityChanged := (req.SubjectID != nil && strings.TrimSpace(*req.SubjectID) != current.SubjectID) ||
		(req.TeacherID != nil && strings.TrimSpace(*req.TeacherID) != current.TeacherID)
	if identityChanged && !s.gate.CanChangeIdentity(requester) {
		return nil, scheduling.Forbidden("update", "仅管理员可修改课程或任课教师")
	}
	if !current.IsActive() {
		return nil, scheduling.Invalid("status", "已取消的排课不可修改")
	}
	if req.Version != nil && *req.Version != current.Version {
		return nil, &scheduling.ConflictError{Stale: true}
	}

	next, err := mergeUpdate(current, req)
	if err != nil {
		return nil, err
	}
	if err := scheduling.ValidateEntry(next); err != nil {
		return nil, err
	}
	if identityChanged {
		if err := s.verifyCatalog(ctx, next, false); err != nil {
			return nil, err
		}
	}

	changes := diff(current, next)
	if len(changes) == 0 {
		resp := toEntryResponse(current)
		return &resp, nil
	}
	next.UpdatedBy = &requester.ID
	log := s.changeLog(next.EntryID, model.ActionUpdate, requester, changes)

	persist := func() error { return s.repo.Timetable.Update(ctx, next, log) }
	if slotChanged(current, next) {
		err = s.book(ctx, next, next.EntryID, persist)
	} else {
		err = persist()
	}
	if err != nil {
		return nil, s.wrapWrite("update", id, err)
	}

	s.logger.Info("排课已修改",
		zap.String("id", id),
		zap.String("requester", requester.ID),
		zap.Strings("fields", changedFields(changes)),
	)
	resp := toEntryResponse(next)
	return &resp, nil
}

// mergeUpdate 基于当前排课合并请求字段，返回副本
func mergeUpdate(current *model.TimetableEntry, req *dto.UpdateTimetableRequest) (*model.TimetableEntry, error) {
	next := *current
	next.Grants = append([]model.TimetableGrant(nil), current.Grants...)

	if req.RoomNo != nil {
		next.RoomNo = scheduling.RoomKey(*req.RoomNo)
	}
	if req.DayOfWeek != nil {
		day, err := scheduling.ParseDay("day_of_week", *req.DayOfWeek)
		if err != nil {
			return nil, err
		}
		next.DayOfWeek = day
	}
	if req.StartTime != nil {
		next.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		next.EndTime = *req.EndTime
	}
	if req.LectureType != nil {
		lt, err := scheduling.ParseLecture(*req.LectureType)
		if err != nil {
			return nil, err
		}
		next.LectureType = lt
	}
	if req.Notes != nil {
		next.Notes = *req.Notes
	}
	if req.SubjectID != nil {
		next.SubjectID = strings.TrimSpace(*req.SubjectID)
	}
	if req.TeacherID != nil {
		next.TeacherID = strings.TrimSpace(*req.TeacherID)
	}
	return &next, nil
}

// slotChanged 是否影响冲突检测（房间、星期、时间或教师变化）
func slotChanged(a, b *model.TimetableEntry) bool {
	return a.RoomNo != b.RoomNo || a.DayOfWeek != b.DayOfWeek ||
		a.StartTime != b.StartTime || a.EndTime != b.EndTime || a.TeacherID != b.TeacherID
}

// ════════════════════════════════════════════════════════════
// Cancel：取消排课
// ════════════════════════════════════════════════════════════

func (s *timetableService) Cancel(ctx context.Context, id string, requester scheduling.Requester) (*dto.TimetableEntryResponse, error) {
	entry, err := s.loadEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanMutate(entry, requester) {
		return nil, scheduling.Forbidden("cancel", "非任课教师且未被授权")
	}

	// 已取消：幂等成功，不再记录日志
	if !entry.IsActive() {
		resp := toEntryResponse(entry)
		return &resp, nil
	}

	log := s.changeLog(id, model.ActionCancel, requester, map[string]interface{}{
		"status": map[string]interface{}{"from": string(model.StatusActive), "to": string(model.StatusCancelled)},
	})
	changed, err := s.repo.Timetable.Cancel(ctx, id, requester.ID, log)
	if err != nil {
		return nil, s.wrapWrite("cancel", id, err)
	}

	if changed {
		s.logger.Info("排课已取消", zap.String("id", id), zap.String("requester", requester.ID))
	}
	entry, err = s.loadEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toEntryResponse(entry)
	return &resp, nil
}

// ════════════════════════════════════════════════════════════
// GrantAccess / RevokeAccess：编辑授权
// ════════════════════════════════════════════════════════════

func (s *timetableService) GrantAccess(ctx context.Context, id string, req *dto.GrantPermissionRequest, requester scheduling.Requester) (*dto.GrantResponse, error) {
	entry, err := s.loadEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanManageGrants(entry, requester) {
		return nil, scheduling.Forbidden("grant", "仅管理员可授予编辑权限")
	}

	role, ok := model.ParseRole(req.Role)
	if !ok || (role != model.RoleTeacher && role != model.RoleHod) {
		return nil, scheduling.Invalid("role", "只能授权给 teacher 或 hod")
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, scheduling.Invalid("user_id", "不能为空")
	}
	user, err := s.repo.Catalog.GetUser(ctx, userID)
	if err != nil {
		return nil, s.catalogErr(err, scheduling.NotFoundUser, userID)
	}
	if user.Role != role {
		return nil, scheduling.Invalid("role", "与用户的角色不一致")
	}

	grant, created, err := s.grants.Grant(ctx, entry, userID, role, requester)
	if err != nil {
		return nil, s.wrapWrite("grant", id, err)
	}
	if created {
		s.logger.Info("已授予排课编辑权限",
			zap.String("id", id), zap.String("user", userID), zap.String("requester", requester.ID))
	}
	resp := toGrantResponse(grant)
	resp.Created = created
	return &resp, nil
}

func (s *timetableService) RevokeAccess(ctx context.Context, id string, req *dto.RevokePermissionRequest, requester scheduling.Requester) error {
	entry, err := s.loadEntry(ctx, id)
	if err != nil {
		return err
	}
	if !s.gate.CanManageGrants(entry, requester) {
		return scheduling.Forbidden("revoke", "仅管理员可撤销编辑权限")
	}

	userID := strings.TrimSpace(req.UserID)
	if err := s.grants.Revoke(ctx, entry, userID, requester); err != nil {
		return s.wrapWrite("revoke", id, err)
	}
	s.logger.Info("已撤销排课编辑权限",
		zap.String("id", id), zap.String("user", userID), zap.String("requester", requester.ID))
	return nil
}

// ── 辅助函数 ──

func (s *timetableService) loadEntry(ctx context.Context, id string) (*model.TimetableEntry, error) {
	entry, err := s.repo.Timetable.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &scheduling.NotFoundError{What: scheduling.NotFoundEntry, ID: id}
		}
		s.logger.Error("查询排课失败", zap.String("id", id), zap.Error(err))
		return nil, scheduling.Internal("load", err)
	}
	return entry, nil
}

// book 在资源锁内执行 冲突检测 → 写入
// 写入被数据库排他约束拒绝时重新检测，检测结果即为冲突原因
func (s *timetableService) book(ctx context.Context, cand *model.TimetableEntry, excludeID string, persist func() error) error {
	unlock, err := s.locker.Lock(ctx, scheduling.LockKeys(cand)...)
	if err != nil {
		return scheduling.Internal("lock", err)
	}
	defer unlock()

	for attempt := 1; attempt <= s.writeAttempts; attempt++ {
		existing, err := s.repo.Timetable.ListActiveForResources(ctx, cand.DayOfWeek, cand.RoomNo, cand.TeacherID)
		if err != nil {
			return scheduling.Internal("check", err)
		}
		if err := scheduling.NewConflictChecker(existing).Check(cand, excludeID).Err(); err != nil {
			return err
		}

		err = persist()
		if !errors.Is(err, pkgerrors.ErrSlotTaken) {
			return err
		}
		s.logger.Warn("排他约束拒绝写入，重新检测冲突",
			zap.String("id", cand.EntryID), zap.Int("attempt", attempt))
	}
	return &scheduling.ConflictError{Stale: true}
}

// wrapWrite 将存储层错误归类，已分类的错误原样返回
func (s *timetableService) wrapWrite(op, id string, err error) error {
	var (
		ve *scheduling.ValidationError
		ce *scheduling.ConflictError
		nf *scheduling.NotFoundError
		ae *scheduling.AuthorizationError
		ie *scheduling.InternalError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &ce), errors.As(err, &nf), errors.As(err, &ae):
		return err
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		return &scheduling.ConflictError{Stale: true}
	case errors.As(err, &ie):
		s.logger.Error("排课写入失败", zap.String("op", op), zap.String("id", id), zap.Error(err))
		return err
	}
	s.logger.Error("排课写入失败", zap.String("op", op), zap.String("id", id), zap.Error(err))
	return scheduling.Internal(op, err)
}

func (s *timetableService) changeLog(entryID, action string, requester scheduling.Requester, changes map[string]interface{}) *model.TimetableChangeLog {
	return &model.TimetableChangeLog{
		ChangeLogID:  s.newID(),
		EntryID:      entryID,
		Action:       action,
		OperatorID:   requester.ID,
		OperatorRole: requester.Role,
		Changes:      changes,
		CreatedAt:    time.Now().UTC(),
	}
}

// snapshot 创建时记录完整字段
func snapshot(e *model.TimetableEntry) map[string]interface{} {
	return map[string]interface{}{
		"semester_id":  e.SemesterID,
		"branch_id":    e.BranchID,
		"subject_id":   e.SubjectID,
		"teacher_id":   e.TeacherID,
		"room_no":      e.RoomNo,
		"day_of_week":  e.DayOfWeek.String(),
		"start_time":   e.StartTime,
		"end_time":     e.EndTime,
		"lecture_type": string(e.LectureType),
	}
}

// diff 返回变化字段的 {from, to}
func diff(a, b *model.TimetableEntry) map[string]interface{} {
	changes := make(map[string]interface{})
	add := func(field, from, to string) {
		if from != to {
			changes[field] = map[string]interface{}{"from": from, "to": to}
		}
	}
	add("subject_id", a.SubjectID, b.SubjectID)
	add("teacher_id", a.TeacherID, b.TeacherID)
	add("room_no", a.RoomNo, b.RoomNo)
	add("day_of_week", a.DayOfWeek.String(), b.DayOfWeek.String())
	add("start_time", a.StartTime, b.StartTime)
	add("end_time", a.EndTime, b.EndTime)
	add("lecture_type", string(a.LectureType), string(b.LectureType))
	add("notes", a.Notes, b.Notes)
	return changes
}

func changedFields(changes map[string]interface{}) []string {
	fields := make([]string, 0, len(changes))
	for k := range changes {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
