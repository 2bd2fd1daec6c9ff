package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"academic-portal/backend/internal/dto"
	"academic-portal/backend/internal/model"
	"academic-portal/backend/internal/repository"
	"academic-portal/backend/internal/scheduling"
)

// ScheduleQueryService 排课读视图，直接读取已提交数据，不加锁
type ScheduleQueryService interface {
	// BySemester 学期周视图：有效排课按 (星期, 开始时间) 排序
	BySemester(ctx context.Context, semesterID string) ([]dto.TimetableEntryResponse, error)
	// ByTeacher 我的课表，可按星期过滤
	ByTeacher(ctx context.Context, teacherID string, day *model.Weekday) ([]dto.TimetableEntryResponse, error)
	// BySubject 课程周网格：按星期分组，组内按开始时间排序
	BySubject(ctx context.Context, subjectID string) ([]dto.DayScheduleResponse, error)
	// List 管理员列表，支持筛选、分页与包含已取消
	List(ctx context.Context, req *dto.TimetableListRequest) ([]dto.TimetableEntryResponse, int64, error)
	// Get 单个排课详情（含已取消）
	Get(ctx context.Context, id string) (*dto.TimetableEntryResponse, error)
	// ChangeLogs 排课变更日志
	ChangeLogs(ctx context.Context, id string, req *dto.ChangeLogListRequest) ([]dto.ChangeLogResponse, int64, error)
}

type scheduleQueryService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewScheduleQueryService 创建 ScheduleQueryService 实例
func NewScheduleQueryService(repo *repository.Repository, logger *zap.Logger) ScheduleQueryService {
	return &scheduleQueryService{repo: repo, logger: logger}
}

func (s *scheduleQueryService) BySemester(ctx context.Context, semesterID string) ([]dto.TimetableEntryResponse, error) {
	if _, err := s.repo.Catalog.GetSemester(ctx, semesterID); err != nil {
		return nil, s.notFoundOr(err, scheduling.NotFoundSemester, semesterID)
	}
	entries, err := s.repo.Timetable.ListBySemester(ctx, semesterID, false)
	if err != nil {
		s.logger.Error("查询学期排课失败", zap.String("semester", semesterID), zap.Error(err))
		return nil, scheduling.Internal("by_semester", err)
	}
	return toEntryResponses(activeSorted(entries)), nil
}

func (s *scheduleQueryService) ByTeacher(ctx context.Context, teacherID string, day *model.Weekday) ([]dto.TimetableEntryResponse, error) {
	entries, err := s.repo.Timetable.ListByTeacher(ctx, teacherID, day)
	if err != nil {
		s.logger.Error("查询教师课表失败", zap.String("teacher", teacherID), zap.Error(err))
		return nil, scheduling.Internal("by_teacher", err)
	}
	return toEntryResponses(activeSorted(entries)), nil
}

func (s *scheduleQueryService) BySubject(ctx context.Context, subjectID string) ([]dto.DayScheduleResponse, error) {
	if _, err := s.repo.Catalog.GetSubject(ctx, subjectID); err != nil {
		return nil, s.notFoundOr(err, scheduling.NotFoundSubject, subjectID)
	}
	entries, err := s.repo.Timetable.ListBySubject(ctx, subjectID)
	if err != nil {
		s.logger.Error("查询课程排课失败", zap.String("subject", subjectID), zap.Error(err))
		return nil, scheduling.Internal("by_subject", err)
	}
	return groupByDay(activeSorted(entries)), nil
}

func (s *scheduleQueryService) List(ctx context.Context, req *dto.TimetableListRequest) ([]dto.TimetableEntryResponse, int64, error) {
	filter := repository.TimetableFilter{
		SemesterID:       req.SemesterID,
		BranchID:         req.BranchID,
		IncludeCancelled: req.IncludeCancelled,
	}
	if req.DayOfWeek != "" {
		day, err := scheduling.ParseDay("day_of_week", req.DayOfWeek)
		if err != nil {
			return nil, 0, err
		}
		filter.DayOfWeek = &day
	}

	entries, total, err := s.repo.Timetable.List(ctx, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询排课列表失败", zap.Error(err))
		return nil, 0, scheduling.Internal("list", err)
	}
	sortEntries(entries)
	return toEntryResponses(entries), total, nil
}

func (s *scheduleQueryService) Get(ctx context.Context, id string) (*dto.TimetableEntryResponse, error) {
	entry, err := s.repo.Timetable.GetByID(ctx, id)
	if err != nil {
		return nil, s.notFoundOr(err, scheduling.NotFoundEntry, id)
	}
	resp := toEntryResponse(entry)
	return &resp, nil
}

func (s *scheduleQueryService) ChangeLogs(ctx context.Context, id string, req *dto.ChangeLogListRequest) ([]dto.ChangeLogResponse, int64, error) {
	if _, err := s.repo.Timetable.GetByID(ctx, id); err != nil {
		return nil, 0, s.notFoundOr(err, scheduling.NotFoundEntry, id)
	}
	logs, total, err := s.repo.Timetable.ListChangeLogs(ctx, id, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询变更日志失败", zap.String("id", id), zap.Error(err))
		return nil, 0, scheduling.Internal("change_logs", err)
	}
	list := make([]dto.ChangeLogResponse, 0, len(logs))
	for _, l := range logs {
		list = append(list, dto.ChangeLogResponse{
			ID:           l.ChangeLogID,
			EntryID:      l.EntryID,
			Action:       l.Action,
			OperatorID:   l.OperatorID,
			OperatorRole: string(l.OperatorRole),
			Changes:      l.Changes,
			CreatedAt:    l.CreatedAt.Format(time.RFC3339),
		})
	}
	return list, total, nil
}

func (s *scheduleQueryService) notFoundOr(err error, what scheduling.NotFoundKind, id string) error {
	if isNotFound(err) {
		return &scheduling.NotFoundError{What: what, ID: id}
	}
	s.logger.Error("查询失败", zap.String("kind", string(what)), zap.String("id", id), zap.Error(err))
	return scheduling.Internal("query", err)
}

// ── 排序与分组 ──

// activeSorted 过滤已取消并按周视图顺序排序
func activeSorted(entries []model.TimetableEntry) []model.TimetableEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.IsActive() {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

// sortEntries 按 (星期 Monday=0…Saturday=5, 开始时间, 房间) 排序
func sortEntries(entries []model.TimetableEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.RoomNo < b.RoomNo
	})
}

// groupByDay 按星期分组，只输出有排课的星期；输入须已排序
func groupByDay(entries []model.TimetableEntry) []dto.DayScheduleResponse {
	groups := make([]dto.DayScheduleResponse, 0)
	for _, e := range entries {
		day := e.DayOfWeek.String()
		if n := len(groups); n == 0 || groups[n-1].DayOfWeek != day {
			groups = append(groups, dto.DayScheduleResponse{DayOfWeek: day})
		}
		groups[len(groups)-1].Entries = append(groups[len(groups)-1].Entries, toEntryResponse(&e))
	}
	return groups
}

// ── 响应转换 ──

func toEntryResponse(e *model.TimetableEntry) dto.TimetableEntryResponse {
	grants := make([]dto.GrantResponse, 0, len(e.Grants))
	for i := range e.Grants {
		grants = append(grants, toGrantResponse(&e.Grants[i]))
	}
	resp := dto.TimetableEntryResponse{
		ID:          e.EntryID,
		SemesterID:  e.SemesterID,
		BranchID:    e.BranchID,
		SubjectID:   e.SubjectID,
		TeacherID:   e.TeacherID,
		RoomNo:      e.RoomNo,
		DayOfWeek:   e.DayOfWeek.String(),
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		LectureType: string(e.LectureType),
		Notes:       e.Notes,
		Status:      string(e.Status),
		Grants:      grants,
		Version:     e.Version,
		CreatedAt:   formatTime(e.CreatedAt),
		UpdatedAt:   formatTime(e.UpdatedAt),
	}
	if e.CreatedBy != nil {
		resp.CreatedBy = *e.CreatedBy
	}
	return resp
}

func toEntryResponses(entries []model.TimetableEntry) []dto.TimetableEntryResponse {
	list := make([]dto.TimetableEntryResponse, 0, len(entries))
	for i := range entries {
		list = append(list, toEntryResponse(&entries[i]))
	}
	return list
}

func toGrantResponse(g *model.TimetableGrant) dto.GrantResponse {
	return dto.GrantResponse{
		EntryID:   g.EntryID,
		UserID:    g.UserID,
		Role:      string(g.Role),
		GrantedAt: formatTime(g.GrantedAt),
		GrantedBy: g.GrantedBy,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
