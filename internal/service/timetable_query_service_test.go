package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"academic-portal/backend/internal/dto"
	"academic-portal/backend/internal/model"
	"academic-portal/backend/internal/scheduling"
)

// seedWeek 构造一周排课：插入顺序故意打乱
func seedWeek(t *testing.T) (ScheduleQueryService, TimetableService, map[string]*dto.TimetableEntryResponse) {
	t.Helper()
	repo, _, _ := newTestRepo()
	svc := newTestTimetableService(repo, scheduling.NewMemoryLocker())
	query := NewScheduleQueryService(repo, zap.NewNop())

	seeded := map[string]*dto.TimetableEntryResponse{
		"wed":    mustCreate(t, svc, createReq("CS101", teacherX, "Room101", "Wednesday", "09:00", "10:00"), asAdmin),
		"mon-11": mustCreate(t, svc, createReq("CS101", teacherX, "Room101", "Monday", "11:00", "12:00"), asAdmin),
		"mon-9b": mustCreate(t, svc, createReq("CS102", teacherY, "Room202", "Monday", "09:00", "10:00"), asAdmin),
		"mon-9a": mustCreate(t, svc, createReq("CS101", teacherX, "Room101", "Monday", "09:00", "10:00"), asAdmin),
		"sat":    mustCreate(t, svc, createReq("CS101", teacherX, "Room101", "Saturday", "08:00", "09:00"), asAdmin),
		"cancel": mustCreate(t, svc, createReq("CS101", teacherX, "Room101", "Tuesday", "09:00", "10:00"), asAdmin),
	}
	if _, err := svc.Cancel(context.Background(), seeded["cancel"].ID, asAdmin); err != nil {
		t.Fatalf("取消失败: %v", err)
	}
	return query, svc, seeded
}

func ids(list []dto.TimetableEntryResponse) []string {
	out := make([]string, 0, len(list))
	for _, e := range list {
		out = append(out, e.ID)
	}
	return out
}

func equalIDs(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("期望 %d 条, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("第 %d 条期望 %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBySemester_SortedActiveOnly(t *testing.T) {
	query, _, s := seedWeek(t)

	list, err := query.BySemester(context.Background(), testSemester)
	if err != nil {
		t.Fatalf("BySemester 失败: %v", err)
	}
	equalIDs(t, ids(list), s["mon-9a"].ID, s["mon-9b"].ID, s["mon-11"].ID, s["wed"].ID, s["sat"].ID)

	_, err = query.BySemester(context.Background(), "sem-unknown")
	expectNotFound(t, err, scheduling.NotFoundSemester)
}

func TestByTeacher_DayFilter(t *testing.T) {
	query, _, s := seedWeek(t)
	ctx := context.Background()

	all, err := query.ByTeacher(ctx, teacherX, nil)
	if err != nil {
		t.Fatalf("ByTeacher 失败: %v", err)
	}
	equalIDs(t, ids(all), s["mon-9a"].ID, s["mon-11"].ID, s["wed"].ID, s["sat"].ID)

	monday := model.Monday
	mon, _ := query.ByTeacher(ctx, teacherX, &monday)
	equalIDs(t, ids(mon), s["mon-9a"].ID, s["mon-11"].ID)

	// 无排课的教师返回空列表而非 nil
	none, err := query.ByTeacher(ctx, teacherW, nil)
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("期望空列表, got %v %v", none, err)
	}
}

func TestBySubject_GroupedByDay(t *testing.T) {
	query, _, s := seedWeek(t)

	groups, err := query.BySubject(context.Background(), "CS101")
	if err != nil {
		t.Fatalf("BySubject 失败: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("期望 3 个星期分组 (Tuesday 已取消), got %d", len(groups))
	}
	wantDays := []string{"Monday", "Wednesday", "Saturday"}
	for i, g := range groups {
		if g.DayOfWeek != wantDays[i] {
			t.Errorf("分组 %d 期望 %s, got %s", i, wantDays[i], g.DayOfWeek)
		}
	}
	equalIDs(t, ids(groups[0].Entries), s["mon-9a"].ID, s["mon-11"].ID)

	_, err = query.BySubject(context.Background(), "CS999")
	expectNotFound(t, err, scheduling.NotFoundSubject)
}

func TestList_FiltersAndPaging(t *testing.T) {
	query, _, s := seedWeek(t)
	ctx := context.Background()

	list, total, err := query.List(ctx, &dto.TimetableListRequest{SemesterID: testSemester})
	if err != nil {
		t.Fatalf("List 失败: %v", err)
	}
	if total != 5 || len(list) != 5 {
		t.Fatalf("默认不含已取消, total=%d len=%d", total, len(list))
	}

	_, total, _ = query.List(ctx, &dto.TimetableListRequest{SemesterID: testSemester, IncludeCancelled: true})
	if total != 6 {
		t.Fatalf("包含已取消时期望 6, got %d", total)
	}

	page2, total, _ := query.List(ctx, &dto.TimetableListRequest{
		SemesterID:        testSemester,
		PaginationRequest: dto.PaginationRequest{Page: 2, PageSize: 2},
	})
	if total != 5 {
		t.Fatalf("total 应为过滤后的总数, got %d", total)
	}
	equalIDs(t, ids(page2), s["mon-11"].ID, s["wed"].ID)

	mon, _, _ := query.List(ctx, &dto.TimetableListRequest{DayOfWeek: "Monday"})
	if len(mon) != 3 {
		t.Fatalf("Monday 期望 3 条, got %d", len(mon))
	}

	_, _, err = query.List(ctx, &dto.TimetableListRequest{DayOfWeek: "Sunday"})
	expectInvalid(t, err, "day_of_week")
}

func TestGet_IncludesCancelledAndGrants(t *testing.T) {
	query, svc, s := seedWeek(t)
	ctx := context.Background()

	got, err := query.Get(ctx, s["cancel"].ID)
	if err != nil {
		t.Fatalf("Get 失败: %v", err)
	}
	if got.Status != string(model.StatusCancelled) || got.Version != 2 {
		t.Errorf("已取消排课详情异常: %+v", got)
	}

	if _, err := svc.GrantAccess(ctx, s["wed"].ID, &dto.GrantPermissionRequest{UserID: teacherZ, Role: "teacher"}, asAdmin); err != nil {
		t.Fatalf("授权失败: %v", err)
	}
	got, _ = query.Get(ctx, s["wed"].ID)
	if len(got.Grants) != 1 || got.Grants[0].UserID != teacherZ || got.Grants[0].GrantedBy != adminID {
		t.Errorf("授权列表异常: %+v", got.Grants)
	}

	_, err = query.Get(ctx, "missing")
	expectNotFound(t, err, scheduling.NotFoundEntry)
}
