package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"academic-portal/backend/internal/scheduling"
)

// ── 测试辅助 ──

func setupTestExportService(t *testing.T) (ExportService, TimetableService) {
	t.Helper()
	repo, _, _ := newTestRepo()
	return NewExportService(repo, zap.NewNop()), newTestTimetableService(repo, scheduling.NewMemoryLocker())
}

// ── ExportSemester 测试 ──

func TestExportService_ExportSemester_UnknownSemester(t *testing.T) {
	svc, _ := setupTestExportService(t)

	_, _, err := svc.ExportSemester(context.Background(), "nonexistent-sem")
	expectNotFound(t, err, scheduling.NotFoundSemester)
}

func TestExportService_ExportSemester_NoEntries(t *testing.T) {
	svc, tts := setupTestExportService(t)

	// 只有已取消的排课
	a := mustCreate(t, tts, createReq("CS101", teacherX, "Room101", "Monday", "09:00", "10:00"), asAdmin)
	if _, err := tts.Cancel(context.Background(), a.ID, asAdmin); err != nil {
		t.Fatalf("取消失败: %v", err)
	}

	_, _, err := svc.ExportSemester(context.Background(), testSemester)
	if !errors.Is(err, ErrExportNoEntries) {
		t.Errorf("期望 ErrExportNoEntries，实际: %v", err)
	}
}

func TestExportService_ExportSemester_Success(t *testing.T) {
	svc, tts := setupTestExportService(t)

	mustCreate(t, tts, createReq("CS101", teacherX, "Room101", "Monday", "09:00", "10:00"), asAdmin)
	mustCreate(t, tts, createReq("CS102", teacherY, "Room102", "Monday", "09:00", "10:00"), asAdmin)
	lab := createReq("CS103", teacherZ, "Lab1", "Wednesday", "14:00", "16:00")
	lab.LectureType = "lab"
	mustCreate(t, tts, lab, asAdmin)

	buf, filename, err := svc.ExportSemester(context.Background(), testSemester)
	if err != nil {
		t.Fatalf("ExportSemester 应成功: %v", err)
	}
	if !strings.HasSuffix(filename, ".xlsx") || !strings.Contains(filename, "2024 秋季") {
		t.Errorf("文件名异常: %s", filename)
	}
	// Excel .xlsx 文件以 PK (0x504B) 开头
	if buf.Len() < 2 || buf.Bytes()[0] != 0x50 || buf.Bytes()[1] != 0x4B {
		t.Fatal("输出内容不是有效的 xlsx 文件格式（应以 PK 开头）")
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("读取导出文件失败: %v", err)
	}
	defer f.Close()

	header, _ := f.GetCellValue("课表", "B2")
	if header != "Monday" {
		t.Errorf("B2 期望 Monday, got %q", header)
	}

	// 第 3 行为 09:00-10:00，Monday 格内两门课
	slot, _ := f.GetCellValue("课表", "A3")
	if slot != "09:00-10:00" {
		t.Errorf("A3 期望 09:00-10:00, got %q", slot)
	}
	monday, _ := f.GetCellValue("课表", "B3")
	if !strings.Contains(monday, "CS101 课程CS101") || !strings.Contains(monday, "Room102") {
		t.Errorf("Monday 单元格内容异常: %q", monday)
	}
	tuesday, _ := f.GetCellValue("课表", "C3")
	if tuesday != "-" {
		t.Errorf("Tuesday 应为空, got %q", tuesday)
	}

	// 第 4 行为 14:00-16:00，Wednesday 格带授课形式
	wed, _ := f.GetCellValue("课表", "D4")
	if !strings.Contains(wed, "Lab1") || !strings.Contains(wed, "(lab)") {
		t.Errorf("Wednesday 单元格内容异常: %q", wed)
	}
}
