package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"academic-portal/backend/internal/model"
	"academic-portal/backend/internal/repository"
	"academic-portal/backend/internal/scheduling"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoEntries    = errors.New("该学期暂无有效排课")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 学期周课表导出为 Excel (.xlsx)，只包含有效排课
//   - 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
//   - Excel 格式：行为时间段（开始-结束），列为 Monday ~ Saturday
type ExportService interface {
	// ExportSemester 导出学期周课表为 Excel
	ExportSemester(ctx context.Context, semesterID string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportSemester：导出学期周课表
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - 标题行：学期名称
//   - 表头：时间 | Monday | … | Saturday
//   - 单元格：课程代码 课程名 / 教师 @ 房间，同一时段多条换行拼接
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportSemester(ctx context.Context, semesterID string) (*bytes.Buffer, string, error) {
	// 1. 查询学期
	semester, err := s.repo.Catalog.GetSemester(ctx, semesterID)
	if err != nil {
		if isNotFound(err) {
			return nil, "", &scheduling.NotFoundError{What: scheduling.NotFoundSemester, ID: semesterID}
		}
		s.logger.Error("查询学期失败", zap.Error(err))
		return nil, "", scheduling.Internal("export", err)
	}

	// 2. 查询有效排课
	entries, err := s.repo.Timetable.ListBySemester(ctx, semesterID, false)
	if err != nil {
		s.logger.Error("查询学期排课失败", zap.Error(err))
		return nil, "", scheduling.Internal("export", err)
	}
	entries = activeSorted(entries)
	if len(entries) == 0 {
		return nil, "", ErrExportNoEntries
	}

	// 3. 课程与教师名称
	subjectNames, teacherNames, err := s.lookupNames(ctx, entries)
	if err != nil {
		return nil, "", err
	}

	// 4. 构建索引: "start-end" × day → 单元格文本
	type slotKey struct {
		start string
		end   string
	}
	cells := make(map[slotKey]map[model.Weekday][]string)
	var slots []slotKey
	for _, e := range entries {
		k := slotKey{e.StartTime, e.EndTime}
		if _, ok := cells[k]; !ok {
			cells[k] = make(map[model.Weekday][]string)
			slots = append(slots, k)
		}
		text := fmt.Sprintf("%s\n%s @ %s", subjectNames[e.SubjectID], teacherNames[e.TeacherID], e.RoomNo)
		if e.LectureType != model.LectureTheory {
			text += fmt.Sprintf(" (%s)", e.LectureType)
		}
		cells[k][e.DayOfWeek] = append(cells[k][e.DayOfWeek], text)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].start != slots[j].start {
			return slots[i].start < slots[j].start
		}
		return slots[i].end < slots[j].end
	})

	// 5. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "课表"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	days := model.Weekdays()
	f.SetColWidth(sheetName, "A", "A", 14)
	f.SetColWidth(sheetName, colName(1), colName(len(days)), 28)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	cellStyle, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})

	// 标题行
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s 周课表", semester.Name))
	f.MergeCell(sheetName, "A1", cell(colName(len(days)), 1))
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	// 表头
	f.SetCellValue(sheetName, cell("A", 2), "时间")
	for i, d := range days {
		f.SetCellValue(sheetName, cell(colName(1+i), 2), d.String())
	}
	f.SetCellStyle(sheetName, "A2", cell(colName(len(days)), 2), headerStyle)

	// 数据行
	row := 3
	for _, sl := range slots {
		f.SetCellValue(sheetName, cell("A", row), fmt.Sprintf("%s-%s", sl.start, sl.end))
		for i, d := range days {
			text := "-"
			if items := cells[sl][d]; len(items) > 0 {
				text = strings.Join(items, "\n")
			}
			f.SetCellValue(sheetName, cell(colName(1+i), row), text)
		}
		row++
	}
	f.SetCellStyle(sheetName, "B3", cell(colName(len(days)), row-1), cellStyle)

	// 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("课表_%s.xlsx", semester.Name)
	return buf, filename, nil
}

// lookupNames 批量查询课程与教师名称，缺失时回退为 ID
func (s *exportService) lookupNames(ctx context.Context, entries []model.TimetableEntry) (map[string]string, map[string]string, error) {
	subjectSet := make(map[string]bool)
	teacherSet := make(map[string]bool)
	for _, e := range entries {
		subjectSet[e.SubjectID] = true
		teacherSet[e.TeacherID] = true
	}

	subjects, err := s.repo.Catalog.ListSubjectsByIDs(ctx, setKeys(subjectSet))
	if err != nil {
		s.logger.Error("查询课程失败", zap.Error(err))
		return nil, nil, scheduling.Internal("export", err)
	}
	users, err := s.repo.Catalog.ListUsersByIDs(ctx, setKeys(teacherSet))
	if err != nil {
		s.logger.Error("查询教师失败", zap.Error(err))
		return nil, nil, scheduling.Internal("export", err)
	}

	subjectNames := make(map[string]string, len(subjectSet))
	for id := range subjectSet {
		subjectNames[id] = id
	}
	for _, sub := range subjects {
		subjectNames[sub.SubjectID] = strings.TrimSpace(sub.Code + " " + sub.Name)
	}
	teacherNames := make(map[string]string, len(teacherSet))
	for id := range teacherSet {
		teacherNames[id] = id
	}
	for _, u := range users {
		teacherNames[u.UserID] = u.Name
	}
	return subjectNames, teacherNames, nil
}

// ── 辅助函数 ──

func setKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
