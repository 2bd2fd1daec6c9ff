package scheduling

import (
	"strings"

	"academic-portal/backend/internal/model"
)

// ParseDay 解析星期，失败时返回 ValidationError
func ParseDay(field, s string) (model.Weekday, error) {
	d, err := model.ParseWeekday(s)
	if err != nil {
		return 0, Invalid(field, "必须是 Monday 至 Saturday")
	}
	return d, nil
}

// ParseLecture 解析授课形式，失败时返回 ValidationError
func ParseLecture(s string) (model.LectureType, error) {
	lt, err := model.ParseLectureType(s)
	if err != nil {
		return "", Invalid("lecture_type", "必须是 theory/practical/tutorial/lab 之一")
	}
	return lt, nil
}

// ValidateEntry 校验排课字段完整性与时间顺序，返回第一个错误
func ValidateEntry(e *model.TimetableEntry) error {
	required := []struct {
		field string
		value string
	}{
		{"semester_id", e.SemesterID},
		{"branch_id", e.BranchID},
		{"subject_id", e.SubjectID},
		{"teacher_id", e.TeacherID},
		{"room_no", e.RoomNo},
		{"start_time", e.StartTime},
		{"end_time", e.EndTime},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return Invalid(r.field, "不能为空")
		}
	}
	if !e.DayOfWeek.Valid() {
		return Invalid("day_of_week", "必须是 Monday 至 Saturday")
	}
	if _, err := model.ParseLectureType(string(e.LectureType)); err != nil {
		return Invalid("lecture_type", "必须是 theory/practical/tutorial/lab 之一")
	}
	if !ValidClock(e.StartTime) {
		return Invalid("start_time", "必须是零填充的 HH:MM 时间")
	}
	if !ValidClock(e.EndTime) {
		return Invalid("end_time", "必须是零填充的 HH:MM 时间")
	}
	if e.StartTime >= e.EndTime {
		return Invalid("end_time", "必须晚于 start_time")
	}
	return nil
}
