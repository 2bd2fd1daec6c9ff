package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ── 星期 ──

// Weekday 每周固定的上课日，Monday=0 … Saturday=5
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var weekdayNames = [...]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Weekdays 按排序顺序返回全部上课日
func Weekdays() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}
}

// Valid 是否为 Monday…Saturday
func (d Weekday) Valid() bool { return d >= Monday && d <= Saturday }

func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return weekdayNames[d]
}

// ParseWeekday 解析星期名称（大小写不敏感，支持三字母缩写）
func ParseWeekday(s string) (Weekday, error) {
	s = strings.TrimSpace(s)
	for i, name := range weekdayNames {
		if strings.EqualFold(s, name) || (len(s) == 3 && strings.EqualFold(s, name[:3])) {
			return Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("无效的星期: %q", s)
}

// MarshalText JSON 中以名称表示星期
func (d Weekday) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("无效的星期: %d", int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText 从名称解析星期
func (d *Weekday) UnmarshalText(b []byte) error {
	v, err := ParseWeekday(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Value 以 smallint 存储
func (d Weekday) Value() (driver.Value, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("无效的星期: %d", int(d))
	}
	return int64(d), nil
}

// Scan 从 smallint 读取
func (d *Weekday) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		*d = Weekday(v)
	case int32:
		*d = Weekday(v)
	case int16:
		*d = Weekday(v)
	case []byte:
		return d.UnmarshalText(v)
	default:
		return fmt.Errorf("Weekday.Scan: unsupported type %T", src)
	}
	if !d.Valid() {
		return fmt.Errorf("Weekday.Scan: 越界的值 %d", int(*d))
	}
	return nil
}

// ── 课程类型 ──

// LectureType 授课形式
type LectureType string

const (
	LectureTheory    LectureType = "theory"
	LecturePractical LectureType = "practical"
	LectureTutorial  LectureType = "tutorial"
	LectureLab       LectureType = "lab"
)

// ParseLectureType 大小写不敏感地解析授课形式
func ParseLectureType(s string) (LectureType, error) {
	lt := LectureType(strings.ToLower(strings.TrimSpace(s)))
	switch lt {
	case LectureTheory, LecturePractical, LectureTutorial, LectureLab:
		return lt, nil
	}
	return "", fmt.Errorf("无效的课程类型: %q", s)
}

// ── 排课状态 ──

// EntryStatus 排课状态机：active → cancelled（终态，不可恢复）
type EntryStatus string

const (
	StatusActive    EntryStatus = "active"
	StatusCancelled EntryStatus = "cancelled"
)

// CanTransitionTo 是否允许迁移到目标状态
func (s EntryStatus) CanTransitionTo(next EntryStatus) bool {
	return s == StatusActive && next == StatusCancelled
}

// ── 角色 ──

// Role 门户身份服务下发的角色，封闭枚举
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleHod     Role = "hod"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ParseRole 解析角色字符串，未知角色返回 false
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleHod, RoleTeacher, RoleStudent:
		return r, true
	}
	return "", false
}

// ── 排课记录 ──

// TimetableEntry 排课表：对应 timetable_entries
type TimetableEntry struct {
	EntryID     string      `gorm:"type:uuid;primaryKey"                        json:"id"`
	SemesterID  string      `gorm:"type:uuid;not null"                          json:"semester_id"`
	BranchID    string      `gorm:"type:uuid;not null"                          json:"branch_id"`
	SubjectID   string      `gorm:"type:uuid;not null"                          json:"subject_id"`
	TeacherID   string      `gorm:"type:uuid;not null"                          json:"teacher_id"`
	RoomNo      string      `gorm:"type:varchar(50);not null"                   json:"room_no"`
	DayOfWeek   Weekday     `gorm:"type:smallint;not null"                      json:"day_of_week"`
	StartTime   string      `gorm:"type:varchar(5);not null"                    json:"start_time"` // HH:MM
	EndTime     string      `gorm:"type:varchar(5);not null"                    json:"end_time"`
	LectureType LectureType `gorm:"type:varchar(20);not null"                   json:"lecture_type"`
	Notes       string      `gorm:"type:text;not null;default:''"               json:"notes"`
	Status      EntryStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	VersionedModel

	// 关联
	Grants []TimetableGrant `gorm:"foreignKey:EntryID;references:EntryID" json:"grants"`
}

// TableName 指定表名
func (TimetableEntry) TableName() string { return "timetable_entries" }

// IsActive 是否参与冲突检测与默认视图
func (e *TimetableEntry) IsActive() bool { return e.Status == StatusActive }

// FindGrant 查找指定用户的授权记录
func (e *TimetableEntry) FindGrant(userID string) *TimetableGrant {
	for i := range e.Grants {
		if e.Grants[i].UserID == userID {
			return &e.Grants[i]
		}
	}
	return nil
}

// TimetableGrant 排课编辑授权表：对应 timetable_entry_grants，(entry_id, user_id) 唯一
type TimetableGrant struct {
	EntryID   string    `gorm:"type:uuid;primaryKey"           json:"-"`
	UserID    string    `gorm:"type:uuid;primaryKey"           json:"user_id"`
	Role      Role      `gorm:"type:varchar(20);not null"      json:"role"` // teacher | hod
	GrantedAt time.Time `gorm:"not null"                       json:"granted_at"`
	GrantedBy string    `gorm:"type:uuid;not null"             json:"granted_by"`
}

// TableName 指定表名
func (TimetableGrant) TableName() string { return "timetable_entry_grants" }

// ── 变更日志 ──

// 变更动作
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionCancel = "cancel"
	ActionGrant  = "grant"
	ActionRevoke = "revoke"
)

// TimetableChangeLog 排课变更记录表：对应 timetable_change_logs（纯审计日志）
type TimetableChangeLog struct {
	ChangeLogID  string            `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"change_log_id"`
	EntryID      string            `gorm:"type:uuid;not null"                             json:"entry_id"`
	Action       string            `gorm:"type:varchar(20);not null"                      json:"action"`
	OperatorID   string            `gorm:"type:uuid;not null"                             json:"operator_id"`
	OperatorRole Role              `gorm:"type:varchar(20);not null"                      json:"operator_role"`
	Changes      datatypes.JSONMap `gorm:"type:jsonb"                                     json:"changes,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

// TableName 指定表名
func (TimetableChangeLog) TableName() string { return "timetable_change_logs" }
