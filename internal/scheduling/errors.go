package scheduling

import (
	"fmt"
	"strings"

	"academic-portal/backend/internal/model"
)

// ── 排课错误分类 ──
//
// 所有写操作失败时都返回以下类型之一，且存储保持不变。
// Handler 层通过 errors.As 分类映射到 HTTP 响应。

// ValidationError 字段缺失、时间顺序错误、非法枚举值等
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "参数校验失败: " + e.Reason
	}
	return fmt.Sprintf("参数校验失败: %s %s", e.Field, e.Reason)
}

// Invalid 构造 ValidationError
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Dimension 冲突维度
type Dimension string

const (
	DimensionRoom    Dimension = "room"
	DimensionTeacher Dimension = "teacher"
)

// Conflict 单个维度上的冲突
type Conflict struct {
	Dimension Dimension
	With      string // 冲突的排课 ID
	Entry     *model.TimetableEntry
}

// ConflictError 排课冲突，Dimension/With 为主冲突（房间优先于教师）
// Conflicts 包含全部维度，便于前端一次展示所有原因
type ConflictError struct {
	Dimension Dimension
	With      string
	Entry     *model.TimetableEntry
	Conflicts []Conflict
	Stale     bool // 乐观锁失败：记录已被并发修改
}

func (e *ConflictError) Error() string {
	if e.Stale {
		return "排课已被其他操作修改，请刷新后重试"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "排课冲突: %s 维度与 %s 重叠", e.Dimension, e.With)
	if e.Entry != nil {
		fmt.Fprintf(&b, "（%s %s-%s，房间 %s，教师 %s）",
			e.Entry.DayOfWeek, e.Entry.StartTime, e.Entry.EndTime, e.Entry.RoomNo, e.Entry.TeacherID)
	}
	return b.String()
}

// NotFoundKind 未找到的对象类别
type NotFoundKind string

const (
	NotFoundEntry    NotFoundKind = "entry"
	NotFoundGrant    NotFoundKind = "grant"
	NotFoundUser     NotFoundKind = "user"
	NotFoundSemester NotFoundKind = "semester"
	NotFoundBranch   NotFoundKind = "branch"
	NotFoundSubject  NotFoundKind = "subject"
)

// NotFoundError 排课、授权或目录对象不存在
type NotFoundError struct {
	What NotFoundKind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s 不存在: %s", e.What, e.ID)
}

// AuthorizationError 请求者无权执行该操作
type AuthorizationError struct {
	Action string
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.Reason == "" {
		return "无权执行操作: " + e.Action
	}
	return fmt.Sprintf("无权执行操作: %s（%s）", e.Action, e.Reason)
}

// Forbidden 构造 AuthorizationError
func Forbidden(action, reason string) *AuthorizationError {
	return &AuthorizationError{Action: action, Reason: reason}
}

// InternalError 持久化失败；写操作非幂等，不自动重试
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("内部错误 [%s]: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// Internal 包装持久化错误
func Internal(op string, err error) *InternalError {
	return &InternalError{Op: op, Err: err}
}
