package dto

// ── 排课请求 ──

// CreateTimetableRequest 创建排课请求
type CreateTimetableRequest struct {
	SemesterID  string `json:"semester_id"  binding:"required,uuid"`
	BranchID    string `json:"branch_id"    binding:"required,uuid"`
	SubjectID   string `json:"subject_id"   binding:"required,uuid"`
	TeacherID   string `json:"teacher_id"   binding:"required,uuid"`
	RoomNo      string `json:"room_no"      binding:"required,max=50"`
	DayOfWeek   string `json:"day_of_week"  binding:"required,weekday"` // Monday … Saturday
	StartTime   string `json:"start_time"   binding:"required,hhmm"`
	EndTime     string `json:"end_time"     binding:"required,hhmm"`
	LectureType string `json:"lecture_type" binding:"required,lecture_type"`
	Notes       string `json:"notes"        binding:"omitempty,max=1000"`
}

// UpdateTimetableRequest 更新排课请求，未提供的字段保持不变
// subject_id / teacher_id 仅管理员可修改；version 用于乐观锁校验（可选）
type UpdateTimetableRequest struct {
	RoomNo      *string `json:"room_no"      binding:"omitempty,max=50"`
	DayOfWeek   *string `json:"day_of_week"  binding:"omitempty,weekday"`
	StartTime   *string `json:"start_time"   binding:"omitempty,hhmm"`
	EndTime     *string `json:"end_time"     binding:"omitempty,hhmm"`
	LectureType *string `json:"lecture_type" binding:"omitempty,lecture_type"`
	Notes       *string `json:"notes"        binding:"omitempty,max=1000"`
	SubjectID   *string `json:"subject_id"   binding:"omitempty,uuid"`
	TeacherID   *string `json:"teacher_id"   binding:"omitempty,uuid"`
	Version     *int    `json:"version"      binding:"omitempty,min=1"`
}

// GrantPermissionRequest 授予编辑权限请求
type GrantPermissionRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
	Role   string `json:"role"    binding:"required,oneof=teacher hod"`
}

// RevokePermissionRequest 撤销编辑权限请求
type RevokePermissionRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

// TimetableListRequest 管理员排课列表查询参数
type TimetableListRequest struct {
	SemesterID       string `form:"semester_id"       binding:"omitempty,uuid"`
	BranchID         string `form:"branch_id"         binding:"omitempty,uuid"`
	DayOfWeek        string `form:"day_of_week"       binding:"omitempty,weekday"`
	IncludeCancelled bool   `form:"include_cancelled"`
	PaginationRequest
}

// MyScheduleRequest 我的课表查询参数
type MyScheduleRequest struct {
	DayOfWeek string `form:"day_of_week" binding:"omitempty,weekday"`
}

// ChangeLogListRequest 变更日志分页参数
type ChangeLogListRequest struct {
	PaginationRequest
}

// ── 排课响应 ──

// TimetableEntryResponse 排课响应
type TimetableEntryResponse struct {
	ID          string          `json:"id"`
	SemesterID  string          `json:"semester_id"`
	BranchID    string          `json:"branch_id"`
	SubjectID   string          `json:"subject_id"`
	TeacherID   string          `json:"teacher_id"`
	RoomNo      string          `json:"room_no"`
	DayOfWeek   string          `json:"day_of_week"`
	StartTime   string          `json:"start_time"`
	EndTime     string          `json:"end_time"`
	LectureType string          `json:"lecture_type"`
	Notes       string          `json:"notes"`
	Status      string          `json:"status"`
	Grants      []GrantResponse `json:"grants"`
	Version     int             `json:"version"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

// GrantResponse 编辑授权响应
type GrantResponse struct {
	EntryID   string `json:"entry_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	GrantedAt string `json:"granted_at"`
	GrantedBy string `json:"granted_by"`
	Created   bool   `json:"created"` // false 表示授权已存在，本次未修改
}

// DayScheduleResponse 按星期分组的排课（周视图的一列）
type DayScheduleResponse struct {
	DayOfWeek string                   `json:"day_of_week"`
	Entries   []TimetableEntryResponse `json:"entries"`
}

// ChangeLogResponse 排课变更日志
type ChangeLogResponse struct {
	ID           string                 `json:"id"`
	EntryID      string                 `json:"entry_id"`
	Action       string                 `json:"action"`
	OperatorID   string                 `json:"operator_id"`
	OperatorRole string                 `json:"operator_role"`
	Changes      map[string]interface{} `json:"changes,omitempty"`
	CreatedAt    string                 `json:"created_at"`
}

// ConflictDetail 冲突错误详情，供前端展示冲突排课的时间与占用者
type ConflictDetail struct {
	Dimension string         `json:"dimension"`
	With      string         `json:"with"`
	Stale     bool           `json:"stale,omitempty"`
	Conflicts []ConflictItem `json:"conflicts,omitempty"`
}

// ConflictItem 单个维度的冲突
type ConflictItem struct {
	Dimension string `json:"dimension"`
	With      string `json:"with"`
	DayOfWeek string `json:"day_of_week,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	RoomNo    string `json:"room_no,omitempty"`
	TeacherID string `json:"teacher_id,omitempty"`
	SubjectID string `json:"subject_id,omitempty"`
}

// ValidationDetail 参数校验错误详情
type ValidationDetail struct {
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}
