package model

// 以下为学术目录的只读映射，数据由门户其他模块维护

// Semester 学期：对应 semesters
type Semester struct {
	SemesterID string `gorm:"type:uuid;primaryKey"       json:"semester_id"`
	Name       string `gorm:"type:varchar(100);not null" json:"name"`
	IsActive   bool   `gorm:"not null;default:false"     json:"is_active"`
}

// TableName 指定表名
func (Semester) TableName() string { return "semesters" }

// Branch 专业/系：对应 branches
type Branch struct {
	BranchID string `gorm:"type:uuid;primaryKey"       json:"branch_id"`
	Code     string `gorm:"type:varchar(20);not null"  json:"code"`
	Name     string `gorm:"type:varchar(100);not null" json:"name"`
}

// TableName 指定表名
func (Branch) TableName() string { return "branches" }

// Subject 课程：对应 subjects
type Subject struct {
	SubjectID  string `gorm:"type:uuid;primaryKey"       json:"subject_id"`
	BranchID   string `gorm:"type:uuid;not null"         json:"branch_id"`
	SemesterID string `gorm:"type:uuid;not null"         json:"semester_id"`
	Code       string `gorm:"type:varchar(20);not null"  json:"code"`
	Name       string `gorm:"type:varchar(100);not null" json:"name"`
}

// TableName 指定表名
func (Subject) TableName() string { return "subjects" }

// User 门户用户：对应 users
type User struct {
	UserID   string  `gorm:"type:uuid;primaryKey"       json:"user_id"`
	Name     string  `gorm:"type:varchar(100);not null" json:"name"`
	Email    string  `gorm:"type:varchar(255);not null" json:"email"`
	Role     Role    `gorm:"type:varchar(20);not null"  json:"role"`
	BranchID *string `gorm:"type:uuid"                  json:"branch_id,omitempty"`
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// TeacherAssignment 教师授课范围：对应 teacher_assignments
// SubjectID 为空表示覆盖整个 branch（系主任常见）
type TeacherAssignment struct {
	AssignmentID string  `gorm:"type:uuid;primaryKey" json:"assignment_id"`
	UserID       string  `gorm:"type:uuid;not null"   json:"user_id"`
	BranchID     string  `gorm:"type:uuid;not null"   json:"branch_id"`
	SubjectID    *string `gorm:"type:uuid"            json:"subject_id,omitempty"`
}

// TableName 指定表名
func (TeacherAssignment) TableName() string { return "teacher_assignments" }

// Scope 教师/系主任可排课的范围
type Scope struct {
	BranchIDs  map[string]bool
	SubjectIDs map[string]bool
}

// NewScope 由授课分配记录构建范围
func NewScope(assignments []TeacherAssignment) Scope {
	s := Scope{BranchIDs: map[string]bool{}, SubjectIDs: map[string]bool{}}
	for _, a := range assignments {
		if a.SubjectID == nil {
			s.BranchIDs[a.BranchID] = true
			continue
		}
		s.SubjectIDs[*a.SubjectID] = true
	}
	return s
}

// CoversBranch 是否覆盖整个 branch
func (s Scope) CoversBranch(branchID string) bool { return s.BranchIDs[branchID] }

// CoversSubject 是否覆盖指定课程（整个 branch 的分配也算）
func (s Scope) CoversSubject(branchID, subjectID string) bool {
	return s.SubjectIDs[subjectID] || s.BranchIDs[branchID]
}
