package scheduling

import (
	"time"

	"academic-portal/backend/internal/model"
)

// Requester 由身份服务提供的请求者上下文
type Requester struct {
	ID   string
	Role model.Role
}

// IsAdmin 是否管理员
func (r Requester) IsAdmin() bool { return r.Role == model.RoleAdmin }

// ValidClock 校验零填充的 HH:MM，保证字典序与时间先后一致
func ValidClock(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}
