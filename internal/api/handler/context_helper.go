package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"academic-portal/backend/internal/dto"
	"academic-portal/backend/internal/model"
	"academic-portal/backend/internal/scheduling"
	"academic-portal/backend/pkg/response"
)

// 由 JWTAuth 中间件写入的上下文键
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// MustGetRequester 从 Gin 上下文中提取请求者身份。
// 如果 JWT 中间件未正确注入 user_id/role，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetRequester(c *gin.Context) (scheduling.Requester, bool) {
	id := c.GetString(CtxUserID)
	roleStr := c.GetString(CtxRole)
	role, ok := model.ParseRole(roleStr)
	if id == "" || !ok {
		response.Unauthorized(c, 10002, "未认证")
		return scheduling.Requester{}, false
	}
	return scheduling.Requester{ID: id, Role: role}, true
}

// mustParamID 读取路径参数并校验为 UUID，非法时写入 400 响应
func mustParamID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		response.ErrorWithDetail(c, http.StatusBadRequest, 20000, response.KindValidation, "参数校验失败",
			dto.ValidationDetail{Field: name, Reason: "必须是合法的 UUID"})
		return "", false
	}
	return id, true
}
