package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"academic-portal/backend/internal/dto"
	"academic-portal/backend/internal/model"
	"academic-portal/backend/internal/scheduling"
	"academic-portal/backend/internal/service"
	"academic-portal/backend/pkg/response"
)

// ── 排课模块业务码 ──
const (
	codeTimetableInvalid   = 20000
	codeTimetableConflict  = 20001
	codeTimetableStale     = 20002
	codeTimetableForbidden = 20003
	codeTimetableNotFound  = 20004
)

// TimetableHandler 排课模块 Handler
type TimetableHandler struct {
	svc   service.TimetableService
	query service.ScheduleQueryService
}

// NewTimetableHandler 创建 TimetableHandler 实例
func NewTimetableHandler(svc service.TimetableService, query service.ScheduleQueryService) *TimetableHandler {
	return &TimetableHandler{svc: svc, query: query}
}

// ════════════════════════════════════════════════════════════
// 写操作
// ════════════════════════════════════════════════════════════

// Create 创建排课
// POST /api/v1/timetable
func (h *TimetableHandler) Create(c *gin.Context) {
	requester, ok := MustGetRequester(c)
	if !ok {
		return
	}

	var req dto.CreateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.svc.Create(c.Request.Context(), &req, requester)
	if err != nil {
		handleTimetableError(c, err)
		return
	}
	response.Created(c, resp)
}

// Update 修改排课
// PUT /api/v1/timetable/:id
func (h *TimetableHandler) Update(c *gin.Context) {
	requester, ok := MustGetRequester(c)
	if !ok {
		return
	}
	id, ok := mustParamID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.svc.Update(c.Request.Context(), id, &req, requester)
	if err != nil {
		handleTimetableError(c, err)
		return
	}
	response.OK(c, resp)
}

// Cancel 取消排课
// DELETE /api/v1/timetable/:id
func (h *TimetableHandler) Cancel(c *gin.Context) {
	requester, ok := MustGetRequester(c)
	if !ok {
		return
	}
	id, ok := mustParamID(c, "id")
	if !ok {
		return
	}

	resp, err := h.svc.Cancel(c.Request.Context(), id, requester)
	if err != nil {
		handleTimetableError(c, err)
		return
	}
	response.OK(c, resp)
}

// GrantPermission 授予编辑权限
// POST /api/v1/timetable/:id/grant-permission
func (h *TimetableHandler) GrantPermission(c *gin.Context) {
	requester, ok := MustGetRequester(c)
	if !ok {
		return
	}
	id, ok := mustParamID(c, "id")
	if !ok {
		return
	}

	var req dto.GrantPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.svc.GrantAccess(c.Request.Context(), id, &req, requester)
	if err != nil {
		handleTimetableError(c, err)
		return
	}
	if resp.Created {
		response.Created(c, resp)
		return
	}
	response.OK(c, resp)
}

// RevokePermission 撤销编辑权限
// POST /api/v1/timetable/:id/revoke-permission
func (h *TimetableHandler) RevokePermission(c *gin.Context) {
	requester, ok := MustGetRequester(c)
	if !ok {
		return
	}
	id, ok := mustParamID(c, "id")
	if !ok {
		return
	}

	var req dto.RevokePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if err := h.svc.RevokeAccess(c.Request.Context(), id, &req, requester); err != nil {
		handleTimetableError(c, err)
		return
	}
	response.OK(c, nil)
}

// ════════════════════════════════════════════════════════════
// 读视图
// ════════════════════════════════════════════════════════════

// List 管理员排课列表
// GET /api/v1/timetable
func (h *TimetableHandler) List(c *gin.Context) {
	var req dto.TimetableListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}

	list, total, err := h.query.List(c.Request.Context(), &req)
	if err != nil {
		handleTimetableError(c, err)
		return
	}
	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// MySchedule 当前用户的任课课表
// GET /api/v1/timetable/my-schedule
func (h *TimetableHandler) MySchedule(c *gin.Context) {
	requester, ok := MustGetRequester(c)
	if !ok {
		return
	}

	var req dto.MyScheduleRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}
	var day *model.Weekday
	if req.DayOfWeek != "" {
		d, err := scheduling.ParseDay("day_of_week", req.DayOfWeek)
		if err != nil {
			handleTimetableError(c, err)
			return
		}
		day = &d
	}

	list, err := h.query.ByTeacher(c.Request.Context(), requester.ID, day)
	if err != nil {
		handleTimetableError(c, err)
		return
	}
	response.OK(c, list)
}

// BySemester 学期周视图
// GET /api/v1/timetable/semester/:id
func (h *TimetableHandler) BySemester(c *gin.Context) {
	id, ok := mustParamID(c, "id")
	if !ok {
		return
	}
	list, err := h.query.BySemester(c.Request.Context(), id)
	if err != nil {
		handleTimetableError(c, err)
		return
	}
	response.OK(c, list)
}

// BySubject 课程周网格
// GET /api/v1/timetable/subject/:id
func (h *TimetableHandler) BySubject(c *gin.Context) {
	id, ok := mustParamID(c, "id")
	if !ok {
		return
	}
	groups, err := h.query.BySubject(c.Request.Context(), id)
	if err != nil {
		handleTimetableError(c, err)
		return
	}
	response.OK(c, groups)
}

// Get 排课详情
// GET /api/v1/timetable/:id
func (h *TimetableHandler) Get(c *gin.Context) {
	id, ok := mustParamID(c, "id")
	if !ok {
		return
	}
	resp, err := h.query.Get(c.Request.Context(), id)
	if err != nil {
		handleTimetableError(c, err)
		return
	}
	response.OK(c, resp)
}

// ChangeLogs 排课变更日志
// GET /api/v1/timetable/:id/change-logs
func (h *TimetableHandler) ChangeLogs(c *gin.Context) {
	id, ok := mustParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ChangeLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}

	list, total, err := h.query.ChangeLogs(c.Request.Context(), id, &req)
	if err != nil {
		handleTimetableError(c, err)
		return
	}
	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// ════════════════════════════════════════════════════════════
// 错误映射
// ════════════════════════════════════════════════════════════

func bindError(c *gin.Context, err error) {
	response.ErrorWithDetail(c, http.StatusBadRequest, codeTimetableInvalid,
		response.KindValidation, "参数校验失败", dto.BindingDetail(err))
}

// handleTimetableError 将排课错误分类映射为统一响应
func handleTimetableError(c *gin.Context, err error) {
	var (
		ve *scheduling.ValidationError
		ce *scheduling.ConflictError
		nf *scheduling.NotFoundError
		ae *scheduling.AuthorizationError
	)
	switch {
	case errors.As(err, &ve):
		response.ErrorWithDetail(c, http.StatusBadRequest, codeTimetableInvalid,
			response.KindValidation, ve.Error(), dto.ValidationDetail{Field: ve.Field, Reason: ve.Reason})
	case errors.As(err, &ce):
		code := codeTimetableConflict
		if ce.Stale {
			code = codeTimetableStale
		}
		response.ErrorWithDetail(c, http.StatusConflict, code,
			response.KindConflict, ce.Error(), conflictDetail(ce))
	case errors.As(err, &nf):
		response.ErrorWithDetail(c, http.StatusNotFound, codeTimetableNotFound,
			response.KindNotFound, nf.Error(), gin.H{"what": string(nf.What), "id": nf.ID})
	case errors.As(err, &ae):
		response.Error(c, http.StatusForbidden, codeTimetableForbidden, response.KindAuthorization, ae.Error())
	default:
		response.InternalError(c)
	}
}

func conflictDetail(ce *scheduling.ConflictError) dto.ConflictDetail {
	detail := dto.ConflictDetail{
		Dimension: string(ce.Dimension),
		With:      ce.With,
		Stale:     ce.Stale,
	}
	if ce.Stale {
		detail.Dimension = "stale"
	}
	for _, cf := range ce.Conflicts {
		item := dto.ConflictItem{Dimension: string(cf.Dimension), With: cf.With}
		if e := cf.Entry; e != nil {
			item.DayOfWeek = e.DayOfWeek.String()
			item.StartTime = e.StartTime
			item.EndTime = e.EndTime
			item.RoomNo = e.RoomNo
			item.TeacherID = e.TeacherID
			item.SubjectID = e.SubjectID
		}
		detail.Conflicts = append(detail.Conflicts, item)
	}
	return detail
}
