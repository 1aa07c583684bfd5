package handler

import (
	"strconv"

	"labeloo/app/apperr"
	"labeloo/app/logger"
	"labeloo/app/model"
	"labeloo/app/service"

	"github.com/gin-gonic/gin"
)

// TaskHandler 任务接口
type TaskHandler struct {
	tasks *service.TaskService
	authz service.Authorizer
	log   *logger.Logger
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(tasks *service.TaskService, authz service.Authorizer, log *logger.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, authz: authz, log: log.Named("task")}
}

// BatchUpdateRequest 批量更新请求
type BatchUpdateRequest struct {
	IDs []uint `json:"ids"`
	service.TaskPatch
}

// AssignRequest 分配请求，userId 为空时分配给自己
type AssignRequest struct {
	UserID *uint `json:"userId"`
}

// ListByProject 项目任务，按状态分组
func (h *TaskHandler) ListByProject(c *gin.Context) {
	projectID, ok := h.projectScope(c, model.PermissionView)
	if !ok {
		return
	}
	groups, err := h.tasks.ListByProject(c.Request.Context(), projectID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, groups, "success")
}

// Pool 项目任务池中未分配的任务
func (h *TaskHandler) Pool(c *gin.Context) {
	projectID, ok := h.projectScope(c, model.PermissionView)
	if !ok {
		return
	}
	tasks, err := h.tasks.ListUnassigned(c.Request.Context(), projectID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, tasks, "success")
}

// Stats 项目任务统计
func (h *TaskHandler) Stats(c *gin.Context) {
	projectID, ok := h.projectScope(c, model.PermissionView)
	if !ok {
		return
	}
	stats, err := h.tasks.Stats(c.Request.Context(), projectID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, stats, "success")
}

// Create 在项目下登记任务
func (h *TaskHandler) Create(c *gin.Context) {
	projectID, ok := h.projectScope(c, model.PermissionEditProject)
	if !ok {
		return
	}

	var req service.CreateTaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: "+err.Error())
		return
	}
	req.ProjectID = projectID

	task, err := h.tasks.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, task, "任务创建成功")
}

// Mine 分配给当前用户的任务，可按 projectId 过滤
func (h *TaskHandler) Mine(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var projectID *uint
	if raw := c.Query("projectId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(c, "无效的projectId参数: "+raw)
			return
		}
		pid := uint(id)
		projectID = &pid
	}

	tasks, err := h.tasks.ListByAssignee(c.Request.Context(), userID, projectID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, tasks, "success")
}

// Get 任务详情，附带下一个待标注任务
func (h *TaskHandler) Get(c *gin.Context) {
	task, _, ok := h.taskScope(c, model.PermissionView)
	if !ok {
		return
	}
	detail, err := h.tasks.GetByID(c.Request.Context(), task.ID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, detail, "success")
}

// Update 更新单个任务
func (h *TaskHandler) Update(c *gin.Context) {
	task, _, ok := h.taskScope(c, model.PermissionEditProject)
	if !ok {
		return
	}

	var patch service.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "请求参数错误: "+err.Error())
		return
	}

	updated, err := h.tasks.Update(c.Request.Context(), task.ID, patch)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, updated, "任务已更新")
}

// BatchUpdate 批量更新，返回实际更新成功的任务
func (h *TaskHandler) BatchUpdate(c *gin.Context) {
	var req BatchUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		badRequest(c, "ids 不能为空")
		return
	}

	ctx := c.Request.Context()
	checked := make(map[uint]bool)
	ids := make([]uint, 0, len(req.IDs))
	for _, id := range req.IDs {
		task, err := h.tasks.Find(ctx, id)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				h.log.Warnf("批量更新跳过不存在的任务 %d", id)
				continue
			}
			fail(c, h.log, err)
			return
		}
		if !checked[task.ProjectID] {
			if _, ok := authorize(c, h.authz, h.log, task.ProjectID, model.PermissionEditProject); !ok {
				return
			}
			checked[task.ProjectID] = true
		}
		ids = append(ids, id)
	}

	updated := []model.Task{}
	if len(ids) > 0 {
		var err error
		updated, err = h.tasks.UpdateMany(ctx, ids, req.TaskPatch)
		if err != nil {
			fail(c, h.log, err)
			return
		}
	}
	success(c, updated, "批量更新完成")
}

// Assign 认领任务池中的任务，或由项目管理者分配给指定用户
func (h *TaskHandler) Assign(c *gin.Context) {
	task, userID, ok := h.taskScope(c, model.PermissionView)
	if !ok {
		return
	}

	var req AssignRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "请求参数错误: "+err.Error())
			return
		}
	}

	assignee := userID
	if req.UserID != nil {
		assignee = *req.UserID
	}
	// 成员只能从任务池认领给自己；改派、抢占或重开任务需要 editProject
	if assignee != userID || task.Status != model.TaskStatusUnassigned {
		if _, ok := authorize(c, h.authz, h.log, task.ProjectID, model.PermissionEditProject); !ok {
			return
		}
	}

	updated, err := h.tasks.Assign(c.Request.Context(), task.ID, assignee)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, updated, "任务已分配")
}

// Unassign 退回任务池
func (h *TaskHandler) Unassign(c *gin.Context) {
	task, ok := h.assigneeScope(c)
	if !ok {
		return
	}
	updated, err := h.tasks.Unassign(c.Request.Context(), task.ID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, updated, "任务已退回")
}

// Complete 标记任务完成
func (h *TaskHandler) Complete(c *gin.Context) {
	task, ok := h.assigneeScope(c)
	if !ok {
		return
	}
	updated, err := h.tasks.Complete(c.Request.Context(), task.ID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, updated, "任务已完成")
}

// Delete 删除任务及其标注
func (h *TaskHandler) Delete(c *gin.Context) {
	task, _, ok := h.taskScope(c, model.PermissionEditProject)
	if !ok {
		return
	}
	if err := h.tasks.Delete(c.Request.Context(), task.ID); err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, nil, "任务已删除")
}

func (h *TaskHandler) projectScope(c *gin.Context, action string) (uint, bool) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return 0, false
	}
	if _, ok := authorize(c, h.authz, h.log, projectID, action); !ok {
		return 0, false
	}
	return projectID, true
}

// taskScope 加载路径中的任务并检查其所属项目的权限
func (h *TaskHandler) taskScope(c *gin.Context, action string) (*model.Task, uint, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, 0, false
	}
	task, err := h.tasks.Find(c.Request.Context(), id)
	if err != nil {
		fail(c, h.log, err)
		return nil, 0, false
	}
	userID, ok := authorize(c, h.authz, h.log, task.ProjectID, action)
	if !ok {
		return nil, 0, false
	}
	return task, userID, true
}

// assigneeScope 负责人本人或有 editProject 权限的成员可以操作
func (h *TaskHandler) assigneeScope(c *gin.Context) (*model.Task, bool) {
	task, userID, ok := h.taskScope(c, model.PermissionView)
	if !ok {
		return nil, false
	}
	if task.AssignedTo != nil && *task.AssignedTo == userID {
		return task, true
	}
	if _, ok := authorize(c, h.authz, h.log, task.ProjectID, model.PermissionEditProject); !ok {
		return nil, false
	}
	return task, true
}
