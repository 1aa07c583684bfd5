package handler

import (
	"labeloo/app/logger"
	"labeloo/app/model"
	"labeloo/app/service"

	"github.com/gin-gonic/gin"
)

// ProjectHandler 项目接口
type ProjectHandler struct {
	projects *service.ProjectService
	authz    service.Authorizer
	log      *logger.Logger
}

// grantCache 权限判定器的缓存失效接口
type grantCache interface {
	Invalidate(userID, projectID uint)
}

// AddMemberRequest 添加成员请求
type AddMemberRequest struct {
	UserID uint   `json:"userId" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

// NewProjectHandler 创建项目处理器
func NewProjectHandler(projects *service.ProjectService, authz service.Authorizer, log *logger.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, authz: authz, log: log.Named("project")}
}

// Create 创建项目，创建者成为项目管理员
func (h *ProjectHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req service.CreateProjectInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: "+err.Error())
		return
	}

	project, err := h.projects.Create(c.Request.Context(), userID, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, project, "项目创建成功")
}

// List 当前用户可见的项目
func (h *ProjectHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	projects, err := h.projects.ListForUser(c.Request.Context(), userID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, projects, "success")
}

// Get 项目详情
func (h *ProjectHandler) Get(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, ok := authorize(c, h.authz, h.log, projectID, model.PermissionView); !ok {
		return
	}

	project, err := h.projects.Get(c.Request.Context(), projectID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, project, "success")
}

// AddMember 添加项目成员或修改成员角色
func (h *ProjectHandler) AddMember(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, ok := authorize(c, h.authz, h.log, projectID, model.PermissionEditMembers); !ok {
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: "+err.Error())
		return
	}

	if err := h.projects.AddMember(c.Request.Context(), projectID, req.UserID, req.Role); err != nil {
		fail(c, h.log, err)
		return
	}
	// 角色变化立即生效
	if cache, ok := h.authz.(grantCache); ok {
		cache.Invalidate(req.UserID, projectID)
	}
	h.log.Infof("项目 %d 成员更新: 用户=%d, 角色=%s", projectID, req.UserID, req.Role)
	success(c, gin.H{"projectId": projectID, "userId": req.UserID, "role": req.Role}, "成员已更新")
}
