package handler

import (
	"net/http"

	"labeloo/app/apperr"
	"labeloo/app/logger"
	"labeloo/app/model"
	"labeloo/app/service"
	"labeloo/app/storage"

	"github.com/gin-gonic/gin"
)

// AnnotationHandler 标注接口，所有查询都限定在当前用户自己的标注内
type AnnotationHandler struct {
	annotations *service.AnnotationService
	tasks       *service.TaskService
	preview     *service.PreviewService
	store       *storage.MediaStore
	authz       service.Authorizer
	log         *logger.Logger
}

// NewAnnotationHandler 创建标注处理器
func NewAnnotationHandler(annotations *service.AnnotationService, tasks *service.TaskService, preview *service.PreviewService, store *storage.MediaStore, authz service.Authorizer, log *logger.Logger) *AnnotationHandler {
	return &AnnotationHandler{
		annotations: annotations,
		tasks:       tasks,
		preview:     preview,
		store:       store,
		authz:       authz,
		log:         log.Named("annotation"),
	}
}

// ListMine 当前用户的全部标注
func (h *AnnotationHandler) ListMine(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	annotations, err := h.annotations.ListByUser(c.Request.Context(), userID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, annotations, "success")
}

// Get 当前用户的单条标注
func (h *AnnotationHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	annotation, err := h.annotations.GetByID(c.Request.Context(), userID, id)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, annotation, "success")
}

// Create 提交标注，作者为当前用户
func (h *AnnotationHandler) Create(c *gin.Context) {
	var req service.CreateAnnotationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: "+err.Error())
		return
	}

	task, err := h.tasks.Find(c.Request.Context(), req.TaskID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	userID, ok := authorize(c, h.authz, h.log, task.ProjectID, model.PermissionView)
	if !ok {
		return
	}

	annotation, err := h.annotations.Create(c.Request.Context(), userID, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, annotation, "标注已保存")
}

// Preview 在任务图片上绘制标注图形
func (h *AnnotationHandler) Preview(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	annotation, err := h.annotations.GetByID(ctx, userID, id)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	task, err := h.tasks.Find(ctx, annotation.TaskID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	shapes, err := annotation.Shapes()
	if err != nil {
		fail(c, h.log, apperr.Wrap(apperr.KindValidation, err, "标注数据格式错误"))
		return
	}

	png, err := h.preview.Annotated(h.store.Resolve(task.DataURL), shapes)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
