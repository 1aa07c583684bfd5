package handler

import (
	"mime/multipart"
	"strconv"

	"labeloo/app/logger"
	"labeloo/app/model"
	"labeloo/app/service"

	"github.com/gin-gonic/gin"
)

// UploadHandler 项目文件上传
type UploadHandler struct {
	ingest *service.IngestService
	authz  service.Authorizer
	log    *logger.Logger
}

// NewUploadHandler 创建上传处理器
func NewUploadHandler(ingest *service.IngestService, authz service.Authorizer, log *logger.Logger) *UploadHandler {
	return &UploadHandler{ingest: ingest, authz: authz, log: log.Named("upload")}
}

// Upload 接收 multipart 字段 files（多个）和可选的 fps，逐个导入为任务
func (h *UploadHandler) Upload(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, ok := authorize(c, h.authz, h.log, projectID, model.PermissionUploadFiles); !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "解析上传表单失败: "+err.Error())
		return
	}
	headers := append(form.File["files"], form.File["files[]"]...)
	if len(headers) == 0 {
		badRequest(c, "没有上传任何文件")
		return
	}

	var fps float64
	if raw := c.PostForm("fps"); raw != "" {
		fps, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			badRequest(c, "无效的fps参数: "+raw)
			return
		}
	}

	uploads := make([]service.Upload, 0, len(headers))
	files := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			badRequest(c, "读取上传文件失败: "+fh.Filename)
			return
		}
		files = append(files, f)
		uploads = append(uploads, service.Upload{Name: fh.Filename, Reader: f})
	}

	summary, err := h.ingest.Ingest(c.Request.Context(), projectID, uploads, fps)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, summary, "上传处理完成")
}
