package handler

import (
	"labeloo/app/apperr"
	"labeloo/app/logger"
	"labeloo/app/model"
	"labeloo/app/service"

	"github.com/gin-gonic/gin"
)

// ExportHandler 数据集导出与下载
type ExportHandler struct {
	exports *service.ExportService
	authz   service.Authorizer
	log     *logger.Logger
}

// NewExportHandler 创建导出处理器
func NewExportHandler(exports *service.ExportService, authz service.Authorizer, log *logger.Logger) *ExportHandler {
	return &ExportHandler{exports: exports, authz: authz, log: log.Named("export")}
}

// ExportResponse 导出结果及下载地址
type ExportResponse struct {
	*service.ExportResult
	DownloadURL string `json:"downloadUrl"`
}

// Export 导出项目已完成的任务
func (h *ExportHandler) Export(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, ok := authorize(c, h.authz, h.log, projectID, model.PermissionEditProject); !ok {
		return
	}

	var req service.ExportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "请求参数错误: "+err.Error())
			return
		}
	}

	result, err := h.exports.Export(c.Request.Context(), projectID, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, ExportResponse{
		ExportResult: result,
		DownloadURL:  "/api/exports/" + result.ArchiveName,
	}, "导出成功")
}

// Download 下载导出的压缩包，需要对应项目的导出权限
func (h *ExportHandler) Download(c *gin.Context) {
	name := c.Param("name")
	projectID, ok := service.ArchiveProjectID(name)
	if !ok {
		fail(c, h.log, apperr.Validation("无效的导出文件名: %s", name))
		return
	}
	if _, ok := authorize(c, h.authz, h.log, projectID, model.PermissionEditProject); !ok {
		return
	}

	p, err := h.exports.ArchivePath(name)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.FileAttachment(p, name)
}
