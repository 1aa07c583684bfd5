package handler

import (
	"io"
	"net/http"
	"strconv"

	"labeloo/app/apperr"
	"labeloo/app/logger"
	"labeloo/app/service"
	"labeloo/app/storage"

	"github.com/gin-gonic/gin"
)

// maxPictureSize 公共图片上传大小上限
const maxPictureSize = 32 << 20

// BucketHandler 媒体存储的上传和读取
type BucketHandler struct {
	store   *storage.MediaStore
	preview *service.PreviewService
	log     *logger.Logger
}

// NewBucketHandler 创建 bucket 处理器
func NewBucketHandler(store *storage.MediaStore, preview *service.PreviewService, log *logger.Logger) *BucketHandler {
	return &BucketHandler{store: store, preview: preview, log: log.Named("bucket")}
}

// UploadPicture 保存图片到 public 分区，支持 multipart 字段 file 或直接以请求体上传
func (h *BucketHandler) UploadPicture(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPictureSize)

	var body io.Reader = c.Request.Body
	if c.ContentType() == "multipart/form-data" {
		fh, err := c.FormFile("file")
		if err != nil {
			badRequest(c, "缺少上传文件字段 file")
			return
		}
		f, err := fh.Open()
		if err != nil {
			badRequest(c, "读取上传文件失败: "+err.Error())
			return
		}
		defer f.Close()
		body = f
	}

	name := storage.GenerateName(".png")
	n, err := h.store.StoreFrom(body, h.store.PublicPath(name))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if n == 0 {
		_ = storage.Remove(h.store.PublicPath(name))
		badRequest(c, "上传内容为空")
		return
	}

	h.log.Debugf("公共图片已保存: %s (%d 字节)", name, n)
	success(c, gin.H{
		"name": name,
		"url":  h.store.PublicURL(name),
	}, "上传成功")
}

// ServePublic 读取 public 分区文件
func (h *BucketHandler) ServePublic(c *gin.Context) {
	h.serve(c, h.store.PublicPath(c.Param("name")))
}

// ServeProject 读取项目分区文件，projects 和 taskData 两个前缀指向同一目录
func (h *BucketHandler) ServeProject(c *gin.Context) {
	projectID, ok := paramID(c, "pid")
	if !ok {
		return
	}
	h.serve(c, h.store.ProjectPath(projectID, c.Param("name")))
}

// serve 输出文件，带 thumb 参数时输出缩略图
func (h *BucketHandler) serve(c *gin.Context, p string) {
	if !storage.Exists(p) {
		fail(c, h.log, apperr.NotFound("文件不存在"))
		return
	}

	raw := c.Query("thumb")
	if raw == "" {
		c.File(p)
		return
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "无效的thumb参数: "+raw)
		return
	}
	thumb, err := h.preview.Thumbnail(p, size)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/png", thumb)
}
