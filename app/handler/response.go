package handler

import (
	"net/http"
	"strconv"

	"labeloo/app/apperr"
	"labeloo/app/logger"
	"labeloo/app/middleware"
	"labeloo/app/service"

	"github.com/gin-gonic/gin"
)

// ApiResponse 统一响应结构
type ApiResponse struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Data    any    `json:"data"`
}

// success 创建成功响应
func success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, ApiResponse{Code: 0, Message: message, Data: data})
}

// badRequest 参数错误
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ApiResponse{
		Code:    http.StatusBadRequest,
		Kind:    string(apperr.KindValidation),
		Message: message,
	})
}

// fail 按错误类别输出状态码，内部错误只记录日志不暴露细节
func fail(c *gin.Context, log *logger.Logger, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	resp := ApiResponse{
		Code:    status,
		Kind:    string(kind),
		Message: apperr.Message(err),
	}
	if kind == apperr.KindInternal {
		log.Errorf("%s %s 处理失败: %+v", c.Request.Method, c.FullPath(), err)
	} else {
		resp.Details = err.Error()
	}
	c.JSON(status, resp)
}

// paramID 解析路径中的数字ID
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "无效的"+name+"参数: "+c.Param(name))
		return 0, false
	}
	return uint(id), true
}

// currentUser 读取当前用户，缺失时返回 401
func currentUser(c *gin.Context) (uint, bool) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ApiResponse{
			Code:    http.StatusUnauthorized,
			Kind:    string(apperr.KindUnauthorized),
			Message: "未认证",
		})
		return 0, false
	}
	return userID, true
}

// authorize 检查当前用户在项目中的权限，不通过时已写入响应
func authorize(c *gin.Context, authz service.Authorizer, log *logger.Logger, projectID uint, action string) (uint, bool) {
	userID, ok := currentUser(c)
	if !ok {
		return 0, false
	}
	allowed, err := authz.MayPerform(c.Request.Context(), userID, projectID, action)
	if err != nil {
		fail(c, log, err)
		return 0, false
	}
	if !allowed {
		fail(c, log, apperr.Forbidden("没有项目 %d 的 %s 权限", projectID, action))
		return 0, false
	}
	return userID, true
}
