package handler

import (
	"net/http"
	"strings"
	"time"

	"labeloo/app/auth"
	"labeloo/app/logger"
	"labeloo/app/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	db         *gorm.DB
	jwtService *auth.JWTService
	log        *logger.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(db *gorm.DB, jwtService *auth.JWTService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{db: db, jwtService: jwtService, log: log.Named("auth")}
}

func (h *AuthHandler) error(c *gin.Context, statusCode int, kind, message string) {
	c.JSON(statusCode, ApiResponse{Code: statusCode, Kind: kind, Message: message})
}

// LoginRequest 登录请求结构
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应结构
type LoginResponse struct {
	Token    string      `json:"token"`
	User     *model.User `json:"user"`
	ExpireAt int64       `json:"expire_at"`
}

// RegisterRequest 注册请求结构
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=20"`
	Password string `json:"password" binding:"required,min=6"`
	Email    string `json:"email" binding:"required,email"`
}

// Login 用户登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: "+err.Error())
		return
	}

	var user model.User
	if err := h.db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		h.error(c, http.StatusUnauthorized, "unauthorized", "用户名或密码错误")
		return
	}
	if !auth.VerifyPassword(req.Password, user.Password) {
		h.error(c, http.StatusUnauthorized, "unauthorized", "用户名或密码错误")
		return
	}
	if !user.IsActive {
		h.error(c, http.StatusForbidden, "forbidden", "用户账号已被禁用")
		return
	}

	token, err := h.jwtService.GenerateToken(user.ID, user.Username)
	if err != nil {
		h.log.Errorf("生成令牌失败: %v", err)
		h.error(c, http.StatusInternalServerError, "internal", "生成令牌失败")
		return
	}

	now := time.Now()
	user.LastLogin = &now
	if err := h.db.Model(&user).Update("last_login", now).Error; err != nil {
		h.log.Warnf("更新用户 %s 最后登录时间失败: %v", user.Username, err)
	}

	h.log.Infof("用户 %s 登录成功", user.Username)
	success(c, LoginResponse{
		Token:    token,
		User:     &user,
		ExpireAt: now.Add(h.jwtService.TTL()).Unix(),
	}, "登录成功")
}

// Register 用户注册
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: "+err.Error())
		return
	}

	var existing model.User
	if err := h.db.Where("username = ?", req.Username).First(&existing).Error; err == nil {
		h.error(c, http.StatusConflict, "conflict", "用户名已存在")
		return
	}
	if err := h.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		h.error(c, http.StatusConflict, "conflict", "邮箱已存在")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	user := model.User{
		Username: req.Username,
		Password: hashed,
		Email:    req.Email,
		IsActive: true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		h.log.Errorf("创建用户 %s 失败: %v", req.Username, err)
		h.error(c, http.StatusInternalServerError, "internal", "创建用户失败")
		return
	}

	success(c, user, "注册成功")
}

// RefreshToken 刷新令牌
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		h.error(c, http.StatusUnauthorized, "unauthorized", "Authorization header format must be Bearer {token}")
		return
	}

	newToken, err := h.jwtService.RefreshToken(strings.TrimSpace(token))
	if err != nil {
		h.error(c, http.StatusUnauthorized, "unauthorized", "刷新令牌失败: "+err.Error())
		return
	}

	success(c, gin.H{
		"token":     newToken,
		"expire_at": time.Now().Add(h.jwtService.TTL()).Unix(),
	}, "刷新成功")
}

// Me 获取当前用户信息
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var user model.User
	if err := h.db.First(&user, userID).Error; err != nil {
		h.error(c, http.StatusNotFound, "not_found", "用户不存在")
		return
	}

	success(c, user, "success")
}
