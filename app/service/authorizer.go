package service

import (
	"context"
	"fmt"
	"time"

	"labeloo/app/logger"
	"labeloo/app/model"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Authorizer 项目级权限判定
type Authorizer interface {
	MayPerform(ctx context.Context, userID, projectID uint, action string) (bool, error)
}

// RoleAuthorizer 基于项目成员角色权限位的判定，结果短时缓存
type RoleAuthorizer struct {
	db    *gorm.DB
	log   *logger.Logger
	cache *cache.Cache
}

// NewRoleAuthorizer 创建权限判定器，ttl 为缓存时间
func NewRoleAuthorizer(db *gorm.DB, log *logger.Logger, ttl time.Duration) *RoleAuthorizer {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RoleAuthorizer{
		db:    db,
		log:   log.Named("authorizer"),
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func grantKey(userID, projectID uint) string {
	return fmt.Sprintf("%d:%d", userID, projectID)
}

// grant 缓存的判定依据
type grant struct {
	systemAdmin bool
	member      bool
	flags       model.PermissionFlags
}

// MayPerform 系统管理员总是允许；其他用户需是项目成员且角色包含该权限
func (a *RoleAuthorizer) MayPerform(ctx context.Context, userID, projectID uint, action string) (bool, error) {
	key := grantKey(userID, projectID)
	if v, found := a.cache.Get(key); found {
		return v.(grant).allows(action), nil
	}

	g, err := a.load(ctx, userID, projectID)
	if err != nil {
		return false, err
	}
	a.cache.Set(key, g, cache.DefaultExpiration)

	allowed := g.allows(action)
	if !allowed {
		a.log.Debugf("用户 %d 无权在项目 %d 执行 %s", userID, projectID, action)
	}
	return allowed, nil
}

// Invalidate 成员或角色变更后清除缓存
func (a *RoleAuthorizer) Invalidate(userID, projectID uint) {
	a.cache.Delete(grantKey(userID, projectID))
}

func (g grant) allows(action string) bool {
	if g.systemAdmin {
		return true
	}
	return g.member && g.flags.Allows(action)
}

func (a *RoleAuthorizer) load(ctx context.Context, userID, projectID uint) (grant, error) {
	var user model.User
	err := a.db.WithContext(ctx).Select("id", "is_admin", "is_active").First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return grant{}, nil
		}
		return grant{}, errors.Wrap(err, "查询用户失败")
	}
	if !user.IsActive {
		return grant{}, nil
	}
	if user.IsAdmin {
		return grant{systemAdmin: true}, nil
	}

	var member model.ProjectMember
	err = a.db.WithContext(ctx).Preload("Role").
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return grant{}, nil
		}
		return grant{}, errors.Wrap(err, "查询项目成员失败")
	}

	g := grant{member: true}
	if member.Role != nil {
		g.flags = member.Role.Flags()
	}
	return g, nil
}
