package database

import (
	"fmt"
	"labeloo/app/auth"
	"labeloo/app/config"
	"labeloo/app/logger"
	"labeloo/app/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InitAdminUser 根据配置创建或同步系统管理员账户
func InitAdminUser(db *gorm.DB, cfg *config.Config, log *logger.Logger) error {
	if cfg.Server.Username == "" || cfg.Server.Password == "" {
		log.Warnf("配置文件中未设置管理员账户，跳过管理员初始化")
		return nil
	}

	var existingAdmin model.User
	result := db.Where("is_admin = ?", true).First(&existingAdmin)

	if result.Error == nil {
		needUpdate := false

		if existingAdmin.Username != cfg.Server.Username {
			// 新用户名不能与其他用户冲突
			var conflictUser model.User
			if err := db.Where("username = ? AND id != ?", cfg.Server.Username, existingAdmin.ID).First(&conflictUser).Error; err == nil {
				return fmt.Errorf("用户名 '%s' 已被其他用户使用，无法更新管理员用户名", cfg.Server.Username)
			}
			log.Infof("管理员用户名从 '%s' 更新为 '%s'", existingAdmin.Username, cfg.Server.Username)
			existingAdmin.Username = cfg.Server.Username
			needUpdate = true
		}

		if !auth.VerifyPassword(cfg.Server.Password, existingAdmin.Password) {
			hash, err := auth.HashPassword(cfg.Server.Password)
			if err != nil {
				return fmt.Errorf("哈希密码失败: %v", err)
			}
			existingAdmin.Password = hash
			needUpdate = true
			log.Infof("管理员 '%s' 密码已更新", cfg.Server.Username)
		}

		if needUpdate {
			if err := db.Save(&existingAdmin).Error; err != nil {
				return fmt.Errorf("更新管理员账户失败: %v", err)
			}
		}
		return nil
	}

	hashedPassword, err := auth.HashPassword(cfg.Server.Password)
	if err != nil {
		return fmt.Errorf("哈希密码失败: %v", err)
	}

	adminUser := model.User{
		Username: cfg.Server.Username,
		Password: hashedPassword,
		Email:    "admin@labeloo.local",
		IsActive: true,
		IsAdmin:  true,
	}
	if err := db.Create(&adminUser).Error; err != nil {
		return fmt.Errorf("创建管理员账户失败: %v", err)
	}

	log.Infof("管理员账户 '%s' 创建成功", cfg.Server.Username)
	return nil
}

// InitDefaultRoles 写入内置项目角色，已存在则跳过
func InitDefaultRoles(db *gorm.DB, log *logger.Logger) error {
	defaults := []model.Role{
		{
			Name:            model.RoleAdmin,
			Description:     "项目管理员，拥有全部权限",
			Scope:           "project",
			PermissionFlags: datatypes.JSON(`{"admin":true,"editProject":true,"deleteProject":true,"editMembers":true,"editRoles":true,"uploadFiles":true}`),
		},
		{
			Name:            model.RoleAnnotator,
			Description:     "标注员，可查看和领取任务",
			Scope:           "project",
			PermissionFlags: datatypes.JSON(`{"admin":false,"editProject":false,"deleteProject":false,"editMembers":false,"editRoles":false,"uploadFiles":false}`),
		},
	}

	for _, role := range defaults {
		var existing model.Role
		err := db.Where("name = ?", role.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		if err := db.Create(&role).Error; err != nil {
			return fmt.Errorf("创建角色 %s 失败: %w", role.Name, err)
		}
		log.Infof("内置角色 '%s' 已创建", role.Name)
	}
	return nil
}
