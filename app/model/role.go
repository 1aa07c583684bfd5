package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// 项目级权限
const (
	PermissionView          = "view" // 任意成员即可
	PermissionEditProject   = "editProject"
	PermissionDeleteProject = "deleteProject"
	PermissionEditMembers   = "editMembers"
	PermissionEditRoles     = "editRoles"
	PermissionUploadFiles   = "uploadFiles"
)

// 内置角色名
const (
	RoleAdmin     = "admin"
	RoleAnnotator = "annotator"
)

// Role 角色，权限位以 JSON 保存
type Role struct {
	ID              uint           `gorm:"primarykey" json:"id"`
	Name            string         `gorm:"size:100;not null;uniqueIndex;comment:角色名" json:"name"`
	Description     string         `gorm:"size:200;comment:描述" json:"description"`
	Scope           string         `gorm:"size:20;not null;default:project;comment:作用域(project,organization)" json:"scope"`
	PermissionFlags datatypes.JSON `gorm:"not null;comment:权限位" json:"permissionFlags"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// TableName 指定表名
func (Role) TableName() string {
	return "roles"
}

// PermissionFlags 项目权限位
type PermissionFlags struct {
	Admin         bool `json:"admin"`
	EditProject   bool `json:"editProject"`
	DeleteProject bool `json:"deleteProject"`
	EditMembers   bool `json:"editMembers"`
	EditRoles     bool `json:"editRoles"`
	UploadFiles   bool `json:"uploadFiles"`
}

// Flags 解析权限位，解析失败按无权限处理
func (r *Role) Flags() PermissionFlags {
	var flags PermissionFlags
	if len(r.PermissionFlags) == 0 {
		return flags
	}
	_ = json.Unmarshal(r.PermissionFlags, &flags)
	return flags
}

// Allows 判断权限位是否包含指定动作，admin 拥有全部权限
func (f PermissionFlags) Allows(action string) bool {
	if f.Admin {
		return true
	}
	switch action {
	case PermissionView:
		return true
	case PermissionEditProject:
		return f.EditProject
	case PermissionDeleteProject:
		return f.DeleteProject
	case PermissionEditMembers:
		return f.EditMembers
	case PermissionEditRoles:
		return f.EditRoles
	case PermissionUploadFiles:
		return f.UploadFiles
	}
	return false
}
