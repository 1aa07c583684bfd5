package model

import (
	"time"

	"gorm.io/datatypes"
)

// Project 标注项目
type Project struct {
	ID             uint           `gorm:"primarykey" json:"id"`
	OrganizationID uint           `gorm:"index;comment:所属组织ID" json:"organizationId"`
	Name           string         `gorm:"size:200;not null;comment:项目名称" json:"name"`
	Description    string         `gorm:"type:text;comment:项目描述" json:"description"`
	ProjectType    uint           `gorm:"default:0;comment:项目类型" json:"projectType"`
	LabelConfig    datatypes.JSON `gorm:"comment:标签配置" json:"labelConfig"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// TableName 指定表名
func (Project) TableName() string {
	return "projects"
}

// ProjectMember 项目成员及其角色
type ProjectMember struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_project_user;comment:用户ID" json:"userId"`
	ProjectID uint      `gorm:"not null;uniqueIndex:idx_project_user;comment:项目ID" json:"projectId"`
	RoleID    uint      `gorm:"not null;comment:角色ID" json:"roleId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Role *Role `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

// TableName 指定表名
func (ProjectMember) TableName() string {
	return "project_relations"
}
