package model

import (
	"time"

	"gorm.io/datatypes"
)

// ReviewStatus 审核状态
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// IsValid 检查审核状态取值
func (s ReviewStatus) IsValid() bool {
	switch s {
	case ReviewStatusPending, ReviewStatusApproved, ReviewStatusRejected:
		return true
	}
	return false
}

// Annotation 某个标注员对某个任务的一次标注结果
type Annotation struct {
	ID             uint           `gorm:"primarykey" json:"id"`
	TaskID         uint           `gorm:"not null;index;comment:任务ID" json:"taskId"`
	UserID         uint           `gorm:"not null;index;comment:标注人ID" json:"userId"`
	ProjectID      uint           `gorm:"not null;index;comment:项目ID(冗余,便于查询)" json:"projectId"`
	AnnotationData datatypes.JSON `gorm:"not null;comment:标注图形数据" json:"annotationData"`
	IsGroundTruth  bool           `gorm:"not null;default:false;comment:是否为真值" json:"isGroundTruth"`
	ReviewStatus   ReviewStatus   `gorm:"size:20;not null;default:pending;comment:审核状态(pending,approved,rejected)" json:"reviewStatus"`
	ReviewerID     *uint          `gorm:"comment:审核人ID" json:"reviewerId"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// TableName 指定表名
func (Annotation) TableName() string {
	return "annotations"
}

// Shapes 解析标注数据中的图形
func (a *Annotation) Shapes() ([]Shape, error) {
	return ParseShapes(a.AnnotationData)
}
