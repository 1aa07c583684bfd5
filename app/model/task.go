package model

import (
	"time"

	"gorm.io/datatypes"
)

// TaskStatus 任务生命周期状态
type TaskStatus string

const (
	TaskStatusUnassigned TaskStatus = "unassigned" // 在任务池中，无人认领
	TaskStatusAnnotating TaskStatus = "annotating" // 已分配，标注中
	TaskStatusCompleted  TaskStatus = "completed"  // 已完成
)

// DataTypeImage 当前唯一的媒体类型
const DataTypeImage = "image"

// IsValid 检查状态取值
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusUnassigned, TaskStatusAnnotating, TaskStatusCompleted:
		return true
	}
	return false
}

// Task 标注任务，一个任务对应一个媒体文件
type Task struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	ProjectID  uint           `gorm:"not null;index;comment:所属项目ID" json:"projectId"`
	DataURL    string         `gorm:"size:1000;not null;comment:媒体地址" json:"dataUrl"`
	DataType   string         `gorm:"size:20;not null;default:image;comment:媒体类型" json:"dataType"`
	Status     TaskStatus     `gorm:"size:20;not null;default:unassigned;index;comment:状态(unassigned,annotating,completed)" json:"status"`
	AssignedTo *uint          `gorm:"index;comment:负责人ID,为空表示在任务池中" json:"assignedTo"`
	Metadata   datatypes.JSON `gorm:"comment:元数据" json:"metadata"`
	Priority   int            `gorm:"not null;default:0;comment:优先级,越大越靠前" json:"priority"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// TableName 指定表名
func (Task) TableName() string {
	return "tasks"
}

// Assign 分配给用户，进入标注状态
func (t *Task) Assign(userID uint) {
	t.AssignedTo = &userID
	t.Status = TaskStatusAnnotating
}

// Unassign 退回任务池，状态与负责人一起清空
func (t *Task) Unassign() {
	t.AssignedTo = nil
	t.Status = TaskStatusUnassigned
}

// Complete 标记为已完成，负责人保留
func (t *Task) Complete() {
	t.Status = TaskStatusCompleted
}

// CheckInvariant 校验状态和负责人的一致性：
// unassigned 当且仅当没有负责人，annotating 必须有负责人
func (t *Task) CheckInvariant() bool {
	if !t.Status.IsValid() {
		return false
	}
	if t.Status == TaskStatusUnassigned {
		return t.AssignedTo == nil
	}
	if t.AssignedTo == nil {
		return false
	}
	return true
}

// TaskGroups 按状态分组的任务列表
type TaskGroups struct {
	Unassigned []Task `json:"unassigned"`
	Annotating []Task `json:"annotating"`
	Completed  []Task `json:"completed"`
}

// TaskStats 项目任务统计
type TaskStats struct {
	Total      int64 `json:"total"`
	Unassigned int64 `json:"unassigned"`
	Annotating int64 `json:"annotating"`
	Completed  int64 `json:"completed"`
}

// TaskDetail 任务详情，附带顺序审阅用的下一个任务
type TaskDetail struct {
	Task
	NextTaskID *uint `json:"nextTaskId"`
}
