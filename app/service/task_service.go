package service

import (
	"bytes"
	"context"
	"encoding/json"

	"labeloo/app/apperr"
	"labeloo/app/logger"
	"labeloo/app/model"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 所有列表统一的排序：优先级高的在前，同优先级新建的在前
const taskListOrder = "priority desc, created_at desc, id desc"

// 顺序审阅的下一个任务，同排序位置时取 id 较小者
const nextTaskOrder = "priority desc, created_at desc, id asc"

// OptionalUint 区分 JSON 中字段缺失与显式 null
type OptionalUint struct {
	Set   bool
	Value *uint
}

func (o *OptionalUint) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v uint
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// TaskPatch 任务的部分更新字段，nil 表示不修改
type TaskPatch struct {
	Status     *model.TaskStatus `json:"status"`
	AssignedTo OptionalUint      `json:"assignedTo"`
	Metadata   datatypes.JSON    `json:"metadata"`
	Priority   *int              `json:"priority"`
}

// apply 应用到任务上并维持状态与负责人的一致性
func (p TaskPatch) apply(t *model.Task) error {
	if p.Status != nil && !p.Status.IsValid() {
		return apperr.Validation("无效的任务状态: %s", *p.Status)
	}

	if p.AssignedTo.Set {
		t.AssignedTo = p.AssignedTo.Value
		if p.Status == nil {
			switch {
			case t.AssignedTo == nil:
				t.Status = model.TaskStatusUnassigned
			case t.Status == model.TaskStatusUnassigned:
				t.Status = model.TaskStatusAnnotating
			}
		}
	}
	if p.Status != nil {
		t.Status = *p.Status
		if t.Status == model.TaskStatusUnassigned && !p.AssignedTo.Set {
			t.AssignedTo = nil
		}
	}
	if p.Metadata != nil {
		t.Metadata = p.Metadata
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}

	if !t.CheckInvariant() {
		return apperr.Validation("任务 %d 的状态 %s 与负责人不一致", t.ID, t.Status)
	}
	return nil
}

// CreateTaskInput 新建任务参数
type CreateTaskInput struct {
	ProjectID uint           `json:"projectId"`
	DataURL   string         `json:"dataUrl" binding:"required"`
	DataType  string         `json:"dataType"`
	Metadata  map[string]any `json:"metadata"`
	Priority  int            `json:"priority"`
}

// TaskService 任务登记与生命周期管理
type TaskService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewTaskService 创建任务服务
func NewTaskService(db *gorm.DB, log *logger.Logger) *TaskService {
	return &TaskService{db: db, log: log.Named("task")}
}

// ListByProject 按状态分组返回项目下所有任务
func (s *TaskService) ListByProject(ctx context.Context, projectID uint) (*model.TaskGroups, error) {
	var tasks []model.Task
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order(taskListOrder).Find(&tasks).Error; err != nil {
		return nil, errors.Wrap(err, "查询项目任务失败")
	}

	groups := &model.TaskGroups{
		Unassigned: []model.Task{},
		Annotating: []model.Task{},
		Completed:  []model.Task{},
	}
	for _, t := range tasks {
		switch t.Status {
		case model.TaskStatusUnassigned:
			groups.Unassigned = append(groups.Unassigned, t)
		case model.TaskStatusAnnotating:
			groups.Annotating = append(groups.Annotating, t)
		case model.TaskStatusCompleted:
			groups.Completed = append(groups.Completed, t)
		}
	}
	return groups, nil
}

// ListByAssignee 用户名下的任务，projectID 为 nil 时不按项目过滤
func (s *TaskService) ListByAssignee(ctx context.Context, userID uint, projectID *uint) ([]model.Task, error) {
	q := s.db.WithContext(ctx).Where("assigned_to = ?", userID)
	if projectID != nil {
		q = q.Where("project_id = ?", *projectID)
	}

	tasks := []model.Task{}
	if err := q.Order(taskListOrder).Find(&tasks).Error; err != nil {
		return nil, errors.Wrap(err, "查询用户任务失败")
	}
	return tasks, nil
}

// ListUnassigned 任务池：项目下无人认领的任务
func (s *TaskService) ListUnassigned(ctx context.Context, projectID uint) ([]model.Task, error) {
	tasks := []model.Task{}
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND assigned_to IS NULL", projectID).
		Order(taskListOrder).
		Find(&tasks).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询任务池失败")
	}
	return tasks, nil
}

// ListCompleted 项目下已完成的任务，导出使用
func (s *TaskService) ListCompleted(ctx context.Context, projectID uint) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND status = ?", projectID, model.TaskStatusCompleted).
		Order("id asc").
		Find(&tasks).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询已完成任务失败")
	}
	return tasks, nil
}

// Find 按 ID 查询任务，不存在时返回 not_found
func (s *TaskService) Find(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := s.db.WithContext(ctx).First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("任务 %d 不存在", id)
		}
		return nil, errors.Wrapf(err, "查询任务 %d 失败", id)
	}
	return &task, nil
}

// GetByID 任务详情，附带同项目中 id 更大的下一个标注中任务
func (s *TaskService) GetByID(ctx context.Context, id uint) (*model.TaskDetail, error) {
	task, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &model.TaskDetail{Task: *task}

	var next model.Task
	err = s.db.WithContext(ctx).
		Select("id").
		Where("project_id = ? AND status = ? AND id > ?", task.ProjectID, model.TaskStatusAnnotating, task.ID).
		Order(nextTaskOrder).
		Take(&next).Error
	switch {
	case err == nil:
		detail.NextTaskID = &next.ID
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, errors.Wrap(err, "查询下一个任务失败")
	}
	return detail, nil
}

// Create 新建任务，初始状态为 unassigned
func (s *TaskService) Create(ctx context.Context, in CreateTaskInput) (*model.Task, error) {
	if in.ProjectID == 0 {
		return nil, apperr.Validation("缺少项目ID")
	}
	if in.DataURL == "" {
		return nil, apperr.Validation("缺少媒体地址")
	}
	if in.DataType == "" {
		in.DataType = model.DataTypeImage
	}

	task := &model.Task{
		ProjectID: in.ProjectID,
		DataURL:   in.DataURL,
		DataType:  in.DataType,
		Status:    model.TaskStatusUnassigned,
		Priority:  in.Priority,
	}
	if in.Metadata != nil {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, err, "元数据无法序列化")
		}
		task.Metadata = datatypes.JSON(raw)
	}

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, errors.Wrap(err, "创建任务失败")
	}
	s.log.Debugf("任务已创建: ID=%d, 项目=%d, 地址=%s", task.ID, task.ProjectID, task.DataURL)
	return task, nil
}

// Update 更新单个任务
func (s *TaskService) Update(ctx context.Context, id uint, patch TaskPatch) (*model.Task, error) {
	task, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := patch.apply(task); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Save(task).Error; err != nil {
		return nil, errors.Wrapf(err, "更新任务 %d 失败", id)
	}
	return task, nil
}

// UpdateMany 批量更新，每个任务独立处理，只返回更新成功的部分
func (s *TaskService) UpdateMany(ctx context.Context, ids []uint, patch TaskPatch) ([]model.Task, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation("缺少任务ID")
	}

	updated := make([]model.Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.Update(ctx, id, patch)
		if err != nil {
			s.log.Warnf("批量更新跳过任务 %d: %v", id, err)
			continue
		}
		updated = append(updated, *task)
	}

	s.log.Infof("批量更新完成: 请求 %d 个, 成功 %d 个", len(ids), len(updated))
	return updated, nil
}

// Assign 分配给用户并进入标注状态
func (s *TaskService) Assign(ctx context.Context, id, userID uint) (*model.Task, error) {
	return s.transition(ctx, id, func(t *model.Task) { t.Assign(userID) })
}

// Unassign 退回任务池
func (s *TaskService) Unassign(ctx context.Context, id uint) (*model.Task, error) {
	return s.transition(ctx, id, (*model.Task).Unassign)
}

// Complete 标记完成
func (s *TaskService) Complete(ctx context.Context, id uint) (*model.Task, error) {
	return s.transition(ctx, id, (*model.Task).Complete)
}

func (s *TaskService) transition(ctx context.Context, id uint, fn func(*model.Task)) (*model.Task, error) {
	task, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	fn(task)
	if !task.CheckInvariant() {
		return nil, apperr.Validation("任务 %d 当前没有负责人，不能切换到 %s", id, task.Status)
	}

	if err := s.db.WithContext(ctx).Save(task).Error; err != nil {
		return nil, errors.Wrapf(err, "更新任务 %d 状态失败", id)
	}
	return task, nil
}

// Delete 删除任务及其标注
func (s *TaskService) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.Task{}, id)
		if res.Error != nil {
			return errors.Wrapf(res.Error, "删除任务 %d 失败", id)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("任务 %d 不存在", id)
		}
		if err := tx.Where("task_id = ?", id).Delete(&model.Annotation{}).Error; err != nil {
			return errors.Wrapf(err, "删除任务 %d 的标注失败", id)
		}
		return nil
	})
}

// Stats 项目任务数量统计
func (s *TaskService) Stats(ctx context.Context, projectID uint) (*model.TaskStats, error) {
	var rows []struct {
		Status model.TaskStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&model.Task{}).
		Select("status, count(*) as count").
		Where("project_id = ?", projectID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "统计任务失败")
	}

	stats := &model.TaskStats{}
	for _, r := range rows {
		stats.Total += r.Count
		switch r.Status {
		case model.TaskStatusUnassigned:
			stats.Unassigned = r.Count
		case model.TaskStatusAnnotating:
			stats.Annotating = r.Count
		case model.TaskStatusCompleted:
			stats.Completed = r.Count
		}
	}
	return stats, nil
}
