package service

import (
	"context"
	"encoding/json"

	"labeloo/app/apperr"
	"labeloo/app/logger"
	"labeloo/app/model"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 导出时同一任务有多条标注的选择顺序：真值优先，其次已通过审核，最后按 id 最早
const exportPickOrder = "is_ground_truth desc, CASE WHEN review_status = 'approved' THEN 0 ELSE 1 END asc, id asc"

// CreateAnnotationInput 新建标注参数，作者由路由层按当前登录用户填入
type CreateAnnotationInput struct {
	TaskID         uint               `json:"taskId" binding:"required"`
	AnnotationData json.RawMessage    `json:"annotationData" binding:"required"`
	IsGroundTruth  bool               `json:"isGroundTruth"`
	ReviewStatus   model.ReviewStatus `json:"reviewStatus"`
	ReviewerID     *uint              `json:"reviewerId"`
}

// AnnotationService 标注存储
type AnnotationService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewAnnotationService 创建标注服务
func NewAnnotationService(db *gorm.DB, log *logger.Logger) *AnnotationService {
	return &AnnotationService{db: db, log: log.Named("annotation")}
}

// ListByUser 用户创建的标注，新的在前
func (s *AnnotationService) ListByUser(ctx context.Context, userID uint) ([]model.Annotation, error) {
	annotations := []model.Annotation{}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Find(&annotations).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询标注失败")
	}
	return annotations, nil
}

// GetByID 查询用户自己的标注
func (s *AnnotationService) GetByID(ctx context.Context, userID, id uint) (*model.Annotation, error) {
	var a model.Annotation
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("标注 %d 不存在", id)
		}
		return nil, errors.Wrapf(err, "查询标注 %d 失败", id)
	}
	return &a, nil
}

// Create 新建标注，项目ID从任务推导
func (s *AnnotationService) Create(ctx context.Context, authorID uint, in CreateAnnotationInput) (*model.Annotation, error) {
	if in.ReviewStatus == "" {
		in.ReviewStatus = model.ReviewStatusPending
	}
	if !in.ReviewStatus.IsValid() {
		return nil, apperr.Validation("无效的审核状态: %s", in.ReviewStatus)
	}
	if !json.Valid(in.AnnotationData) {
		return nil, apperr.Validation("标注数据不是合法的 JSON")
	}
	if _, err := model.ParseShapes(in.AnnotationData); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "标注数据格式错误")
	}

	var task model.Task
	if err := s.db.WithContext(ctx).Select("id", "project_id").First(&task, in.TaskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("任务 %d 不存在", in.TaskID)
		}
		return nil, errors.Wrapf(err, "查询任务 %d 失败", in.TaskID)
	}

	a := &model.Annotation{
		TaskID:         task.ID,
		UserID:         authorID,
		ProjectID:      task.ProjectID,
		AnnotationData: datatypes.JSON(in.AnnotationData),
		IsGroundTruth:  in.IsGroundTruth,
		ReviewStatus:   in.ReviewStatus,
		ReviewerID:     in.ReviewerID,
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, errors.Wrap(err, "创建标注失败")
	}
	s.log.Debugf("标注已创建: ID=%d, 任务=%d, 作者=%d", a.ID, a.TaskID, a.UserID)
	return a, nil
}

// PickForExport 选出任务用于导出的一条标注，没有标注时返回 nil
func (s *AnnotationService) PickForExport(ctx context.Context, taskID uint) (*model.Annotation, error) {
	var a model.Annotation
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order(exportPickOrder).Take(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "查询任务 %d 的标注失败", taskID)
	}
	return &a, nil
}
