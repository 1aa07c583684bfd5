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

// CreateProjectInput 新建项目参数
type CreateProjectInput struct {
	Name           string          `json:"name" binding:"required"`
	Description    string          `json:"description"`
	OrganizationID uint            `json:"organizationId"`
	ProjectType    uint            `json:"projectType"`
	LabelConfig    json.RawMessage `json:"labelConfig"`
}

// ProjectService 项目查询与创建
type ProjectService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewProjectService 创建项目服务
func NewProjectService(db *gorm.DB, log *logger.Logger) *ProjectService {
	return &ProjectService{db: db, log: log.Named("project")}
}

// Get 查询项目，不存在时返回 not_found
func (s *ProjectService) Get(ctx context.Context, id uint) (*model.Project, error) {
	var p model.Project
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("项目 %d 不存在", id)
		}
		return nil, errors.Wrapf(err, "查询项目 %d 失败", id)
	}
	return &p, nil
}

// Create 新建项目，创建者成为项目管理员
func (s *ProjectService) Create(ctx context.Context, creatorID uint, in CreateProjectInput) (*model.Project, error) {
	if in.Name == "" {
		return nil, apperr.Validation("项目名称不能为空")
	}
	if len(in.LabelConfig) > 0 && !json.Valid(in.LabelConfig) {
		return nil, apperr.Validation("标签配置不是合法的 JSON")
	}

	project := &model.Project{
		OrganizationID: in.OrganizationID,
		Name:           in.Name,
		Description:    in.Description,
		ProjectType:    in.ProjectType,
	}
	if len(in.LabelConfig) > 0 {
		project.LabelConfig = datatypes.JSON(in.LabelConfig)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return errors.Wrap(err, "创建项目失败")
		}
		var role model.Role
		if err := tx.Where("name = ?", model.RoleAdmin).First(&role).Error; err != nil {
			return errors.Wrap(err, "查询项目管理员角色失败")
		}
		member := &model.ProjectMember{UserID: creatorID, ProjectID: project.ID, RoleID: role.ID}
		if err := tx.Create(member).Error; err != nil {
			return errors.Wrap(err, "添加项目成员失败")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("项目已创建: ID=%d, 名称=%s, 创建者=%d", project.ID, project.Name, creatorID)
	return project, nil
}

// AddMember 以指定角色加入项目，已是成员时更新角色
func (s *ProjectService) AddMember(ctx context.Context, projectID, userID uint, roleName string) error {
	if _, err := s.Get(ctx, projectID); err != nil {
		return err
	}
	var user model.User
	if err := s.db.WithContext(ctx).Select("id").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("用户 %d 不存在", userID)
		}
		return errors.Wrap(err, "查询用户失败")
	}

	var role model.Role
	if err := s.db.WithContext(ctx).Where("name = ?", roleName).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("角色 %s 不存在", roleName)
		}
		return errors.Wrap(err, "查询角色失败")
	}

	var member model.ProjectMember
	err := s.db.WithContext(ctx).Where("project_id = ? AND user_id = ?", projectID, userID).First(&member).Error
	switch {
	case err == nil:
		member.RoleID = role.ID
		return errors.Wrap(s.db.WithContext(ctx).Save(&member).Error, "更新成员角色失败")
	case errors.Is(err, gorm.ErrRecordNotFound):
		member = model.ProjectMember{ProjectID: projectID, UserID: userID, RoleID: role.ID}
		return errors.Wrap(s.db.WithContext(ctx).Create(&member).Error, "添加项目成员失败")
	default:
		return errors.Wrap(err, "查询项目成员失败")
	}
}

// List 全部项目，命令行统计使用
func (s *ProjectService) List(ctx context.Context) ([]model.Project, error) {
	projects := []model.Project{}
	if err := s.db.WithContext(ctx).Order("id asc").Find(&projects).Error; err != nil {
		return nil, errors.Wrap(err, "查询项目列表失败")
	}
	return projects, nil
}

// ListForUser 用户所属的项目；系统管理员看到全部项目
func (s *ProjectService) ListForUser(ctx context.Context, userID uint) ([]model.Project, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Select("id", "is_admin").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("用户 %d 不存在", userID)
		}
		return nil, errors.Wrap(err, "查询用户失败")
	}

	projects := []model.Project{}
	q := s.db.WithContext(ctx).Model(&model.Project{})
	if !user.IsAdmin {
		q = q.Where("id IN (?)", s.db.Model(&model.ProjectMember{}).Select("project_id").Where("user_id = ?", userID))
	}
	if err := q.Order("id desc").Find(&projects).Error; err != nil {
		return nil, errors.Wrap(err, "查询项目列表失败")
	}
	return projects, nil
}
