package server

import (
	"time"

	"labeloo/app/auth"
	"labeloo/app/config"
	"labeloo/app/logger"
	"labeloo/app/service"
	"labeloo/app/storage"

	"gorm.io/gorm"
)

// Services 组装好的业务服务，HTTP 服务和命令行工具共用
type Services struct {
	DB          *gorm.DB
	Store       *storage.MediaStore
	JWT         *auth.JWTService
	Authz       *service.RoleAuthorizer
	Projects    *service.ProjectService
	Tasks       *service.TaskService
	Annotations *service.AnnotationService
	Ingest      *service.IngestService
	Exports     *service.ExportService
	Preview     *service.PreviewService
	Janitor     *service.ExportJanitor
	notifier    *service.ExportNotifier
}

// NewServices 按配置创建全部服务
func NewServices(cfg *config.Config, db *gorm.DB, log *logger.Logger) *Services {
	store := storage.NewMediaStore(cfg.Storage.BucketDir, cfg.Storage.PublicBaseURL)
	tasks := service.NewTaskService(db, log)
	projects := service.NewProjectService(db, log)
	annotations := service.NewAnnotationService(db, log)

	s := &Services{
		DB:          db,
		Store:       store,
		JWT:         auth.NewJWTService(cfg.JWT),
		Authz:       service.NewRoleAuthorizer(db, log, time.Duration(cfg.Permission.CacheTTLSeconds)*time.Second),
		Projects:    projects,
		Tasks:       tasks,
		Annotations: annotations,
		Preview:     service.NewPreviewService(log),
		Janitor:     service.NewExportJanitor(cfg.Storage.TempDir, time.Duration(cfg.Export.RetentionHours)*time.Hour, log),
		notifier: service.NewExportNotifier(cfg.Export.NotifyURL,
			time.Duration(cfg.Export.NotifyTimeoutSeconds)*time.Second, log),
	}

	extractor := service.NewFFmpegExtractor(cfg.FFmpeg.Binary, log)
	s.Ingest = service.NewIngestService(cfg.Ingest, tasks, projects, store, extractor, log)

	// 未配置通知地址时不能把 nil 指针放进接口
	var hook service.ExportHook
	if s.notifier != nil {
		hook = s.notifier
	}
	s.Exports = service.NewExportService(tasks, annotations, projects, store, cfg.Storage.TempDir, hook, log)
	return s
}

// Close 释放通知器等持有的资源
func (s *Services) Close() error {
	if s.notifier != nil {
		return s.notifier.Close()
	}
	return nil
}
