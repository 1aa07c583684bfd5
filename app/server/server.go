package server

import (
	"context"
	"net/http"
	"time"

	"labeloo/app/config"
	"labeloo/app/filewatcher"
	"labeloo/app/handler"
	"labeloo/app/logger"
	"labeloo/app/middleware"

	"github.com/gin-gonic/gin"
)

// Server 表示 HTTP 服务器
type Server struct {
	Config   *config.Config
	Logger   *logger.Logger
	services *Services
	gin      *gin.Engine
	http     *http.Server
	watchers *filewatcher.FileWatcherManager
}

// New 创建一个新的 Server 实例
func New(cfg *config.Config, services *Services, log *logger.Logger) (*Server, error) {
	router := gin.New()
	router.Use(gin.Recovery(), accessLog(log.Named("http")))

	watchers, err := filewatcher.NewFileWatcherManager(cfg.Watcher, services.Ingest, log)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Config:   cfg,
		Logger:   log,
		services: services,
		gin:      router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		watchers: watchers,
	}

	// 设置路由
	s.setupRoutes()

	return s, nil
}

// Handler 返回路由，测试使用
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Start 启动后台任务和 HTTP 服务
func (s *Server) Start() error {
	if err := s.services.Janitor.Start(s.Config.Export.CleanupCron); err != nil {
		return err
	}
	if s.watchers != nil {
		if err := s.watchers.Start(); err != nil {
			s.Logger.Errorf("启动热文件夹监控失败: %v", err)
		}
	}

	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown 停止 HTTP 服务和后台任务
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)

	if s.watchers != nil {
		if werr := s.watchers.Stop(); werr != nil {
			s.Logger.Errorf("停止热文件夹监控失败: %v", werr)
		}
	}
	s.services.Janitor.Stop()
	if cerr := s.services.Close(); cerr != nil {
		s.Logger.Warnf("关闭导出通知器失败: %v", cerr)
	}
	return err
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes() {
	svc := s.services
	authHandler := handler.NewAuthHandler(svc.DB, svc.JWT, s.Logger)
	projectHandler := handler.NewProjectHandler(svc.Projects, svc.Authz, s.Logger)
	taskHandler := handler.NewTaskHandler(svc.Tasks, svc.Authz, s.Logger)
	annotationHandler := handler.NewAnnotationHandler(svc.Annotations, svc.Tasks, svc.Preview, svc.Store, svc.Authz, s.Logger)
	uploadHandler := handler.NewUploadHandler(svc.Ingest, svc.Authz, s.Logger)
	exportHandler := handler.NewExportHandler(svc.Exports, svc.Authz, s.Logger)
	bucketHandler := handler.NewBucketHandler(svc.Store, svc.Preview, s.Logger)

	// API路由组
	api := s.gin.Group("/api")

	// 认证相关路由（不需要JWT验证）
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/refresh", authHandler.RefreshToken)
	}

	// 媒体读取不需要认证，任务图片地址直接给标注前端使用
	bucket := api.Group("/bucket")
	{
		bucket.GET("/public/:name", bucketHandler.ServePublic)
		bucket.GET("/projects/:pid/:name", bucketHandler.ServeProject)
		bucket.GET("/taskData/:pid/:name", bucketHandler.ServeProject)
	}

	// 需要JWT验证的路由
	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(svc.JWT))
	{
		protected.GET("/me", authHandler.Me)
		protected.POST("/bucket/upload-picture", bucketHandler.UploadPicture)

		projects := protected.Group("/projects")
		{
			projects.POST("", projectHandler.Create)
			projects.GET("", projectHandler.List)
			projects.GET("/:id", projectHandler.Get)
			projects.POST("/:id/members", projectHandler.AddMember)
			projects.GET("/:id/tasks", taskHandler.ListByProject)
			projects.GET("/:id/tasks/pool", taskHandler.Pool)
			projects.GET("/:id/tasks/stats", taskHandler.Stats)
			projects.POST("/:id/tasks", taskHandler.Create)
			projects.POST("/:id/upload", uploadHandler.Upload)
			projects.POST("/:id/export", exportHandler.Export)
		}

		tasks := protected.Group("/tasks")
		{
			tasks.GET("/mine", taskHandler.Mine)
			tasks.PUT("/batch", taskHandler.BatchUpdate)
			tasks.GET("/:id", taskHandler.Get)
			tasks.PUT("/:id", taskHandler.Update)
			tasks.DELETE("/:id", taskHandler.Delete)
			tasks.POST("/:id/assign", taskHandler.Assign)
			tasks.POST("/:id/unassign", taskHandler.Unassign)
			tasks.POST("/:id/complete", taskHandler.Complete)
		}

		annotations := protected.Group("/annotations")
		{
			annotations.GET("/all", annotationHandler.ListMine)
			annotations.POST("", annotationHandler.Create)
			annotations.GET("/:id", annotationHandler.Get)
			annotations.GET("/:id/preview", annotationHandler.Preview)
		}

		protected.GET("/exports/:name", exportHandler.Download)
	}
}

// accessLog 简单的访问日志
func accessLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugf("%s %s %d %v",
			c.Request.Method,
			c.Request.RequestURI,
			c.Writer.Status(),
			time.Since(start),
		)
	}
}
