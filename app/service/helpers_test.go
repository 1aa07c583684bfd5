package service

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"labeloo/app/config"
	"labeloo/app/database"
	"labeloo/app/logger"
	"labeloo/app/model"
	"labeloo/app/storage"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db          *gorm.DB
	cfg         *config.Config
	log         *logger.Logger
	store       *storage.MediaStore
	tasks       *TaskService
	annotations *AnnotationService
	projects    *ProjectService
	user        *model.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "labeloo.db")
	cfg.Storage.BucketDir = filepath.Join(dir, "bucket")
	cfg.Storage.TempDir = filepath.Join(dir, "temp")

	db, err := database.Open(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	log := logger.NewNop()
	require.NoError(t, database.AutoMigrate(db))
	require.NoError(t, database.InitDefaultRoles(db, log))

	user := &model.User{Username: "alice", Password: "x", IsActive: true}
	require.NoError(t, db.Create(user).Error)

	return &testEnv{
		db:          db,
		cfg:         cfg,
		log:         log,
		store:       storage.NewMediaStore(cfg.Storage.BucketDir, cfg.Storage.PublicBaseURL),
		tasks:       NewTaskService(db, log),
		annotations: NewAnnotationService(db, log),
		projects:    NewProjectService(db, log),
		user:        user,
	}
}

func (e *testEnv) project(t *testing.T, name string) *model.Project {
	t.Helper()
	p, err := e.projects.Create(context.Background(), e.user.ID, CreateProjectInput{Name: name, Description: name + " dataset"})
	require.NoError(t, err)
	return p
}

func (e *testEnv) task(t *testing.T, projectID uint, priority int) *model.Task {
	t.Helper()
	task, err := e.tasks.Create(context.Background(), CreateTaskInput{
		ProjectID: projectID,
		DataURL:   "http://localhost:8787/api/bucket/taskData/1/x.png",
		Priority:  priority,
	})
	require.NoError(t, err)
	return task
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

// imageTask 在项目目录放一张 PNG 并创建指向它的任务
func (e *testEnv) imageTask(t *testing.T, projectID uint, name string, w, h int) *model.Task {
	t.Helper()
	require.NoError(t, e.store.Store(pngBytes(t, w, h), e.store.ProjectPath(projectID, name)))
	task, err := e.tasks.Create(context.Background(), CreateTaskInput{
		ProjectID: projectID,
		DataURL:   e.store.TaskDataURL(projectID, name),
		Metadata:  map[string]any{"originalName": name},
	})
	require.NoError(t, err)
	return task
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
