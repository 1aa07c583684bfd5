package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"labeloo/app/apperr"
	"labeloo/app/dataset"
	"labeloo/app/model"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExport(env *testEnv, hook ExportHook) *ExportService {
	return NewExportService(env.tasks, env.annotations, env.projects, env.store, env.cfg.Storage.TempDir, hook, env.log)
}

func (e *testEnv) complete(t *testing.T, task *model.Task) {
	t.Helper()
	ctx := context.Background()
	_, err := e.tasks.Assign(ctx, task.ID, e.user.ID)
	require.NoError(t, err)
	_, err = e.tasks.Complete(ctx, task.ID)
	require.NoError(t, err)
}

func (e *testEnv) annotate(t *testing.T, task *model.Task, data string) {
	t.Helper()
	_, err := e.annotations.Create(context.Background(), e.user.ID, CreateAnnotationInput{TaskID: task.ID, AnnotationData: json.RawMessage(data)})
	require.NoError(t, err)
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	out := map[string]string{}
	for _, f := range r.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = string(data)
	}
	return out
}

const squareRect = `{"annotations":[{"type":"rectangle","startPoint":{"x":10,"y":10},"width":20,"height":20}]}`

func TestExportNoCompletedTasks(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "empty")
	env.task(t, p.ID, 0)

	_, err := newExport(env, nil).Export(context.Background(), p.ID, ExportRequest{})
	assert.Equal(t, apperr.KindExhaustedInput, apperr.KindOf(err))
	assert.False(t, exists(env.cfg.Storage.TempDir), "不应创建导出目录")
}

func TestExportUnknownProjectAndBadFormat(t *testing.T) {
	env := newTestEnv(t)
	svc := newExport(env, nil)

	_, err := svc.Export(context.Background(), 77, ExportRequest{})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.Export(context.Background(), 77, ExportRequest{Format: "coco"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Export(context.Background(), 77, ExportRequest{SplitConfig: &dataset.SplitConfig{Train: 90, Test: 90}})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestExportYOLOSkipsUnannotatedAndMissing(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "yolo")

	unannotated := env.imageTask(t, p.ID, "a.png", 100, 100)
	env.complete(t, unannotated)

	good := env.imageTask(t, p.ID, "b.png", 100, 100)
	env.annotate(t, good, squareRect)
	env.complete(t, good)

	missing := env.imageTask(t, p.ID, "c.png", 100, 100)
	env.annotate(t, missing, squareRect)
	env.complete(t, missing)
	require.NoError(t, os.Remove(env.store.ProjectPath(p.ID, "c.png")))

	pending := env.imageTask(t, p.ID, "d.png", 100, 100)
	env.annotate(t, pending, squareRect)

	result, err := newExport(env, nil).Export(context.Background(), p.ID, ExportRequest{Format: "yolo"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalTasks)
	assert.Equal(t, 1, result.ExportedTasks)
	require.Len(t, result.Items, 1)
	assert.Equal(t, good.ID, result.Items[0].TaskID)
	assert.Equal(t, dataset.DefaultSplit, result.SplitConfig)

	files := readZip(t, result.ArchivePath)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"data.yaml", "images/" + itoa(good.ID) + ".png", "labels/" + itoa(good.ID) + ".txt"}, names)
	assert.Equal(t, "0 0.200000 0.200000 0.200000 0.200000", files["labels/"+itoa(good.ID)+".txt"])
	assert.Contains(t, files["data.yaml"], "total_images: 1")

	// 暂存目录已删除，只剩压缩包
	entries, err := os.ReadDir(env.cfg.Storage.TempDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, result.ArchiveName, entries[0].Name())
}

func TestExportJSONPassthrough(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "json")
	task := env.imageTask(t, p.ID, "a.png", 50, 40)
	env.annotate(t, task, `{"annotations":[{"type":"polygon","points":[{"x":1,"y":1},{"x":2,"y":1},{"x":2,"y":2}]}]}`)
	env.complete(t, task)

	result, err := newExport(env, nil).Export(context.Background(), p.ID, ExportRequest{Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, "json", result.Format)
	assert.Equal(t, 50, result.Items[0].Width)
	assert.Equal(t, 40, result.Items[0].Height)

	files := readZip(t, result.ArchivePath)
	_, hasManifest := files["data.yaml"]
	assert.False(t, hasManifest)
	label := files["labels/"+itoa(task.ID)+".json"]
	assert.Contains(t, label, "\n  \"annotations\"")
	assert.True(t, json.Valid([]byte(label)))
}

func TestExportAllSkippedIsExhausted(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "skipped")
	task := env.imageTask(t, p.ID, "a.png", 10, 10)
	env.complete(t, task)

	_, err := newExport(env, nil).Export(context.Background(), p.ID, ExportRequest{})
	assert.Equal(t, apperr.KindExhaustedInput, apperr.KindOf(err))

	entries, err := os.ReadDir(env.cfg.Storage.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "暂存目录应被清理")
}

func TestExportNotifiesWebhook(t *testing.T) {
	var mu sync.Mutex
	var received ExportNotification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	env := newTestEnv(t)
	notifier := NewExportNotifier(srv.URL, time.Second, env.log)
	defer notifier.Close()

	p := env.project(t, "hook")
	task := env.imageTask(t, p.ID, "a.png", 10, 10)
	env.annotate(t, task, squareRect)
	env.complete(t, task)

	result, err := newExport(env, notifier).Export(context.Background(), p.ID, ExportRequest{})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "dataset.exported", received.Event)
	assert.Equal(t, p.ID, received.ProjectID)
	assert.Equal(t, result.ArchiveName, received.ArchiveName)
	assert.Equal(t, 1, received.ExportedTasks)
}

func TestArchivePathAndJanitor(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "janitor")
	task := env.imageTask(t, p.ID, "a.png", 10, 10)
	env.annotate(t, task, squareRect)
	env.complete(t, task)

	svc := newExport(env, nil)
	result, err := svc.Export(context.Background(), p.ID, ExportRequest{})
	require.NoError(t, err)

	got, err := svc.ArchivePath(result.ArchiveName)
	require.NoError(t, err)
	assert.Equal(t, result.ArchivePath, got)

	_, err = svc.ArchivePath("../" + result.ArchiveName)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.ArchivePath("dataset_1_1.zip")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	janitor := NewExportJanitor(svc.TempDir(), time.Hour, env.log)
	assert.Zero(t, janitor.Sweep(time.Now()))
	assert.Equal(t, 1, janitor.Sweep(time.Now().Add(2*time.Hour)))
	assert.False(t, exists(filepath.Join(svc.TempDir(), result.ArchiveName)))

	require.Error(t, janitor.Start("not a cron spec"))
	require.NoError(t, janitor.Start("@every 1h"))
	janitor.Stop()
}

func TestArchiveProjectID(t *testing.T) {
	id, ok := ArchiveProjectID("dataset_12_1700000000000000000.zip")
	assert.True(t, ok)
	assert.EqualValues(t, 12, id)

	for _, name := range []string{"dataset_.zip", "report_12_1.zip", "dataset_abc_1.zip", "dataset_0_1.zip", "dataset_12.zip"} {
		_, ok := ArchiveProjectID(name)
		assert.False(t, ok, name)
	}
}
