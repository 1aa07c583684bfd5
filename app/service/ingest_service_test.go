package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"labeloo/app/apperr"
	"labeloo/app/model"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	frames int
	// indices 指定输出的帧序号，为空时输出 1..frames
	indices []int
	err    error
	gotFPS float64
	outDir string
	pngs   func() []byte
}

func (f *fakeExtractor) ExtractFrames(_ context.Context, videoPath string, fps float64, outDir string) ([]string, error) {
	f.gotFPS = fps
	f.outDir = outDir
	if f.err != nil {
		return nil, f.err
	}
	if _, err := os.Stat(videoPath); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}
	indices := f.indices
	if len(indices) == 0 {
		for i := 1; i <= f.frames; i++ {
			indices = append(indices, i)
		}
	}
	for _, i := range indices {
		if err := os.WriteFile(filepath.Join(outDir, fmt.Sprintf("frame_%04d.png", i)), f.pngs(), 0644); err != nil {
			return nil, err
		}
	}
	return ListFrames(outDir)
}

func newIngest(env *testEnv, extractor FrameExtractor) *IngestService {
	return NewIngestService(env.cfg.Ingest, env.tasks, env.projects, env.store, extractor, env.log)
}

func zipBytes(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func countTasks(t *testing.T, env *testEnv, projectID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.db.Model(&model.Task{}).Where("project_id = ?", projectID).Count(&n).Error)
	return n
}

func TestIngestSingleImage(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "img")
	svc := newIngest(env, &fakeExtractor{})

	summary, err := svc.Ingest(context.Background(), p.ID, []Upload{
		{Name: "cat.png", Reader: bytes.NewReader(pngBytes(t, 8, 8))},
		{Name: "notes.txt", Reader: strings.NewReader("hello")},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CreatedTasks)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, summary.Results, 2)

	img := summary.Results[0]
	assert.Equal(t, OutcomeCreated, img.Status)
	require.NotNil(t, img.TaskID)
	assert.True(t, strings.HasSuffix(img.StoredName, ".png"))
	assert.True(t, exists(env.store.ProjectPath(p.ID, img.StoredName)))

	task, err := env.tasks.Find(context.Background(), *img.TaskID)
	require.NoError(t, err)
	assert.Equal(t, env.store.ProjectPath(p.ID, img.StoredName), env.store.Resolve(task.DataURL))
	assert.Contains(t, string(task.Metadata), `"originalName":"cat.png"`)
	assert.Contains(t, string(task.Metadata), `"mimeType":"image/png"`)

	skipped := summary.Results[1]
	assert.Equal(t, OutcomeSkipped, skipped.Status)
	assert.Nil(t, skipped.TaskID)
}

func TestIngestZipSkipsNonImages(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "zip")
	svc := newIngest(env, &fakeExtractor{})

	archive := zipBytes(t, map[string][]byte{
		"a.png":            pngBytes(t, 4, 4),
		"nested/b.jpg":     []byte("jpeg-ish"),
		"c.PNG":            pngBytes(t, 2, 2),
		"readme.txt":       []byte("not an image"),
		"__MACOSX/._a.png": []byte("junk"),
	})

	summary, err := svc.Ingest(context.Background(), p.ID, []Upload{{Name: "set.zip", Reader: bytes.NewReader(archive)}}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.CreatedTasks)
	assert.Equal(t, 2, summary.Skipped)
	assert.EqualValues(t, 3, countTasks(t, env, p.ID))

	for _, r := range summary.Results {
		assert.Equal(t, "set.zip", r.Source)
	}

	raws, err := os.ReadDir(filepath.Join(env.store.ProjectDir(p.ID), "raw"))
	require.NoError(t, err)
	assert.Len(t, raws, 1)
}

func TestIngestCorruptZipReportsFailure(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "badzip")
	svc := newIngest(env, &fakeExtractor{})

	outcomes, err := svc.IngestZip(context.Background(), p.ID, "broken.zip", strings.NewReader("PK\x03\x04 truncated"))
	require.NoError(t, err)
	require.NotEmpty(t, outcomes)
	assert.Equal(t, OutcomeFailed, outcomes[len(outcomes)-1].Status)
	assert.Equal(t, "broken.zip", outcomes[len(outcomes)-1].File)
}

func TestIngestVideo(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "video")
	ext := &fakeExtractor{frames: 3, pngs: func() []byte { return pngBytes(t, 6, 6) }}
	svc := newIngest(env, ext)

	summary, err := svc.Ingest(context.Background(), p.ID, []Upload{{Name: "clip.mp4", Reader: strings.NewReader("not really a video")}}, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.CreatedTasks)
	assert.Equal(t, 2.0, ext.gotFPS)
	assert.False(t, exists(ext.outDir), "抽帧目录应被删除")

	task, err := env.tasks.Find(context.Background(), *summary.Results[2].TaskID)
	require.NoError(t, err)
	assert.Contains(t, string(task.Metadata), `"frameIndex":3`)
	assert.Contains(t, string(task.Metadata), `"sourceVideo":"clip.mp4"`)
}

func TestListFramesOrdersByFrameNumber(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame_9999.png", "frame_10000.png", "frame_1001.png", "frame_0002.png", "notes.txt", "frame_x.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	frames, err := ListFrames(dir)
	require.NoError(t, err)

	var got []int
	for _, f := range frames {
		n, ok := FrameIndex(f)
		require.True(t, ok, f)
		got = append(got, n)
	}
	assert.Equal(t, []int{2, 1001, 9999, 10000}, got)
}

func TestIngestVideoFrameIndexFromFileName(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "long video")
	ext := &fakeExtractor{indices: []int{9999, 10000, 1001}, pngs: func() []byte { return pngBytes(t, 4, 4) }}
	svc := newIngest(env, ext)

	summary, err := svc.Ingest(context.Background(), p.ID, []Upload{{Name: "long.mp4", Reader: strings.NewReader("x")}}, 30)
	require.NoError(t, err)
	require.Equal(t, 3, summary.CreatedTasks)

	want := []string{"frame_1001.png", "frame_9999.png", "frame_10000.png"}
	for i, r := range summary.Results {
		assert.Equal(t, want[i], r.File)
		task, err := env.tasks.Find(context.Background(), *r.TaskID)
		require.NoError(t, err)
		index, _ := FrameIndex(r.File)
		assert.Contains(t, string(task.Metadata), fmt.Sprintf(`"frameIndex":%d`, index))
	}
}

func TestIngestVideoRequiresFPS(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "nofps")
	svc := newIngest(env, &fakeExtractor{})

	_, err := svc.Ingest(context.Background(), p.ID, []Upload{{Name: "clip.mov", Reader: strings.NewReader("x")}}, 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.False(t, exists(env.store.ProjectDir(p.ID)))
}

func TestIngestVideoExtractorFailure(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "ffmpeg")
	ext := &fakeExtractor{err: errors.New("exit status 1")}
	svc := newIngest(env, ext)

	summary, err := svc.Ingest(context.Background(), p.ID, []Upload{{Name: "clip.mp4", Reader: strings.NewReader("x")}}, 1)
	require.NoError(t, err)
	assert.Zero(t, summary.CreatedTasks)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, OutcomeFailed, summary.Results[0].Status)
	assert.Contains(t, summary.Results[0].Message, "exit status 1")
	assert.EqualValues(t, 0, countTasks(t, env, p.ID))

	// 视频原件保留
	assert.True(t, exists(filepath.Join(env.store.ProjectDir(p.ID), "raw", summary.Results[0].StoredName)))
	assert.False(t, exists(ext.outDir))
}

func TestIngestUnknownProject(t *testing.T) {
	env := newTestEnv(t)
	svc := newIngest(env, &fakeExtractor{})
	_, err := svc.Ingest(context.Background(), 404, []Upload{{Name: "a.png", Reader: bytes.NewReader(pngBytes(t, 1, 1))}}, 0)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.Ingest(context.Background(), 0, nil, 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
