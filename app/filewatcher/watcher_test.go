package filewatcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"labeloo/app/config"
	"labeloo/app/logger"
	"labeloo/app/service"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingIngester struct {
	mu    sync.Mutex
	paths []string
	fail  string
}

func (r *recordingIngester) IsIngestable(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".png" || ext == ".zip"
}

func (r *recordingIngester) IngestPath(_ context.Context, projectID uint, path string, _ float64) (*service.IngestSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, filepath.Base(path))
	if r.fail != "" && strings.Contains(path, r.fail) {
		return nil, errors.New("boom")
	}
	return &service.IngestSummary{CreatedTasks: 1}, nil
}

func (r *recordingIngester) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func newTestWatcher(t *testing.T, cfg config.WatcherConfig, ing Ingester) *FileWatcher {
	t.Helper()
	fw, err := NewFileWatcher(cfg, ing, logger.NewNop())
	require.NoError(t, err)
	fw.settleInterval = 10 * time.Millisecond
	fw.settleTimeout = 2 * time.Second
	t.Cleanup(func() { _ = fw.Stop() })
	return fw
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	list, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, e := range list {
		names = append(names, e.Name())
	}
	return names
}

func TestProcessExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("png"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.png"), []byte("png"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("txt"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.png"), []byte("png"), 0644))

	ing := &recordingIngester{fail: "bad"}
	fw := newTestWatcher(t, config.WatcherConfig{SourceDir: dir, ProjectID: 3, ProcessExisting: true}, ing)
	require.NoError(t, fw.Start())

	require.Eventually(t, func() bool { return len(ing.seen()) == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.ElementsMatch(t, []string{"a.png", "bad.png"}, ing.seen())

	require.Eventually(t, func() bool {
		return len(entries(t, filepath.Join(dir, ImportedDir))) == 1 && len(entries(t, filepath.Join(dir, FailedDir))) == 1
	}, 5*time.Second, 20*time.Millisecond)

	assert.ElementsMatch(t, []string{".hidden.png", "notes.txt", ImportedDir, FailedDir}, entries(t, dir))
}

func TestNewFileTriggersImport(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	fw := newTestWatcher(t, config.WatcherConfig{SourceDir: dir, ProjectID: 1}, ing)
	require.NoError(t, fw.Start())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "drop.zip"), []byte("PK"), 0644))
	require.Eventually(t, func() bool { return len(ing.seen()) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"drop.zip"}, ing.seen())
}

func TestManagerDisabledAndMissingDir(t *testing.T) {
	m, err := NewFileWatcherManager(config.WatcherConfigs{}, &recordingIngester{}, logger.NewNop())
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.NoError(t, m.Start())
	assert.Zero(t, m.GetWatcherCount())

	_, err = NewFileWatcherManager(config.WatcherConfigs{Enabled: true}, &recordingIngester{}, logger.NewNop())
	assert.Error(t, err)

	m, err = NewFileWatcherManager(config.WatcherConfigs{
		Enabled: true,
		Configs: []config.WatcherConfig{{SourceDir: filepath.Join(t.TempDir(), "missing"), ProjectID: 1}},
	}, &recordingIngester{}, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, m.GetWatcherCount())
	assert.Error(t, m.Start())
	assert.NoError(t, m.Stop())
}
