// Package filewatcher 监控热文件夹，把放入的图片、压缩包和视频导入到对应项目
package filewatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"labeloo/app/config"
	"labeloo/app/logger"
	"labeloo/app/service"
	"labeloo/app/utils/pathhelper"

	"github.com/fsnotify/fsnotify"
)

// 导入后文件移入的子目录，监控和扫描都会忽略以点开头的目录
const (
	ImportedDir = ".imported"
	FailedDir   = ".failed"
)

// Ingester 导入服务中监控器用到的部分
type Ingester interface {
	IsIngestable(name string) bool
	IngestPath(ctx context.Context, projectID uint, path string, fps float64) (*service.IngestSummary, error)
}

// FileWatcherManager 文件监控管理器，管理多个监控实例
type FileWatcherManager struct {
	watchers []*FileWatcher
	logger   *logger.Logger
	mu       sync.RWMutex
}

// NewFileWatcherManager 创建新的文件监控管理器，未启用时返回 nil
func NewFileWatcherManager(configs config.WatcherConfigs, ingester Ingester, log *logger.Logger) (*FileWatcherManager, error) {
	if !configs.Enabled {
		return nil, nil
	}
	if len(configs.Configs) == 0 {
		return nil, fmt.Errorf("热文件夹已启用但没有配置任何目录")
	}

	manager := &FileWatcherManager{
		logger:   log.Named("watcher"),
		watchers: make([]*FileWatcher, 0, len(configs.Configs)),
	}
	for i := range configs.Configs {
		watcher, err := NewFileWatcher(configs.Configs[i], ingester, manager.logger)
		if err != nil {
			manager.stopAll()
			return nil, fmt.Errorf("创建第%d个文件监控器失败: %w", i+1, err)
		}
		manager.watchers = append(manager.watchers, watcher)
	}
	return manager, nil
}

// Start 启动所有文件监控器
func (m *FileWatcherManager) Start() error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, watcher := range m.watchers {
		if err := watcher.Start(); err != nil {
			for j := 0; j < i; j++ {
				m.watchers[j].Stop()
			}
			return fmt.Errorf("启动第%d个文件监控器失败: %w", i+1, err)
		}
	}

	m.logger.Infof("热文件夹监控已启动，共 %d 个目录", len(m.watchers))
	return nil
}

// Stop 停止所有文件监控器
func (m *FileWatcherManager) Stop() error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stopAll()
}

func (m *FileWatcherManager) stopAll() error {
	var errs []error
	for i, watcher := range m.watchers {
		if err := watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("停止第%d个文件监控器失败: %w", i+1, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("停止文件监控器时出现错误: %v", errs)
	}
	m.logger.Info("热文件夹监控已停止")
	return nil
}

// GetWatcherCount 获取监控器数量
func (m *FileWatcherManager) GetWatcherCount() int {
	if m == nil {
		return 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.watchers)
}

// FileWatcher 单个热文件夹
type FileWatcher struct {
	config   config.WatcherConfig
	ingester Ingester
	watcher  *fsnotify.Watcher
	logger   *logger.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	watching bool
	mu       sync.Mutex

	// 文件大小连续两次相同视为写入完成
	settleInterval time.Duration
	settleTimeout  time.Duration
}

// NewFileWatcher 创建新的文件监控器
func NewFileWatcher(cfg config.WatcherConfig, ingester Ingester, log *logger.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = filepath.Base(cfg.SourceDir)
	}

	return &FileWatcher{
		config:         cfg,
		ingester:       ingester,
		watcher:        watcher,
		logger:         log,
		settleInterval: 500 * time.Millisecond,
		settleTimeout:  30 * time.Second,
	}, nil
}

// Start 启动文件监控
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.watching {
		return fmt.Errorf("文件监控器[%s]已经在运行", fw.config.Name)
	}
	if _, err := os.Stat(fw.config.SourceDir); os.IsNotExist(err) {
		return fmt.Errorf("监控源目录不存在: %s", fw.config.SourceDir)
	}
	if err := fw.addWatchPaths(); err != nil {
		return fmt.Errorf("添加监控路径失败: %w", err)
	}

	fw.ctx, fw.cancel = context.WithCancel(context.Background())
	fw.watching = true
	fw.wg.Add(1)
	go fw.watchLoop()

	fw.logger.Infof("文件监控器[%s]已启动: %s -> 项目 %d", fw.config.Name, fw.config.SourceDir, fw.config.ProjectID)

	if fw.config.ProcessExisting {
		fw.wg.Add(1)
		go func() {
			defer fw.wg.Done()
			fw.processExistingFilesInDir(fw.config.SourceDir)
		}()
	}
	return nil
}

// Stop 停止文件监控，等待正在进行的导入结束
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if !fw.watching {
		return nil
	}

	fw.cancel()
	err := fw.watcher.Close()
	fw.wg.Wait()
	fw.watching = false

	fw.logger.Infof("文件监控器[%s]已停止", fw.config.Name)
	return err
}

func skipDir(path, root string) bool {
	return path != root && strings.HasPrefix(filepath.Base(path), ".")
}

func (fw *FileWatcher) addWatchPaths() error {
	if err := fw.watcher.Add(fw.config.SourceDir); err != nil {
		return fmt.Errorf("添加根监控目录失败: %w", err)
	}
	if !fw.config.Recursive {
		return nil
	}

	return filepath.WalkDir(fw.config.SourceDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == fw.config.SourceDir {
			return nil
		}
		if skipDir(path, fw.config.SourceDir) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			fw.logger.Warnf("添加子目录监控失败: %s, 错误: %v", path, err)
		}
		return nil
	})
}

func (fw *FileWatcher) watchLoop() {
	defer fw.wg.Done()

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Errorf("文件监控器[%s]错误: %v", fw.config.Name, err)

		case <-fw.ctx.Done():
			return
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}

	if info.IsDir() {
		if fw.config.Recursive && !skipDir(event.Name, fw.config.SourceDir) {
			if err := fw.watcher.Add(event.Name); err != nil {
				fw.logger.Warnf("添加新目录监控失败: %s, 错误: %v", event.Name, err)
				return
			}
			fw.processExistingFilesInDir(event.Name)
		}
		return
	}

	if !fw.shouldProcessFile(event.Name) {
		return
	}
	fw.processFile(event.Name)
}

// processExistingFilesInDir 导入目录中已存在的文件
func (fw *FileWatcher) processExistingFilesInDir(dirPath string) {
	var processed, skipped int

	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			fw.logger.Warnf("监控器[%s]遍历目录失败: %s, 错误: %v", fw.config.Name, path, err)
			return nil
		}
		if fw.ctx.Err() != nil {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if skipDir(path, fw.config.SourceDir) || (path != dirPath && !fw.config.Recursive) {
				return filepath.SkipDir
			}
			return nil
		}
		if !fw.shouldProcessFile(path) {
			skipped++
			return nil
		}
		if fw.processFile(path) {
			processed++
		}
		return nil
	})
	if err != nil {
		fw.logger.Errorf("监控器[%s]扫描目录失败: %s, 错误: %v", fw.config.Name, dirPath, err)
		return
	}
	fw.logger.Infof("监控器[%s]扫描完成: %s，导入 %d 个文件，跳过 %d 个", fw.config.Name, dirPath, processed, skipped)
}

func (fw *FileWatcher) shouldProcessFile(filePath string) bool {
	if pathhelper.IsHidden(filePath) {
		return false
	}
	return fw.ingester.IsIngestable(filePath)
}

// waitForFileReady 等待文件写入完成
func (fw *FileWatcher) waitForFileReady(filePath string) error {
	timeout := time.After(fw.settleTimeout)
	var lastSize int64 = -1

	for {
		select {
		case <-fw.ctx.Done():
			return fw.ctx.Err()
		case <-timeout:
			return fmt.Errorf("等待文件就绪超时: %s", filePath)
		case <-time.After(fw.settleInterval):
			info, err := os.Stat(filePath)
			if err != nil {
				return fmt.Errorf("获取文件信息失败: %w", err)
			}
			if info.Size() == lastSize && info.Size() > 0 {
				return nil
			}
			lastSize = info.Size()
		}
	}
}

// processFile 导入单个文件，成功后移入 .imported，失败移入 .failed
func (fw *FileWatcher) processFile(path string) bool {
	if err := fw.waitForFileReady(path); err != nil {
		fw.logger.Warnf("监控器[%s]等待文件就绪失败: %s, 错误: %v", fw.config.Name, path, err)
		return false
	}

	summary, err := fw.ingester.IngestPath(fw.ctx, fw.config.ProjectID, path, fw.config.FPS)
	if err != nil {
		fw.logger.Errorf("监控器[%s]导入失败: %s, 错误: %v", fw.config.Name, path, err)
		fw.archive(path, FailedDir)
		return false
	}

	fw.logger.Infof("监控器[%s]已导入 %s: 新建任务 %d 个, 跳过 %d 个, 失败 %d 个",
		fw.config.Name, path, summary.CreatedTasks, summary.Skipped, summary.Failed)
	fw.archive(path, ImportedDir)
	return true
}

// archive 把处理过的文件移出监控目录，避免重复导入
func (fw *FileWatcher) archive(path, sub string) {
	dir := filepath.Join(fw.config.SourceDir, sub)
	if err := os.MkdirAll(dir, 0755); err != nil {
		fw.logger.Warnf("创建目录失败: %s, 错误: %v", dir, err)
		return
	}
	dst := filepath.Join(dir, fmt.Sprintf("%s_%s", time.Now().Format("20060102150405"), filepath.Base(path)))
	if err := os.Rename(path, dst); err != nil {
		fw.logger.Warnf("移动文件失败: %s -> %s, 错误: %v", path, dst, err)
	}
}
