package service

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"labeloo/app/logger"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// ExportJanitor 定期删除过期的导出压缩包和遗留的暂存目录
type ExportJanitor struct {
	dir       string
	retention time.Duration
	cron      *cron.Cron
	log       *logger.Logger
	mu        sync.Mutex
}

// NewExportJanitor 创建清理任务
func NewExportJanitor(dir string, retention time.Duration, log *logger.Logger) *ExportJanitor {
	return &ExportJanitor{
		dir:       dir,
		retention: retention,
		log:       log.Named("janitor"),
	}
}

// Start 按 cron 表达式启动定时清理
func (j *ExportJanitor) Start(spec string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { j.Sweep(time.Now()) }); err != nil {
		return errors.Wrapf(err, "无效的清理计划: %s", spec)
	}
	c.Start()
	j.cron = c
	j.log.Infof("导出清理任务已启动: 计划=%s, 保留=%s", spec, j.retention)
	return nil
}

// Stop 停止定时清理并等待正在执行的清理结束
func (j *ExportJanitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.cron = nil
	j.log.Info("导出清理任务已停止")
}

// Sweep 删除修改时间早于 now-retention 的导出产物，返回删除数量
func (j *ExportJanitor) Sweep(now time.Time) int {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			j.log.Warnf("读取导出目录失败: %v", err)
		}
		return 0
	}

	cutoff := now.Add(-j.retention)
	removed := 0
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), exportPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		p := filepath.Join(j.dir, entry.Name())
		if err := os.RemoveAll(p); err != nil {
			j.log.Warnf("删除过期导出失败: %s, %v", p, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.log.Infof("已清理 %d 个过期导出", removed)
	}
	return removed
}
