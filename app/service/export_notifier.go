package service

import (
	"context"
	"fmt"
	"time"

	"labeloo/app/logger"

	"resty.dev/v3"
)

// ExportNotification 推送给外部系统的导出摘要
type ExportNotification struct {
	Event         string    `json:"event"`
	ProjectID     uint      `json:"projectId"`
	ProjectName   string    `json:"projectName"`
	Format        string    `json:"format"`
	ArchiveName   string    `json:"archiveName"`
	ArchiveSize   int64     `json:"archiveSize"`
	TotalTasks    int       `json:"totalTasks"`
	ExportedTasks int       `json:"exportedTasks"`
	ExportedAt    time.Time `json:"exportedAt"`
}

// ExportNotifier 导出完成后向配置的地址发送 webhook
type ExportNotifier struct {
	url    string
	client *resty.Client
	log    *logger.Logger
}

// NewExportNotifier 创建通知器，url 为空时返回 nil
func NewExportNotifier(url string, timeout time.Duration, log *logger.Logger) *ExportNotifier {
	if url == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")

	return &ExportNotifier{url: url, client: client, log: log.Named("notifier")}
}

// Notify 实现 ExportHook
func (n *ExportNotifier) Notify(ctx context.Context, result *ExportResult) error {
	payload := ExportNotification{
		Event:         "dataset.exported",
		ProjectID:     result.ProjectID,
		ProjectName:   result.ProjectName,
		Format:        result.Format,
		ArchiveName:   result.ArchiveName,
		ArchiveSize:   result.ArchiveSize,
		TotalTasks:    result.TotalTasks,
		ExportedTasks: result.ExportedTasks,
		ExportedAt:    result.ExportedAt,
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("请求导出通知地址失败: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("导出通知失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	n.log.Infof("导出通知已发送: 项目=%d, 文件=%s", result.ProjectID, result.ArchiveName)
	return nil
}

// Close 释放 HTTP 客户端
func (n *ExportNotifier) Close() error {
	return n.client.Close()
}
