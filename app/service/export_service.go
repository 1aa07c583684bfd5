package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"labeloo/app/apperr"
	"labeloo/app/dataset"
	"labeloo/app/logger"
	"labeloo/app/model"
	"labeloo/app/storage"
	"labeloo/app/utils/imageinfo"

	"github.com/dustin/go-humanize"
	cp "github.com/otiai10/copy"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
)

// 导出产物名前缀，清理任务据此识别
const exportPrefix = "dataset_"

// ExportRequest 导出参数
type ExportRequest struct {
	Format      string               `json:"format"`
	SplitConfig *dataset.SplitConfig `json:"splitConfig"`
}

// ExportItem 单个导出任务的记录
type ExportItem struct {
	TaskID        uint           `json:"taskId"`
	AnnotationID  uint           `json:"annotationId"`
	ImageURL      string         `json:"imageUrl"`
	ImagePath     string         `json:"imagePath"`
	LabelPath     string         `json:"labelPath"`
	Width         int            `json:"width"`
	Height        int            `json:"height"`
	Metadata      datatypes.JSON `json:"metadata"`
	IsGroundTruth bool           `json:"isGroundTruth"`
}

// ExportResult 导出结果
type ExportResult struct {
	ArchivePath   string              `json:"-"`
	ArchiveName   string              `json:"archiveName"`
	ArchiveSize   int64               `json:"archiveSize"`
	Format        string              `json:"format"`
	ProjectID     uint                `json:"projectId"`
	ProjectName   string              `json:"projectName"`
	TotalTasks    int                 `json:"totalTasks"`
	ExportedTasks int                 `json:"exportedTasks"`
	ExportedAt    time.Time           `json:"exportedAt"`
	SplitConfig   dataset.SplitConfig `json:"splitConfig"`
	Items         []ExportItem        `json:"items"`
}

// ExportHook 导出成功后的回调
type ExportHook interface {
	Notify(ctx context.Context, result *ExportResult) error
}

// ExportService 把项目中已完成的任务打包成数据集
type ExportService struct {
	tasks       *TaskService
	annotations *AnnotationService
	projects    *ProjectService
	store       *storage.MediaStore
	tempDir     string
	hook        ExportHook
	log         *logger.Logger
}

// NewExportService 创建导出服务，hook 可以为 nil
func NewExportService(tasks *TaskService, annotations *AnnotationService, projects *ProjectService, store *storage.MediaStore, tempDir string, hook ExportHook, log *logger.Logger) *ExportService {
	return &ExportService{
		tasks:       tasks,
		annotations: annotations,
		projects:    projects,
		store:       store,
		tempDir:     tempDir,
		hook:        hook,
		log:         log.Named("export"),
	}
}

// TempDir 导出暂存目录
func (s *ExportService) TempDir() string {
	return s.tempDir
}

// Export 导出项目数据集。缺少标注或图片的任务被跳过；
// 暂存目录在任何退出路径上都会删除
func (s *ExportService) Export(ctx context.Context, projectID uint, req ExportRequest) (*ExportResult, error) {
	format := strings.ToLower(req.Format)
	if format == "" {
		format = dataset.FormatYOLO
	}
	if format != dataset.FormatYOLO && format != dataset.FormatJSON {
		return nil, apperr.Validation("不支持的导出格式: %s", req.Format)
	}
	split := dataset.DefaultSplit
	if req.SplitConfig != nil {
		split = *req.SplitConfig
	}
	if err := split.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "划分配置无效")
	}

	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	completed, err := s.tasks.ListCompleted(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(completed) == 0 {
		return nil, apperr.ExhaustedInput("项目 %d 没有已完成的任务可导出", projectID)
	}
	s.log.Infof("项目 %d 开始导出 %s，已完成任务 %d 个", projectID, format, len(completed))

	exportedAt := time.Now()
	if err := os.MkdirAll(s.tempDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "创建导出目录失败: %s", s.tempDir)
	}
	staging, err := os.MkdirTemp(s.tempDir, fmt.Sprintf("%s%d_%d_", exportPrefix, projectID, exportedAt.UnixMilli()))
	if err != nil {
		return nil, errors.Wrap(err, "创建导出暂存目录失败")
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			s.log.Warnf("删除导出暂存目录失败: %s, %v", staging, err)
		}
	}()

	for _, dir := range []string{dataset.ImagesDir, dataset.LabelsDir} {
		if err := os.MkdirAll(filepath.Join(staging, dir), 0755); err != nil {
			return nil, errors.Wrapf(err, "创建 %s 目录失败", dir)
		}
	}

	items := make([]ExportItem, 0, len(completed))
	for i := range completed {
		item, err := s.exportTask(ctx, staging, format, &completed[i])
		if err != nil {
			s.log.Warnf("跳过任务 %d: %v", completed[i].ID, err)
			continue
		}
		if item != nil {
			items = append(items, *item)
		}
	}
	if len(items) == 0 {
		return nil, apperr.ExhaustedInput("项目 %d 没有可导出的标注数据", projectID)
	}

	if format == dataset.FormatYOLO {
		manifest := dataset.NewManifest(project.ID, project.Name, project.Description, len(items), split, exportedAt)
		if err := dataset.WriteManifest(staging, manifest); err != nil {
			return nil, err
		}
	}

	archiveName := fmt.Sprintf("%s%d_%d.zip", exportPrefix, projectID, exportedAt.UnixNano())
	archivePath := filepath.Join(s.tempDir, archiveName)
	if err := dataset.WriteArchive(staging, archivePath); err != nil {
		return nil, err
	}

	result := &ExportResult{
		ArchivePath:   archivePath,
		ArchiveName:   archiveName,
		Format:        format,
		ProjectID:     project.ID,
		ProjectName:   project.Name,
		TotalTasks:    len(completed),
		ExportedTasks: len(items),
		ExportedAt:    exportedAt,
		SplitConfig:   split,
		Items:         items,
	}
	if info, err := os.Stat(archivePath); err == nil {
		result.ArchiveSize = info.Size()
	}
	s.log.Infof("项目 %d 导出完成: %d/%d 个任务, 压缩包 %s (%s)",
		projectID, result.ExportedTasks, result.TotalTasks, archiveName, humanize.Bytes(uint64(result.ArchiveSize)))

	if s.hook != nil {
		if err := s.hook.Notify(ctx, result); err != nil {
			s.log.Warnf("导出通知发送失败: %v", err)
		}
	}
	return result, nil
}

// exportTask 导出一个任务。没有标注或图片缺失时返回 nil, nil
func (s *ExportService) exportTask(ctx context.Context, staging, format string, task *model.Task) (*ExportItem, error) {
	annotation, err := s.annotations.PickForExport(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	if annotation == nil {
		s.log.Debugf("任务 %d 没有标注，跳过", task.ID)
		return nil, nil
	}

	src := s.store.Resolve(task.DataURL)
	if !storage.Exists(src) {
		s.log.Warnf("任务 %d 的图片不存在: %s", task.ID, src)
		return nil, nil
	}

	imageRel := filepath.Join(dataset.ImagesDir, fmt.Sprintf("%d.png", task.ID))
	imagePath := filepath.Join(staging, imageRel)
	if err := cp.Copy(src, imagePath); err != nil {
		return nil, errors.Wrapf(err, "复制图片失败: %s", src)
	}
	width, height := imageinfo.Dimensions(imagePath)

	var content []byte
	ext := "json"
	if format == dataset.FormatYOLO {
		shapes, err := annotation.Shapes()
		if err != nil {
			return nil, errors.Wrapf(err, "解析标注 %d 失败", annotation.ID)
		}
		content = []byte(dataset.FormatLines(dataset.ToYOLO(shapes, width, height)))
		ext = "txt"
	} else {
		var buf bytes.Buffer
		if err := json.Indent(&buf, annotation.AnnotationData, "", "  "); err != nil {
			return nil, errors.Wrapf(err, "格式化标注 %d 失败", annotation.ID)
		}
		content = buf.Bytes()
	}

	labelRel := filepath.Join(dataset.LabelsDir, fmt.Sprintf("%d.%s", task.ID, ext))
	if err := os.WriteFile(filepath.Join(staging, labelRel), content, 0644); err != nil {
		return nil, errors.Wrapf(err, "写入标签文件失败: %s", labelRel)
	}

	return &ExportItem{
		TaskID:        task.ID,
		AnnotationID:  annotation.ID,
		ImageURL:      task.DataURL,
		ImagePath:     filepath.ToSlash(imageRel),
		LabelPath:     filepath.ToSlash(labelRel),
		Width:         width,
		Height:        height,
		Metadata:      task.Metadata,
		IsGroundTruth: annotation.IsGroundTruth,
	}, nil
}

// ArchivePath 校验下载名并返回压缩包路径
func (s *ExportService) ArchivePath(name string) (string, error) {
	if name != filepath.Base(name) || !strings.HasPrefix(name, exportPrefix) || !strings.HasSuffix(name, ".zip") {
		return "", apperr.Validation("无效的导出文件名: %s", name)
	}
	p := filepath.Join(s.tempDir, name)
	if !storage.Exists(p) {
		return "", apperr.NotFound("导出文件 %s 不存在或已过期", name)
	}
	return p, nil
}

// ArchiveProjectID 从 dataset_<项目ID>_<时间戳>.zip 中取出项目ID
func ArchiveProjectID(name string) (uint, bool) {
	rest, ok := strings.CutPrefix(name, exportPrefix)
	if !ok {
		return 0, false
	}
	idPart, _, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
