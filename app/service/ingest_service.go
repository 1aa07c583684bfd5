package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"labeloo/app/apperr"
	"labeloo/app/config"
	"labeloo/app/logger"
	"labeloo/app/model"
	"labeloo/app/storage"
	"labeloo/app/utils/pathhelper"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/mholt/archives"
	cp "github.com/otiai10/copy"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// 单个文件的处理结果
const (
	OutcomeCreated = "created" // 已保存并创建任务
	OutcomeStored  = "stored"  // 已保存，任务创建失败
	OutcomeSkipped = "skipped" // 不支持的类型
	OutcomeFailed  = "failed"
)

// 上传文件类别
type mediaKind int

const (
	kindUnsupported mediaKind = iota
	kindImage
	kindZip
	kindVideo
)

// 嗅探类型读取的字节数
const sniffSize = 3072

// FileOutcome 单个原始文件（或压缩包条目、视频帧）的处理结果
type FileOutcome struct {
	File       string `json:"file"`
	StoredName string `json:"storedName,omitempty"`
	TaskID     *uint  `json:"taskId"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	Source     string `json:"source,omitempty"`
}

// IngestSummary 一次上传的汇总
type IngestSummary struct {
	Results      []FileOutcome `json:"results"`
	CreatedTasks int           `json:"createdTasks"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
}

func (s *IngestSummary) add(outcomes ...FileOutcome) {
	for _, o := range outcomes {
		switch o.Status {
		case OutcomeCreated:
			s.CreatedTasks++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeFailed, OutcomeStored:
			s.Failed++
		}
	}
	s.Results = append(s.Results, outcomes...)
}

// Upload 一个待导入的文件
type Upload struct {
	Name   string
	Reader io.Reader
}

// IngestService 把上传的图片、压缩包、视频转换为标注任务
type IngestService struct {
	tasks     *TaskService
	projects  *ProjectService
	store     *storage.MediaStore
	extractor FrameExtractor
	imageExts pathhelper.ExtSet
	videoExts pathhelper.ExtSet
	zipEnc    encoding.Encoding
	log       *logger.Logger
}

// NewIngestService 创建导入服务
func NewIngestService(cfg config.IngestConfig, tasks *TaskService, projects *ProjectService, store *storage.MediaStore, extractor FrameExtractor, log *logger.Logger) *IngestService {
	s := &IngestService{
		tasks:     tasks,
		projects:  projects,
		store:     store,
		extractor: extractor,
		imageExts: pathhelper.NewExtSet(cfg.ImageExtensions...),
		videoExts: pathhelper.NewExtSet(cfg.VideoExtensions...),
		log:       log.Named("ingest"),
	}
	if cfg.ZipFilenameEncoding != "" {
		enc, err := htmlindex.Get(cfg.ZipFilenameEncoding)
		if err != nil {
			s.log.Warnf("不支持的压缩包文件名编码 %s，按 UTF-8 处理", cfg.ZipFilenameEncoding)
		} else {
			s.zipEnc = enc
		}
	}
	return s
}

// IsIngestable 热文件夹使用：图片、压缩包或视频
func (s *IngestService) IsIngestable(name string) bool {
	return s.imageExts.Match(name) || s.videoExts.Match(name) || strings.EqualFold(filepath.Ext(name), ".zip")
}

// Ingest 逐个处理上传文件。项目不存在、含视频却缺少帧率、原始文件保存失败时整体失败；
// 单个文件的失败记录在结果里，不影响其他文件
func (s *IngestService) Ingest(ctx context.Context, projectID uint, uploads []Upload, fps float64) (*IngestSummary, error) {
	if projectID == 0 {
		return nil, apperr.Validation("缺少项目ID")
	}
	if len(uploads) == 0 {
		return nil, apperr.Validation("没有上传任何文件")
	}
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}

	type sniffed struct {
		name   string
		kind   mediaKind
		mime   *mimetype.MIME
		reader io.Reader
	}
	items := make([]sniffed, 0, len(uploads))
	for _, u := range uploads {
		head := make([]byte, sniffSize)
		n, err := io.ReadFull(u.Reader, head)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(err, "读取上传文件失败: %s", u.Name)
		}
		head = head[:n]
		kind, mime := s.classify(u.Name, head)
		if kind == kindVideo && fps <= 0 {
			return nil, apperr.Validation("视频文件 %s 需要指定抽帧帧率 fps", u.Name)
		}
		items = append(items, sniffed{
			name:   u.Name,
			kind:   kind,
			mime:   mime,
			reader: io.MultiReader(bytes.NewReader(head), u.Reader),
		})
	}

	summary := &IngestSummary{Results: []FileOutcome{}}
	for _, it := range items {
		switch it.kind {
		case kindImage:
			summary.add(s.ingestImage(ctx, projectID, it.name, it.mime.String(), it.reader, ""))
		case kindZip:
			outcomes, err := s.IngestZip(ctx, projectID, it.name, it.reader)
			if err != nil {
				return nil, err
			}
			summary.add(outcomes...)
		case kindVideo:
			outcomes, err := s.IngestVideo(ctx, projectID, it.name, it.reader, fps)
			if err != nil {
				return nil, err
			}
			summary.add(outcomes...)
		default:
			summary.add(FileOutcome{
				File:    it.name,
				Status:  OutcomeSkipped,
				Message: "不支持的文件类型: " + it.mime.String(),
			})
		}
	}

	s.log.Infof("项目 %d 导入完成: 文件 %d 个, 新建任务 %d 个, 跳过 %d 个, 失败 %d 个",
		projectID, len(uploads), summary.CreatedTasks, summary.Skipped, summary.Failed)
	return summary, nil
}

// IngestPath 导入本地文件，热文件夹使用
func (s *IngestService) IngestPath(ctx context.Context, projectID uint, filePath string, fps float64) (*IngestSummary, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "打开文件失败: %s", filePath)
	}
	defer f.Close()

	return s.Ingest(ctx, projectID, []Upload{{Name: filepath.Base(filePath), Reader: f}}, fps)
}

// classify 优先按内容嗅探，嗅探不出时按扩展名判断
func (s *IngestService) classify(name string, head []byte) (mediaKind, *mimetype.MIME) {
	mime := mimetype.Detect(head)
	for m := mime; m != nil; m = m.Parent() {
		switch {
		case m.Is("application/zip"):
			return kindZip, mime
		case strings.HasPrefix(m.String(), "image/"):
			return kindImage, mime
		case strings.HasPrefix(m.String(), "video/"):
			return kindVideo, mime
		}
	}

	switch {
	case s.imageExts.Match(name):
		return kindImage, mime
	case s.videoExts.Match(name):
		return kindVideo, mime
	case strings.EqualFold(filepath.Ext(name), ".zip"):
		return kindZip, mime
	}
	return kindUnsupported, mime
}

func (s *IngestService) ingestImage(ctx context.Context, projectID uint, name, mimeType string, r io.Reader, source string) FileOutcome {
	return s.storeAndCreate(ctx, projectID, name, r, source, map[string]any{
		"originalName": name,
		"mimeType":     mimeType,
	})
}

// storeAndCreate 以随机文件名保存到项目目录并创建任务
func (s *IngestService) storeAndCreate(ctx context.Context, projectID uint, name string, r io.Reader, source string, metadata map[string]any) FileOutcome {
	outcome := FileOutcome{File: name, Source: source}

	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		ext = ".png"
	}
	stored := storage.GenerateName(ext)

	size, err := s.store.StoreFrom(r, s.store.ProjectPath(projectID, stored))
	if err != nil {
		s.log.Errorf("保存文件失败: %s, %v", name, err)
		outcome.Status = OutcomeFailed
		outcome.Message = "保存文件失败: " + err.Error()
		return outcome
	}
	outcome.StoredName = stored
	metadata["size"] = size

	task, err := s.tasks.Create(ctx, CreateTaskInput{
		ProjectID: projectID,
		DataURL:   s.store.TaskDataURL(projectID, stored),
		DataType:  model.DataTypeImage,
		Metadata:  metadata,
	})
	if err != nil {
		s.log.Errorf("文件已保存但创建任务失败: %s, %v", name, err)
		outcome.Status = OutcomeStored
		outcome.Message = "文件已保存，创建任务失败: " + err.Error()
		return outcome
	}

	outcome.TaskID = &task.ID
	outcome.Status = OutcomeCreated
	outcome.Message = "任务已创建"
	return outcome
}

// IngestZip 保存压缩包原件后逐个解出图片。原件保存失败时返回错误；
// 解压中途失败时保留已创建的任务，并把错误附在结果末尾
func (s *IngestService) IngestZip(ctx context.Context, projectID uint, name string, r io.Reader) ([]FileOutcome, error) {
	rawPath := s.store.RawPath(projectID, storage.GenerateName(".zip"))
	if _, err := s.store.StoreFrom(r, rawPath); err != nil {
		return nil, errors.Wrapf(err, "保存压缩包失败: %s", name)
	}
	s.log.Infof("压缩包已保存: %s -> %s", name, rawPath)

	f, err := os.Open(rawPath)
	if err != nil {
		return nil, errors.Wrapf(err, "打开压缩包失败: %s", rawPath)
	}
	defer f.Close()

	var outcomes []FileOutcome
	format := archives.Zip{TextEncoding: s.zipEnc}
	err = format.Extract(ctx, f, func(ctx context.Context, info archives.FileInfo) error {
		if info.IsDir() {
			return nil
		}
		entry := info.NameInArchive
		if pathhelper.IsMacJunk(entry) || !s.imageExts.Match(entry) {
			outcomes = append(outcomes, FileOutcome{
				File:    entry,
				Source:  name,
				Status:  OutcomeSkipped,
				Message: "不是可识别的图片，已跳过",
			})
			return nil
		}

		rc, err := info.Open()
		if err != nil {
			outcomes = append(outcomes, FileOutcome{File: entry, Source: name, Status: OutcomeFailed, Message: "读取条目失败: " + err.Error()})
			return nil
		}
		defer rc.Close()

		outcomes = append(outcomes, s.storeAndCreate(ctx, projectID, path.Base(entry), rc, name, map[string]any{
			"originalName":  entry,
			"sourceArchive": name,
		}))
		return nil
	})
	if err != nil {
		s.log.Errorf("解压 %s 中途失败，已处理 %d 个条目: %v", name, len(outcomes), err)
		outcomes = append(outcomes, FileOutcome{
			File:    name,
			Status:  OutcomeFailed,
			Message: "解压失败: " + err.Error(),
		})
	}
	return outcomes, nil
}

// IngestVideo 保存视频原件，抽帧后每帧创建一个任务。抽帧目录在返回前删除
func (s *IngestService) IngestVideo(ctx context.Context, projectID uint, name string, r io.Reader, fps float64) ([]FileOutcome, error) {
	if fps <= 0 {
		return nil, apperr.Validation("视频文件 %s 需要指定抽帧帧率 fps", name)
	}

	rawName := storage.GenerateName(path.Ext(name))
	rawPath := s.store.RawPath(projectID, rawName)
	if _, err := s.store.StoreFrom(r, rawPath); err != nil {
		return nil, errors.Wrapf(err, "保存视频失败: %s", name)
	}

	uploadID := uuid.NewString()
	framesDir := s.store.FramesDir(projectID, uploadID)
	defer func() {
		if err := os.RemoveAll(framesDir); err != nil {
			s.log.Warnf("清理抽帧目录失败: %s, %v", framesDir, err)
		}
	}()

	frames, err := s.extractor.ExtractFrames(ctx, rawPath, fps, framesDir)
	if err != nil {
		toolErr := apperr.ExternalTool(err, "视频 %s 抽帧失败", name)
		s.log.Errorf("%v", toolErr)
		return []FileOutcome{{
			File:       name,
			StoredName: rawName,
			Status:     OutcomeFailed,
			Message:    toolErr.Error(),
		}}, nil
	}

	outcomes := make([]FileOutcome, 0, len(frames))
	for i, frame := range frames {
		index, ok := FrameIndex(frame)
		if !ok {
			index = i + 1
		}
		outcomes = append(outcomes, s.ingestFrame(ctx, projectID, frame, index, name, rawName, uploadID, fps))
	}
	s.log.Infof("视频 %s 抽取 %d 帧", name, len(frames))
	return outcomes, nil
}

func (s *IngestService) ingestFrame(ctx context.Context, projectID uint, frame string, index int, video, rawName, uploadID string, fps float64) FileOutcome {
	outcome := FileOutcome{File: filepath.Base(frame), Source: video}

	stored := storage.GenerateName(filepath.Ext(frame))
	if err := cp.Copy(frame, s.store.ProjectPath(projectID, stored)); err != nil {
		outcome.Status = OutcomeFailed
		outcome.Message = "复制帧失败: " + err.Error()
		return outcome
	}
	outcome.StoredName = stored

	task, err := s.tasks.Create(ctx, CreateTaskInput{
		ProjectID: projectID,
		DataURL:   s.store.TaskDataURL(projectID, stored),
		DataType:  model.DataTypeImage,
		Metadata: map[string]any{
			"frameIndex":  index,
			"sourceFps":   fps,
			"sourceVideo": video,
			"rawFile":     rawName,
			"uploadId":    uploadID,
		},
	})
	if err != nil {
		outcome.Status = OutcomeStored
		outcome.Message = "帧已保存，创建任务失败: " + err.Error()
		return outcome
	}
	outcome.TaskID = &task.ID
	outcome.Status = OutcomeCreated
	outcome.Message = "任务已创建"
	return outcome
}
