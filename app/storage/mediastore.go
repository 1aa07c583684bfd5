// Package storage 管理媒体文件目录树（public、projects/<id>、raw、frames）
package storage

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// 目录树中的固定分区
const (
	PublicBucket   = "public"
	ProjectsBucket = "projects"
	RawDir         = "raw"
	FramesDir      = "frames"
)

// resolveRule 外部地址到本地目录的映射规则，按顺序匹配
type resolveRule struct {
	Marker string // 地址中出现的标记
	Prefix string // 标记之后的部分挂到哪个分区下
}

// taskData 与 projects 指向同一个分区：任务图片和项目图片存放在一起
var resolveRules = []resolveRule{
	{Marker: "/bucket/taskData/", Prefix: ProjectsBucket},
	{Marker: "/bucket/projects/", Prefix: ProjectsBucket},
	{Marker: "/bucket/public/", Prefix: PublicBucket},
	{Marker: "/bucket/", Prefix: ""},
}

// MediaStore 媒体文件存储
type MediaStore struct {
	root    string
	baseURL string
}

// NewMediaStore 创建媒体存储，root 为 bucket 根目录，baseURL 为对外地址前缀
func NewMediaStore(root, baseURL string) *MediaStore {
	return &MediaStore{
		root:    filepath.Clean(root),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Resolve 将外部媒体地址映射为本地路径。
// 规则表都不匹配时，取地址最后一段作为 public 分区下的文件名
func (s *MediaStore) Resolve(dataURL string) string {
	if i := strings.IndexAny(dataURL, "?#"); i >= 0 {
		dataURL = dataURL[:i]
	}

	for _, rule := range resolveRules {
		idx := strings.LastIndex(dataURL, rule.Marker)
		if idx < 0 {
			continue
		}
		rest := dataURL[idx+len(rule.Marker):]
		if local, ok := s.within(rule.Prefix, rest); ok {
			return local
		}
		break
	}

	name := path.Base(dataURL)
	if name == "." || name == "/" || name == ".." {
		name = ""
	}
	return filepath.Join(s.root, PublicBucket, name)
}

// within 拼接路径并确认结果仍在 bucket 根目录之内
func (s *MediaStore) within(prefix, rest string) (string, bool) {
	full := filepath.Join(s.root, prefix, filepath.FromSlash(rest))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

// Store 写入字节，自动创建父目录
func (s *MediaStore) Store(data []byte, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrapf(err, "创建目录失败: %s", filepath.Dir(dst))
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return errors.Wrapf(err, "写入文件失败: %s", dst)
	}
	return nil
}

// StoreFrom 从流写入文件，写入失败时删除残留文件
func (s *MediaStore) StoreFrom(r io.Reader, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, errors.Wrapf(err, "创建目录失败: %s", filepath.Dir(dst))
	}
	f, err := os.Create(dst)
	if err != nil {
		return 0, errors.Wrapf(err, "创建文件失败: %s", dst)
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return n, errors.Wrapf(err, "写入文件失败: %s", dst)
	}
	return n, nil
}

// Exists 判断普通文件是否存在
func Exists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Remove 删除文件，文件不存在不算错误
func Remove(p string) error {
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "删除文件失败: %s", p)
	}
	return nil
}

// GenerateName 生成随机文件名，保留小写扩展名
func GenerateName(ext string) string {
	return uuid.NewString() + strings.ToLower(ext)
}

func idString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// PublicPath public 分区下的文件
func (s *MediaStore) PublicPath(name string) string {
	return filepath.Join(s.root, PublicBucket, filepath.Base(name))
}

// ProjectDir 项目分区目录
func (s *MediaStore) ProjectDir(projectID uint) string {
	return filepath.Join(s.root, ProjectsBucket, idString(projectID))
}

// ProjectPath 项目分区下的文件
func (s *MediaStore) ProjectPath(projectID uint, name string) string {
	return filepath.Join(s.ProjectDir(projectID), filepath.Base(name))
}

// RawPath 原始上传文件（压缩包、视频）的存放位置
func (s *MediaStore) RawPath(projectID uint, name string) string {
	return filepath.Join(s.ProjectDir(projectID), RawDir, filepath.Base(name))
}

// FramesDir 视频抽帧的临时目录
func (s *MediaStore) FramesDir(projectID uint, uploadID string) string {
	return filepath.Join(s.ProjectDir(projectID), FramesDir, filepath.Base(uploadID))
}

// PublicURL public 分区文件的对外地址
func (s *MediaStore) PublicURL(name string) string {
	return fmt.Sprintf("%s/%s/%s", s.baseURL, PublicBucket, name)
}

// TaskDataURL 任务图片的对外地址，解析时落在项目分区
func (s *MediaStore) TaskDataURL(projectID uint, name string) string {
	return fmt.Sprintf("%s/taskData/%d/%s", s.baseURL, projectID, name)
}

// ProjectURL 项目分区文件的对外地址
func (s *MediaStore) ProjectURL(projectID uint, name string) string {
	return fmt.Sprintf("%s/%s/%d/%s", s.baseURL, ProjectsBucket, projectID, name)
}
