package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"labeloo/app/logger"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// 抽帧输出文件名格式，序号超过四位时不再补零
const framePattern = "frame_%04d.png"

var frameName = regexp.MustCompile(`^frame_(\d+)\.png$`)

// FrameExtractor 从视频按帧率抽取图片
type FrameExtractor interface {
	// ExtractFrames 把抽取的帧写入 outDir，按帧序返回文件路径
	ExtractFrames(ctx context.Context, videoPath string, fps float64, outDir string) ([]string, error)
}

// FFmpegExtractor 调用 ffmpeg 抽帧
type FFmpegExtractor struct {
	binary string
	log    *logger.Logger
}

// NewFFmpegExtractor 创建抽帧器，binary 为空时使用 PATH 中的 ffmpeg
func NewFFmpegExtractor(binary string, log *logger.Logger) *FFmpegExtractor {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegExtractor{binary: binary, log: log.Named("ffmpeg")}
}

// ExtractFrames 实现 FrameExtractor
func (e *FFmpegExtractor) ExtractFrames(ctx context.Context, videoPath string, fps float64, outDir string) ([]string, error) {
	if fps <= 0 {
		return nil, errors.Errorf("帧率必须大于 0: %v", fps)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "创建抽帧目录失败: %s", outDir)
	}

	var stderr bytes.Buffer
	err := ffmpeg.Input(videoPath).
		Output(filepath.Join(outDir, framePattern), ffmpeg.KwArgs{
			"vf": "fps=" + strconv.FormatFloat(fps, 'f', -1, 64),
		}).
		OverWriteOutput().
		SetFfmpegPath(e.binary).
		WithErrorOutput(&stderr).
		Run()
	if err != nil {
		return nil, errors.Wrapf(err, "ffmpeg 执行失败: %s", lastLine(stderr.String()))
	}

	frames, err := ListFrames(outDir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, errors.Errorf("ffmpeg 未输出任何帧: %s", videoPath)
	}
	e.log.Debugf("抽帧完成: %s, fps=%v, 共 %d 帧", videoPath, fps, len(frames))
	return frames, nil
}

// ListFrames 按帧序号列出目录中的帧图片
func ListFrames(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil {
		return nil, errors.Wrap(err, "列出帧文件失败")
	}
	frames := matches[:0]
	for _, m := range matches {
		if _, ok := FrameIndex(m); ok {
			frames = append(frames, m)
		}
	}
	sort.SliceStable(frames, func(i, j int) bool {
		a, _ := FrameIndex(frames[i])
		b, _ := FrameIndex(frames[j])
		return a < b
	})
	return frames, nil
}

// FrameIndex 从 frame_<序号>.png 中取出 ffmpeg 的帧序号
func FrameIndex(p string) (int, bool) {
	m := frameName.FindStringSubmatch(filepath.Base(p))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
