package service

import (
	"bytes"
	"image"
	"image/color"

	"labeloo/app/apperr"
	"labeloo/app/logger"
	"labeloo/app/model"
	"labeloo/app/storage"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"
)

// 缩略图边长范围
const (
	MinThumbSize = 16
	MaxThumbSize = 1024
)

var overlayPalette = []color.RGBA{
	{R: 230, G: 57, B: 70, A: 255},
	{R: 42, G: 157, B: 143, A: 255},
	{R: 233, G: 196, B: 106, A: 255},
	{R: 69, G: 123, B: 157, A: 255},
	{R: 244, G: 162, B: 97, A: 255},
}

// PreviewService 生成缩略图和标注预览图
type PreviewService struct {
	log *logger.Logger
}

// NewPreviewService 创建预览服务
func NewPreviewService(log *logger.Logger) *PreviewService {
	return &PreviewService{log: log.Named("preview")}
}

func (s *PreviewService) open(path string) (image.Image, error) {
	if !storage.Exists(path) {
		return nil, apperr.NotFound("图片不存在")
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "无法解码图片")
	}
	return img, nil
}

// Thumbnail 按最长边缩放并编码为 PNG
func (s *PreviewService) Thumbnail(path string, size int) ([]byte, error) {
	if size < MinThumbSize {
		size = MinThumbSize
	}
	if size > MaxThumbSize {
		size = MaxThumbSize
	}

	img, err := s.open(path)
	if err != nil {
		return nil, err
	}
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, errors.Wrap(err, "编码缩略图失败")
	}
	return buf.Bytes(), nil
}

// Annotated 在原图上绘制矩形和多边形
func (s *PreviewService) Annotated(path string, shapes []model.Shape) ([]byte, error) {
	img, err := s.open(path)
	if err != nil {
		return nil, err
	}

	dc := gg.NewContextForImage(img)
	width := float64(img.Bounds().Dx())
	lineWidth := width / 300
	if lineWidth < 2 {
		lineWidth = 2
	}
	dc.SetLineWidth(lineWidth)

	drawn := 0
	for _, shape := range shapes {
		switch v := shape.(type) {
		case model.Rectangle:
			setClassColor(dc, v.ClassID)
			dc.DrawRectangle(v.Origin.X, v.Origin.Y, v.Width, v.Height)
		case model.Box:
			setClassColor(dc, v.ClassID)
			dc.DrawRectangle(v.X, v.Y, v.W, v.H)
		case model.Polygon:
			setClassColor(dc, v.ClassID)
			dc.MoveTo(v.Points[0].X, v.Points[0].Y)
			for _, p := range v.Points[1:] {
				dc.LineTo(p.X, p.Y)
			}
			dc.ClosePath()
		default:
			continue
		}
		dc.Stroke()
		drawn++
	}
	s.log.Debugf("预览图绘制 %d/%d 个图形: %s", drawn, len(shapes), path)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, errors.Wrap(err, "编码预览图失败")
	}
	return buf.Bytes(), nil
}

func setClassColor(dc *gg.Context, classID int) {
	if classID < 0 {
		classID = -classID
	}
	c := overlayPalette[classID%len(overlayPalette)]
	dc.SetRGBA255(int(c.R), int(c.G), int(c.B), int(c.A))
}
