// Package dataset 负责导出数据集的文件格式：YOLO 标签、data.yaml 清单和压缩包
package dataset

import (
	"fmt"
	"math"
	"strings"

	"labeloo/app/model"
)

// YOLOLine 一个 YOLO 标签行，坐标已按图片尺寸归一化
type YOLOLine struct {
	ClassID int
	XCenter float64
	YCenter float64
	Width   float64
	Height  float64
}

func (l YOLOLine) String() string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", l.ClassID, l.XCenter, l.YCenter, l.Width, l.Height)
}

// NormalizeBox 把像素坐标的矩形转换为 YOLO 行。
// 宽高可能为负（反向拖拽），中心点按原始符号计算，宽高取绝对值
func NormalizeBox(x, y, w, h float64, classID, imgWidth, imgHeight int) YOLOLine {
	iw, ih := float64(imgWidth), float64(imgHeight)
	return YOLOLine{
		ClassID: classID,
		XCenter: (x + w/2) / iw,
		YCenter: (y + h/2) / ih,
		Width:   math.Abs(w) / iw,
		Height:  math.Abs(h) / ih,
	}
}

// ToYOLO 转换图元列表，非矩形图元在 YOLO 格式中无法表示，直接忽略
func ToYOLO(shapes []model.Shape, imgWidth, imgHeight int) []YOLOLine {
	if imgWidth <= 0 || imgHeight <= 0 {
		return nil
	}

	lines := make([]YOLOLine, 0, len(shapes))
	for _, s := range shapes {
		switch v := s.(type) {
		case model.Rectangle:
			lines = append(lines, NormalizeBox(v.Origin.X, v.Origin.Y, v.Width, v.Height, v.ClassID, imgWidth, imgHeight))
		case model.Box:
			lines = append(lines, NormalizeBox(v.X, v.Y, v.W, v.H, v.ClassID, imgWidth, imgHeight))
		}
	}
	return lines
}

// FormatLines 生成标签文件内容，行之间用换行分隔，末尾不带换行
func FormatLines(lines []YOLOLine) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.String()
	}
	return strings.Join(parts, "\n")
}
