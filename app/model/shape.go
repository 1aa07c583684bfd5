package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// 图形类型标签
const (
	ShapeTypeRectangle = "rectangle"
	ShapeTypePolygon   = "polygon"
)

// Shape 标注数据中的一个几何图元，封闭的变体集合
type Shape interface {
	ShapeType() string
	isShape()
}

// Point 像素坐标
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rectangle 起点加宽高描述的矩形，宽高可以为负（向左/向上拖拽）
type Rectangle struct {
	Origin  Point
	Width   float64
	Height  float64
	ClassID int
}

// Box 四元组 [x, y, w, h] 描述的矩形
type Box struct {
	X, Y, W, H float64
	ClassID    int
}

// Polygon 多边形
type Polygon struct {
	Points  []Point
	ClassID int
}

// UnknownShape 无法识别或几何信息不完整的图元
type UnknownShape struct {
	Type string
	Raw  json.RawMessage
}

func (Rectangle) ShapeType() string      { return ShapeTypeRectangle }
func (Box) ShapeType() string            { return ShapeTypeRectangle }
func (Polygon) ShapeType() string        { return ShapeTypePolygon }
func (u UnknownShape) ShapeType() string { return u.Type }

func (Rectangle) isShape()    {}
func (Box) isShape()          {}
func (Polygon) isShape()      {}
func (UnknownShape) isShape() {}

// rawShape 各字段单独解码，可选字段格式不对时不影响几何信息
type rawShape struct {
	Type       string          `json:"type"`
	StartPoint json.RawMessage `json:"startPoint"`
	Width      json.RawMessage `json:"width"`
	Height     json.RawMessage `json:"height"`
	BBox       json.RawMessage `json:"bbox"`
	Points     json.RawMessage `json:"points"`
	ClassID    json.RawMessage `json:"classId"`
}

// ParseShapes 解析标注数据，支持三种外层结构：
// {"annotations": [...]}、图元数组、单个带 type 的图元
func ParseShapes(data []byte) ([]Shape, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var items []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, errors.Wrap(err, "解析标注数组失败")
		}
	case '{':
		var envelope struct {
			Annotations []json.RawMessage `json:"annotations"`
			Type        string            `json:"type"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, errors.Wrap(err, "解析标注对象失败")
		}
		switch {
		case envelope.Annotations != nil:
			items = envelope.Annotations
		case envelope.Type != "":
			items = []json.RawMessage{json.RawMessage(trimmed)}
		}
	default:
		return nil, errors.Errorf("不支持的标注数据格式: %q", trimmed[0])
	}

	shapes := make([]Shape, 0, len(items))
	for _, item := range items {
		shapes = append(shapes, parseShape(item))
	}
	return shapes, nil
}

func parseShape(item json.RawMessage) Shape {
	var raw rawShape
	if err := json.Unmarshal(item, &raw); err != nil {
		return UnknownShape{Raw: item}
	}

	classID := 0
	if v, ok := decodeNumber(raw.ClassID); ok {
		classID = int(v)
	}

	switch raw.Type {
	case ShapeTypeRectangle:
		origin, okOrigin := decodePoint(raw.StartPoint)
		width, okWidth := decodeNumber(raw.Width)
		height, okHeight := decodeNumber(raw.Height)
		// 宽高为 0 的矩形视为几何信息缺失
		if okOrigin && okWidth && okHeight && width != 0 && height != 0 {
			return Rectangle{Origin: origin, Width: width, Height: height, ClassID: classID}
		}
		var bbox []float64
		if json.Unmarshal(raw.BBox, &bbox) == nil && len(bbox) == 4 {
			return Box{X: bbox[0], Y: bbox[1], W: bbox[2], H: bbox[3], ClassID: classID}
		}
	case ShapeTypePolygon:
		if points := decodePoints(raw.Points); len(points) >= 3 {
			return Polygon{Points: points, ClassID: classID}
		}
	}
	return UnknownShape{Type: raw.Type, Raw: item}
}

// decodeNumber 接受数字或数字字符串
func decodeNumber(data json.RawMessage) (float64, bool) {
	if len(data) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// decodePoint 接受 {"x":..,"y":..} 或 [x, y]
func decodePoint(data json.RawMessage) (Point, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Point{}, false
	}
	switch trimmed[0] {
	case '{':
		var obj struct {
			X json.RawMessage `json:"x"`
			Y json.RawMessage `json:"y"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return Point{}, false
		}
		x, okX := decodeNumber(obj.X)
		y, okY := decodeNumber(obj.Y)
		return Point{X: x, Y: y}, okX && okY
	case '[':
		var pair []json.RawMessage
		if err := json.Unmarshal(trimmed, &pair); err != nil || len(pair) != 2 {
			return Point{}, false
		}
		x, okX := decodeNumber(pair[0])
		y, okY := decodeNumber(pair[1])
		return Point{X: x, Y: y}, okX && okY
	}
	return Point{}, false
}

// decodePoints 任一顶点无法解析时返回 nil
func decodePoints(data json.RawMessage) []Point {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	points := make([]Point, 0, len(items))
	for _, item := range items {
		p, ok := decodePoint(item)
		if !ok {
			return nil
		}
		points = append(points, p)
	}
	return points
}
