// Package imageinfo 从图片文件头读取像素尺寸
package imageinfo

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
)

// 无法识别时的默认尺寸
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

const headerSize = 24

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

// Dimensions 读取文件前 24 字节，PNG 从 IHDR 取宽高。
// 非 PNG、文件过短、读取失败或宽高为 0 时返回 640x480，不返回错误
func Dimensions(path string) (width, height int) {
	f, err := os.Open(path)
	if err != nil {
		return DefaultWidth, DefaultHeight
	}
	defer f.Close()

	return FromReader(f)
}

// FromReader 同 Dimensions，从任意流读取文件头
func FromReader(r io.Reader) (width, height int) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return DefaultWidth, DefaultHeight
	}
	if !bytes.Equal(header[:4], pngMagic) {
		return DefaultWidth, DefaultHeight
	}

	w := binary.BigEndian.Uint32(header[16:20])
	h := binary.BigEndian.Uint32(header[20:24])
	if w == 0 || h == 0 || w > 1<<31-1 || h > 1<<31-1 {
		return DefaultWidth, DefaultHeight
	}
	return int(w), int(h)
}
