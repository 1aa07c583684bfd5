package pathhelper

import (
	"path"
	"regexp"
	"strings"
)

// 正则表达式用于匹配 Windows 盘符格式
var driveLetterPattern = regexp.MustCompile(`^[a-zA-Z]:[\\/]+`)

// RemoveDriveLetter 去掉 Windows 盘符
func RemoveDriveLetter(p string) string {
	if p == "" {
		return ""
	}
	return driveLetterPattern.ReplaceAllString(p, "")
}

// ToSlash 统一为正斜杠路径，压缩包里的 Windows 风格条目名也能正确取扩展名
func ToSlash(p string) string {
	return strings.ReplaceAll(RemoveDriveLetter(p), "\\", "/")
}

// ExtSet 扩展名集合，匹配不区分大小写
type ExtSet map[string]struct{}

// NewExtSet 创建扩展名集合，允许省略前导点
func NewExtSet(exts ...string) ExtSet {
	set := make(ExtSet, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

// Match 文件名的扩展名是否在集合中
func (s ExtSet) Match(name string) bool {
	_, ok := s[strings.ToLower(path.Ext(ToSlash(name)))]
	return ok
}

// IsMacJunk macOS 打包时附带的 __MACOSX 目录和 ._ 资源文件
func IsMacJunk(name string) bool {
	name = ToSlash(name)
	if strings.HasPrefix(name, "__MACOSX/") || strings.Contains(name, "/__MACOSX/") {
		return true
	}
	base := path.Base(name)
	return strings.HasPrefix(base, "._") || base == ".DS_Store"
}

// IsHidden 以点开头的隐藏文件，以及编辑器和下载工具的临时文件
func IsHidden(name string) bool {
	base := path.Base(ToSlash(name))
	if strings.HasPrefix(base, ".") {
		return true
	}
	lower := strings.ToLower(base)
	for _, suffix := range []string{".tmp", ".part", ".crdownload", "~"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
