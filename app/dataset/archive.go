package dataset

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
)

// WriteArchive 以最高压缩级别把 srcDir 整棵目录打包为 dst。
// 条目路径相对 srcDir，使用 / 分隔。失败时删除不完整的压缩包
func WriteArchive(srcDir, dst string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrap(err, "创建压缩包目录失败")
	}

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "创建压缩包失败: %s", dst)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)
		if d.IsDir() {
			_, err := zw.Create(name + "/")
			return err
		}
		return addFile(zw, path, name)
	})

	closeErr := zw.Close()
	if fileErr := out.Close(); closeErr == nil {
		closeErr = fileErr
	}
	if walkErr != nil {
		return errors.Wrap(walkErr, "写入压缩包条目失败")
	}
	if closeErr != nil {
		return errors.Wrap(closeErr, "关闭压缩包失败")
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
