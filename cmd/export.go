package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"labeloo/app/dataset"
	"labeloo/app/service"

	"github.com/dustin/go-humanize"
	cp "github.com/otiai10/copy"
	"github.com/spf13/cobra"
)

var exportOpts struct {
	projectID  uint
	format     string
	train      int
	test       int
	validation int
	out        string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "导出项目已完成任务为数据集压缩包",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportOpts.projectID == 0 {
			return fmt.Errorf("必须指定 --project")
		}

		_, log, services, cleanup := bootstrap()
		defer cleanup()

		split := dataset.SplitConfig{
			Train:      exportOpts.train,
			Test:       exportOpts.test,
			Validation: exportOpts.validation,
		}
		result, err := services.Exports.Export(context.Background(), exportOpts.projectID, service.ExportRequest{
			Format:      exportOpts.format,
			SplitConfig: &split,
		})
		if err != nil {
			return err
		}

		archive := result.ArchivePath
		if exportOpts.out != "" {
			dst := exportOpts.out
			if filepath.Ext(dst) == "" {
				dst = filepath.Join(dst, result.ArchiveName)
			}
			if err := cp.Copy(result.ArchivePath, dst); err != nil {
				return fmt.Errorf("复制压缩包失败: %w", err)
			}
			archive = dst
			log.Infof("压缩包已复制到 %s", dst)
		}

		fmt.Println(renderTable(
			[]string{"项目", "格式", "导出/完成", "大小", "文件"},
			[][]string{{
				fmt.Sprintf("%d %s", result.ProjectID, result.ProjectName),
				result.Format,
				strconv.Itoa(result.ExportedTasks) + "/" + strconv.Itoa(result.TotalTasks),
				humanize.Bytes(uint64(result.ArchiveSize)),
				archive,
			}},
			3, 4,
		))
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.UintVar(&exportOpts.projectID, "project", 0, "项目ID")
	f.StringVar(&exportOpts.format, "format", dataset.FormatYOLO, "导出格式: yolo 或 json")
	f.IntVar(&exportOpts.train, "train", dataset.DefaultSplit.Train, "训练集百分比")
	f.IntVar(&exportOpts.test, "test", dataset.DefaultSplit.Test, "测试集百分比")
	f.IntVar(&exportOpts.validation, "validation", dataset.DefaultSplit.Validation, "验证集百分比")
	f.StringVar(&exportOpts.out, "out", "", "复制压缩包到该路径或目录")
	rootCmd.AddCommand(exportCmd)
}
