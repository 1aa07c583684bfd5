package cmd

import (
	"context"
	"fmt"
	"strconv"

	"labeloo/app/model"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statsProjectID uint

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "查看项目任务统计",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, services, cleanup := bootstrap()
		defer cleanup()

		ctx := context.Background()
		var projects []model.Project
		if statsProjectID != 0 {
			p, err := services.Projects.Get(ctx, statsProjectID)
			if err != nil {
				return err
			}
			projects = []model.Project{*p}
		} else {
			var err error
			if projects, err = services.Projects.List(ctx); err != nil {
				return err
			}
		}

		rows := make([][]string, 0, len(projects))
		for _, p := range projects {
			stats, err := services.Tasks.Stats(ctx, p.ID)
			if err != nil {
				return err
			}
			rows = append(rows, []string{
				strconv.FormatUint(uint64(p.ID), 10),
				p.Name,
				humanize.Comma(stats.Total),
				humanize.Comma(stats.Unassigned),
				humanize.Comma(stats.Annotating),
				humanize.Comma(stats.Completed),
				completion(stats),
			})
		}

		fmt.Println(renderTable(
			[]string{"ID", "项目", "总数", "未分配", "标注中", "已完成", "完成率"},
			rows,
			1, 3, 4, 5, 6, 7,
		))
		return nil
	},
}

func completion(stats *model.TaskStats) string {
	if stats.Total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(stats.Completed)*100/float64(stats.Total))
}

func init() {
	statsCmd.Flags().UintVar(&statsProjectID, "project", 0, "项目ID，不指定时统计全部项目")
	rootCmd.AddCommand(statsCmd)
}
