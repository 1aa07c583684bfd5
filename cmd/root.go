package cmd

import (
	"os"

	"labeloo/app/config"
	"labeloo/app/database"
	"labeloo/app/logger"
	"labeloo/app/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "labeloo",
	Short:   "图像标注任务管理服务",
	Long:    "管理标注项目的媒体导入、任务分配、标注存储和 YOLO 数据集导出",
	Version: "1.0.0",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径（默认 ./data/config.yaml 或 ./config.yaml）")
}

// initConfig 设置配置文件搜索路径和环境变量，读取在 config.Load 中完成
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("./data") // 相对于当前工作目录的 data 文件夹
		viper.AddConfigPath(".")      // 当前目录
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.AutomaticEnv() // 读取匹配的环境变量
}

// bootstrap 加载配置、初始化数据库并组装服务，返回的 cleanup 负责释放资源
func bootstrap() (*config.Config, *logger.Logger, *server.Services, func()) {
	cfg := config.Load()
	log := logger.New(cfg.Log)

	if err := database.Init(cfg, log); err != nil {
		log.Fatalf("数据库初始化失败: %v", err)
	}

	services := server.NewServices(cfg, database.GetDB(), log)
	cleanup := func() {
		if err := services.Close(); err != nil {
			log.Warnf("释放服务资源失败: %v", err)
		}
		if err := database.Close(); err != nil {
			log.Errorf("关闭数据库连接失败: %v", err)
		}
		_ = log.Close()
	}
	return cfg, log, services, cleanup
}
