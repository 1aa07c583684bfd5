package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
	Export     ExportConfig     `mapstructure:"export"`
	Permission PermissionConfig `mapstructure:"permission"`
	Watcher    WatcherConfigs   `mapstructure:"watcher"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	Dir        string `mapstructure:"dir"`         // 日志文件目录
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`      // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time"` // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`      // 签发者
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, mysql, postgres
	Path string `mapstructure:"path"` // sqlite 文件路径
	DSN  string `mapstructure:"dsn"`  // mysql/postgres 连接串
}

// StorageConfig 媒体存储配置
type StorageConfig struct {
	BucketDir     string `mapstructure:"bucket_dir"`      // 媒体根目录
	TempDir       string `mapstructure:"temp_dir"`        // 导出暂存和压缩包目录
	PublicBaseURL string `mapstructure:"public_base_url"` // 对外暴露的 bucket 地址
}

// IngestConfig 上传导入配置
type IngestConfig struct {
	ImageExtensions     []string `mapstructure:"image_extensions"`
	VideoExtensions     []string `mapstructure:"video_extensions"`
	ZipFilenameEncoding string   `mapstructure:"zip_filename_encoding"` // 非 UTF-8 压缩包文件名编码，如 gbk
}

// FFmpegConfig 抽帧工具配置
type FFmpegConfig struct {
	Binary string `mapstructure:"binary"`
}

// ExportConfig 数据集导出配置
type ExportConfig struct {
	RetentionHours       int    `mapstructure:"retention_hours"`
	CleanupCron          string `mapstructure:"cleanup_cron"`
	NotifyURL            string `mapstructure:"notify_url"`
	NotifyTimeoutSeconds int    `mapstructure:"notify_timeout_seconds"`
}

// PermissionConfig 权限判定配置
type PermissionConfig struct {
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
}

// WatcherConfigs 热文件夹导入配置
type WatcherConfigs struct {
	Enabled bool            `mapstructure:"enabled"`
	Configs []WatcherConfig `mapstructure:"configs"`
}

// WatcherConfig 单个热文件夹
type WatcherConfig struct {
	Name            string  `mapstructure:"name"`
	SourceDir       string  `mapstructure:"source_dir"`
	ProjectID       uint    `mapstructure:"project_id"`
	Recursive       bool    `mapstructure:"recursive"`
	ProcessExisting bool    `mapstructure:"process_existing"`
	FPS             float64 `mapstructure:"fps"` // 视频抽帧帧率，未设置时跳过视频
}

func Load() *Config {
	setDefaults()

	// 读取配置
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("未找到配置文件，使用默认配置")
		} else {
			log.Fatalf("读取配置文件出错: %v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("无法解码配置: %v", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	return &config
}

// Default 返回仅包含默认值的配置，测试和命令行工具使用
func Default() *Config {
	v := viper.New()
	applyDefaults(v)
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic("无法解码默认配置: " + err.Error())
	}
	return &config
}

// setDefaults 设置默认配置
func setDefaults() {
	applyDefaults(viper.GetViper())
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8787")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.dir", "data/logs")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	// JWT默认配置
	v.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	v.SetDefault("jwt.expire_time", 24) // 24小时
	v.SetDefault("jwt.issuer", "labeloo")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "data/labeloo.db")

	v.SetDefault("storage.bucket_dir", "bucket")
	v.SetDefault("storage.temp_dir", "temp")
	v.SetDefault("storage.public_base_url", "http://localhost:8787/api/bucket")

	v.SetDefault("ingest.image_extensions", []string{".png", ".jpg", ".jpeg", ".bmp", ".gif", ".webp", ".tif", ".tiff"})
	v.SetDefault("ingest.video_extensions", []string{".mp4", ".mov", ".avi", ".mkv", ".webm"})

	v.SetDefault("ffmpeg.binary", "ffmpeg")

	v.SetDefault("export.retention_hours", 24)
	v.SetDefault("export.cleanup_cron", "@every 1h")
	v.SetDefault("export.notify_timeout_seconds", 10)

	v.SetDefault("permission.cache_ttl_seconds", 30)
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}
	switch config.Database.Type {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("不支持的数据库类型: %s", config.Database.Type)
	}
	if config.Database.Type != "sqlite" && config.Database.DSN == "" {
		return fmt.Errorf("数据库类型 %s 需要设置 dsn", config.Database.Type)
	}
	if config.Storage.BucketDir == "" || config.Storage.TempDir == "" {
		return fmt.Errorf("存储目录未设置")
	}
	if config.Watcher.Enabled {
		for i, w := range config.Watcher.Configs {
			if w.ProjectID == 0 {
				return fmt.Errorf("第%d个热文件夹未设置 project_id", i+1)
			}
			if w.SourceDir == "" {
				return fmt.Errorf("第%d个热文件夹未设置 source_dir", i+1)
			}
		}
	}
	return nil
}
