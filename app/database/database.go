package database

import (
	"fmt"
	"labeloo/app/config"
	"labeloo/app/logger"
	"os"
	"path/filepath"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB 全局数据库实例，仅由 server/命令行入口持有并注入各服务
var DB *gorm.DB

// Init 初始化数据库连接、迁移表结构并写入初始数据
func Init(cfg *config.Config, log *logger.Logger) error {
	db, err := Open(cfg.Database)
	if err != nil {
		log.Errorf("连接数据库失败: %v", err)
		return err
	}
	DB = db
	log.Infof("数据库连接成功: %s", cfg.Database.Type)

	if err := AutoMigrate(db); err != nil {
		log.Errorf("迁移表结构失败: %v", err)
		return err
	}

	if err := InitDefaultRoles(db, log); err != nil {
		log.Errorf("初始化默认角色失败: %v", err)
		return err
	}

	// 初始化管理员账户
	if err := InitAdminUser(db, cfg, log); err != nil {
		log.Errorf("初始化管理员账户失败: %v", err)
		return err
	}

	return nil
}

// Open 按配置打开数据库
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "data/labeloo.db"
		}
		// 确保数据库文件目录存在
		if err := ensureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
		dialector = sqlite.Open(path + "?_busy_timeout=5000")
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("不支持的数据库类型: %s", cfg.Type)
	}

	return gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}

// Close 关闭数据库连接
func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return DB
}

// ensureDir 确保目录存在
func ensureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
