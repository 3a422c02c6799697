package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"alfa-admin/internal/config"
	"alfa-admin/internal/logger"
	"alfa-admin/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB 封装 GORM 连接，所有账号/设置/日志/代理数据都经过这里
type DB struct {
	gorm *gorm.DB
	cfg  *config.Config

	changeFeed *changeFeed
}

// migratedModels 按依赖顺序列出需要建表的模型
var migratedModels = []struct {
	model any
	table string
}{
	{&models.Setting{}, "settings"},
	{&models.Account{}, "accounts"},
	{&models.User{}, "users"},
	{&models.RequestLog{}, "request_logs"},
	{&models.Proxy{}, "proxies"},
}

// New 打开数据库并完成迁移（默认 SQLite，可配置 MySQL）
func New(cfg *config.Config) (*DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}
	if cfg.Debug {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	gormDB, err := gorm.Open(openDialector(cfg), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	db := &DB{gorm: gormDB, cfg: cfg, changeFeed: newChangeFeed()}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接失败: %w", err)
	}
	if db.IsMySQL() {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
	} else {
		// SQLite 同一时刻只有一个写入者
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		db.tuneSQLite()
	}

	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("迁移数据库结构失败: %w", err)
	}
	if err := db.seedDefaults(); err != nil {
		return nil, fmt.Errorf("初始化默认设置失败: %w", err)
	}

	return db, nil
}

// openDialector 根据配置选择数据库方言
func openDialector(cfg *config.Config) gorm.Dialector {
	if cfg.Database.Type == config.DatabaseTypeMySQL {
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			cfg.Database.MySQL.User,
			cfg.Database.MySQL.Password,
			cfg.Database.MySQL.Host,
			cfg.Database.MySQL.Port,
			cfg.Database.MySQL.Database,
			cfg.Database.MySQL.Charset,
		)
		logger.Info("[DB] 使用 MySQL 数据库: %s@%s:%d/%s",
			cfg.Database.MySQL.User, cfg.Database.MySQL.Host,
			cfg.Database.MySQL.Port, cfg.Database.MySQL.Database)
		return mysql.Open(dsn)
	}

	dbPath := cfg.Database.SQLite.Path
	if dbPath == "" {
		dbPath = "data.sqlite3"
	}
	logger.Info("[DB] 使用 SQLite 数据库: %s", dbPath)
	return sqlite.Open(fmt.Sprintf("%s?_busy_timeout=30000&_txlock=immediate", dbPath))
}

// tuneSQLite 放宽 SQLite 的默认参数，刷新风暴时写入会集中到账号表
func (db *DB) tuneSQLite() {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",     // 读写并发
		"PRAGMA synchronous=NORMAL",   // WAL 下足够安全
		"PRAGMA cache_size=-64000",    // 64MB
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if err := db.gorm.Exec(p).Error; err != nil {
			logger.Warn("[DB] %s 失败: %v", p, err)
		}
	}
}

// migrate 建表并补列，已有列的约束不动，避免丢数据
func (db *DB) migrate() error {
	logger.Info("开始迁移数据库结构...")

	if db.IsSQLite() {
		db.gorm.Exec("PRAGMA foreign_keys = OFF")
		defer db.gorm.Exec("PRAGMA foreign_keys = ON")
	}

	if err := db.widenSnapshotColumns(); err != nil {
		logger.Warn("调整 accounts 快照列类型时出现警告: %v", err)
	}

	migrator := db.gorm.Migrator()
	for _, m := range migratedModels {
		if !migrator.HasTable(m.model) {
			if err := migrator.CreateTable(m.model); err != nil {
				logger.Warn("创建表 %s 时出现警告: %v", m.table, err)
			} else {
				logger.Info("创建表: %s", m.table)
			}
			continue
		}
		if err := db.addMissingColumns(m.model, m.table); err != nil {
			logger.Warn("更新表 %s 结构时出现警告: %v", m.table, err)
		}
	}

	logger.Info("数据库结构迁移完成")
	return nil
}

// snapshotColumns 存的是门户返回的整棵 JSON 树，MySQL 下必须是 TEXT
var snapshotColumns = []string{
	"alfa_data",
	"pending_subscribers",
	"removed_subscribers",
	"removed_active_subscribers",
}

// widenSnapshotColumns 把历史上建成 VARCHAR 的快照列改为 TEXT。
// SQLite 的 TEXT 本身没有长度限制，跳过。
func (db *DB) widenSnapshotColumns() error {
	if db.IsSQLite() {
		return nil
	}

	var tableCount int64
	db.gorm.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = 'accounts'").Scan(&tableCount)
	if tableCount == 0 {
		return nil
	}

	for _, column := range snapshotColumns {
		var dataType string
		db.gorm.Raw(`
			SELECT DATA_TYPE FROM information_schema.columns
			WHERE table_schema = DATABASE()
			AND table_name = 'accounts' AND column_name = ?
		`, column).Scan(&dataType)

		if dataType == "varchar" {
			logger.Info("accounts.%s 为 VARCHAR，改为 TEXT...", column)
			if err := db.gorm.Exec(fmt.Sprintf("ALTER TABLE accounts MODIFY COLUMN %s TEXT", column)).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// addMissingColumns 只补缺失的列
func (db *DB) addMissingColumns(model any, tableName string) error {
	migrator := db.gorm.Migrator()

	stmt := &gorm.Statement{DB: db.gorm}
	if err := stmt.Parse(model); err != nil {
		return err
	}

	for _, field := range stmt.Schema.Fields {
		if field.DBName == "" || migrator.HasColumn(model, field.DBName) {
			continue
		}
		if err := migrator.AddColumn(model, field.DBName); err != nil {
			logger.Warn("添加列 %s.%s 时出现警告: %v", tableName, field.DBName, err)
		} else {
			logger.Info("添加列: %s.%s", tableName, field.DBName)
		}
	}
	return nil
}

// seedDefaults 首次启动写入默认管理密码
func (db *DB) seedDefaults() error {
	var count int64
	if err := db.gorm.Model(&models.Setting{}).Where("setting_key = ?", "admin_password").Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		setting := &models.Setting{Key: "admin_password", Value: "admin"}
		if err := db.gorm.Create(setting).Error; err != nil {
			return err
		}
		logger.Info("[DB] 已初始化默认管理密码: admin")
	}
	return nil
}

// Close 关闭变更广播和底层连接
func (db *DB) Close() error {
	db.changeFeed.closeAll()

	sqlDB, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsSQLite 判断是否为 SQLite 数据库
func (db *DB) IsSQLite() bool {
	return db.cfg.Database.Type != config.DatabaseTypeMySQL
}

// IsMySQL 判断是否为 MySQL 数据库
func (db *DB) IsMySQL() bool {
	return db.cfg.Database.Type == config.DatabaseTypeMySQL
}

// RetryOnLock 在 SQLite 写锁冲突时指数退避重试
// @author ygw
func (db *DB) RetryOnLock(ctx context.Context, maxRetries int, fn func() error) error {
	if db.IsMySQL() {
		return fn()
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !strings.Contains(lastErr.Error(), "database is locked") &&
			!strings.Contains(lastErr.Error(), "SQLITE_BUSY") {
			return lastErr
		}
		backoff := time.Duration(10*(i+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}
