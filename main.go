package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"alfa-admin/internal/api"
	"alfa-admin/internal/config"
	"alfa-admin/internal/database"
	"alfa-admin/internal/logger"

	_ "time/tzdata" // 嵌入时区数据库，解决 Windows 下时区加载失败问题
)

// Version 版本号，通过 ldflags 注入
var Version = "dev"

func main() {
	// 解析命令行参数
	portFlag := flag.Int("port", 0, "服务器监听端口（优先级最高，0 表示使用系统配置或默认值 62311）")
	flag.IntVar(portFlag, "p", 0, "服务器监听端口（-port 的简写）")
	noBrowserFlag := flag.Bool("no-browser", false, "禁用启动时自动打开浏览器")
	dataDirFlag := flag.String("data-dir", "", "数据目录路径（存放数据库和日志，不指定则使用当前工作目录）")
	flag.Parse()

	// 门户账期按贝鲁特时间滚动，时区对齐后 validityDate 等日期比较才准确
	loc, err := time.LoadLocation("Asia/Beirut")
	if err != nil {
		log.Printf("警告: 加载时区失败，使用 UTC+2: %v", err)
		loc = time.FixedZone("EET", 2*3600)
	}
	time.Local = loc

	// 数据目录（仅当通过 -data-dir 参数指定时才使用）
	if dataDir := *dataDirFlag; dataDir != "" {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Fatalf("创建数据目录失败: %v", err)
		}
		if err := os.Chdir(dataDir); err != nil {
			log.Fatalf("切换到数据目录失败: %v", err)
		}
	}

	// 初始化日志系统
	if err := logger.Init(); err != nil {
		log.Fatalf("初始化日志系统失败: %v", err)
	}
	logger.Info("=== Alfa U-Share 管理控制台 %s 启动中 ===", Version)
	logger.Info("系统时区: %s", time.Local.String())

	// 加载配置（优先 YAML，兼容 JSON，无配置文件则使用默认值）
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Warn("加载配置文件失败，使用默认配置: %v", err)
		cfg = config.Load()
	}

	filePort := cfg.Server.Port
	fileHost := cfg.Server.Host
	logger.SetDebugEnabled(cfg.Debug)

	cliPort := *portFlag
	logger.Info("配置已加载 - 默认端口: %d, 配置文件端口: %d, 命令行端口: %d", cfg.Port, filePort, cliPort)

	// 初始化数据库
	db, err := database.New(cfg)
	if err != nil {
		logger.Error("初始化数据库失败: %v", err)
		log.Fatalf("数据库初始化失败: %v", err)
	}
	defer db.Close()
	logger.Info("数据库初始化成功")

	// 检查账号数量（仅记录警告，不阻止启动）
	maxAccounts := cfg.GetMaxAccounts()
	if count, err := db.GetAccountCount(context.Background()); err != nil {
		logger.Warn("检查账号数量失败: %v", err)
	} else if count > maxAccounts {
		logger.Warn("账号数量超限警告 - 最大支持 %d 个账号，已有 %d 个", maxAccounts, count)
	} else {
		logger.Info("账号数量检查通过: %d/%d", count, maxAccounts)
	}

	// 从数据库加载设置并更新配置
	settings, err := db.GetSettings(context.Background())
	if err != nil {
		logger.Warn("从数据库加载设置失败，使用默认配置: %v", err)
	} else {
		if settings.AdminPassword != "" {
			cfg.AdminPassword = settings.AdminPassword
		}
		cfg.HTTPProxy = settings.HTTPProxy
		cfg.ProxyPoolEnabled = settings.ProxyPoolEnabled
		if settings.ProxyPoolStrategy != "" {
			cfg.ProxyPoolStrategy = settings.ProxyPoolStrategy
		}
		if settings.DebugLog {
			logger.SetDebugEnabled(true)
		}
	}

	// 确定最终端口：命令行参数 > 配置文件 > 系统配置 > 默认值(62311)
	if cliPort > 0 && cliPort <= 65535 {
		cfg.Port = cliPort
		logger.Info("使用命令行指定端口: %d", cfg.Port)
	} else if filePort > 0 && filePort <= 65535 {
		cfg.Port = filePort
		logger.Info("使用配置文件端口: %d", cfg.Port)
	} else if settings != nil && settings.PortConfigured {
		logger.Info("使用系统配置端口: %d", cfg.Port)
	} else {
		logger.Info("使用默认端口: %d", cfg.Port)
	}

	if fileHost != "" {
		cfg.Host = fileHost
	}

	// 创建 API 服务器
	server := api.NewServer(cfg, db, Version)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 300 * time.Second, // SSE 与批量刷新需要较长超时
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器监听中 - 地址: http://%s:%d", cfg.Host, cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP 服务器启动失败: %v", err)
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 等待服务器启动后自动打开浏览器（可通过 -no-browser 禁用）
	if !*noBrowserFlag {
		go func() {
			time.Sleep(500 * time.Millisecond)
			openBrowser(cfg.Host, cfg.Port)
		}()
	} else {
		logger.Info("已禁用自动打开浏览器")
	}

	// 启动缓存系统（设置缓存的后台刷新）
	server.StartCaches(context.Background())

	// 后台任务：账号超限检查 + 过期日志清理
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if count, err := db.GetAccountCount(context.Background()); err == nil && count > maxAccounts {
				logger.Warn("账号数量超限警告 - 已达账号数量上限 %d，已有 %d 个", maxAccounts, count)
			}
			settings, err := db.GetSettings(context.Background())
			if err == nil && settings.EnableRequestLog && settings.LogRetentionDays > 0 {
				deleted, err := db.CleanupOldLogs(context.Background(), settings.LogRetentionDays)
				if err == nil && deleted > 0 {
					logger.Info("自动清理过期日志完成，删除 %d 条记录（保留 %d 天）", deleted, settings.LogRetentionDays)
				}
			}
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到关闭信号,正在优雅关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 停止日志worker和限流器
	server.StopLogWorker()
	server.StopRateLimiter()

	// 先关闭 SSE 订阅者，让 SSE 连接能够正常结束
	logger.CloseSubscribers()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("服务器强制关闭: %v", err)
	}

	logger.Info("=== Alfa U-Share 管理控制台 %s 已停止 ===", Version)
	logger.Close()
	log.Println("服务器已退出")
}

// openBrowser 自动打开浏览器访问管理页面
func openBrowser(host string, port int) {
	accessHost := host
	if host == "0.0.0.0" {
		accessHost = "localhost"
	}
	url := fmt.Sprintf("http://%s:%d", accessHost, port)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		logger.Info("请手动打开浏览器访问: %s", url)
		return
	}

	if err := cmd.Start(); err != nil {
		logger.Warn("自动打开浏览器失败: %v，请手动访问: %s", err, url)
	} else {
		logger.Info("已自动打开浏览器访问: %s", url)
	}
}
