package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

var (
	infoLogger   *log.Logger
	warnLogger   *log.Logger
	errorLogger  *log.Logger
	debugLogger  *log.Logger
	debugEnabled atomic.Bool
	logFile      *os.File

	feed = &logFeed{subscribers: make(map[chan string]struct{})}
)

// logFeed 把每条日志复制一份广播给所有 SSE 订阅者
// channel 写满直接丢弃该订阅者的这条消息，日志写入永不阻塞
type logFeed struct {
	mu          sync.RWMutex
	subscribers map[chan string]struct{}
}

func (f *logFeed) publish(msg string) {
	f.mu.RLock()
	for ch := range f.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
	f.mu.RUnlock()
}

func (f *logFeed) closeAll() {
	f.mu.Lock()
	for ch := range f.subscribers {
		delete(f.subscribers, ch)
		close(ch)
	}
	f.mu.Unlock()
}

// teeWriter 日志同时落盘/上屏并推给订阅者
type teeWriter struct {
	out io.Writer
}

func (w *teeWriter) Write(p []byte) (n int, err error) {
	n, err = w.out.Write(p)
	feed.publish(string(p))
	return
}

// Subscribe 订阅服务日志流（控制台"服务日志"面板用）
func Subscribe() chan string {
	ch := make(chan string, 100)
	feed.mu.Lock()
	feed.subscribers[ch] = struct{}{}
	feed.mu.Unlock()
	return ch
}

// Unsubscribe 取消订阅并关闭 channel
func Unsubscribe(ch chan string) {
	feed.mu.Lock()
	if _, ok := feed.subscribers[ch]; ok {
		delete(feed.subscribers, ch)
		close(ch)
	}
	feed.mu.Unlock()
}

// Init 初始化日志系统，日志文件按日期切分
func Init() error {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %v", err)
	}

	logFileName := filepath.Join(logDir, fmt.Sprintf("alfa-admin_%s.log", time.Now().Format("2006-01-02")))
	var err error
	logFile, err = os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("创建日志文件失败: %v", err)
	}

	w := &teeWriter{out: io.MultiWriter(os.Stdout, logFile)}
	flags := log.Ldate | log.Ltime | log.Lshortfile

	infoLogger = log.New(w, "[INFO] ", flags)
	warnLogger = log.New(w, "[WARN] ", flags)
	errorLogger = log.New(w, "[ERROR] ", flags)
	debugLogger = log.New(w, "[DEBUG] ", flags)

	infoLogger.Println("日志系统初始化成功，日志文件: " + logFileName)
	return nil
}

// CloseSubscribers 关闭所有订阅者的 channel（优雅关闭时先断开 SSE 连接）
func CloseSubscribers() {
	feed.closeAll()
}

// Close 关闭日志文件并断开所有订阅者
func Close() {
	CloseSubscribers()

	if logFile != nil {
		logFile.Close()
	}
}

// SetDebugEnabled 设置调试日志开关（可在设置页动态切换）
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
	if infoLogger == nil {
		return
	}
	if enabled {
		infoLogger.Println("调试日志已启用")
	} else {
		infoLogger.Println("调试日志已禁用")
	}
}

// IsDebugEnabled 返回调试模式是否开启
func IsDebugEnabled() bool {
	return debugEnabled.Load()
}

// Info 记录信息级别日志
func Info(format string, v ...interface{}) {
	if infoLogger != nil {
		infoLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

// Warn 记录警告级别日志
func Warn(format string, v ...interface{}) {
	if warnLogger != nil {
		warnLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

// Error 记录错误级别日志
func Error(format string, v ...interface{}) {
	if errorLogger != nil {
		errorLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

// Debug 记录调试级别日志，默认关闭
func Debug(format string, v ...interface{}) {
	if debugLogger != nil && debugEnabled.Load() {
		debugLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

// LogRequest 记录 HTTP 请求概要
func LogRequest(method, path, ip string, statusCode int, duration time.Duration) {
	Info("%s %s 来自 %s - 状态: %d - 耗时: %v", method, path, ip, statusCode, duration)
}
