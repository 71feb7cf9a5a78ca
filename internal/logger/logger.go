package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// 对外暴露 logrus 的类型别名，调用方无需直接 import logrus。
type (
	Logger   = logrus.Logger
	LogEntry = logrus.Entry
	Fields   = logrus.Fields
)

// DefaultLogPath 是主日志文件的默认位置。
const DefaultLogPath = "logs/chatlog-cli.log"

var rootLogger = logrus.StandardLogger()

// Configure 设置全局格式、caller 输出和日志级别（空字符串保持 info）。
func Configure(level string) {
	l := root()
	l.SetReportCaller(true)
	l.SetFormatter(PlainFormatter{})
	if strings.TrimSpace(level) == "" {
		return
	}
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		l.Warnf("unknown log level %q, keeping %s", level, l.GetLevel())
		return
	}
	l.SetLevel(parsed)
}

// SetupFile 把全局输出切到 logPath，返回文件 closer 和实际路径。
func SetupFile(logPath string) (io.Closer, string, error) {
	f, resolved, err := openLogFile(logPath)
	if err != nil {
		return nil, "", err
	}
	root().SetOutput(f)
	return f, resolved, nil
}

// SetupComponentFile 为单个组件创建独立文件 logger，并附带 component 字段。
func SetupComponentFile(component, logPath string) (*LogEntry, io.Closer, string, error) {
	f, resolved, err := openLogFile(logPath)
	if err != nil {
		return nil, nil, "", err
	}
	l := logrus.New()
	l.SetReportCaller(true)
	l.SetFormatter(PlainFormatter{})
	l.SetLevel(root().GetLevel())
	l.SetOutput(f)
	return withComponent(logrus.NewEntry(l), component), f, resolved, nil
}

// Root 返回全局 logger。
func Root() *Logger {
	return root()
}

// SetRoot 替换全局 logger；nil 恢复为 logrus 标准 logger。
func SetRoot(l *Logger) {
	if l == nil {
		l = logrus.StandardLogger()
	}
	rootLogger = l
}

// Named 返回带 component 字段的入口。
func Named(component string) *LogEntry {
	return withComponent(logrus.NewEntry(root()), component)
}

// Discard 返回丢弃所有输出的入口，测试里用得比较多。
func Discard() *LogEntry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func Infof(format string, args ...any) {
	root().Infof(format, args...)
}

func Warnf(format string, args ...any) {
	root().Warnf(format, args...)
}

func Fatalf(format string, args ...any) {
	root().Fatalf(format, args...)
}

func withComponent(entry *LogEntry, component string) *LogEntry {
	if component == "" {
		return entry
	}
	return entry.WithField("component", component)
}

func root() *logrus.Logger {
	if rootLogger == nil {
		rootLogger = logrus.StandardLogger()
	}
	return rootLogger
}

// PlainFormatter 输出：caller [time] [LEVEL] [component] [type=...] message k=v...
type PlainFormatter struct{}

// Format 实现 logrus.Formatter。
func (PlainFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	if entry == nil {
		return []byte{}, nil
	}
	parts := make([]string, 0, 7)
	if caller := formatCaller(entry); caller != "" {
		parts = append(parts, caller)
	}
	parts = append(parts,
		"["+entry.Time.UTC().Format(time.RFC3339Nano)+"]",
		"["+strings.ToUpper(entry.Level.String())+"]",
	)
	if component, ok := entry.Data["component"].(string); ok && component != "" {
		parts = append(parts, "["+component+"]")
	}
	if typ, ok := entry.Data["type"]; ok {
		parts = append(parts, fmt.Sprintf("[type=%v]", typ))
	}
	parts = append(parts, entry.Message)
	if fields := formatFields(entry.Data); fields != "" {
		parts = append(parts, fields)
	}
	return []byte(strings.Join(parts, " ") + "\n"), nil
}

func formatCaller(entry *logrus.Entry) string {
	if entry.HasCaller() && entry.Caller != nil {
		return fmt.Sprintf("%s:%d", shortenFilePath(entry.Caller.File), entry.Caller.Line)
	}
	if caller, ok := entry.Data["caller"].(string); ok {
		return caller
	}
	return ""
}

// component/caller/type 已经单独输出，这里跳过。
func formatFields(fields logrus.Fields) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		switch k {
		case "component", "caller", "type":
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

func shortenFilePath(file string) string {
	file = filepath.ToSlash(file)
	for _, marker := range []string{"/internal/", "/cmd/"} {
		if idx := strings.Index(file, marker); idx != -1 {
			return file[idx+1:]
		}
	}
	if idx := strings.Index(file, "/chatlog-cli/"); idx != -1 {
		return file[idx+len("/chatlog-cli/"):]
	}
	return filepath.Base(file)
}

func openLogFile(logPath string) (*os.File, string, error) {
	if logPath == "" {
		logPath = DefaultLogPath
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, "", fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("open log file: %w", err)
	}
	return f, logPath, nil
}
