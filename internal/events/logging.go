package events

import (
	"encoding/json"
	"io"
	"strings"

	"chatlog-cli/internal/logger"
)

// DefaultEQLogPath 是 EQ 日志文件的默认位置。
const DefaultEQLogPath = "logs/eq.log"

var log = logger.Named("events")

// NewQueueLogger 为队列创建独立日志文件；失败时退回全局 logger。
func NewQueueLogger(path string) (*logger.LogEntry, io.Closer) {
	if path == "" {
		return logger.Named("eq"), nil
	}
	entry, closer, _, err := logger.SetupComponentFile("eq", path)
	if err != nil {
		log.Warnf("failed to set up eq log file (%s): %v", path, err)
		return logger.Named("eq"), nil
	}
	return entry, closer
}

func logEvent(entry *logger.LogEntry, event Event, dropped bool) {
	if entry == nil {
		return
	}
	fields := logger.Fields{"type": event.Type}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.SessionID != "" {
		fields["session_id"] = event.SessionID
	}
	if event.Payload != nil {
		fields["payload"] = encodePayload(event.Payload)
	}
	if dropped {
		fields["dropped"] = true
	}
	entry.WithFields(fields).Debug("published event")
}

// encodePayload 字符串原样输出，其余编码为缩进 JSON。
func encodePayload(payload any) string {
	switch v := payload.(type) {
	case string:
		return v
	case error:
		return v.Error()
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return strings.TrimSpace(err.Error())
	}
	return string(data)
}
