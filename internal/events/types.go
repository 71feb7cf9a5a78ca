package events

import (
	"time"

	"chatlog-cli/internal/activity"
)

// EventType 是历史分页相关的事件名。
type EventType string

const (
	// EventFetchHistory 请求 transport 再拉一页更早的历史。
	EventFetchHistory EventType = "history.fetch"
	// EventHistoryBatchLoaded 一页历史已转换完毕，Payload 为 HistoryBatch。
	EventHistoryBatchLoaded EventType = "history.batch_loaded"
	// EventNoMoreHistory 历史已经全部拉完，终态。
	EventNoMoreHistory EventType = "history.exhausted"
	// EventHistoryLoadError 拉取失败，Payload 为 error 文本。
	EventHistoryLoadError EventType = "history.error"
	// EventAddActivity 向 transcript 直接插入一条 activity（Payload 为 activity.Activity）。
	EventAddActivity EventType = "transcript.add_activity"
	// EventConnectivity 连接状态变化，Payload 为 bool。
	EventConnectivity EventType = "transport.connectivity"
)

// Event 是 EQ 中传递的唯一消息格式，Payload 的结构由 Type 决定。
type Event struct {
	Type      EventType
	RequestID string
	SessionID string
	Timestamp time.Time
	Payload   any
}

// HistoryBatch 是 EventHistoryBatchLoaded 的载荷。
type HistoryBatch struct {
	// Activities 已按 sequence-id 升序排列。
	Activities []activity.Activity
	Received   int
	Dropped    int
	More       bool
}
