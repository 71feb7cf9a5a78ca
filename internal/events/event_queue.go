package events

import (
	"context"
	"errors"
	"sync"

	"chatlog-cli/internal/logger"
)

var (
	// ErrEventQueueClosed 表示事件队列已关闭。
	ErrEventQueueClosed = errors.New("event queue closed")
	// ErrEventDropped 表示至少一个慢订阅者的缓冲已满，事件被丢弃。
	ErrEventDropped = errors.New("event dropped by slow subscriber")
)

// EventQueue 是 EQ：把事件广播给所有订阅者，从不阻塞发布方。
type EventQueue struct {
	mu     sync.Mutex
	subs   []chan Event
	buffer int
	closed bool
	log    *logger.LogEntry
}

// NewEventQueue 创建事件队列，buffer 是每个订阅者的缓冲大小。
func NewEventQueue(buffer int) *EventQueue {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventQueue{buffer: buffer, log: logger.Named("eq")}
}

// SetLogger 覆盖队列使用的 logger。
func (q *EventQueue) SetLogger(entry *logger.LogEntry) {
	if entry == nil {
		return
	}
	q.mu.Lock()
	q.log = entry
	q.mu.Unlock()
}

// Subscribe 订阅事件流，Close 时通道关闭。
func (q *EventQueue) Subscribe() <-chan Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	ch := make(chan Event, q.buffer)
	q.subs = append(q.subs, ch)
	return ch
}

// Publish 发布事件到所有订阅者；存在丢弃时返回 ErrEventDropped。
func (q *EventQueue) Publish(ctx context.Context, event Event) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrEventQueueClosed
	}
	subs := append([]chan Event{}, q.subs...)
	log := q.log
	q.mu.Unlock()

	dropped := false
	for _, ch := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch <- event:
		default:
			dropped = true
		}
	}
	logEvent(log, event, dropped)
	if dropped {
		return ErrEventDropped
	}
	return nil
}

// Dispatch 是 fire-and-forget 的发布，失败只记日志。
func (q *EventQueue) Dispatch(event Event) {
	if err := q.Publish(context.Background(), event); err != nil {
		q.mu.Lock()
		log := q.log
		q.mu.Unlock()
		log.WithField("type", event.Type).Warnf("dispatch failed: %v", err)
	}
}

// Close 关闭队列和所有订阅通道，可重复调用。
func (q *EventQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	subs := q.subs
	q.subs = nil
	q.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}

// SubscriberCount 返回当前订阅者数量。
func (q *EventQueue) SubscriberCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.subs)
}
