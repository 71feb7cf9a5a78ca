package history

import (
	"context"
	"sync"
	"time"

	"chatlog-cli/internal/activity"
	"chatlog-cli/internal/events"
	"chatlog-cli/internal/logger"

	"github.com/google/uuid"
)

// Loader 用转换后的分页响应 EventFetchHistory。
//
// 每个请求发布 EventHistoryBatchLoaded，数据源耗尽时再发布 EventNoMoreHistory。
// 加载失败发布 EventHistoryLoadError，游标保持不变。加载进行中到达的请求会被丢弃。
// Reset 会取消进行中的加载，Reset 之前开始的加载不会再改动游标或发布事件。
type Loader struct {
	src      Source
	queue    *events.EventQueue
	pageSize int
	log      *logger.LogEntry

	mu        sync.Mutex
	cursor    int64
	exhausted bool
	inflight  bool
	gen       uint64
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewLoader(src Source, queue *events.EventQueue, pageSize int) *Loader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Loader{
		src:      src,
		queue:    queue,
		pageSize: pageSize,
		log:      logger.Named("history"),
	}
}

func (l *Loader) SetLogger(entry *logger.LogEntry) {
	if entry != nil {
		l.log = entry
	}
}

// Run 消费队列直到 ctx 结束或队列关闭，然后等待进行中的加载。
func (l *Loader) Run(ctx context.Context) {
	sub := l.queue.Subscribe()
	defer l.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if ev.Type == events.EventFetchHistory {
				l.Request(ctx, ev.SessionID)
			}
		}
	}
}

// Request 在没有加载进行时开始加载下一页，返回是否真正开始了加载。
func (l *Loader) Request(ctx context.Context, sessionID string) bool {
	l.mu.Lock()
	if l.inflight {
		l.mu.Unlock()
		l.log.Debug("fetch ignored, page in flight")
		return false
	}
	if l.exhausted {
		l.mu.Unlock()
		l.publish(ctx, events.Event{Type: events.EventNoMoreHistory, SessionID: sessionID})
		return false
	}
	l.inflight = true
	cursor, gen := l.cursor, l.gen
	loadCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		defer cancel()
		l.load(loadCtx, sessionID, cursor, gen)
	}()
	return true
}

func (l *Loader) load(ctx context.Context, sessionID string, cursor int64, gen uint64) {
	reqID := uuid.NewString()
	entry := l.log.WithFields(logger.Fields{"request_id": reqID, "cursor": cursor})

	page, err := l.src.Page(ctx, cursor, l.pageSize)
	if err != nil {
		l.mu.Lock()
		stale := gen != l.gen
		if !stale {
			l.inflight = false
			l.cancel = nil
		}
		l.mu.Unlock()
		if stale {
			entry.Debug("stale history page discarded")
			return
		}
		entry.Warnf("load history page: %v", err)
		l.publish(ctx, events.Event{
			Type:      events.EventHistoryLoadError,
			RequestID: reqID,
			SessionID: sessionID,
			Payload:   err.Error(),
		})
		return
	}

	acts := activity.ConvertBatch(page.Messages)
	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		entry.Debug("stale history page discarded")
		return
	}
	if len(page.Messages) > 0 {
		l.cursor = page.Next
	}
	l.exhausted = !page.More
	l.inflight = false
	l.cancel = nil
	l.mu.Unlock()

	entry.WithFields(logger.Fields{
		"received": len(page.Messages),
		"rendered": len(acts),
		"more":     page.More,
	}).Debug("history page loaded")

	l.publish(ctx, events.Event{
		Type:      events.EventHistoryBatchLoaded,
		RequestID: reqID,
		SessionID: sessionID,
		Payload: events.HistoryBatch{
			Activities: acts,
			Received:   len(page.Messages),
			Dropped:    len(page.Messages) - len(acts),
			More:       page.More,
		},
	})
	if !page.More {
		l.publish(ctx, events.Event{Type: events.EventNoMoreHistory, RequestID: reqID, SessionID: sessionID})
	}
}

// Reset 为新会话回到最新一页并放弃进行中的加载，下一个请求可以立即开始。
func (l *Loader) Reset() {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.gen++
	l.cursor = 0
	l.exhausted = false
	l.inflight = false
	l.mu.Unlock()
}

func (l *Loader) publish(ctx context.Context, ev events.Event) {
	ev.Timestamp = time.Now()
	if err := l.queue.Publish(ctx, ev); err != nil {
		l.log.WithField("type", ev.Type).Warnf("publish: %v", err)
	}
}
