// Package history 是持久化聊天历史的传输层：分页读取消息的数据源、
// 响应事件队列拉取请求的 loader，以及等待存储上线的 bootstrapper。
package history

import (
	"context"
	"errors"
	"sort"

	"chatlog-cli/internal/activity"
)

const DefaultPageSize = 20

var (
	ErrSourceClosed = errors.New("history source closed")
	ErrEmptyPath    = errors.New("history source path is empty")
)

// Source 从新到旧分页读取历史。
type Source interface {
	// Page 返回 sequence id 小于 before 的至多 limit 条消息，按从旧到新排列。
	// before <= 0 表示从最新的消息开始。
	Page(ctx context.Context, before int64, limit int) (Page, error)
	// Ping 判断数据源是否可用。
	Ping(ctx context.Context) error
	Close() error
}

type Page struct {
	Messages []activity.RawHistoryMessage
	// Next 是下一页（更早）的游标。
	Next int64
	More bool
}

type keyed struct {
	seq int64
	msg activity.RawHistoryMessage
}

// sequenced 只保留带有可用 sequence id 的消息并升序排列，重复的 id 保留最后一条。
func sequenced(msgs []activity.RawHistoryMessage) []keyed {
	bySeq := make(map[int64]int, len(msgs))
	out := make([]keyed, 0, len(msgs))
	for _, m := range msgs {
		seq, ok := activity.ParseSequenceID(m.TranscriptOriginalMessageID)
		if !ok {
			continue
		}
		if i, dup := bySeq[seq]; dup {
			out[i].msg = m
			continue
		}
		bySeq[seq] = len(out)
		out = append(out, keyed{seq: seq, msg: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func window(all []keyed, before int64, limit int) Page {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	end := len(all)
	if before > 0 {
		end = sort.Search(len(all), func(i int) bool { return all[i].seq >= before })
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	if start == end {
		return Page{}
	}
	page := Page{
		Messages: make([]activity.RawHistoryMessage, 0, end-start),
		Next:     all[start].seq,
		More:     start > 0,
	}
	for _, k := range all[start:end] {
		page.Messages = append(page.Messages, k.msg)
	}
	return page
}
