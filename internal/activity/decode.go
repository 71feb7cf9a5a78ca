package activity

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

var errNotObject = errors.New("history message is not a JSON object")

// createdLayouts 是 RawHistoryMessage.Created 接受的时间格式。
var createdLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON 逐字段解码：类型不符的字段保持未设置，不会让整条消息失败。
// 只有输入不是 JSON 对象时才返回错误。
func (m *RawHistoryMessage) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errNotObject
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return errNotObject
	}

	var out RawHistoryMessage
	out.Content = stringField(root.Get("content"))
	out.BotContentType = stringField(root.Get("botContentType"))
	out.TranscriptOriginalMessageID = messageID(root.Get("transcriptOriginalMessageId"))
	out.Created = createdTime(root.Get("created"))
	decodeLenient(root.Get("attachments"), &out.Attachments)
	decodeLenient(root.Get("from"), &out.From)
	decodeLenient(root.Get("additionalData"), &out.AdditionalData)
	*m = out
	return nil
}

func stringField(r gjson.Result) string {
	if r.Type != gjson.String {
		return ""
	}
	return r.Str
}

// messageID 同时接受字符串和 JSON 整数形式的 id。
func messageID(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		if _, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
			return r.Raw
		}
		if r.Num == math.Trunc(r.Num) && math.Abs(r.Num) < 1<<53 {
			return strconv.FormatInt(int64(r.Num), 10)
		}
	}
	return ""
}

// createdTime 读取 RFC 3339（或相近格式）字符串或 epoch 毫秒，其他情况返回 nil。
func createdTime(r gjson.Result) *time.Time {
	switch r.Type {
	case gjson.String:
		for _, layout := range createdLayouts {
			if ts, err := time.Parse(layout, r.Str); err == nil {
				return &ts
			}
		}
	case gjson.Number:
		if r.Num >= -maxTimestampMs && r.Num <= maxTimestampMs {
			ts := time.UnixMilli(int64(r.Num)).UTC()
			return &ts
		}
	}
	return nil
}

func decodeLenient[T any](r gjson.Result, dst *T) {
	if !r.Exists() || r.Type == gjson.Null {
		return
	}
	var v T
	if json.Unmarshal([]byte(r.Raw), &v) == nil {
		*dst = v
	}
}
