package activity

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// maxTimestampMs 是时间戳允许的最大 epoch 毫秒值。
const maxTimestampMs = 8_640_000_000_000_000

// Convert 把一条历史消息转换成 activity；第二个返回值为 false 表示该消息应丢弃。
func Convert(msg RawHistoryMessage) (Activity, bool) {
	customer := msg.IsCustomer()
	if customer && msg.BotContentType == AdaptiveCardPostback {
		return Activity{}, false
	}

	base := baseActivity(msg, customer)

	if msg.Content != "" {
		return convertContent(msg.Content, base, customer)
	}
	if len(msg.Attachments) > 0 {
		name := msg.Attachments[0].Name
		if name == "" {
			name = UnknownAttachmentName
		}
		base.Text = AttachmentUploadedPrefix + name
		return base, true
	}
	return Activity{}, false
}

// ConvertBatch 批量转换并丢弃被抑制的消息，结果按 sequence-id 排序，
// 没有 sequence-id 的保持原有相对顺序排在最后。
func ConvertBatch(msgs []RawHistoryMessage) []Activity {
	out := make([]Activity, 0, len(msgs))
	for _, m := range msgs {
		if a, ok := Convert(m); ok {
			out = append(out, a)
		}
	}
	SortBySequence(out)
	return out
}

// SortBySequence 按 sequence-id 稳定排序，未设置的排在最后。
func SortBySequence(acts []Activity) {
	slices.SortStableFunc(acts, func(a, b Activity) int {
		sa, sb := a.ChannelData.SequenceID, b.ChannelData.SequenceID
		switch {
		case sa == sb:
			return 0
		case sa == 0:
			return 1
		case sb == 0:
			return -1
		case sa < sb:
			return -1
		default:
			return 1
		}
	})
}

func baseActivity(msg RawHistoryMessage, customer bool) Activity {
	act := Activity{
		Type:        "message",
		From:        Account{Role: RoleBot},
		ChannelData: ChannelData{Tags: []string{HistoryTag}},
	}

	if id, ok := ParseSequenceID(msg.TranscriptOriginalMessageID); ok {
		act.ChannelData.SequenceID = id
		act.Timestamp = timestampFor(id, msg.Created)
	}

	if msg.AdditionalData != nil {
		if msg.AdditionalData.Tags != "" {
			act.ChannelData.Tags = mergeTags(act.ChannelData.Tags, strings.Split(msg.AdditionalData.Tags, ","))
		}
		act.ChannelData.ConversationID = msg.AdditionalData.ConversationID
	}

	if name := msg.userDisplayName(); name != "" {
		act.From.Name = name
	}
	if customer {
		act.From = Account{Role: RoleUser, Name: CustomerDisplayName}
	}
	return act
}

func convertContent(content string, base Activity, customer bool) (Activity, bool) {
	p := sniff(content)
	if customer && p.formSubmission {
		return Activity{}, false
	}

	switch {
	case p.kind == kindSuggestedActionsOnly:
		// suggested actions 只在最新的实时 activity 上显示，历史里只剩空气泡。
		return Activity{}, false
	case p.kind == kindAdaptiveCardBody:
		out := base
		out.Text = ""
		out.Attachments = []Attachment{{
			ContentType: ContentTypeAdaptiveCard,
			Content:     json.RawMessage(p.root.Raw),
		}}
		return out, true
	case p.merges():
		return mergePayload(base, p.root), true
	}

	out := base
	out.Text = content
	return out, true
}

// mergePayload 把 root 中白名单内的字段覆盖到 base 上。
// from.role、timestamp、channelData 始终取自 base。
func mergePayload(base Activity, root gjson.Result) Activity {
	out := base
	decodeField(root, "type", &out.Type)
	decodeField(root, "text", &out.Text)
	decodeField(root, "textFormat", &out.TextFormat)
	decodeField(root, "attachments", &out.Attachments)
	decodeField(root, "attachmentLayout", &out.AttachmentLayout)
	decodeField(root, "suggestedActions", &out.SuggestedActions)
	decodeField(root, "speak", &out.Speak)
	decodeField(root, "inputHint", &out.InputHint)
	decodeField(root, "locale", &out.Locale)
	if v := root.Get("value"); v.Exists() && v.Type != gjson.Null {
		out.Value = json.RawMessage(v.Raw)
	}

	var from Account
	if decodeField(root, "from", &from) {
		if from.Name != "" {
			out.From.Name = from.Name
		}
		if from.ID != "" {
			out.From.ID = from.ID
		}
	}
	out.ChannelData.Tags = slices.Clone(base.ChannelData.Tags)
	return out
}

// decodeField 把 root[key] 解码到 dst；缺失或类型不符时不改动 dst。
func decodeField(root gjson.Result, key string, dst any) bool {
	r := root.Get(key)
	if !r.Exists() || r.Type == gjson.Null {
		return false
	}
	return json.Unmarshal([]byte(r.Raw), dst) == nil
}

// ParseSequenceID 读取 id 开头的十进制整数（忽略前导空白、可选符号和尾部杂字符）。
// 0、负数或无法解析时返回 false。
func ParseSequenceID(id string) (int64, bool) {
	s := strings.TrimLeft(id, " \t\n\r\v\f")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil || neg || n == 0 {
		return 0, false
	}
	return n, true
}

func timestampFor(id int64, created *time.Time) *time.Time {
	if id <= maxTimestampMs {
		ts := time.UnixMilli(id).UTC()
		return &ts
	}
	if created != nil {
		ts := *created
		return &ts
	}
	return nil
}

func mergeTags(tags, extra []string) []string {
	for _, t := range extra {
		if t == "" || slices.Contains(tags, t) {
			continue
		}
		tags = append(tags, t)
	}
	return tags
}
