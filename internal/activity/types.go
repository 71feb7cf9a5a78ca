// Package activity 把持久化的聊天历史消息转换成可渲染的 transcript activity。
package activity

import (
	"encoding/json"
	"time"
)

// 与实时 transcript 共用的 tag 和标记。
const (
	HistoryTag     = "PersistentChatHistory"
	PullTriggerTag = "PersistentChatHistoryPullTrigger"

	CustomerDisplayName  = "Customer"
	AdaptiveCardPostback = "azurebotservice.adaptivecard"
	FormSubmissionType   = "RichObjectMessage_Form"

	ContentTypeAdaptiveCard = "application/vnd.microsoft.card.adaptive"

	AttachmentUploadedPrefix = "The following attachment was uploaded during the conversation: "
	UnknownAttachmentName    = "Unknown"
)

// 渲染层识别的角色。
const (
	RoleBot  = "bot"
	RoleUser = "user"
)

// RawHistoryMessage 是历史传输层返回的一条持久化消息。
type RawHistoryMessage struct {
	Content                     string          `json:"content,omitempty"`
	Attachments                 []RawAttachment `json:"attachments,omitempty"`
	From                        *Sender         `json:"from,omitempty"`
	AdditionalData              *AdditionalData `json:"additionalData,omitempty"`
	BotContentType              string          `json:"botContentType,omitempty"`
	TranscriptOriginalMessageID string          `json:"transcriptOriginalMessageId,omitempty"`
	Created                     *time.Time      `json:"created,omitempty"`
}

type RawAttachment struct {
	Name string `json:"name,omitempty"`
}

// Sender 携带 user 或 application 身份之一。
type Sender struct {
	User        *Identity `json:"user,omitempty"`
	Application *Identity `json:"application,omitempty"`
}

type Identity struct {
	DisplayName string `json:"displayName,omitempty"`
}

type AdditionalData struct {
	Tags           string `json:"tags,omitempty"`
	ConversationID string `json:"ConversationId,omitempty"`
}

// IsCustomer 判断消息是否来自 Customer 这个 application 身份。
func (m RawHistoryMessage) IsCustomer() bool {
	return m.From != nil && m.From.Application != nil && m.From.Application.DisplayName == CustomerDisplayName
}

func (m RawHistoryMessage) userDisplayName() string {
	if m.From == nil || m.From.User == nil {
		return ""
	}
	return m.From.User.DisplayName
}

// Activity 是可渲染的 transcript 条目。合并富内容时只保留下面这些字段。
type Activity struct {
	Type             string            `json:"type"`
	Text             string            `json:"text"`
	TextFormat       string            `json:"textFormat,omitempty"`
	From             Account           `json:"from"`
	Attachments      []Attachment      `json:"attachments,omitempty"`
	AttachmentLayout string            `json:"attachmentLayout,omitempty"`
	SuggestedActions *SuggestedActions `json:"suggestedActions,omitempty"`
	Value            json.RawMessage   `json:"value,omitempty"`
	Speak            string            `json:"speak,omitempty"`
	InputHint        string            `json:"inputHint,omitempty"`
	Locale           string            `json:"locale,omitempty"`
	Timestamp        *time.Time        `json:"timestamp,omitempty"`
	ChannelData      ChannelData       `json:"channelData"`
}

type Account struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
}

type Attachment struct {
	ContentType  string          `json:"contentType,omitempty"`
	ContentURL   string          `json:"contentUrl,omitempty"`
	Name         string          `json:"name,omitempty"`
	ThumbnailURL string          `json:"thumbnailUrl,omitempty"`
	Content      json.RawMessage `json:"content,omitempty"`
}

type SuggestedActions struct {
	To      []string     `json:"to,omitempty"`
	Actions []CardAction `json:"actions"`
}

type CardAction struct {
	Type  string          `json:"type"`
	Title string          `json:"title,omitempty"`
	Image string          `json:"image,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// ChannelData 保存排序元数据，SequenceID 为 0 表示未设置。
type ChannelData struct {
	Tags           []string `json:"tags"`
	SequenceID     int64    `json:"webchat:sequence-id,omitempty"`
	ConversationID string   `json:"conversationId,omitempty"`
}

// HasTag 判断是否带有 tag。
func (c ChannelData) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// PullTrigger 是排在所有历史之前的"加载更早消息"横幅，分页 sentinel 因此位于 transcript 顶部。
func PullTrigger() Activity {
	ts := time.UnixMilli(1).UTC()
	return Activity{
		Type:      "message",
		From:      Account{Role: RoleBot},
		Timestamp: &ts,
		ChannelData: ChannelData{
			Tags:       []string{PullTriggerTag},
			SequenceID: 1,
		},
	}
}
