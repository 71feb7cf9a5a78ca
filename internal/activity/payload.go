package activity

import (
	"strings"

	"github.com/tidwall/gjson"
)

// 在小写化的原始内容上做子串匹配的标记。
const (
	adaptiveCardMarker     = "adaptivecard"
	suggestedActionsMarker = "suggestedactions"
)

var supportedCardTypes = []string{
	ContentTypeAdaptiveCard,
	"application/vnd.microsoft.card.hero",
	"application/vnd.microsoft.card.thumbnail",
	"application/vnd.microsoft.card.signin",
	"application/vnd.microsoft.card.oauth",
	"application/vnd.microsoft.card.receipt",
	"application/vnd.microsoft.card.audio",
	"application/vnd.microsoft.card.video",
	"application/vnd.microsoft.card.animation",
}

type payloadKind int

const (
	// kindNotObject 覆盖非法 JSON 以及标量、数组，内容按纯文本渲染。
	kindNotObject payloadKind = iota
	kindSuggestedActionsOnly
	kindAdaptiveCardBody
	kindRichContent
	kindActivityShaped
	kindTextObject
	kindPlainObject
)

func (k payloadKind) String() string {
	switch k {
	case kindSuggestedActionsOnly:
		return "suggested-actions-only"
	case kindAdaptiveCardBody:
		return "adaptive-card-body"
	case kindRichContent:
		return "rich-content"
	case kindActivityShaped:
		return "activity-shaped"
	case kindTextObject:
		return "text-object"
	case kindPlainObject:
		return "plain-object"
	default:
		return "not-object"
	}
}

// payload 是嗅探消息内容后的判别结果。
type payload struct {
	kind payloadKind
	root gjson.Result
	// formSubmission 独立于 kind，只对 Customer 发出的消息有意义。
	formSubmission bool
}

// merges 判断是否要把 payload 字段合并到基础 activity 上。
func (p payload) merges() bool {
	switch p.kind {
	case kindRichContent, kindActivityShaped, kindTextObject:
		return true
	}
	return false
}

func sniff(content string) payload {
	if !gjson.Valid(content) {
		return payload{kind: kindNotObject}
	}
	root := gjson.Parse(content)
	if !root.IsObject() {
		return payload{kind: kindNotObject, root: root}
	}
	p := payload{root: root}
	if t := root.Get("value.type"); t.Type == gjson.String && t.Str == FormSubmissionType {
		p.formSubmission = true
	}

	hasAttachments := nonEmptyArray(root.Get("attachments"))
	hasSuggestedActions := nonEmptyArray(root.Get("suggestedActions.actions"))

	switch {
	case hasSuggestedActions && !hasAttachments:
		p.kind = kindSuggestedActionsOnly
	case isString(root.Get("type"), "AdaptiveCard"):
		p.kind = kindAdaptiveCardBody
	case hasAttachments || hasSuggestedActions || hasRichMarker(content):
		p.kind = kindRichContent
	case isString(root.Get("type"), "message") &&
		(truthy(root.Get("attachments")) || truthy(root.Get("suggestedActions")) || truthy(root.Get("value"))):
		p.kind = kindActivityShaped
	case root.Get("text").Type == gjson.String:
		p.kind = kindTextObject
	default:
		p.kind = kindPlainObject
	}
	return p
}

func hasRichMarker(content string) bool {
	lower := strings.ToLower(content)
	if strings.Contains(lower, adaptiveCardMarker) || strings.Contains(lower, suggestedActionsMarker) {
		return true
	}
	for _, ct := range supportedCardTypes {
		if strings.Contains(lower, ct) {
			return true
		}
	}
	return false
}

func nonEmptyArray(r gjson.Result) bool {
	return r.IsArray() && len(r.Array()) > 0
}

func isString(r gjson.Result, want string) bool {
	return r.Type == gjson.String && r.Str == want
}

// truthy 是宽松的存在性判断：空容器算存在，空字符串和 0 不算。
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.True, gjson.JSON:
		return true
	case gjson.String:
		return r.Str != ""
	case gjson.Number:
		return r.Num != 0
	default:
		return false
	}
}
