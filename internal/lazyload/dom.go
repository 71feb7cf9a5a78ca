package lazyload

// Overflow 是元素计算后的纵向 overflow。
type Overflow string

const (
	OverflowVisible Overflow = "visible"
	OverflowHidden  Overflow = "hidden"
	OverflowAuto    Overflow = "auto"
	OverflowScroll  Overflow = "scroll"
)

// Element 是 controller 读写的那部分渲染节点。
type Element interface {
	Parent() Element
	Overflow() Overflow
	ScrollHeight() int
	ClientHeight() int
	ScrollTop() int
	SetScrollTop(top int)
}

// Observation 是对单个元素的可见性监听。
type Observation interface {
	Disconnect()
}

// Document 定位分页涉及的节点；transcript 未挂载时任何查找都可能返回 nil。
type Document interface {
	// HistoryList 是历史 activity 渲染进去的元素。
	HistoryList() Element
	// Sentinel 是 transcript 顶部的拉取触发标记。
	Sentinel() Element
	// Body 是兜底容器。
	Body() Element
	// Observe 把 target 的可见性报告给 cb，不能在 Observe 内同步调用 cb。
	Observe(target Element, cb func(visible bool)) Observation
}

// ScrollResult 是 FindScrollContainer 的结果。
type ScrollResult struct {
	Container    Element
	IsScrollable bool
}

// FindScrollContainer 从 history list 向上查找第一个允许滚动且内容溢出的元素，
// 找不到时退回 document body。
func FindScrollContainer(doc Document) ScrollResult {
	if doc == nil {
		return ScrollResult{}
	}
	for el := doc.HistoryList(); el != nil; el = el.Parent() {
		if scrollable(el) {
			return ScrollResult{Container: el, IsScrollable: true}
		}
	}
	return ScrollResult{Container: doc.Body()}
}

func scrollable(el Element) bool {
	switch el.Overflow() {
	case OverflowAuto, OverflowScroll:
		return el.ScrollHeight() > el.ClientHeight()
	}
	return false
}
