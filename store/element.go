package store

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"time"
)

// Element 配置节中的通用元素，保留未知属性和子元素
type Element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []*Element `xml:",any"`
}

// NewElement 创建元素
func NewElement(name string) *Element {
	return &Element{XMLName: xml.Name{Local: name}}
}

// Name 元素名
func (e *Element) Name() string {
	return e.XMLName.Local
}

// Attr 读取属性
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// BoolAttr 读取布尔属性，不存在时返回 false
func (e *Element) BoolAttr(name string) bool {
	v, ok := e.Attr(name)
	if !ok {
		return false
	}
	b, _ := strconv.ParseBool(v)
	return b
}

// SetAttr 设置属性，值按 applicationHost.config 的文本格式写入
func (e *Element) SetAttr(name string, value interface{}) {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case bool:
		s = strconv.FormatBool(v)
	case time.Duration:
		s = FormatTimeSpan(v)
	default:
		s = fmt.Sprint(v)
	}

	for i := range e.Attrs {
		if e.Attrs[i].Name.Local == name {
			e.Attrs[i].Value = s
			return
		}
	}
	e.Attrs = append(e.Attrs, xml.Attr{Name: xml.Name{Local: name}, Value: s})
}

// RemoveAttr 删除属性
func (e *Element) RemoveAttr(name string) {
	for i := range e.Attrs {
		if e.Attrs[i].Name.Local == name {
			e.Attrs = append(e.Attrs[:i], e.Attrs[i+1:]...)
			return
		}
	}
}

// Child 查找子元素，不存在返回 nil
func (e *Element) Child(name string) *Element {
	for _, c := range e.Children {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// ChildElement 获取子元素，不存在时创建
func (e *Element) ChildElement(name string) *Element {
	if c := e.Child(name); c != nil {
		return c
	}
	c := NewElement(name)
	e.Children = append(e.Children, c)
	return c
}

// Collection 集合项（<add> 元素）
func (e *Element) Collection() []*Element {
	items := make([]*Element, 0)
	for _, c := range e.Children {
		if c.Name() == "add" {
			items = append(items, c)
		}
	}
	return items
}

// ClearCollection 清空集合，写入 <clear/> 阻止继承上级配置
func (e *Element) ClearCollection() {
	kept := make([]*Element, 0, len(e.Children))
	for _, c := range e.Children {
		switch c.Name() {
		case "add", "remove", "clear":
		default:
			kept = append(kept, c)
		}
	}
	e.Children = append(kept, NewElement("clear"))
}

// AddCollectionItem 追加集合项并返回
func (e *Element) AddCollectionItem() *Element {
	item := NewElement("add")
	e.Children = append(e.Children, item)
	return item
}

// RemoveCollectionItems 删除匹配的集合项，返回删除数量
func (e *Element) RemoveCollectionItems(match func(*Element) bool) int {
	kept := make([]*Element, 0, len(e.Children))
	removed := 0
	for _, c := range e.Children {
		if c.Name() == "add" && match(c) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	e.Children = kept
	return removed
}

// descend 沿路径查找元素，缺失的层级会被创建
func descend(list *[]*Element, segments []string) *Element {
	var current *Element
	for _, seg := range segments {
		current = nil
		for _, el := range *list {
			if el.Name() == seg {
				current = el
				break
			}
		}
		if current == nil {
			current = NewElement(seg)
			*list = append(*list, current)
		}
		list = &current.Children
	}
	return current
}
