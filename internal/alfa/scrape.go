package alfa

import (
	"bytes"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// scrapedPage U-Share 页面抓取结果
// 页面上没有的字段保持零值，由调用方决定是否写入快照
type scrapedPage struct {
	Circles      []map[string]interface{}
	Subscribers  []map[string]interface{}
	HasRoster    bool // 页面上存在名册表格（即使为空也是权威的"零副卡"）
	Balance      string
	ValidityDate string
	Expiration   int
	HasExpiry    bool
}

// scrapeUSharePage 解析 U-Share 页面
// 页面结构随门户改版漂移，只认 data- 属性和固定 class，认不出的节点直接跳过
func scrapeUSharePage(body []byte) *scrapedPage {
	page := &scrapedPage{}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return page
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "consumption-circle"):
				if circle := scrapeCircle(n); circle != nil {
					page.Circles = append(page.Circles, circle)
				}
			case hasClass(n, "ushare-subscribers"):
				page.HasRoster = true
			case hasClass(n, "subscriber-row"):
				if sub := scrapeSubscriberRow(n); sub != nil {
					page.Subscribers = append(page.Subscribers, sub)
				}
			case hasClass(n, "account-balance"):
				page.Balance = strings.TrimSpace(textContent(n))
			case hasClass(n, "validity-date"):
				page.ValidityDate = strings.TrimSpace(textContent(n))
			case hasClass(n, "expiration-days"):
				if days, err := strconv.Atoi(strings.TrimSpace(textContent(n))); err == nil {
					page.Expiration = days
					page.HasExpiry = true
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return page
}

// scrapeCircle 解析一个用量圆环节点
func scrapeCircle(n *html.Node) map[string]interface{} {
	label := attr(n, "data-label")
	if label == "" {
		return nil
	}

	circle := map[string]interface{}{"label": label}
	if used, ok := attrFloat(n, "data-used"); ok {
		circle["used"] = used
	}
	if total, ok := attrFloat(n, "data-total"); ok {
		circle["total"] = total
	}
	if unit := attr(n, "data-unit"); unit != "" {
		circle["unit"] = unit
	}
	if phone := attr(n, "data-phone"); phone != "" {
		circle["phoneNumber"] = phone
	}
	return circle
}

// scrapeSubscriberRow 解析一行副卡记录
func scrapeSubscriberRow(n *html.Node) map[string]interface{} {
	phone := attr(n, "data-phone")
	if phone == "" {
		return nil
	}

	sub := map[string]interface{}{"phoneNumber": phone}
	if status := attr(n, "data-status"); status != "" {
		sub["status"] = status
	}
	if consumption := attr(n, "data-consumption"); consumption != "" {
		sub["consumption"] = consumption
	}
	if limit, ok := attrFloat(n, "data-limit"); ok {
		sub["limit"] = limit
	}
	return sub
}

// hasClass 检查节点 class 属性是否包含指定类名
func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// attr 读取节点属性值
func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// attrFloat 读取数值属性
func attrFloat(n *html.Node, key string) (float64, bool) {
	v := attr(n, key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// textContent 拼接节点下所有文本
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}
