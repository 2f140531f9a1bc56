package collector

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/gocolly/colly/v2"
)

const pageRequestTimeout = 15 * time.Second

// PageFetcher 基于 CSS 选择器抓取新闻稿列表页。
// selectors: item 必填；title、link、date、body 均相对 item。
type PageFetcher struct {
	name       string
	pageURL    string
	host       string
	selectors  map[string]string
	dateLayout string
	limit      int
}

func NewPageFetcher(name, pageURL string, selectors map[string]string, dateLayout string, limit int) (*PageFetcher, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("source %q: invalid page url %q", name, pageURL)
	}
	if selectors["item"] == "" {
		return nil, fmt.Errorf("source %q: item selector is required", name)
	}
	if limit <= 0 {
		limit = 15
	}
	return &PageFetcher{
		name:       name,
		pageURL:    pageURL,
		host:       u.Hostname(),
		selectors:  selectors,
		dateLayout: dateLayout,
		limit:      limit,
	}, nil
}

func (p *PageFetcher) Name() string {
	return p.name
}

func (p *PageFetcher) Fetch(ctx context.Context) ([]models.RawItem, error) {
	c := colly.NewCollector(
		colly.AllowedDomains(p.host),
		colly.UserAgent(defaultUserAgent),
	)
	c.SetRequestTimeout(pageRequestTimeout)

	// colly 不直接支持 context，请求发出前检查一次
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	results := make([]models.RawItem, 0, p.limit)
	titleSel := p.selector("title", "a")
	linkSel := p.selector("link", titleSel)

	c.OnHTML(p.selectors["item"], func(e *colly.HTMLElement) {
		if len(results) >= p.limit {
			return
		}
		title := strings.TrimSpace(e.ChildText(titleSel))
		href := e.ChildAttr(linkSel, "href")
		if title == "" || href == "" {
			return
		}

		var pub time.Time
		if sel := p.selectors["date"]; sel != "" && p.dateLayout != "" {
			if t, err := time.Parse(p.dateLayout, strings.TrimSpace(e.ChildText(sel))); err == nil {
				pub = t
			}
		}

		body := ""
		if sel := p.selectors["body"]; sel != "" {
			body = CleanText(e.ChildText(sel))
		}

		results = append(results, models.RawItem{
			Title:       CleanText(title),
			Body:        body,
			Link:        e.Request.AbsoluteURL(href),
			PublishedAt: pub,
			SourceName:  p.name,
		})
	})

	if err := c.Visit(p.pageURL); err != nil {
		return nil, fmt.Errorf("page %s: %w", p.pageURL, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PageFetcher) selector(key, def string) string {
	if s := p.selectors[key]; s != "" {
		return s
	}
	return def
}
