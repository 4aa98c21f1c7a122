package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/internal/tlsutil"
	"github.com/arvalo/arvalo/types"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// ErrPriceNotFound 页面中没有可识别的价格
var ErrPriceNotFound = errors.New("price not found")

// 价格来源
const (
	MethodMetaTag  = "meta"
	MethodItemprop = "itemprop"
	MethodJSONLD   = "json-ld"
	MethodText     = "text"
)

// PriceQuote 一次价格抓取的结果
type PriceQuote struct {
	URL       string    `json:"url"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency,omitempty"`
	Method    string    `json:"method"`
	CheckedAt time.Time `json:"checked_at"`
}

// PriceChecker 获取商品当前价格
type PriceChecker interface {
	CheckPrice(ctx context.Context, productURL string) (*PriceQuote, error)
}

// HTTPPriceCheckerConfig 价格抓取配置
type HTTPPriceCheckerConfig struct {
	Timeout time.Duration
	// PerHostRate 每个域名每秒请求上限
	PerHostRate float64
	UserAgent   string
	MaxBody     int64
}

// HTTPPriceChecker 抓取商品页面并解析价格，按域名限流
type HTTPPriceChecker struct {
	cfg        HTTPPriceCheckerConfig
	httpClient *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPPriceChecker 创建价格抓取器
func NewHTTPPriceChecker(cfg HTTPPriceCheckerConfig) *HTTPPriceChecker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PerHostRate <= 0 {
		cfg.PerHostRate = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "arvalo-price-checker/1.0"
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 2 << 20
	}
	return &HTTPPriceChecker{
		cfg:        cfg,
		httpClient: tlsutil.SecureHTTPClient(cfg.Timeout),
		limiters:   make(map[string]*rate.Limiter),
	}
}

func (c *HTTPPriceChecker) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.cfg.PerHostRate), 1)
		c.limiters[host] = l
	}
	return l
}

// CheckPrice implements PriceChecker.
func (c *HTTPPriceChecker) CheckPrice(ctx context.Context, productURL string) (*PriceQuote, error) {
	u, err := url.Parse(productURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid product url %q", productURL)
	}
	if err := c.limiter(u.Host).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", u.Host, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, types.ClassifyHTTPStatus(resp.StatusCode, fmt.Sprintf("fetch %s: status %d", u.Host, resp.StatusCode))
	}

	quote, err := ExtractPrice(io.LimitReader(resp.Body, c.cfg.MaxBody))
	if err != nil {
		return nil, err
	}
	quote.URL = productURL
	quote.CheckedAt = time.Now().UTC()
	return quote, nil
}

// ExtractPrice 从 HTML 中提取价格。优先级：meta 标签、itemprop、JSON-LD offers、页面文本中的 $ 金额。
func ExtractPrice(r io.Reader) (*PriceQuote, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var (
		meta, itemprop, jsonld, text *PriceQuote
		metaCurrency                 string
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				prop := attr(n, "property")
				if prop == "" {
					prop = attr(n, "name")
				}
				switch prop {
				case "product:price:amount", "og:price:amount":
					if meta == nil {
						if p, ok := parsePrice(attr(n, "content")); ok {
							meta = &PriceQuote{Price: p, Method: MethodMetaTag}
						}
					}
				case "product:price:currency", "og:price:currency":
					metaCurrency = attr(n, "content")
				}
			case "script":
				if jsonld == nil && strings.EqualFold(attr(n, "type"), "application/ld+json") && n.FirstChild != nil {
					jsonld = priceFromJSONLD(n.FirstChild.Data)
				}
			}
			if itemprop == nil && attr(n, "itemprop") == "price" {
				raw := attr(n, "content")
				if raw == "" {
					raw = nodeText(n)
				}
				if p, ok := parsePrice(raw); ok {
					itemprop = &PriceQuote{Price: p, Method: MethodItemprop}
				}
			}
		}
		if n.Type == html.TextNode && text == nil && !insideScript(n) {
			if m := dollarAmount.FindStringSubmatch(n.Data); m != nil {
				if p, ok := parsePrice(m[1]); ok {
					text = &PriceQuote{Price: p, Currency: "USD", Method: MethodText}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if meta != nil && metaCurrency != "" {
		meta.Currency = metaCurrency
	}
	for _, q := range []*PriceQuote{meta, itemprop, jsonld, text} {
		if q != nil {
			return q, nil
		}
	}
	return nil, ErrPriceNotFound
}

var dollarAmount = regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})*(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`)

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.TrimSpace(b.String())
}

func insideScript(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && (p.Data == "script" || p.Data == "style") {
			return true
		}
	}
	return false
}

// parsePrice 去掉货币符号与千分位后解析
func parsePrice(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€£¥ ")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || p <= 0 {
		return 0, false
	}
	return p, true
}

// priceFromJSONLD 在 JSON-LD 中查找 offers.price，支持 @graph 与数组
func priceFromJSONLD(raw string) *PriceQuote {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	return findOfferPrice(v, 0)
}

func findOfferPrice(v any, depth int) *PriceQuote {
	if depth > 8 {
		return nil
	}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if q := findOfferPrice(item, depth+1); q != nil {
				return q
			}
		}
	case map[string]any:
		if offers, ok := t["offers"]; ok {
			if q := offerPrice(offers); q != nil {
				return q
			}
		}
		if graph, ok := t["@graph"]; ok {
			return findOfferPrice(graph, depth+1)
		}
	}
	return nil
}

func offerPrice(offers any) *PriceQuote {
	switch o := offers.(type) {
	case []any:
		for _, item := range o {
			if q := offerPrice(item); q != nil {
				return q
			}
		}
	case map[string]any:
		for _, key := range []string{"price", "lowPrice"} {
			var p float64
			var ok bool
			switch pv := o[key].(type) {
			case float64:
				p, ok = pv, pv > 0
			case string:
				p, ok = parsePrice(pv)
			}
			if ok {
				currency, _ := o["priceCurrency"].(string)
				return &PriceQuote{Price: p, Currency: currency, Method: MethodJSONLD}
			}
		}
	}
	return nil
}

func checkPriceTool(checker PriceChecker, timeout time.Duration, logger *zap.Logger) agent.Tool {
	return agent.Tool{
		Name:        CheckPrice,
		Description: "Fetch a product page and return its current listed price. Use the purchase's product_url.",
		InputSchema: types.NewObjectSchema().
			AddProperty("url", types.NewStringSchema("Product page URL")).
			AddRequired("url"),
		Timeout: timeout,
		Execute: func(ctx context.Context, params map[string]any) (any, error) {
			var args struct {
				URL string `json:"url"`
			}
			if err := decodeArgs(params, &args); err != nil {
				return nil, err
			}
			quote, err := checker.CheckPrice(ctx, args.URL)
			if err != nil {
				logger.Debug("price check failed", zap.String("url", args.URL), zap.Error(err))
				return nil, err
			}
			return quote, nil
		},
	}
}
