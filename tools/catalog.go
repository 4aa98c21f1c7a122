package tools

import (
	"fmt"
	"time"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/store"
	"go.uber.org/zap"
)

// 工具名称
const (
	GetPurchase       = "get_purchase"
	ListPurchases     = "list_purchases"
	SavePurchase      = "save_purchase"
	GetReceipt        = "get_receipt"
	ListSubscriptions = "list_subscriptions"
	SaveWarranty      = "save_warranty"
	ListWarranties    = "list_warranties"
	RecordPriceDrop   = "record_price_drop"
	LookupMerchant    = "lookup_merchant"
	WebSearch         = "web_search"
	CheckPrice        = "check_price"
)

// Deps 构建工具所需的协作者。Searcher 或 Prices 为 nil 时对应工具不注册。
type Deps struct {
	Repo     *store.Repository
	Searcher Searcher
	Prices   PriceChecker
	Logger   *zap.Logger

	// SearchRateLimit web_search 每秒调用上限
	SearchRateLimit float64
	// FetchTimeout check_price / web_search 单次调用超时
	FetchTimeout time.Duration

	// Now 计算天数用的时钟，默认 time.Now
	Now func() time.Time
}

// Catalog 全部可用工具，按名称挑选子集交给各个 Agent
type Catalog struct {
	order []string
	tools map[string]agent.Tool
}

// NewCatalog 构建工具目录
func NewCatalog(deps Deps) *Catalog {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.FetchTimeout <= 0 {
		deps.FetchTimeout = 15 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger.With(zap.String("component", "tools"))

	c := &Catalog{tools: make(map[string]agent.Tool)}
	if deps.Repo != nil {
		for _, t := range purchaseTools(deps.Repo, deps.Now) {
			c.add(t)
		}
	}
	if deps.Searcher != nil {
		c.add(webSearchTool(deps.Searcher, deps.SearchRateLimit, deps.FetchTimeout, logger))
	}
	if deps.Prices != nil {
		c.add(checkPriceTool(deps.Prices, deps.FetchTimeout, logger))
	}
	return c
}

func (c *Catalog) add(t agent.Tool) {
	if _, ok := c.tools[t.Name]; !ok {
		c.order = append(c.order, t.Name)
	}
	c.tools[t.Name] = t
}

// Names 返回已注册的工具名
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Get 按名称取工具
func (c *Catalog) Get(name string) (agent.Tool, bool) {
	t, ok := c.tools[name]
	return t, ok
}

// Subset 按给定顺序返回工具；任何一个不存在都返回错误
func (c *Catalog) Subset(names ...string) ([]agent.Tool, error) {
	out := make([]agent.Tool, 0, len(names))
	for _, name := range names {
		t, ok := c.tools[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", agent.ErrToolNotFound, name)
		}
		out = append(out, t)
	}
	return out, nil
}

// Registry 用工具子集构建注册表，并开启输入校验
func (c *Catalog) Registry(names []string, opts ...agent.RegistryOption) (*agent.Registry, error) {
	subset, err := c.Subset(names...)
	if err != nil {
		return nil, err
	}
	reg := agent.NewRegistry(append([]agent.RegistryOption{agent.WithInputValidation()}, opts...)...)
	if err := reg.AddTools(subset...); err != nil {
		return nil, err
	}
	return reg, nil
}
