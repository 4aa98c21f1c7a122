package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")

	// ErrInvalid 记录字段不合法
	ErrInvalid = errors.New("invalid record")
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Repository 购买数据仓库。userID 为空时不按用户过滤（仅供后台任务使用）。
type Repository struct {
	db       *gorm.DB
	now      func() time.Time
	transact Transactor
}

// Transactor 在事务中执行 fn，database.PoolManager.Transact 提供带重试的实现
type Transactor func(ctx context.Context, fn func(tx *gorm.DB) error) error

// NewRepository 创建仓库
func NewRepository(db *gorm.DB) *Repository {
	r := &Repository{db: db, now: time.Now}
	r.transact = func(ctx context.Context, fn func(tx *gorm.DB) error) error {
		return r.db.WithContext(ctx).Transaction(fn)
	}
	return r
}

// UseTransactor 替换事务执行方式
func (r *Repository) UseTransactor(t Transactor) {
	if t != nil {
		r.transact = t
	}
}

// DB 返回底层连接
func (r *Repository) DB() *gorm.DB { return r.db }

// ListOptions 购买查询条件
type ListOptions struct {
	UserID   string
	Merchant string
	Since    time.Time
	Until    time.Time
	Limit    int
}

func (o ListOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return defaultListLimit
	case o.Limit > maxListLimit:
		return maxListLimit
	default:
		return o.Limit
	}
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", kind, id, err)
}

func scopeUser(userID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if userID == "" {
			return db
		}
		return db.Where("user_id = ?", userID)
	}
}

// =============================================================================
// 🛒 购买记录
// =============================================================================

// GetPurchase 按 ID 查询
func (r *Repository) GetPurchase(ctx context.Context, userID, id string) (*Purchase, error) {
	var p Purchase
	err := r.db.WithContext(ctx).Scopes(scopeUser(userID)).Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, notFound("purchase", id, err)
	}
	return &p, nil
}

// ListPurchases 按购买日期倒序列出
func (r *Repository) ListPurchases(ctx context.Context, opts ListOptions) ([]Purchase, error) {
	q := r.db.WithContext(ctx).Scopes(scopeUser(opts.UserID))
	if opts.Merchant != "" {
		q = q.Where("LOWER(merchant) = ?", NormalizeMerchant(opts.Merchant))
	}
	if !opts.Since.IsZero() {
		q = q.Where("purchase_date >= ?", opts.Since)
	}
	if !opts.Until.IsZero() {
		q = q.Where("purchase_date < ?", opts.Until)
	}

	var out []Purchase
	if err := q.Order("purchase_date DESC").Limit(opts.limit()).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return out, nil
}

// SavePurchase 新建或更新
func (r *Repository) SavePurchase(ctx context.Context, p *Purchase) error {
	if p.UserID == "" || p.Merchant == "" {
		return fmt.Errorf("%w: purchase needs user_id and merchant", ErrInvalid)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: negative price", ErrInvalid)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if p.PurchaseDate.IsZero() {
		p.PurchaseDate = r.now()
	}
	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("save purchase: %w", err)
	}
	return nil
}

// PurchasesForSweep 列出带商品链接、购买日期不早于 since 的非周期购买
func (r *Repository) PurchasesForSweep(ctx context.Context, since time.Time, limit int) ([]Purchase, error) {
	if limit <= 0 {
		limit = maxListLimit
	}
	var out []Purchase
	err := r.db.WithContext(ctx).
		Where("product_url <> '' AND is_recurring = ? AND purchase_date >= ?", false, since).
		Order("purchase_date DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list sweep purchases: %w", err)
	}
	return out, nil
}

// =============================================================================
// 🧾 小票
// =============================================================================

// GetReceipt 按 ID 查询
func (r *Repository) GetReceipt(ctx context.Context, userID, id string) (*Receipt, error) {
	var rc Receipt
	err := r.db.WithContext(ctx).Scopes(scopeUser(userID)).Where("id = ?", id).First(&rc).Error
	if err != nil {
		return nil, notFound("receipt", id, err)
	}
	return &rc, nil
}

// SaveReceipt 新建或更新
func (r *Repository) SaveReceipt(ctx context.Context, rc *Receipt) error {
	if rc.UserID == "" || rc.RawText == "" {
		return fmt.Errorf("%w: receipt needs user_id and raw_text", ErrInvalid)
	}
	if rc.ID == "" {
		rc.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Save(rc).Error; err != nil {
		return fmt.Errorf("save receipt: %w", err)
	}
	return nil
}

// =============================================================================
// 🔁 订阅
// =============================================================================

// ListSubscriptions 列出订阅
func (r *Repository) ListSubscriptions(ctx context.Context, userID string, activeOnly bool) ([]Subscription, error) {
	q := r.db.WithContext(ctx).Scopes(scopeUser(userID))
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var out []Subscription
	if err := q.Order("next_charge_date ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return out, nil
}

// SaveSubscription 新建或更新
func (r *Repository) SaveSubscription(ctx context.Context, s *Subscription) error {
	if s.UserID == "" || s.Merchant == "" {
		return fmt.Errorf("%w: subscription needs user_id and merchant", ErrInvalid)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Frequency == "" {
		s.Frequency = FrequencyMonthly
	}
	if s.Currency == "" {
		s.Currency = "USD"
	}
	if err := r.db.WithContext(ctx).Save(s).Error; err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// =============================================================================
// 🛡️ 保修
// =============================================================================

// SaveWarranty 保存保修。ExpiresAt 为空时按 StartsAt + Months 计算。
func (r *Repository) SaveWarranty(ctx context.Context, w *Warranty) error {
	if w.UserID == "" || w.PurchaseID == "" {
		return fmt.Errorf("%w: warranty needs user_id and purchase_id", ErrInvalid)
	}
	if w.Months < 0 {
		return fmt.Errorf("%w: negative warranty months", ErrInvalid)
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.StartsAt.IsZero() {
		w.StartsAt = r.now()
	}
	if w.ExpiresAt.IsZero() {
		w.ExpiresAt = w.StartsAt.AddDate(0, w.Months, 0)
	}
	if err := r.db.WithContext(ctx).Save(w).Error; err != nil {
		return fmt.Errorf("save warranty: %w", err)
	}
	return nil
}

// ListWarranties 列出保修；within > 0 时只返回未来 within 内到期的
func (r *Repository) ListWarranties(ctx context.Context, userID string, within time.Duration) ([]Warranty, error) {
	q := r.db.WithContext(ctx).Scopes(scopeUser(userID))
	if within > 0 {
		now := r.now()
		q = q.Where("expires_at >= ? AND expires_at <= ?", now, now.Add(within))
	}
	var out []Warranty
	if err := q.Order("expires_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list warranties: %w", err)
	}
	return out, nil
}

// =============================================================================
// 📉 降价
// =============================================================================

// RecordPriceDrop 在事务中确认购买存在后写入降价记录
func (r *Repository) RecordPriceDrop(ctx context.Context, d *PriceDrop) error {
	if d.PurchaseID == "" {
		return fmt.Errorf("%w: price drop needs purchase_id", ErrInvalid)
	}
	if d.NewPrice < 0 || d.NewPrice >= d.OldPrice {
		return fmt.Errorf("%w: new price %.2f is not below %.2f", ErrInvalid, d.NewPrice, d.OldPrice)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DetectedAt.IsZero() {
		d.DetectedAt = r.now()
	}

	return r.transact(ctx, func(tx *gorm.DB) error {
		var p Purchase
		if err := tx.Scopes(scopeUser(d.UserID)).Where("id = ?", d.PurchaseID).First(&p).Error; err != nil {
			return notFound("purchase", d.PurchaseID, err)
		}
		d.UserID = p.UserID
		if err := tx.Create(d).Error; err != nil {
			return fmt.Errorf("record price drop: %w", err)
		}
		return nil
	})
}

// ListPriceDrops 列出降价记录；purchaseID 为空时列出用户全部
func (r *Repository) ListPriceDrops(ctx context.Context, userID, purchaseID string) ([]PriceDrop, error) {
	q := r.db.WithContext(ctx).Scopes(scopeUser(userID))
	if purchaseID != "" {
		q = q.Where("purchase_id = ?", purchaseID)
	}
	var out []PriceDrop
	if err := q.Order("detected_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list price drops: %w", err)
	}
	return out, nil
}

// =============================================================================
// 🏪 商家政策
// =============================================================================

// GetMerchantPolicy 按商家名查询，大小写与空白不敏感
func (r *Repository) GetMerchantPolicy(ctx context.Context, merchant string) (*MerchantPolicy, error) {
	key := NormalizeMerchant(merchant)
	var mp MerchantPolicy
	if err := r.db.WithContext(ctx).Where("merchant = ?", key).First(&mp).Error; err != nil {
		return nil, notFound("merchant policy", key, err)
	}
	return &mp, nil
}

// SaveMerchantPolicy 按商家名 upsert
func (r *Repository) SaveMerchantPolicy(ctx context.Context, mp *MerchantPolicy) error {
	if NormalizeMerchant(mp.Merchant) == "" {
		return fmt.Errorf("%w: merchant policy needs a merchant", ErrInvalid)
	}
	if mp.DisplayName == "" {
		mp.DisplayName = mp.Merchant
	}
	mp.Merchant = NormalizeMerchant(mp.Merchant)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(mp).Error
	if err != nil {
		return fmt.Errorf("save merchant policy: %w", err)
	}
	return nil
}
