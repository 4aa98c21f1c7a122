package store

import (
	"strings"
	"time"
)

// Purchase 一次购买
type Purchase struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	UserID       string    `gorm:"size:64;not null;index:idx_purchases_user_date,priority:1" json:"user_id"`
	Merchant     string    `gorm:"size:255;index" json:"merchant"`
	ProductName  string    `gorm:"size:512" json:"product_name"`
	ProductURL   string    `gorm:"size:1024" json:"product_url,omitempty"`
	Category     string    `gorm:"size:64" json:"category,omitempty"`
	Price        float64   `json:"price"`
	Currency     string    `gorm:"size:3;default:USD" json:"currency"`
	PurchaseDate time.Time `gorm:"index:idx_purchases_user_date,priority:2" json:"purchase_date"`
	ReceiptID    string    `gorm:"size:36" json:"receipt_id,omitempty"`
	IsRecurring  bool      `json:"is_recurring"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Receipt 小票
type Receipt struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	UserID       string     `gorm:"size:64;not null;index" json:"user_id"`
	Merchant     string     `gorm:"size:255" json:"merchant,omitempty"`
	RawText      string     `gorm:"type:text" json:"raw_text"`
	Total        float64    `json:"total,omitempty"`
	Currency     string     `gorm:"size:3" json:"currency,omitempty"`
	PurchaseDate *time.Time `json:"purchase_date,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Frequency 订阅周期
type Frequency string

const (
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Subscription 周期扣费
type Subscription struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	UserID         string    `gorm:"size:64;not null;index" json:"user_id"`
	Merchant       string    `gorm:"size:255" json:"merchant"`
	Name           string    `gorm:"size:255" json:"name"`
	Amount         float64   `json:"amount"`
	Currency       string    `gorm:"size:3;default:USD" json:"currency"`
	Frequency      Frequency `gorm:"size:16" json:"frequency"`
	NextChargeDate time.Time `json:"next_charge_date"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MonthlyCost 折算为月成本
func (s Subscription) MonthlyCost() float64 {
	switch s.Frequency {
	case FrequencyWeekly:
		return s.Amount * 52 / 12
	case FrequencyYearly:
		return s.Amount / 12
	default:
		return s.Amount
	}
}

// Warranty 保修
type Warranty struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     string    `gorm:"size:64;not null;index" json:"user_id"`
	PurchaseID string    `gorm:"size:36;index" json:"purchase_id"`
	Provider   string    `gorm:"size:255" json:"provider"`
	Months     int       `json:"months"`
	StartsAt   time.Time `json:"starts_at"`
	ExpiresAt  time.Time `gorm:"index" json:"expires_at"`
	Coverage   string    `gorm:"type:text" json:"coverage,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// PriceDrop 检测到的降价
type PriceDrop struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     string    `gorm:"size:64;not null;index" json:"user_id"`
	PurchaseID string    `gorm:"size:36;index" json:"purchase_id"`
	OldPrice   float64   `json:"old_price"`
	NewPrice   float64   `json:"new_price"`
	SourceURL  string    `gorm:"size:1024" json:"source_url,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
	Claimed    bool      `json:"claimed"`
}

// Amount 降价金额
func (d PriceDrop) Amount() float64 {
	return d.OldPrice - d.NewPrice
}

// MerchantPolicy 商家政策，主键为规范化后的商家名
type MerchantPolicy struct {
	Merchant         string    `gorm:"primaryKey;size:255" json:"merchant"`
	DisplayName      string    `gorm:"size:255" json:"display_name"`
	ReturnDays       int       `json:"return_days"`
	PriceMatchDays   int       `json:"price_match_days"`
	RestockingFeePct float64   `json:"restocking_fee_pct"`
	WarrantyMonths   int       `json:"warranty_months"`
	Notes            string    `gorm:"type:text" json:"notes,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NormalizeMerchant 商家名规范化：去空白、小写
func NormalizeMerchant(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Models 返回全部模型，供 AutoMigrate 使用
func Models() []any {
	return []any{
		&Purchase{},
		&Receipt{},
		&Subscription{},
		&Warranty{},
		&PriceDrop{},
		&MerchantPolicy{},
	}
}
