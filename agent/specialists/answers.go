package specialists

import (
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// ReceiptItem 小票中的一行商品
type ReceiptItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// ReceiptAnswer receipt Agent 的答案
type ReceiptAnswer struct {
	Merchant     string        `json:"merchant"`
	PurchaseDate string        `json:"purchase_date"`
	Total        float64       `json:"total"`
	Currency     string        `json:"currency"`
	Items        []ReceiptItem `json:"items"`
	PurchaseIDs  []string      `json:"purchase_ids"`
}

// ReturnPolicyAnswer return-policy Agent 的答案
type ReturnPolicyAnswer struct {
	Eligible        bool     `json:"eligible"`
	DeadlineDate    string   `json:"deadline_date"`
	DaysRemaining   int      `json:"days_remaining"`
	Conditions      []string `json:"conditions"`
	Recommendations []string `json:"recommendations"`
}

// PriceAnswer price-detective Agent 的答案
type PriceAnswer struct {
	CurrentPrice    float64  `json:"current_price"`
	OriginalPrice   float64  `json:"original_price"`
	PriceDrop       float64  `json:"price_drop"`
	Claimable       bool     `json:"claimable"`
	Recommendations []string `json:"recommendations"`
}

// DuplicateCharge 疑似重复扣费
type DuplicateCharge struct {
	Merchant    string   `json:"merchant"`
	Amount      float64  `json:"amount"`
	PurchaseIDs []string `json:"purchase_ids"`
}

// RecurrenceAnswer recurrent-optimizer Agent 的答案
type RecurrenceAnswer struct {
	IsRecurring      bool              `json:"is_recurring"`
	Frequency        string            `json:"frequency"`
	PotentialSavings float64           `json:"potential_savings"`
	Duplicates       []DuplicateCharge `json:"duplicates"`
	Recommendations  []string          `json:"recommendations"`
}

// ExpiringWarranty 即将到期的保修
type ExpiringWarranty struct {
	PurchaseID    string `json:"purchase_id"`
	Provider      string `json:"provider"`
	ExpiresAt     string `json:"expires_at"`
	DaysRemaining int    `json:"days_remaining"`
}

// WarrantyAnswer warranty Agent 的答案
type WarrantyAnswer struct {
	HasWarranty     bool               `json:"has_warranty"`
	WarrantyMonths  int                `json:"warranty_months"`
	ExpiresAt       string             `json:"expires_at"`
	Provider        string             `json:"provider"`
	Expiring        []ExpiringWarranty `json:"expiring"`
	Recommendations []string           `json:"recommendations"`
}

// =============================================================================
// 📐 答案 Schema
// =============================================================================

func nullableString() *openapi3.Schema { return openapi3.NewStringSchema().WithNullable() }
func nullableNumber() *openapi3.Schema { return openapi3.NewFloat64Schema().WithNullable() }
func nullableInt() *openapi3.Schema    { return openapi3.NewIntegerSchema().WithNullable() }

func stringList() *openapi3.Schema {
	return openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())
}

// ReceiptSchema 校验 ReceiptAnswer
func ReceiptSchema() *openapi3.Schema {
	item := openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("quantity", nullableNumber()).
		WithProperty("price", nullableNumber()).
		WithRequired([]string{"name"})
	return openapi3.NewObjectSchema().
		WithProperty("merchant", openapi3.NewStringSchema().WithMinLength(1)).
		WithProperty("purchase_date", nullableString()).
		WithProperty("total", openapi3.NewFloat64Schema().WithMin(0)).
		WithProperty("currency", nullableString()).
		WithProperty("items", openapi3.NewArraySchema().WithItems(item)).
		WithProperty("purchase_ids", stringList()).
		WithRequired([]string{"merchant", "total"})
}

// ReturnPolicySchema 校验 ReturnPolicyAnswer
func ReturnPolicySchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("eligible", openapi3.NewBoolSchema()).
		WithProperty("deadline_date", nullableString()).
		WithProperty("days_remaining", nullableInt()).
		WithProperty("conditions", stringList()).
		WithProperty("recommendations", stringList()).
		WithRequired([]string{"eligible", "recommendations"})
}

// PriceSchema 校验 PriceAnswer
func PriceSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("current_price", nullableNumber()).
		WithProperty("original_price", nullableNumber()).
		WithProperty("price_drop", nullableNumber()).
		WithProperty("claimable", openapi3.NewBoolSchema()).
		WithProperty("recommendations", stringList()).
		WithRequired([]string{"claimable", "recommendations"})
}

// RecurrenceSchema 校验 RecurrenceAnswer
func RecurrenceSchema() *openapi3.Schema {
	dup := openapi3.NewObjectSchema().
		WithProperty("merchant", openapi3.NewStringSchema()).
		WithProperty("amount", openapi3.NewFloat64Schema()).
		WithProperty("purchase_ids", stringList()).
		WithRequired([]string{"merchant", "purchase_ids"})
	return openapi3.NewObjectSchema().
		WithProperty("is_recurring", openapi3.NewBoolSchema()).
		WithProperty("frequency", openapi3.NewStringSchema().
			WithEnum("weekly", "monthly", "quarterly", "yearly", "irregular", "none").
			WithNullable()).
		WithProperty("potential_savings", nullableNumber()).
		WithProperty("duplicates", openapi3.NewArraySchema().WithItems(dup)).
		WithProperty("recommendations", stringList()).
		WithRequired([]string{"is_recurring", "recommendations"})
}

// WarrantySchema 校验 WarrantyAnswer
func WarrantySchema() *openapi3.Schema {
	expiring := openapi3.NewObjectSchema().
		WithProperty("purchase_id", openapi3.NewStringSchema()).
		WithProperty("provider", nullableString()).
		WithProperty("expires_at", openapi3.NewStringSchema()).
		WithProperty("days_remaining", nullableInt()).
		WithRequired([]string{"purchase_id", "expires_at"})
	return openapi3.NewObjectSchema().
		WithProperty("has_warranty", openapi3.NewBoolSchema()).
		WithProperty("warranty_months", nullableInt()).
		WithProperty("expires_at", nullableString()).
		WithProperty("provider", nullableString()).
		WithProperty("expiring", openapi3.NewArraySchema().WithItems(expiring)).
		WithProperty("recommendations", stringList()).
		WithRequired([]string{"has_warranty", "recommendations"})
}

// Recommendations 从任意答案数据中取出 recommendations 字段
func Recommendations(data any) []string {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	var out []string
	switch recs := m["recommendations"].(type) {
	case []any:
		for _, r := range recs {
			if s, ok := r.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range recs {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}
