package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/store"
	"github.com/arvalo/arvalo/types"
)

func purchaseTools(repo *store.Repository, now func() time.Time) []agent.Tool {
	h := &purchaseHandlers{repo: repo, now: now}
	return []agent.Tool{
		{
			Name:        GetPurchase,
			Description: "Get a purchase by id, including days since purchase and the merchant's return and price-match policy when known.",
			InputSchema: types.NewObjectSchema().
				AddProperty("purchase_id", types.NewStringSchema("Purchase id")).
				AddRequired("purchase_id"),
			Execute: h.getPurchase,
		},
		{
			Name:        ListPurchases,
			Description: "List the user's purchases, newest first. Optionally filter by merchant or by the last N days.",
			InputSchema: types.NewObjectSchema().
				AddProperty("merchant", types.NewStringSchema("Merchant name, case-insensitive")).
				AddProperty("days", types.NewIntegerSchema("Only purchases from the last N days")).
				AddProperty("limit", types.NewIntegerSchema("Maximum number of purchases (default 50)")),
			Execute: h.listPurchases,
		},
		{
			Name:        SavePurchase,
			Description: "Save a purchase extracted from a receipt. Returns the stored purchase with its id.",
			InputSchema: types.NewObjectSchema().
				AddProperty("merchant", types.NewStringSchema("Merchant name")).
				AddProperty("product_name", types.NewStringSchema("Product or item summary")).
				AddProperty("price", types.NewNumberSchema("Total price paid")).
				AddProperty("currency", types.NewStringSchema("ISO 4217 currency code, default USD")).
				AddProperty("purchase_date", types.NewStringSchema("Purchase date, YYYY-MM-DD or RFC3339")).
				AddProperty("product_url", types.NewStringSchema("Product page URL if known")).
				AddProperty("category", types.NewStringSchema("Product category")).
				AddProperty("receipt_id", types.NewStringSchema("Source receipt id")).
				AddProperty("is_recurring", types.NewBooleanSchema("Whether this is a recurring charge")).
				AddRequired("merchant", "price"),
			Execute: h.savePurchase,
		},
		{
			Name:        GetReceipt,
			Description: "Get the raw text of a stored receipt.",
			InputSchema: types.NewObjectSchema().
				AddProperty("receipt_id", types.NewStringSchema("Receipt id")).
				AddRequired("receipt_id"),
			Execute: h.getReceipt,
		},
		{
			Name:        ListSubscriptions,
			Description: "List the user's subscriptions with their monthly cost and the total monthly spend.",
			InputSchema: types.NewObjectSchema().
				AddProperty("active_only", types.NewBooleanSchema("Only active subscriptions (default true)")),
			Execute: h.listSubscriptions,
		},
		{
			Name:        SaveWarranty,
			Description: "Record a warranty for a purchase. The expiry is computed from the start date and length in months.",
			InputSchema: types.NewObjectSchema().
				AddProperty("purchase_id", types.NewStringSchema("Purchase id")).
				AddProperty("provider", types.NewStringSchema("Warranty provider, usually the manufacturer")).
				AddProperty("months", types.NewIntegerSchema("Warranty length in months")).
				AddProperty("starts_at", types.NewStringSchema("Start date, defaults to the purchase date")).
				AddProperty("coverage", types.NewStringSchema("What the warranty covers")).
				AddRequired("purchase_id", "months"),
			Execute: h.saveWarranty,
		},
		{
			Name:        ListWarranties,
			Description: "List the user's warranties, optionally only those expiring within N days.",
			InputSchema: types.NewObjectSchema().
				AddProperty("expiring_within_days", types.NewIntegerSchema("Only warranties expiring within N days")),
			Execute: h.listWarranties,
		},
		{
			Name:        RecordPriceDrop,
			Description: "Record that the current price of a purchased product is lower than what the user paid.",
			InputSchema: types.NewObjectSchema().
				AddProperty("purchase_id", types.NewStringSchema("Purchase id")).
				AddProperty("new_price", types.NewNumberSchema("Current lower price")).
				AddProperty("source_url", types.NewStringSchema("Where the lower price was seen")).
				AddRequired("purchase_id", "new_price"),
			Execute: h.recordPriceDrop,
		},
		{
			Name:        LookupMerchant,
			Description: "Look up a merchant's return window, price-match window, restocking fee and default warranty.",
			InputSchema: types.NewObjectSchema().
				AddProperty("merchant", types.NewStringSchema("Merchant name")).
				AddRequired("merchant"),
			Execute: h.lookupMerchant,
		},
	}
}

type purchaseHandlers struct {
	repo *store.Repository
	now  func() time.Time
}

func (h *purchaseHandlers) getPurchase(ctx context.Context, params map[string]any) (any, error) {
	var args struct {
		UserID     string `json:"user_id"`
		PurchaseID string `json:"purchase_id"`
	}
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	uid, err := userID(ctx, args.UserID)
	if err != nil {
		return nil, err
	}
	p, err := h.repo.GetPurchase(ctx, uid, args.PurchaseID)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"purchase":            p,
		"days_since_purchase": daysBetween(p.PurchaseDate, h.now()),
	}
	policy, err := h.repo.GetMerchantPolicy(ctx, p.Merchant)
	switch {
	case err == nil:
		out["merchant_policy"] = policy
		if policy.ReturnDays > 0 {
			out["return_deadline"] = p.PurchaseDate.AddDate(0, 0, policy.ReturnDays).Format("2006-01-02")
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	return out, nil
}

func (h *purchaseHandlers) listPurchases(ctx context.Context, params map[string]any) (any, error) {
	var args struct {
		UserID   string `json:"user_id"`
		Merchant string `json:"merchant"`
		Days     int    `json:"days"`
		Limit    int    `json:"limit"`
	}
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	uid, err := userID(ctx, args.UserID)
	if err != nil {
		return nil, err
	}
	opts := store.ListOptions{UserID: uid, Merchant: args.Merchant, Limit: args.Limit}
	if args.Days > 0 {
		opts.Since = h.now().AddDate(0, 0, -args.Days)
	}
	purchases, err := h.repo.ListPurchases(ctx, opts)
	if err != nil {
		return nil, err
	}
	return map[string]any{"purchases": purchases, "count": len(purchases)}, nil
}

func (h *purchaseHandlers) savePurchase(ctx context.Context, params map[string]any) (any, error) {
	var args struct {
		UserID       string  `json:"user_id"`
		Merchant     string  `json:"merchant"`
		ProductName  string  `json:"product_name"`
		Price        float64 `json:"price"`
		Currency     string  `json:"currency"`
		PurchaseDate string  `json:"purchase_date"`
		ProductURL   string  `json:"product_url"`
		Category     string  `json:"category"`
		ReceiptID    string  `json:"receipt_id"`
		IsRecurring  bool    `json:"is_recurring"`
	}
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	uid, err := userID(ctx, args.UserID)
	if err != nil {
		return nil, err
	}
	date, err := parseDate(args.PurchaseDate)
	if err != nil {
		return nil, err
	}
	p := &store.Purchase{
		UserID:       uid,
		Merchant:     args.Merchant,
		ProductName:  args.ProductName,
		Price:        args.Price,
		Currency:     args.Currency,
		PurchaseDate: date,
		ProductURL:   args.ProductURL,
		Category:     args.Category,
		ReceiptID:    args.ReceiptID,
		IsRecurring:  args.IsRecurring,
	}
	if err := h.repo.SavePurchase(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (h *purchaseHandlers) getReceipt(ctx context.Context, params map[string]any) (any, error) {
	var args struct {
		UserID    string `json:"user_id"`
		ReceiptID string `json:"receipt_id"`
	}
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	uid, err := userID(ctx, args.UserID)
	if err != nil {
		return nil, err
	}
	return h.repo.GetReceipt(ctx, uid, args.ReceiptID)
}

func (h *purchaseHandlers) listSubscriptions(ctx context.Context, params map[string]any) (any, error) {
	args := struct {
		UserID     string `json:"user_id"`
		ActiveOnly bool   `json:"active_only"`
	}{ActiveOnly: true}
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	uid, err := userID(ctx, args.UserID)
	if err != nil {
		return nil, err
	}
	subs, err := h.repo.ListSubscriptions(ctx, uid, args.ActiveOnly)
	if err != nil {
		return nil, err
	}

	type row struct {
		store.Subscription
		MonthlyCost float64 `json:"monthly_cost"`
	}
	rows := make([]row, 0, len(subs))
	total := 0.0
	for _, s := range subs {
		mc := s.MonthlyCost()
		total += mc
		rows = append(rows, row{Subscription: s, MonthlyCost: mc})
	}
	return map[string]any{"subscriptions": rows, "monthly_total": total}, nil
}

func (h *purchaseHandlers) saveWarranty(ctx context.Context, params map[string]any) (any, error) {
	var args struct {
		UserID     string `json:"user_id"`
		PurchaseID string `json:"purchase_id"`
		Provider   string `json:"provider"`
		Months     int    `json:"months"`
		StartsAt   string `json:"starts_at"`
		Coverage   string `json:"coverage"`
	}
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	uid, err := userID(ctx, args.UserID)
	if err != nil {
		return nil, err
	}
	p, err := h.repo.GetPurchase(ctx, uid, args.PurchaseID)
	if err != nil {
		return nil, err
	}
	start, err := parseDate(args.StartsAt)
	if err != nil {
		return nil, err
	}
	if start.IsZero() {
		start = p.PurchaseDate
	}
	provider := args.Provider
	if provider == "" {
		provider = p.Merchant
	}
	w := &store.Warranty{
		UserID:     uid,
		PurchaseID: p.ID,
		Provider:   provider,
		Months:     args.Months,
		StartsAt:   start,
		Coverage:   args.Coverage,
	}
	if err := h.repo.SaveWarranty(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (h *purchaseHandlers) listWarranties(ctx context.Context, params map[string]any) (any, error) {
	var args struct {
		UserID string `json:"user_id"`
		Days   int    `json:"expiring_within_days"`
	}
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	uid, err := userID(ctx, args.UserID)
	if err != nil {
		return nil, err
	}
	warranties, err := h.repo.ListWarranties(ctx, uid, time.Duration(args.Days)*24*time.Hour)
	if err != nil {
		return nil, err
	}
	return map[string]any{"warranties": warranties, "count": len(warranties)}, nil
}

func (h *purchaseHandlers) recordPriceDrop(ctx context.Context, params map[string]any) (any, error) {
	var args struct {
		UserID     string  `json:"user_id"`
		PurchaseID string  `json:"purchase_id"`
		NewPrice   float64 `json:"new_price"`
		SourceURL  string  `json:"source_url"`
	}
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	uid, err := userID(ctx, args.UserID)
	if err != nil {
		return nil, err
	}
	p, err := h.repo.GetPurchase(ctx, uid, args.PurchaseID)
	if err != nil {
		return nil, err
	}
	d := &store.PriceDrop{
		UserID:     uid,
		PurchaseID: p.ID,
		OldPrice:   p.Price,
		NewPrice:   args.NewPrice,
		SourceURL:  args.SourceURL,
	}
	if err := h.repo.RecordPriceDrop(ctx, d); err != nil {
		return nil, err
	}
	return map[string]any{"price_drop": d, "amount": d.Amount()}, nil
}

func (h *purchaseHandlers) lookupMerchant(ctx context.Context, params map[string]any) (any, error) {
	var args struct {
		Merchant string `json:"merchant"`
	}
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	policy, err := h.repo.GetMerchantPolicy(ctx, args.Merchant)
	if errors.Is(err, store.ErrNotFound) {
		return map[string]any{"merchant": args.Merchant, "known": false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup merchant: %w", err)
	}
	return map[string]any{"known": true, "policy": policy}, nil
}
