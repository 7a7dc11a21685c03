package engine

import (
	"math"

	"agent-pricing-engine/internal/campaign"
	"agent-pricing-engine/internal/catalog"
)

// PricedProduct is one catalog product with campaign pricing applied.
// OriginalPrice is always preserved for transparency.
type PricedProduct struct {
	catalog.Product
	OriginalPrice       float64 `json:"original_price"`
	FinalPrice          float64 `json:"final_price"`
	DiscountPercentage  float64 `json:"discount_percentage"`
	AppliedDiscountCode *string `json:"applied_discount_code"`
	UnknownValueType    bool    `json:"unknown_value_type,omitempty"`
}

// Personalize joins the resolved campaigns' product references against the
// catalog snapshot and prices each product with the best applicable
// discount. Product identifiers missing from the snapshot are dropped.
func Personalize(resolved []campaign.Campaign, snap catalog.Snapshot) []PricedProduct {
	var order []int64
	seen := make(map[int64]struct{})
	for _, c := range resolved {
		for _, id := range c.ProductIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			order = append(order, id)
		}
	}

	out := make([]PricedProduct, 0, len(order))
	for _, id := range order {
		product, ok := snap.Product(id)
		if !ok {
			continue
		}
		out = append(out, priceProduct(product, candidateDiscounts(id, resolved, snap)))
	}
	return out
}

// Undiscounted renders the full catalog at list price, the documented
// fallback when no campaign resolves.
func Undiscounted(snap catalog.Snapshot) []PricedProduct {
	out := make([]PricedProduct, 0, len(snap.Products))
	for _, p := range snap.Products {
		out = append(out, PricedProduct{
			Product:       p,
			OriginalPrice: p.Price,
			FinalPrice:    p.Price,
		})
	}
	return out
}

// candidateDiscounts collects every discount referenced by a resolved
// campaign that also lists the product. Duplicate references count once.
func candidateDiscounts(productID int64, resolved []campaign.Campaign, snap catalog.Snapshot) []catalog.Discount {
	var out []catalog.Discount
	seen := make(map[int64]struct{})
	for _, c := range resolved {
		if !containsID(c.ProductIDs, productID) {
			continue
		}
		for _, did := range c.DiscountIDs {
			if _, dup := seen[did]; dup {
				continue
			}
			seen[did] = struct{}{}
			if d, ok := snap.Discount(did); ok {
				out = append(out, d)
			}
		}
	}
	return out
}

// priceProduct picks the discount yielding the lowest final price. Unknown
// value types pass the product through undiscounted and are flagged.
func priceProduct(p catalog.Product, discounts []catalog.Discount) PricedProduct {
	out := PricedProduct{
		Product:       p,
		OriginalPrice: p.Price,
		FinalPrice:    p.Price,
	}

	unknownSeen := false
	for _, d := range discounts {
		final, known := applyDiscount(p.Price, d)
		if !known {
			unknownSeen = true
			continue
		}
		if out.AppliedDiscountCode == nil || final < out.FinalPrice {
			code := d.Code
			out.AppliedDiscountCode = &code
			out.FinalPrice = round2(final)
			out.DiscountPercentage = discountPercentage(p.Price, d)
		}
	}

	if out.AppliedDiscountCode == nil {
		out.FinalPrice = p.Price
		out.UnknownValueType = unknownSeen
	}
	return out
}

// applyDiscount computes the discounted price. Upstream value strings can
// arrive negative ("-30.0" meaning 30% off); the sign is normalized away.
func applyDiscount(price float64, d catalog.Discount) (final float64, known bool) {
	value := math.Abs(d.Value)
	switch d.ValueType {
	case catalog.ValueTypePercentage:
		return price * (1 - value/100), true
	case catalog.ValueTypeFixedAmount:
		return math.Max(0, price-value), true
	default:
		return price, false
	}
}

func discountPercentage(price float64, d catalog.Discount) float64 {
	value := math.Abs(d.Value)
	switch d.ValueType {
	case catalog.ValueTypePercentage:
		return round2(value)
	case catalog.ValueTypeFixedAmount:
		if price <= 0 {
			return 0
		}
		return round2(math.Min(value, price) / price * 100)
	default:
		return 0
	}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
