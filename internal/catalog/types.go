package catalog

import "time"

// Discount value types understood by the personalization math.
// Anything else passes products through undiscounted.
const (
	ValueTypePercentage  = "percentage"
	ValueTypeFixedAmount = "fixed_amount"
)

// Product is an immutable snapshot of one upstream catalog entry.
// Replaced wholesale on refresh, never mutated in place.
type Product struct {
	ID                int64   `json:"id"`
	Title             string  `json:"title"`
	Description       string  `json:"description,omitempty"`
	Price             float64 `json:"price"`
	Vendor            string  `json:"vendor,omitempty"`
	ProductType       string  `json:"product_type,omitempty"`
	Handle            string  `json:"handle,omitempty"`
	Status            string  `json:"status,omitempty"`
	InventoryQuantity int     `json:"inventory_quantity"`
	ImageURL          string  `json:"image_url,omitempty"`
}

// Discount is one discount code with its pricing rule attributes.
type Discount struct {
	ID          int64      `json:"id"`
	Code        string     `json:"code"`
	Title       string     `json:"title,omitempty"`
	ValueType   string     `json:"value_type"`
	Value       float64    `json:"value"`
	Description string     `json:"description,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	UsageCount  int        `json:"usage_count,omitempty"`
	TargetType  string     `json:"target_type,omitempty"`
}

// Snapshot is one consistent view of the catalog. Readers get the whole
// thing or nothing; the cache swaps snapshots atomically.
type Snapshot struct {
	Products  []Product  `json:"products"`
	Discounts []Discount `json:"discounts"`
	AsOf      time.Time  `json:"as_of"`

	productsByID  map[int64]Product
	discountsByID map[int64]Discount
}

// NewSnapshot builds a snapshot with its lookup indexes. Duplicate
// identifiers keep the first occurrence.
func NewSnapshot(products []Product, discounts []Discount, asOf time.Time) Snapshot {
	s := Snapshot{
		Products:      products,
		Discounts:     discounts,
		AsOf:          asOf,
		productsByID:  make(map[int64]Product, len(products)),
		discountsByID: make(map[int64]Discount, len(discounts)),
	}
	for _, p := range products {
		if _, ok := s.productsByID[p.ID]; !ok {
			s.productsByID[p.ID] = p
		}
	}
	for _, d := range discounts {
		if _, ok := s.discountsByID[d.ID]; !ok {
			s.discountsByID[d.ID] = d
		}
	}
	return s
}

func (s Snapshot) Product(id int64) (Product, bool) {
	p, ok := s.productsByID[id]
	return p, ok
}

func (s Snapshot) Discount(id int64) (Discount, bool) {
	d, ok := s.discountsByID[id]
	return d, ok
}

func (s Snapshot) Empty() bool {
	return s.AsOf.IsZero()
}
